// Package provider declares the capability-routed interface every agent
// backend implements, plus a router that selects a provider per role and
// fans out cross-cutting operations across the registered set.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/orcherrors"
)

// ProviderCapabilities describes what a provider backend can do.
type ProviderCapabilities struct {
	Name                string
	SupportsStreaming   bool
	SupportsInterrupt   bool
	SupportsHealthCheck bool
	SupportsFileEditing bool
	SupportsTerminal    bool
	SupportsToolCalling bool
	MaxConcurrentAgents int
	Priority            int
}

// Requirements is the capability set a role needs from a provider.
type Requirements struct {
	NeedsToolCalling bool
	NeedsFileEditing bool
	NeedsTerminal    bool
}

// RequirementsFor returns the capability requirements for role, per the
// Coordinator/Implementor/Verifier division of labor.
func RequirementsFor(role domain.AgentRole) Requirements {
	switch role {
	case domain.RoleCoordinator:
		return Requirements{NeedsToolCalling: true}
	case domain.RoleImplementor:
		return Requirements{NeedsFileEditing: true, NeedsTerminal: true}
	case domain.RoleVerifier:
		return Requirements{NeedsTerminal: true}
	default:
		return Requirements{}
	}
}

// Satisfies reports whether caps meets every requirement in r.
func (r Requirements) Satisfies(caps ProviderCapabilities) bool {
	if r.NeedsToolCalling && !caps.SupportsToolCalling {
		return false
	}
	if r.NeedsFileEditing && !caps.SupportsFileEditing {
		return false
	}
	if r.NeedsTerminal && !caps.SupportsTerminal {
		return false
	}
	return true
}

// StreamChunkKind discriminates the StreamChunk tagged union.
type StreamChunkKind string

const (
	ChunkText             StreamChunkKind = "Text"
	ChunkThinking         StreamChunkKind = "Thinking"
	ChunkToolCall         StreamChunkKind = "ToolCall"
	ChunkToolResult       StreamChunkKind = "ToolResult"
	ChunkError            StreamChunkKind = "Error"
	ChunkCompleted        StreamChunkKind = "Completed"
	ChunkCompletionReport StreamChunkKind = "CompletionReport"
	ChunkHeartbeat        StreamChunkKind = "Heartbeat"
)

// ThinkingPhase marks the position of a Thinking chunk within a thought.
type ThinkingPhase string

const (
	ThinkingStart ThinkingPhase = "Start"
	ThinkingChunk ThinkingPhase = "Chunk"
	ThinkingEnd   ThinkingPhase = "End"
)

// ToolCallStatus marks the lifecycle of a ToolCall chunk.
type ToolCallStatus string

const (
	ToolCallInProgress ToolCallStatus = "InProgress"
	ToolCallCompleted  ToolCallStatus = "Completed"
	ToolCallFailed     ToolCallStatus = "Failed"
)

// StreamChunk is one unit of a streaming provider run.
type StreamChunk struct {
	Kind StreamChunkKind

	Text string

	ThinkingPhase ThinkingPhase
	ThinkingText  string

	ToolCallName   string
	ToolCallStatus ToolCallStatus
	ToolResult     string

	ErrText     string
	Recoverable bool
	StopReason  string
	Completion  domain.CompletionReport
}

// RunRequest is the input to a single agent turn.
type RunRequest struct {
	AgentID string
	Role    domain.AgentRole
	Prompt  string
	Context context.Context
}

// RunResult is the non-streaming outcome of a turn.
type RunResult struct {
	Text       string
	StopReason string
}

// Provider is the interface every agent backend implements.
type Provider interface {
	Capabilities() ProviderCapabilities
	Run(ctx context.Context, req RunRequest) (RunResult, error)
	RunStreaming(ctx context.Context, req RunRequest, onChunk func(StreamChunk)) error
	IsHealthy(ctx context.Context) bool
	Interrupt(ctx context.Context, agentID string) error
	Cleanup(ctx context.Context, agentID string) error
	Shutdown(ctx context.Context) error
}

// Router selects a provider per role and fans cross-cutting operations out
// across every registered provider.
type Router struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Register adds p to the registered set, in registration order (used to
// break priority ties).
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// Select returns the highest-priority provider satisfying role's
// requirements, or a KindRoutingNoSuitable error naming the role, its
// requirements, and every registered capability set.
func (r *Router) Select(role domain.AgentRole) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req := RequirementsFor(role)
	var candidates []Provider
	for _, p := range r.providers {
		if req.Satisfies(p.Capabilities()) {
			candidates = append(candidates, p)
		}
	}

	if len(candidates) == 0 {
		var all []string
		for _, p := range r.providers {
			all = append(all, fmt.Sprintf("%+v", p.Capabilities()))
		}
		return nil, orcherrors.New(orcherrors.KindRoutingNoSuitable, "Router.Select",
			fmt.Sprintf("no provider satisfies role %s (requirements %+v); registered: %v", role, req, all))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Capabilities().Priority > candidates[j].Capabilities().Priority
	})
	return candidates[0], nil
}

// IsHealthy is the conjunction of IsHealthy across every registered
// provider.
func (r *Router) IsHealthy(ctx context.Context) bool {
	r.mu.RLock()
	providers := append([]Provider(nil), r.providers...)
	r.mu.RUnlock()

	for _, p := range providers {
		if !p.IsHealthy(ctx) {
			return false
		}
	}
	return true
}

// Interrupt fans out to every registered provider, collecting the first
// error encountered (if any) while still attempting every provider.
func (r *Router) Interrupt(ctx context.Context, agentID string) error {
	return r.fanOut(func(p Provider) error { return p.Interrupt(ctx, agentID) })
}

// Cleanup fans out to every registered provider, collecting the first
// error encountered (if any) while still attempting every provider.
func (r *Router) Cleanup(ctx context.Context, agentID string) error {
	return r.fanOut(func(p Provider) error { return p.Cleanup(ctx, agentID) })
}

func (r *Router) fanOut(op func(Provider) error) error {
	r.mu.RLock()
	providers := append([]Provider(nil), r.providers...)
	r.mu.RUnlock()

	var wg sync.WaitGroup
	errs := make([]error, len(providers))
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			errs[i] = op(p)
		}(i, p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
