package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/jsonrpc"
	"github.com/arcway-dev/orchestra/internal/logging"
	"github.com/arcway-dev/orchestra/internal/supervisor"
	"github.com/arcway-dev/orchestra/internal/telemetry"
)

const protocolVersion = 1

// tracedCall wraps a supervisor.Call in an RPC span tagged with the
// agent id and method.
func tracedCall(ctx context.Context, sup *supervisor.Supervisor, agentID, method string, params map[string]any) (*jsonrpc.Response, error) {
	spanCtx, span := telemetry.StartRPCSpan(ctx, agentID, method)
	resp, err := sup.Call(spanCtx, method, params)
	telemetry.End(span, err)
	if err == nil && resp.IsError() {
		err = resp.Error
	}
	return resp, err
}

// ProcessProviderConfig describes how to launch the agent subprocess behind
// a ProcessProvider.
type ProcessProviderConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	Cwd     string
}

// processInstance is one supervised child plus its open wire session. The
// handshake (initialize, session/new, session/set_mode) runs once; later
// turns reuse the session and only issue session/prompt.
type processInstance struct {
	sup       *supervisor.Supervisor
	sessionID string

	mu      sync.Mutex
	onChunk func(StreamChunk)
}

func (inst *processInstance) setChunkSink(onChunk func(StreamChunk)) {
	inst.mu.Lock()
	inst.onChunk = onChunk
	inst.mu.Unlock()
}

func (inst *processInstance) emit(chunk StreamChunk) {
	inst.mu.Lock()
	sink := inst.onChunk
	inst.mu.Unlock()
	if sink != nil {
		sink(chunk)
	}
}

// ProcessProvider instantiates one supervised child per agent id and
// translates its session/update notifications into StreamChunk values.
type ProcessProvider struct {
	cfg    ProcessProviderConfig
	caps   ProviderCapabilities
	logger logging.Logger

	mu        sync.Mutex
	instances map[string]*processInstance
}

// NewProcessProvider returns a provider that spawns one child process per
// agent id, reporting caps as its capability set.
func NewProcessProvider(cfg ProcessProviderConfig, caps ProviderCapabilities, logger logging.Logger) *ProcessProvider {
	return &ProcessProvider{
		cfg:       cfg,
		caps:      caps,
		logger:    logging.OrNop(logger),
		instances: make(map[string]*processInstance),
	}
}

// Capabilities returns the provider's declared capability set.
func (p *ProcessProvider) Capabilities() ProviderCapabilities { return p.caps }

// modeFor maps a role to the child's mode id: read-only planning for the
// Coordinator and Verifier, full-build for the Implementor.
func modeFor(role domain.AgentRole) string {
	if role == domain.RoleImplementor {
		return "execute"
	}
	return "plan"
}

func (p *ProcessProvider) instanceFor(ctx context.Context, req RunRequest) (*processInstance, error) {
	p.mu.Lock()
	if inst, ok := p.instances[req.AgentID]; ok {
		p.mu.Unlock()
		return inst, nil
	}
	p.mu.Unlock()

	inst := &processInstance{}

	sup, err := supervisor.New(ctx, supervisor.ProcessConfig{
		Command: p.cfg.Command,
		Args:    p.cfg.Args,
		Env:     p.cfg.Env,
		Dir:     p.cfg.Cwd,
	},
		supervisor.WithLogger(p.logger),
		supervisor.WithHostResponder(supervisor.NewLocalFSHostResponder()),
		supervisor.WithNotificationHandler(func(notif *jsonrpc.Request) {
			p.handleNotification(inst, notif)
		}),
	)
	if err != nil {
		return nil, err
	}
	inst.sup = sup

	if _, err := tracedCall(ctx, sup, req.AgentID, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      map[string]any{"name": "orchestra", "version": "1"},
	}); err != nil {
		_ = sup.Kill()
		return nil, fmt.Errorf("provider: initialize: %w", err)
	}

	resp, err := tracedCall(ctx, sup, req.AgentID, "session/new", map[string]any{
		"cwd":        p.cfg.Cwd,
		"mcpServers": []any{},
	})
	if err != nil {
		_ = sup.Kill()
		return nil, fmt.Errorf("provider: session/new: %w", err)
	}
	inst.sessionID = sessionIDFrom(resp.Result)
	if inst.sessionID == "" {
		inst.sessionID = req.AgentID
	}

	if _, err := tracedCall(ctx, sup, req.AgentID, "session/set_mode", map[string]any{
		"sessionId": inst.sessionID,
		"modeId":    modeFor(req.Role),
	}); err != nil {
		// set_mode is optional on the wire; children without it answer
		// -32601 and keep their default mode.
		p.logger.Debug("provider: session/set_mode unsupported for %s: %v", req.AgentID, err)
	}

	p.mu.Lock()
	p.instances[req.AgentID] = inst
	p.mu.Unlock()
	return inst, nil
}

// Run performs one full turn, folding any streamed text into the final
// result.
func (p *ProcessProvider) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	var text strings.Builder
	err := p.RunStreaming(ctx, req, func(c StreamChunk) {
		if c.Kind == ChunkText {
			text.WriteString(c.Text)
		}
	})
	return RunResult{Text: text.String(), StopReason: "end_turn"}, err
}

// RunStreaming drives one child process turn, translating its
// session/update notifications into StreamChunk callbacks. The handshake
// runs only on the first turn for an agent id; later turns reuse the open
// session.
func (p *ProcessProvider) RunStreaming(ctx context.Context, req RunRequest, onChunk func(StreamChunk)) error {
	inst, err := p.instanceFor(ctx, req)
	if err != nil {
		return err
	}

	inst.setChunkSink(onChunk)
	defer inst.setChunkSink(nil)

	resp, err := tracedCall(ctx, inst.sup, req.AgentID, "session/prompt", map[string]any{
		"sessionId": inst.sessionID,
		"prompt":    []any{map[string]any{"type": "text", "text": req.Prompt}},
	})
	if err != nil {
		onChunk(StreamChunk{Kind: ChunkError, ErrText: err.Error(), Recoverable: false})
		return err
	}

	if text, ok := extractText(resp.Result); ok && text != "" {
		onChunk(StreamChunk{Kind: ChunkText, Text: text})
	}
	onChunk(StreamChunk{Kind: ChunkCompleted, StopReason: stopReasonFrom(resp.Result)})
	return nil
}

// handleNotification translates one inbound session/update notification
// into a StreamChunk. Unknown update kinds are logged and ignored.
func (p *ProcessProvider) handleNotification(inst *processInstance, notif *jsonrpc.Request) {
	if notif.Method != "session/update" {
		p.logger.Debug("provider: ignoring notification %s", notif.Method)
		return
	}
	update, _ := notif.Params["update"].(map[string]any)
	if update == nil {
		return
	}
	kind, _ := update["sessionUpdate"].(string)

	switch kind {
	case "agent_message_chunk":
		inst.emit(StreamChunk{Kind: ChunkText, Text: contentText(update)})
	case "agent_thought_chunk":
		inst.emit(StreamChunk{Kind: ChunkThinking, ThinkingPhase: ThinkingChunk, ThinkingText: contentText(update)})
	case "tool_call":
		name, _ := update["title"].(string)
		inst.emit(StreamChunk{Kind: ChunkToolCall, ToolCallName: name, ToolCallStatus: ToolCallInProgress})
	case "tool_call_update":
		name, _ := update["title"].(string)
		inst.emit(StreamChunk{Kind: ChunkToolCall, ToolCallName: name, ToolCallStatus: toolStatusFrom(update)})
	case "plan", "usage_update", "current_mode_update", "available_commands_update", "session_info_update":
		// Advisory updates with no chunk mapping.
	default:
		p.logger.Debug("provider: unknown session/update kind %q", kind)
	}
}

func contentText(update map[string]any) string {
	content, _ := update["content"].(map[string]any)
	if content == nil {
		return ""
	}
	text, _ := content["text"].(string)
	return text
}

func toolStatusFrom(update map[string]any) ToolCallStatus {
	status, _ := update["status"].(string)
	switch status {
	case "completed":
		return ToolCallCompleted
	case "failed":
		return ToolCallFailed
	default:
		return ToolCallInProgress
	}
}

func sessionIDFrom(result any) string {
	m, ok := result.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := m["sessionId"].(string)
	return id
}

func stopReasonFrom(result any) string {
	m, ok := result.(map[string]any)
	if !ok {
		return "end_turn"
	}
	if reason, ok := m["stopReason"].(string); ok && reason != "" {
		return reason
	}
	return "end_turn"
}

func extractText(result any) (string, bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return "", false
	}
	text, ok := m["text"].(string)
	return text, ok
}

// IsHealthy reports whether every live child instance is still alive.
func (p *ProcessProvider) IsHealthy(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, inst := range p.instances {
		if inst.sup.State() == supervisor.StateDead {
			return false
		}
	}
	return true
}

// Interrupt cancels the running session for agentID, if any. A dead child
// makes this a no-op.
func (p *ProcessProvider) Interrupt(_ context.Context, agentID string) error {
	p.mu.Lock()
	inst, ok := p.instances[agentID]
	p.mu.Unlock()
	if !ok || inst.sup.State() == supervisor.StateDead {
		return nil
	}
	return inst.sup.Cancel(inst.sessionID)
}

// Cleanup kills and forgets the child instance backing agentID.
func (p *ProcessProvider) Cleanup(_ context.Context, agentID string) error {
	p.mu.Lock()
	inst, ok := p.instances[agentID]
	if ok {
		delete(p.instances, agentID)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return inst.sup.Kill()
}

// Shutdown kills every live child instance.
func (p *ProcessProvider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	instances := p.instances
	p.instances = make(map[string]*processInstance)
	p.mu.Unlock()

	var firstErr error
	for _, inst := range instances {
		if err := inst.sup.Kill(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Provider = (*ProcessProvider)(nil)
