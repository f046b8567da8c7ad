package provider

import (
	"context"

	"github.com/arcway-dev/orchestra/internal/logging"
	"github.com/arcway-dev/orchestra/internal/provider/remote"
)

// RemoteProvider adapts internal/provider/remote.Provider, an HTTP POST +
// SSE transport, to the Provider interface so a remote agent service can be
// registered on a Router alongside process-backed and stub providers.
type RemoteProvider struct {
	inner *remote.Provider
	caps  ProviderCapabilities
}

// NewRemoteProvider dials addr lazily (per agent id, on first use) and
// reports caps as its capability set.
func NewRemoteProvider(cfg remote.Config, caps ProviderCapabilities, logger logging.Logger) *RemoteProvider {
	remoteCaps := remote.Capabilities{
		Name:                caps.Name,
		SupportsStreaming:   caps.SupportsStreaming,
		SupportsInterrupt:   caps.SupportsInterrupt,
		SupportsHealthCheck: caps.SupportsHealthCheck,
		SupportsFileEditing: caps.SupportsFileEditing,
		SupportsTerminal:    caps.SupportsTerminal,
		SupportsToolCalling: caps.SupportsToolCalling,
		MaxConcurrentAgents: caps.MaxConcurrentAgents,
		Priority:            caps.Priority,
	}
	return &RemoteProvider{inner: remote.New(cfg, remoteCaps, logger), caps: caps}
}

// Capabilities returns the provider's declared capability set.
func (p *RemoteProvider) Capabilities() ProviderCapabilities { return p.caps }

// Run performs a single non-streaming turn against the remote service.
func (p *RemoteProvider) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	res, err := p.inner.Run(ctx, remote.Request{AgentID: req.AgentID, Role: req.Role, Prompt: req.Prompt})
	return RunResult{Text: res.Text, StopReason: res.StopReason}, err
}

// RunStreaming drives one remote turn, translating remote.Chunk values into
// StreamChunk callbacks.
func (p *RemoteProvider) RunStreaming(ctx context.Context, req RunRequest, onChunk func(StreamChunk)) error {
	return p.inner.RunStreaming(ctx, remote.Request{AgentID: req.AgentID, Role: req.Role, Prompt: req.Prompt}, func(c remote.Chunk) {
		switch c.Kind {
		case remote.ChunkText:
			onChunk(StreamChunk{Kind: ChunkText, Text: c.Text})
		case remote.ChunkError:
			onChunk(StreamChunk{Kind: ChunkError, ErrText: c.ErrText})
		case remote.ChunkCompleted:
			onChunk(StreamChunk{Kind: ChunkCompleted, StopReason: c.StopReason})
		}
	})
}

// IsHealthy reports whether every open remote session still responds.
func (p *RemoteProvider) IsHealthy(ctx context.Context) bool { return p.inner.IsHealthy(ctx) }

// Interrupt cancels the running session for agentID, if any.
func (p *RemoteProvider) Interrupt(ctx context.Context, agentID string) error {
	return p.inner.Interrupt(ctx, agentID)
}

// Cleanup closes and forgets the remote session backing agentID.
func (p *RemoteProvider) Cleanup(ctx context.Context, agentID string) error {
	return p.inner.Cleanup(ctx, agentID)
}

// Shutdown closes every open remote session.
func (p *RemoteProvider) Shutdown(ctx context.Context) error { return p.inner.Shutdown(ctx) }

var _ Provider = (*RemoteProvider)(nil)
