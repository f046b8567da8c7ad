package provider

import "context"

// StubProvider is a deterministic in-process provider used by tests and by
// the workspace variant's simplest configuration; it performs no subprocess
// IO and simply echoes back a canned completion.
type StubProvider struct {
	caps     ProviderCapabilities
	Response string
	Healthy  bool
}

// NewStubProvider returns a StubProvider reporting caps, always returning
// response from Run/RunStreaming.
func NewStubProvider(caps ProviderCapabilities, response string) *StubProvider {
	return &StubProvider{caps: caps, Response: response, Healthy: true}
}

// Capabilities returns the provider's declared capability set.
func (p *StubProvider) Capabilities() ProviderCapabilities { return p.caps }

// Run returns the canned response.
func (p *StubProvider) Run(context.Context, RunRequest) (RunResult, error) {
	return RunResult{Text: p.Response, StopReason: "end_turn"}, nil
}

// RunStreaming emits the canned response as a single Text chunk followed by
// Completed.
func (p *StubProvider) RunStreaming(_ context.Context, _ RunRequest, onChunk func(StreamChunk)) error {
	onChunk(StreamChunk{Kind: ChunkText, Text: p.Response})
	onChunk(StreamChunk{Kind: ChunkCompleted, StopReason: "end_turn"})
	return nil
}

// IsHealthy reports the configured Healthy flag.
func (p *StubProvider) IsHealthy(context.Context) bool { return p.Healthy }

// Interrupt is a no-op for the stub provider.
func (p *StubProvider) Interrupt(context.Context, string) error { return nil }

// Cleanup is a no-op for the stub provider.
func (p *StubProvider) Cleanup(context.Context, string) error { return nil }

// Shutdown is a no-op for the stub provider.
func (p *StubProvider) Shutdown(context.Context) error { return nil }

var _ Provider = (*StubProvider)(nil)
