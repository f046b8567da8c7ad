package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/logging"
)

// Capabilities is the caller-supplied constructor input; it mirrors
// provider.ProviderCapabilities without importing that package, which would
// otherwise create an import cycle (provider imports remote to register it).
type Capabilities struct {
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

// Config configures a Provider's connection to the remote agent service.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	// WithWebsocketUpdates, when set, additionally subscribes to a
	// gorilla/websocket notification channel alongside the SSE stream, for
	// remote deployments that prefer a bidirectional socket for updates.
	WithWebsocketUpdates bool
}

// Provider implements the supervisor-facing provider surface backed by a
// remote HTTP + SSE agent service rather than a local child process.
type Provider struct {
	caps   Capabilities
	cfg    Config
	logger logging.Logger

	mu        sync.Mutex
	sessions  map[string]*remoteSession
	wsUpdates map[string]*websocketUpdater
}

// remoteSession is one dialed client plus the cancel func stopping its SSE
// read loop, and whether the wire handshake has already run.
type remoteSession struct {
	client      *Client
	stop        context.CancelFunc
	initialized bool
}

// New returns a remote Provider reporting caps.
func New(cfg Config, caps Capabilities, logger logging.Logger) *Provider {
	return &Provider{
		caps:      caps,
		cfg:       cfg,
		logger:    logging.OrNop(logger),
		sessions:  make(map[string]*remoteSession),
		wsUpdates: make(map[string]*websocketUpdater),
	}
}

func (p *Provider) sessionFor(agentID string) (*remoteSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[agentID]; ok {
		return s, nil
	}

	c, err := Dial(p.cfg.Addr, p.cfg.RequestTimeout, p.logger)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.Start(runCtx, nil)
	s := &remoteSession{client: c, stop: cancel}
	p.sessions[agentID] = s

	if p.cfg.WithWebsocketUpdates {
		updater, err := newWebsocketUpdater(p.cfg.Addr, agentID, p.logger)
		if err != nil {
			p.logger.Warn("remote: websocket updates unavailable for %s: %v", agentID, err)
		} else {
			p.wsUpdates[agentID] = updater
			go updater.run(runCtx)
		}
	}
	return s, nil
}

// Run performs a single non-streaming turn.
func (p *Provider) Run(ctx context.Context, req Request) (Result, error) {
	var text string
	err := p.RunStreaming(ctx, req, func(c Chunk) {
		if c.Kind == ChunkText {
			text += c.Text
		}
	})
	return Result{Text: text, StopReason: "end_turn"}, err
}

// Request mirrors provider.RunRequest locally to avoid the import cycle
// noted on Capabilities.
type Request struct {
	AgentID string
	Role    domain.AgentRole
	Prompt  string
}

// Result mirrors provider.RunResult.
type Result struct {
	Text       string
	StopReason string
}

// ChunkKind mirrors provider.StreamChunkKind for the subset remote emits.
type ChunkKind string

const (
	ChunkText      ChunkKind = "Text"
	ChunkError     ChunkKind = "Error"
	ChunkCompleted ChunkKind = "Completed"
)

// Chunk mirrors provider.StreamChunk for the subset remote emits.
type Chunk struct {
	Kind       ChunkKind
	Text       string
	ErrText    string
	StopReason string
}

// RunStreaming drives one remote agent turn, translating SSE-delivered
// session/update notifications into Chunk callbacks.
func (p *Provider) RunStreaming(ctx context.Context, req Request, onChunk func(Chunk)) error {
	s, err := p.sessionFor(req.AgentID)
	if err != nil {
		return err
	}
	c := s.client

	if !s.initialized {
		if _, err := c.Call(ctx, "initialize", map[string]any{"agentId": req.AgentID}); err != nil {
			return fmt.Errorf("remote provider: initialize: %w", err)
		}
		if _, err := c.Call(ctx, "session/new", map[string]any{"agentId": req.AgentID}); err != nil {
			return fmt.Errorf("remote provider: session/new: %w", err)
		}
		s.initialized = true
	}

	resp, err := c.Call(ctx, "session/prompt", map[string]any{
		"sessionId": req.AgentID,
		"prompt":    []any{map[string]any{"type": "text", "text": req.Prompt}},
	})
	if err != nil {
		onChunk(Chunk{Kind: ChunkError, ErrText: err.Error()})
		return err
	}
	if resp.IsError() {
		onChunk(Chunk{Kind: ChunkError, ErrText: resp.Error.Error()})
		return resp.Error
	}

	if text, ok := extractText(resp.Result); ok {
		onChunk(Chunk{Kind: ChunkText, Text: text})
	}
	onChunk(Chunk{Kind: ChunkCompleted, StopReason: "end_turn"})
	return nil
}

func extractText(result any) (string, bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return "", false
	}
	text, ok := m["text"].(string)
	return text, ok
}

// IsHealthy reports whether every open remote session still responds.
func (p *Provider) IsHealthy(ctx context.Context) bool {
	p.mu.Lock()
	sessions := make([]*remoteSession, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	for _, s := range sessions {
		if _, err := s.client.Call(ctx, "health/ping", nil); err != nil {
			return false
		}
	}
	return true
}

// Interrupt sends a session/cancel notification for agentID.
func (p *Provider) Interrupt(_ context.Context, agentID string) error {
	p.mu.Lock()
	s, ok := p.sessions[agentID]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return s.client.Notify("session/cancel", map[string]any{"sessionId": agentID})
}

// Cleanup closes and forgets the remote session backing agentID.
func (p *Provider) Cleanup(_ context.Context, agentID string) error {
	p.mu.Lock()
	s, ok := p.sessions[agentID]
	if ok {
		delete(p.sessions, agentID)
	}
	updater, hasUpdater := p.wsUpdates[agentID]
	if hasUpdater {
		delete(p.wsUpdates, agentID)
	}
	p.mu.Unlock()

	if hasUpdater {
		updater.close()
	}
	if !ok {
		return nil
	}
	s.stop()
	return s.client.Close()
}

// Shutdown closes every open remote session.
func (p *Provider) Shutdown(context.Context) error {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*remoteSession)
	updaters := p.wsUpdates
	p.wsUpdates = make(map[string]*websocketUpdater)
	p.mu.Unlock()

	for _, updater := range updaters {
		updater.close()
	}

	var firstErr error
	for _, s := range sessions {
		s.stop()
		if err := s.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
