package provider

import (
	"context"
	"strings"
	"sync"

	"github.com/arcway-dev/orchestra/internal/jsonrpc"
	"github.com/arcway-dev/orchestra/internal/logging"
	"github.com/arcway-dev/orchestra/internal/registry"
	"github.com/arcway-dev/orchestra/internal/supervisor"
)

// WorkspaceProvider is the combined workspace variant: the same stdio
// transport as ProcessProvider, but a single shared child serving every
// agent id, with a richer host surface: file IO plus the full coordination
// tool registry answered in-process. One child means one working tree, so
// every role operates on the same workspace state.
type WorkspaceProvider struct {
	cfg    ProcessProviderConfig
	caps   ProviderCapabilities
	reg    *registry.Registry
	logger logging.Logger

	mu   sync.Mutex
	inst *processInstance
}

// NewWorkspaceProvider returns a provider backed by one shared child whose
// inbound tool/call requests are answered from reg.
func NewWorkspaceProvider(cfg ProcessProviderConfig, caps ProviderCapabilities, reg *registry.Registry, logger logging.Logger) *WorkspaceProvider {
	return &WorkspaceProvider{
		cfg:    cfg,
		caps:   caps,
		reg:    reg,
		logger: logging.OrNop(logger),
	}
}

// Capabilities returns the provider's declared capability set.
func (p *WorkspaceProvider) Capabilities() ProviderCapabilities { return p.caps }

// registryResponder answers tool/call requests from the bound registry and
// defers everything else (permission grants, file IO, terminal stubs) to the
// local filesystem responder.
type registryResponder struct {
	reg      *registry.Registry
	fallback supervisor.HostResponder
}

func (r registryResponder) Handle(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	if req.Method != "tool/call" {
		return r.fallback.Handle(ctx, req)
	}
	name, _ := req.Params["name"].(string)
	args, _ := req.Params["args"].(map[string]any)
	result := r.reg.Invoke(name, args)
	return jsonrpc.NewResponse(req.ID, map[string]any{
		"success": result.Success,
		"data":    result.Data,
		"error":   result.Error,
	})
}

func (p *WorkspaceProvider) instance(ctx context.Context, req RunRequest) (*processInstance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inst != nil {
		return p.inst, nil
	}

	inst := &processInstance{}
	sup, err := supervisor.New(ctx, supervisor.ProcessConfig{
		Command: p.cfg.Command,
		Args:    p.cfg.Args,
		Env:     p.cfg.Env,
		Dir:     p.cfg.Cwd,
	},
		supervisor.WithLogger(p.logger),
		supervisor.WithHostResponder(registryResponder{reg: p.reg, fallback: supervisor.NewLocalFSHostResponder()}),
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
		"clientInfo":      map[string]any{"name": "orchestra-workspace", "version": "1"},
	}); err != nil {
		_ = sup.Kill()
		return nil, err
	}
	resp, err := tracedCall(ctx, sup, req.AgentID, "session/new", map[string]any{
		"cwd":        p.cfg.Cwd,
		"mcpServers": []any{},
	})
	if err != nil {
		_ = sup.Kill()
		return nil, err
	}
	inst.sessionID = sessionIDFrom(resp.Result)
	if inst.sessionID == "" {
		inst.sessionID = "workspace"
	}

	p.inst = inst
	return inst, nil
}

// Run performs one full turn, folding any streamed text into the final
// result.
func (p *WorkspaceProvider) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	var text strings.Builder
	err := p.RunStreaming(ctx, req, func(c StreamChunk) {
		if c.Kind == ChunkText {
			text.WriteString(c.Text)
		}
	})
	return RunResult{Text: text.String(), StopReason: "end_turn"}, err
}

// RunStreaming drives one turn on the shared child. The mode is switched
// per turn since roles of every kind share the single session.
func (p *WorkspaceProvider) RunStreaming(ctx context.Context, req RunRequest, onChunk func(StreamChunk)) error {
	inst, err := p.instance(ctx, req)
	if err != nil {
		return err
	}

	if _, err := tracedCall(ctx, inst.sup, req.AgentID, "session/set_mode", map[string]any{
		"sessionId": inst.sessionID,
		"modeId":    modeFor(req.Role),
	}); err != nil {
		p.logger.Debug("workspace provider: session/set_mode unsupported: %v", err)
	}

	inst.setChunkSink(onChunk)
	defer inst.setChunkSink(nil)

	resp, err := tracedCall(ctx, inst.sup, req.AgentID, "session/prompt", map[string]any{
		"sessionId": inst.sessionID,
		"prompt":    []any{map[string]any{"type": "text", "text": req.Prompt}},
	})
	if err != nil {
		onChunk(StreamChunk{Kind: ChunkError, ErrText: err.Error()})
		return err
	}

	if text, ok := extractText(resp.Result); ok && text != "" {
		onChunk(StreamChunk{Kind: ChunkText, Text: text})
	}
	onChunk(StreamChunk{Kind: ChunkCompleted, StopReason: stopReasonFrom(resp.Result)})
	return nil
}

func (p *WorkspaceProvider) handleNotification(inst *processInstance, notif *jsonrpc.Request) {
	if notif.Method != "session/update" {
		return
	}
	update, _ := notif.Params["update"].(map[string]any)
	if update == nil {
		return
	}
	switch kind, _ := update["sessionUpdate"].(string); kind {
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
	}
}

// IsHealthy reports whether the shared child, if spawned, is still alive.
func (p *WorkspaceProvider) IsHealthy(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inst == nil || p.inst.sup.State() != supervisor.StateDead
}

// Interrupt cancels the shared session.
func (p *WorkspaceProvider) Interrupt(context.Context, string) error {
	p.mu.Lock()
	inst := p.inst
	p.mu.Unlock()
	if inst == nil || inst.sup.State() == supervisor.StateDead {
		return nil
	}
	return inst.sup.Cancel(inst.sessionID)
}

// Cleanup is a no-op per agent id: the child is shared, so it only dies on
// Shutdown.
func (p *WorkspaceProvider) Cleanup(context.Context, string) error { return nil }

// Shutdown kills the shared child.
func (p *WorkspaceProvider) Shutdown(context.Context) error {
	p.mu.Lock()
	inst := p.inst
	p.inst = nil
	p.mu.Unlock()
	if inst == nil {
		return nil
	}
	return inst.sup.Kill()
}

var _ Provider = (*WorkspaceProvider)(nil)
