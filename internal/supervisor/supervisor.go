// Package supervisor gives an in-process caller a typed interface over an
// out-of-process agent speaking line-delimited JSON-RPC on stdin/stdout,
// including a host responder for requests the child makes mid-turn.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/arcway-dev/orchestra/internal/async"
	"github.com/arcway-dev/orchestra/internal/jsonrpc"
	"github.com/arcway-dev/orchestra/internal/logging"
	"github.com/arcway-dev/orchestra/internal/orcherrors"
)

// Default per-method deadlines.
const (
	InitializeTimeout    = 10 * time.Second
	SessionNewTimeout    = 10 * time.Second
	SessionPromptTimeout = 5 * time.Minute
	DefaultTimeout       = 30 * time.Second
)

func defaultTimeoutFor(method string) time.Duration {
	switch method {
	case "initialize":
		return InitializeTimeout
	case "session/new":
		return SessionNewTimeout
	case "session/prompt":
		return SessionPromptTimeout
	default:
		return DefaultTimeout
	}
}

// HostResponder answers inbound requests the child is expected to make
// mid-turn: permission grants, file IO, and stubbed terminal operations.
type HostResponder interface {
	Handle(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response
}

// NotificationHandler receives inbound notifications (method, no id)
// untouched.
type NotificationHandler func(req *jsonrpc.Request)

type pendingRequest struct {
	method  string
	resolve func(*jsonrpc.Response)
	reject  func(error)
	timer   *time.Timer
}

// Supervisor owns one child process and demultiplexes JSON-RPC traffic
// across it.
type Supervisor struct {
	proc      *ProcessManager
	idGen     *jsonrpc.RequestIDGenerator
	logger    logging.Logger
	responder HostResponder
	onNotify  NotificationHandler

	mu      sync.Mutex
	state   ProtocolState
	pending map[string]*pendingRequest
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger used for framing and dispatch diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(s *Supervisor) { s.logger = logging.OrNop(l) }
}

// WithHostResponder installs the handler for inbound requests from the
// child.
func WithHostResponder(r HostResponder) Option {
	return func(s *Supervisor) { s.responder = r }
}

// WithNotificationHandler installs the handler for inbound notifications.
func WithNotificationHandler(h NotificationHandler) Option {
	return func(s *Supervisor) { s.onNotify = h }
}

// New spawns cfg's child process and begins demultiplexing its stdout.
func New(ctx context.Context, cfg ProcessConfig, opts ...Option) (*Supervisor, error) {
	s := &Supervisor{
		proc:    NewProcessManager(cfg),
		idGen:   jsonrpc.NewRequestIDGenerator(),
		logger:  logging.Nop,
		state:   StateSpawning,
		pending: make(map[string]*pendingRequest),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.proc.Start(ctx); err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindTransport, "supervisor.New", "spawn child", err)
	}

	reader := NewFrameReader(s.logger)
	async.Go(logAdapter{s.logger}, "supervisor.readLoop", func() {
		err := reader.Run(s.proc.Stdout(), s.dispatchFrame)
		if err != nil {
			s.logger.Warn("supervisor: read loop exited: %v", err)
		}
		s.onChildExit()
	})

	return s, nil
}

// State returns the current protocol state.
func (s *Supervisor) State() ProtocolState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(next ProtocolState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransition(s.state, next) {
		s.logger.Warn("supervisor: illegal transition %s -> %s", s.state, next)
		return
	}
	s.state = next
}

// Call sends a JSON-RPC request and blocks until its response arrives, the
// deadline elapses, or ctx is cancelled.
func (s *Supervisor) Call(ctx context.Context, method string, params map[string]any) (*jsonrpc.Response, error) {
	if s.State() == StateDead {
		return nil, orcherrors.New(orcherrors.KindTransport, "supervisor.Call", "child is dead")
	}

	id := s.idGen.Next()
	req := jsonrpc.NewRequest(id, method, params)
	key := fmt.Sprintf("%v", req.ID)

	respCh := make(chan *jsonrpc.Response, 1)
	errCh := make(chan error, 1)

	deadline := defaultTimeoutFor(method)
	timer := time.AfterFunc(deadline, func() {
		s.rejectPending(key, orcherrors.New(orcherrors.KindTimeout, "supervisor.Call", fmt.Sprintf("%s timed out after %s", method, deadline)))
	})

	s.mu.Lock()
	s.pending[key] = &pendingRequest{
		method:  method,
		resolve: func(resp *jsonrpc.Response) { respCh <- resp },
		reject:  func(err error) { errCh <- err },
		timer:   timer,
	}
	s.mu.Unlock()

	if err := s.writeLine(req); err != nil {
		s.clearPending(key)
		timer.Stop()
		return nil, orcherrors.Wrap(orcherrors.KindTransport, "supervisor.Call", "write request", err)
	}

	s.applyProtocolHint(method, true)

	select {
	case resp := <-respCh:
		return resp, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		s.clearPending(key)
		timer.Stop()
		return nil, ctx.Err()
	}
}

// Notify writes method as a notification (no id, no reply expected) and
// returns immediately.
func (s *Supervisor) Notify(method string, params map[string]any) error {
	if err := s.writeLine(jsonrpc.NewNotification(method, params)); err != nil {
		return orcherrors.Wrap(orcherrors.KindTransport, "supervisor.Notify", "write notification", err)
	}
	return nil
}

// Cancel writes session/cancel(sessionId) as a notification and returns
// immediately; the child is expected to emit a terminal prompt response
// shortly afterwards.
func (s *Supervisor) Cancel(sessionID string) error {
	s.setState(StateCancelling)
	return s.Notify("session/cancel", map[string]any{"sessionId": sessionID})
}

// Kill terminates the child, waiting up to 5s before force-killing, then
// rejects every pending request with a uniform error.
func (s *Supervisor) Kill() error {
	err := s.proc.Stop(5 * time.Second)
	s.onChildExit()
	return err
}

func (s *Supervisor) applyProtocolHint(method string, sending bool) {
	switch method {
	case "initialize":
		if sending {
			return
		}
		s.setState(StateInitialized)
	case "session/new":
		if sending {
			return
		}
		s.setState(StateSessionOpen)
	case "session/prompt":
		if sending {
			s.setState(StatePrompting)
		} else {
			s.setState(StateSessionOpen)
		}
	}
}

func (s *Supervisor) writeLine(v any) error {
	data, err := jsonrpc.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = s.proc.Stdin().Write(data)
	return err
}

func (s *Supervisor) dispatchFrame(raw []byte) {
	var probe struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		s.logger.Warn("supervisor: malformed frame: %v", err)
		return
	}

	hasID := len(probe.ID) > 0 && string(probe.ID) != "null"
	isResponse := hasID && probe.Method == "" && (len(probe.Result) > 0 || len(probe.Error) > 0)

	switch {
	case isResponse:
		resp, err := jsonrpc.UnmarshalResponse(raw)
		if err != nil {
			s.logger.Warn("supervisor: bad response frame: %v", err)
			return
		}
		s.resolvePending(resp)
	case hasID && probe.Method != "":
		req, err := jsonrpc.UnmarshalRequest(raw)
		if err != nil {
			s.logger.Warn("supervisor: bad inbound request frame: %v", err)
			return
		}
		s.handleInboundRequest(req)
	case probe.Method != "":
		req, err := jsonrpc.UnmarshalRequest(raw)
		if err != nil {
			s.logger.Warn("supervisor: bad notification frame: %v", err)
			return
		}
		if s.onNotify != nil {
			s.onNotify(req)
		}
	}
}

func (s *Supervisor) handleInboundRequest(req *jsonrpc.Request) {
	var resp *jsonrpc.Response
	if s.responder != nil {
		resp = s.responder.Handle(context.Background(), req)
	}
	if resp == nil {
		resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.MethodNotFound, "method not supported", req.Method)
	}
	if err := s.writeLine(resp); err != nil {
		s.logger.Warn("supervisor: failed to write host response: %v", err)
	}
}

func (s *Supervisor) resolvePending(resp *jsonrpc.Response) {
	key := fmt.Sprintf("%v", resp.ID)
	s.mu.Lock()
	entry, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	entry.timer.Stop()
	if resp.IsError() && (entry.method == "initialize" || entry.method == "session/new") {
		// A handshake failure is fatal for the whole connection.
		s.mu.Lock()
		s.state = StateDead
		s.mu.Unlock()
	} else {
		s.applyProtocolHint(entry.method, false)
	}
	entry.resolve(resp)
}

func (s *Supervisor) rejectPending(key string, err error) {
	s.mu.Lock()
	entry, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	entry.reject(err)
}

func (s *Supervisor) clearPending(key string) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

func (s *Supervisor) onChildExit() {
	s.mu.Lock()
	if s.state == StateDead {
		s.mu.Unlock()
		return
	}
	s.state = StateDead
	pending := s.pending
	s.pending = make(map[string]*pendingRequest)
	s.mu.Unlock()

	for _, entry := range pending {
		entry.timer.Stop()
		entry.reject(orcherrors.New(orcherrors.KindTransport, "supervisor", "child process exited"))
	}
}

type logAdapter struct{ l logging.Logger }

func (a logAdapter) Error(format string, args ...any) { a.l.Error(format, args...) }
