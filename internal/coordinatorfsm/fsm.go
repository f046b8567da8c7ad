// Package coordinatorfsm tracks the coordinator's coarse-grained phase
// alongside a running pipeline, driven by AgentCreated/AgentCompleted/
// AgentStatusChanged events on the bus. It does not drive the pipeline; it
// only observes it.
package coordinatorfsm

import (
	"sync"

	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/eventbus"
	"github.com/arcway-dev/orchestra/internal/logging"
)

// State is one of the coordinator's coarse phases.
type State string

const (
	StatePlanning     State = "Planning"
	StateReady        State = "Ready"
	StateExecuting    State = "Executing"
	StateWaveComplete State = "WaveComplete"
	StateVerifying    State = "Verifying"
	StateCompleted    State = "Completed"
	StateError        State = "Error"
)

// StateChange is delivered to every Listener on a transition.
type StateChange struct {
	Previous State
	Current  State
	Message  string
}

// Listener observes FSM transitions. It must not block and must not panic;
// panics are recovered and logged, never propagated to the FSM.
type Listener func(StateChange)

// FSM holds the coordination phase and the current wave's active-Implementor
// set, advancing on AgentEvents published to the bus it was constructed with.
type FSM struct {
	mu     sync.Mutex
	state  State
	active map[string]struct{}

	verifierID string

	listeners []Listener
	logger    logging.Logger
}

// Option configures an FSM.
type Option func(*FSM)

// WithLogger sets the logger used for listener-panic recovery.
func WithLogger(l logging.Logger) Option {
	return func(f *FSM) { f.logger = logging.OrNop(l) }
}

// New returns an FSM in state Planning, subscribed to bus.
func New(bus *eventbus.Bus, opts ...Option) *FSM {
	f := &FSM{
		state:  StatePlanning,
		active: make(map[string]struct{}),
		logger: logging.Nop,
	}
	for _, opt := range opts {
		opt(f)
	}
	bus.Subscribe(f.handleEvent)
	return f
}

// State returns the current phase.
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// OnStateChange registers l to be called on every transition, most recent
// first call excluded; l only observes transitions from here on.
func (f *FSM) OnStateChange(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

// MarkPlanning forces the Planning state for a new pipeline execute() call,
// clearing any wave bookkeeping left over from a prior run.
func (f *FSM) MarkPlanning() {
	f.mu.Lock()
	f.active = make(map[string]struct{})
	f.verifierID = ""
	f.mu.Unlock()
	f.transition(StatePlanning, "")
}

// MarkReady advances to Ready once the Coordinator's plan has been parsed
// into registered tasks.
func (f *FSM) MarkReady() {
	f.transition(StateReady, "")
}

func (f *FSM) handleEvent(evt domain.AgentEvent) {
	switch evt.Type {
	case domain.EventAgentCreated:
		f.handleAgentCreated(evt)
	case domain.EventAgentStatusChanged:
		f.handleAgentStatusChanged(evt)
	case domain.EventAgentCompleted:
		f.handleAgentCompleted(evt)
	}
}

func (f *FSM) handleAgentCreated(evt domain.AgentEvent) {
	if evt.AgentCreated == nil {
		return
	}
	switch evt.AgentCreated.Role {
	case domain.RoleImplementor:
		f.mu.Lock()
		f.active[evt.AgentID] = struct{}{}
		f.mu.Unlock()
		f.transition(StateExecuting, "")
	case domain.RoleVerifier:
		f.mu.Lock()
		f.verifierID = evt.AgentID
		f.mu.Unlock()
		f.transition(StateVerifying, "")
	}
}

// handleAgentStatusChanged implements "Bus -> any agent_error: transition to
// Error with the captured message", unconditionally of which agent erred.
func (f *FSM) handleAgentStatusChanged(evt domain.AgentEvent) {
	p := evt.AgentStatusChanged
	if p == nil {
		return
	}
	if p.Current == domain.AgentError {
		f.transition(StateError, p.Reason)
		return
	}
	if p.Current == domain.AgentCompleted {
		f.markImplementorTerminal(evt.AgentID)
	}
}

func (f *FSM) handleAgentCompleted(evt domain.AgentEvent) {
	f.mu.Lock()
	isVerifier := f.verifierID != "" && evt.AgentID == f.verifierID
	f.mu.Unlock()

	if isVerifier {
		success := evt.AgentCompleted != nil && evt.AgentCompleted.Report.Success
		if success {
			f.transition(StateCompleted, "")
		} else {
			f.transition(StateReady, "")
		}
		return
	}
	f.markImplementorTerminal(evt.AgentID)
}

// markImplementorTerminal removes agentID from the active wave set; once
// every tracked Implementor has reached a terminal status, the wave is done.
func (f *FSM) markImplementorTerminal(agentID string) {
	f.mu.Lock()
	if _, tracked := f.active[agentID]; !tracked {
		f.mu.Unlock()
		return
	}
	delete(f.active, agentID)
	waveDone := len(f.active) == 0
	f.mu.Unlock()

	if waveDone {
		f.transition(StateWaveComplete, "")
	}
}

func (f *FSM) transition(to State, message string) {
	f.mu.Lock()
	prev := f.state
	if prev == to {
		f.mu.Unlock()
		return
	}
	f.state = to
	listeners := make([]Listener, len(f.listeners))
	copy(listeners, f.listeners)
	f.mu.Unlock()

	change := StateChange{Previous: prev, Current: to, Message: message}
	for _, l := range listeners {
		f.notify(l, change)
	}
}

func (f *FSM) notify(l Listener, change StateChange) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Warn("coordinatorfsm: listener panicked: %v", r)
		}
	}()
	l(change)
}
