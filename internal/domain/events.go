package domain

import "time"

// EventType discriminates the AgentEvent union.
type EventType string

const (
	EventAgentCreated       EventType = "AgentCreated"
	EventAgentStatusChanged EventType = "AgentStatusChanged"
	EventAgentCompleted     EventType = "AgentCompleted"
	EventTaskDelegated      EventType = "TaskDelegated"
	EventTaskStatusChanged  EventType = "TaskStatusChanged"
	EventMessageReceived    EventType = "MessageReceived"
)

// criticalEvents are replayed to late subscribers from the bus's bounded
// log: creation, completion, delegation, and status changes.
var criticalEvents = map[EventType]bool{
	EventAgentCreated:       true,
	EventAgentStatusChanged: true,
	EventAgentCompleted:     true,
	EventTaskDelegated:      true,
	EventTaskStatusChanged:  true,
}

// IsCritical reports whether events of type t are retained in the bus replay
// log rather than only delivered to subscribers live.
func (t EventType) IsCritical() bool {
	return criticalEvents[t]
}

// AgentEvent is a discriminated union of everything that can happen to an
// agent or task during a run. Exactly one of the typed payload fields is
// populated, selected by Type.
type AgentEvent struct {
	Type      EventType
	AgentID   string
	Timestamp time.Time

	AgentCreated       *AgentCreatedPayload
	AgentStatusChanged *AgentStatusChangedPayload
	AgentCompleted     *AgentCompletedPayload
	TaskDelegated      *TaskDelegatedPayload
	TaskStatusChanged  *TaskStatusChangedPayload
	MessageReceived    *MessageReceivedPayload
}

// AgentCreatedPayload accompanies EventAgentCreated.
type AgentCreatedPayload struct {
	Role      AgentRole
	ParentID  string
	ModelTier ModelTier
}

// AgentStatusChangedPayload accompanies EventAgentStatusChanged.
type AgentStatusChangedPayload struct {
	Previous AgentStatus
	Current  AgentStatus
	Reason   string
}

// AgentCompletedPayload accompanies EventAgentCompleted.
type AgentCompletedPayload struct {
	Report CompletionReport
}

// TaskDelegatedPayload accompanies EventTaskDelegated.
type TaskDelegatedPayload struct {
	TaskID     string
	AssignedTo string
}

// TaskStatusChangedPayload accompanies EventTaskStatusChanged.
type TaskStatusChangedPayload struct {
	TaskID   string
	Previous TaskStatus
	Current  TaskStatus
	Verdict  VerificationVerdict
}

// MessageReceivedPayload accompanies EventMessageReceived.
type MessageReceivedPayload struct {
	Message Message
}

// NewAgentCreatedEvent constructs an AgentCreated event for agentID.
func NewAgentCreatedEvent(agentID string, payload AgentCreatedPayload, at time.Time) AgentEvent {
	return AgentEvent{Type: EventAgentCreated, AgentID: agentID, Timestamp: at, AgentCreated: &payload}
}

// NewAgentStatusChangedEvent constructs an AgentStatusChanged event for agentID.
func NewAgentStatusChangedEvent(agentID string, payload AgentStatusChangedPayload, at time.Time) AgentEvent {
	return AgentEvent{Type: EventAgentStatusChanged, AgentID: agentID, Timestamp: at, AgentStatusChanged: &payload}
}

// NewAgentCompletedEvent constructs an AgentCompleted event for agentID.
func NewAgentCompletedEvent(agentID string, payload AgentCompletedPayload, at time.Time) AgentEvent {
	return AgentEvent{Type: EventAgentCompleted, AgentID: agentID, Timestamp: at, AgentCompleted: &payload}
}

// NewTaskDelegatedEvent constructs a TaskDelegated event raised by agentID.
func NewTaskDelegatedEvent(agentID string, payload TaskDelegatedPayload, at time.Time) AgentEvent {
	return AgentEvent{Type: EventTaskDelegated, AgentID: agentID, Timestamp: at, TaskDelegated: &payload}
}

// NewTaskStatusChangedEvent constructs a TaskStatusChanged event raised by agentID.
func NewTaskStatusChangedEvent(agentID string, payload TaskStatusChangedPayload, at time.Time) AgentEvent {
	return AgentEvent{Type: EventTaskStatusChanged, AgentID: agentID, Timestamp: at, TaskStatusChanged: &payload}
}

// NewMessageReceivedEvent constructs a MessageReceived event raised by agentID.
func NewMessageReceivedEvent(agentID string, payload MessageReceivedPayload, at time.Time) AgentEvent {
	return AgentEvent{Type: EventMessageReceived, AgentID: agentID, Timestamp: at, MessageReceived: &payload}
}
