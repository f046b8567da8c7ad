// Package domain defines the orchestrator's entity model: agents, tasks,
// messages, and the events exchanged over the event bus.
package domain

import "time"

// AgentRole identifies which of the three cooperating roles an agent plays.
type AgentRole string

const (
	RoleCoordinator AgentRole = "Coordinator"
	RoleImplementor AgentRole = "Implementor"
	RoleVerifier    AgentRole = "Verifier"
)

// ModelTier selects the class of model backing an agent.
type ModelTier string

const (
	TierSmart ModelTier = "Smart"
	TierFast  ModelTier = "Fast"
)

// DefaultModelTier returns the tier a role uses absent an explicit override.
func DefaultModelTier(role AgentRole) ModelTier {
	if role == RoleImplementor {
		return TierFast
	}
	return TierSmart
}

// AgentStatus is the lifecycle state of an Agent.
type AgentStatus string

const (
	AgentPending   AgentStatus = "Pending"
	AgentActive    AgentStatus = "Active"
	AgentCompleted AgentStatus = "Completed"
	AgentError     AgentStatus = "Error"
	AgentCancelled AgentStatus = "Cancelled"
)

// IsTerminal reports whether an agent status is a terminal state.
func (s AgentStatus) IsTerminal() bool {
	return s == AgentCompleted || s == AgentError || s == AgentCancelled
}

// Agent is a role-bearing orchestration participant.
type Agent struct {
	ID            string
	Name          string
	Role          AgentRole
	ModelTier     ModelTier
	WorkspaceID   string
	ParentID      string
	Status        AgentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Metadata      map[string]any
	WorkspaceMode string // "shared" | "branch" | "worktree"; advisory dispatch hint
}

// Clone returns a deep-enough copy safe for store readers to hand out.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	cloned := *a
	if a.Metadata != nil {
		cloned.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			cloned.Metadata[k] = v
		}
	}
	return &cloned
}

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending        TaskStatus = "Pending"
	TaskInProgress     TaskStatus = "InProgress"
	TaskReviewRequired TaskStatus = "ReviewRequired"
	TaskCompleted      TaskStatus = "Completed"
	TaskNeedsFix       TaskStatus = "NeedsFix"
	TaskBlocked        TaskStatus = "Blocked"
	TaskCancelled      TaskStatus = "Cancelled"
)

// VerificationVerdict is the Verifier's judgement on a task.
type VerificationVerdict string

const (
	VerdictApproved    VerificationVerdict = "Approved"
	VerdictNotApproved VerificationVerdict = "NotApproved"
	VerdictBlocked     VerificationVerdict = "Blocked"
)

// Task is a planned unit of change.
type Task struct {
	ID                   string
	Title                string
	Objective            string
	Scope                string
	AcceptanceCriteria   []string
	VerificationCommands []string
	AssignedTo           string
	Status               TaskStatus
	Dependencies         []string
	ParallelGroup        string
	WorkspaceID          string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletionSummary    string
	VerificationReport   string
	VerificationVerdict  VerificationVerdict
	DependsOnInherited   bool
}

// Clone returns a copy with independent slice headers, safe for store
// readers to hand out without exposing internal mutation.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cloned := *t
	cloned.AcceptanceCriteria = append([]string(nil), t.AcceptanceCriteria...)
	cloned.VerificationCommands = append([]string(nil), t.VerificationCommands...)
	cloned.Dependencies = append([]string(nil), t.Dependencies...)
	return &cloned
}

// IsReady reports whether t is eligible to run: Pending and every dependency
// resolved is Completed, given a lookup of dependency statuses.
func (t *Task) IsReady(statusOf func(taskID string) (TaskStatus, bool)) bool {
	if t.Status != TaskPending {
		return false
	}
	for _, dep := range t.Dependencies {
		status, ok := statusOf(dep)
		if !ok || status != TaskCompleted {
			return false
		}
	}
	return true
}

// MessageRole identifies the speaker of a conversation turn.
type MessageRole string

const (
	RoleSystem    MessageRole = "System"
	RoleUser      MessageRole = "User"
	RoleAssistant MessageRole = "Assistant"
	RoleTool      MessageRole = "Tool"
)

// Message is one turn in an agent's conversation.
type Message struct {
	ID        string
	AgentID   string
	Role      MessageRole
	Content   string
	Timestamp time.Time
	ToolName  string
	ToolArgs  map[string]any
	Turn      int
}

// Clone returns a copy safe to hand to readers.
func (m Message) Clone() Message {
	cloned := m
	if m.ToolArgs != nil {
		cloned.ToolArgs = make(map[string]any, len(m.ToolArgs))
		for k, v := range m.ToolArgs {
			cloned.ToolArgs[k] = v
		}
	}
	return cloned
}

// CompletionReport is the payload an agent hands its parent on completion.
type CompletionReport struct {
	AgentID             string
	TaskID              string
	Summary             string
	FilesModified       []string
	VerificationResults map[string]string
	Success             bool
	Metadata            map[string]any
}
