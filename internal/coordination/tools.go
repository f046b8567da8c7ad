// Package coordination implements the ten-operation control surface agents
// use to discover peers, spawn children, delegate, message, wake, and
// report, on top of the in-memory stores and the event bus.
package coordination

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/eventbus"
	"github.com/arcway-dev/orchestra/internal/idutil"
	"github.com/arcway-dev/orchestra/internal/store"
)

// ToolResult is the uniform envelope every coordination operation returns.
type ToolResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func ok(data map[string]any) ToolResult { return ToolResult{Success: true, Data: data} }
func fail(err error) ToolResult         { return ToolResult{Success: false, Error: err.Error()} }
func failMsg(msg string) ToolResult     { return ToolResult{Success: false, Error: msg} }

// Tools binds the coordination operations to a concrete set of stores and a
// bus. It is the sole surface agents are given to affect one another.
type Tools struct {
	agents        *store.AgentStore
	tasks         *store.TaskStore
	conversations *store.ConversationStore
	bus           *eventbus.Bus
}

// New builds a Tools bound to the given stores and bus.
func New(agents *store.AgentStore, tasks *store.TaskStore, conversations *store.ConversationStore, bus *eventbus.Bus) *Tools {
	return &Tools{agents: agents, tasks: tasks, conversations: conversations, bus: bus}
}

// ListAgents returns a summary for every agent in workspaceID.
func (t *Tools) ListAgents(workspaceID string) ToolResult {
	agents := t.agents.ListByWorkspace(workspaceID)
	summaries := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		summaries = append(summaries, map[string]any{
			"id":       a.ID,
			"name":     a.Name,
			"role":     a.Role,
			"status":   a.Status,
			"parentId": a.ParentID,
		})
	}
	return ok(map[string]any{"agents": summaries})
}

// ReadConversationFilter narrows the window of messages returned.
type ReadConversationFilter struct {
	LastN            int
	StartTurn        int
	EndTurn          int
	IncludeToolCalls bool
}

// ReadAgentConversation returns messages from agentID's conversation
// according to filter.
func (t *Tools) ReadAgentConversation(agentID string, filter ReadConversationFilter) ToolResult {
	if _, err := t.agents.Get(agentID); err != nil {
		return fail(err)
	}

	var messages []domain.Message
	switch {
	case filter.LastN > 0:
		total := t.conversations.Len(agentID)
		from := total - filter.LastN
		messages = t.conversations.Range(agentID, from, total)
	case filter.StartTurn != 0 || filter.EndTurn != 0:
		messages = t.conversations.Range(agentID, filter.StartTurn, filter.EndTurn)
	default:
		messages = t.conversations.Read(agentID)
	}

	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		if !filter.IncludeToolCalls && m.Role == domain.RoleTool {
			continue
		}
		out = append(out, map[string]any{
			"turn":    m.Turn,
			"role":    m.Role,
			"content": m.Content,
		})
	}
	return ok(map[string]any{"messages": out})
}

// CreateAgent persists a new agent in Pending and emits AgentCreated.
func (t *Tools) CreateAgent(name string, role domain.AgentRole, workspaceID, parentID string, modelTier domain.ModelTier) ToolResult {
	if modelTier == "" {
		modelTier = domain.DefaultModelTier(role)
	}
	now := time.Now()
	a := &domain.Agent{
		ID:          idutil.New("agent"),
		Name:        name,
		Role:        role,
		ModelTier:   modelTier,
		WorkspaceID: workspaceID,
		ParentID:    parentID,
		Status:      domain.AgentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.agents.Save(a)

	t.bus.Publish(domain.NewAgentCreatedEvent(a.ID, domain.AgentCreatedPayload{
		Role: role, ParentID: parentID, ModelTier: modelTier,
	}, now))

	return ok(map[string]any{"agentId": a.ID})
}

// Delegate assigns taskID to agentID, moving the task to InProgress and the
// agent to Active.
func (t *Tools) Delegate(agentID, taskID, callerAgentID string) ToolResult {
	if _, err := t.agents.Get(agentID); err != nil {
		return fail(err)
	}
	task, err := t.tasks.Get(taskID)
	if err != nil {
		return fail(err)
	}

	now := time.Now()
	task.AssignedTo = agentID
	prevTaskStatus := task.Status
	task.Status = domain.TaskInProgress
	task.UpdatedAt = now
	t.tasks.Save(task)

	agentBefore, _ := t.agents.Get(agentID)
	prevAgentStatus := agentBefore.Status
	agent, err := t.agents.UpdateStatus(agentID, domain.AgentActive)
	if err != nil {
		return fail(err)
	}

	t.bus.Publish(domain.NewTaskDelegatedEvent(callerAgentID, domain.TaskDelegatedPayload{
		TaskID: taskID, AssignedTo: agentID,
	}, now))
	t.bus.Publish(domain.NewTaskStatusChangedEvent(callerAgentID, domain.TaskStatusChangedPayload{
		TaskID: taskID, Previous: prevTaskStatus, Current: task.Status,
	}, now))
	t.bus.Publish(domain.NewAgentStatusChangedEvent(agentID, domain.AgentStatusChangedPayload{
		Previous: prevAgentStatus, Current: agent.Status, Reason: "delegated task " + taskID,
	}, now))

	return ok(map[string]any{"taskId": taskID, "agentId": agentID})
}

// MessageAgent appends a User-role message to toAgentID's conversation,
// tagged with the sender's identity, and emits MessageReceived.
func (t *Tools) MessageAgent(fromAgentID, toAgentID, message string) ToolResult {
	if _, err := t.agents.Get(toAgentID); err != nil {
		return fail(err)
	}

	msg := t.conversations.Append(toAgentID, domain.Message{
		Role:      domain.RoleUser,
		Content:   fmt.Sprintf("[from %s] %s", fromAgentID, message),
		Timestamp: time.Now(),
	})

	t.bus.Publish(domain.NewMessageReceivedEvent(toAgentID, domain.MessageReceivedPayload{Message: msg}, msg.Timestamp))

	return ok(map[string]any{"turn": msg.Turn})
}

// reporterTransition maps (role, success) to the task-status transition
// table driven by reportToParent.
func reporterTransition(role domain.AgentRole, success bool) (domain.TaskStatus, domain.VerificationVerdict, bool) {
	switch {
	case role == domain.RoleVerifier && success:
		return domain.TaskCompleted, domain.VerdictApproved, true
	case role == domain.RoleVerifier && !success:
		return domain.TaskNeedsFix, domain.VerdictNotApproved, true
	case role == domain.RoleImplementor && success:
		return domain.TaskReviewRequired, "", true
	default:
		return "", "", false
	}
}

// ApplyTaskVerdict applies the task-status transition table (§4.3) for one
// task, driven by reporterRole/success, without touching reporterAgentID's
// own lifecycle. This lets a single long-lived agent (a wave's Verifier)
// report verdicts for several tasks in turn and only become Completed once,
// via a trailing ReportToParent call carrying no TaskID.
func (t *Tools) ApplyTaskVerdict(reporterRole domain.AgentRole, reporterAgentID, taskID string, success bool, summary string) ToolResult {
	task, err := t.tasks.Get(taskID)
	if err != nil {
		return fail(err)
	}

	newStatus, verdict, changed := reporterTransition(reporterRole, success)
	if !changed || task.Status == newStatus {
		return ok(map[string]any{"taskId": taskID, "status": task.Status})
	}

	now := time.Now()
	prev := task.Status
	task.Status = newStatus
	task.VerificationVerdict = verdict
	if newStatus == domain.TaskReviewRequired {
		task.CompletionSummary = summary
	}
	t.tasks.Save(task)

	t.bus.Publish(domain.NewTaskStatusChangedEvent(reporterAgentID, domain.TaskStatusChangedPayload{
		TaskID: taskID, Previous: prev, Current: newStatus, Verdict: verdict,
	}, now))

	return ok(map[string]any{"taskId": taskID, "status": newStatus})
}

// ReportToParent appends report to agentID's parent conversation, applies
// the task-status transition table when report.TaskID is set, and marks
// agentID Completed.
func (t *Tools) ReportToParent(agentID string, report domain.CompletionReport) ToolResult {
	agent, err := t.agents.Get(agentID)
	if err != nil {
		return fail(err)
	}
	if agent.ParentID == "" {
		return failMsg(fmt.Sprintf("agent %s has no parent", agentID))
	}

	now := time.Now()
	summary := fmt.Sprintf("[completion from %s] success=%v: %s", agentID, report.Success, report.Summary)
	t.conversations.Append(agent.ParentID, domain.Message{
		Role:      domain.RoleUser,
		Content:   summary,
		Timestamp: now,
	})

	if report.TaskID != "" {
		t.ApplyTaskVerdict(agent.Role, agentID, report.TaskID, report.Success, report.Summary)
	}

	prevAgentStatus := agent.Status
	updated, err := t.agents.UpdateStatus(agentID, domain.AgentCompleted)
	if err != nil {
		return fail(err)
	}

	t.bus.Publish(domain.NewAgentStatusChangedEvent(agentID, domain.AgentStatusChangedPayload{
		Previous: prevAgentStatus, Current: updated.Status, Reason: "reported to parent",
	}, now))
	t.bus.Publish(domain.NewAgentCompletedEvent(agentID, domain.AgentCompletedPayload{Report: report}, now))

	return ok(map[string]any{"agentId": agentID})
}

// WakeOrCreateTaskAgent wakes the task's existing active/pending assignee
// with the context message, or creates a fresh Implementor assigned to the
// task if none is available.
func (t *Tools) WakeOrCreateTaskAgent(taskID, contextMessage, callerAgentID, workspaceID, agentName string, modelTier domain.ModelTier) ToolResult {
	task, err := t.tasks.Get(taskID)
	if err != nil {
		return fail(err)
	}

	if task.AssignedTo != "" {
		if assignee, aerr := t.agents.Get(task.AssignedTo); aerr == nil {
			if assignee.Status == domain.AgentActive || assignee.Status == domain.AgentPending {
				res := t.MessageAgent(callerAgentID, assignee.ID, contextMessage)
				if !res.Success {
					return res
				}
				return ok(map[string]any{"action": "woke_existing", "agentId": assignee.ID})
			}
		}
	}

	if agentName == "" {
		agentName = "implementor-" + taskID
	}
	created := t.CreateAgent(agentName, domain.RoleImplementor, workspaceID, callerAgentID, modelTier)
	if !created.Success {
		return created
	}
	newAgentID, _ := created.Data["agentId"].(string)

	task.AssignedTo = newAgentID
	t.tasks.Save(task)

	t.conversations.Append(newAgentID, domain.Message{
		Role:      domain.RoleUser,
		Content:   contextMessage,
		Timestamp: time.Now(),
	})

	return ok(map[string]any{"action": "created_new", "agentId": newAgentID})
}

// SendMessageToTaskAgent looks up taskID's assignee and delegates to
// MessageAgent. Fails if the task is unassigned.
func (t *Tools) SendMessageToTaskAgent(taskID, message, callerAgentID string) ToolResult {
	task, err := t.tasks.Get(taskID)
	if err != nil {
		return fail(err)
	}
	if task.AssignedTo == "" {
		return failMsg(fmt.Sprintf("task %s is unassigned", taskID))
	}
	return t.MessageAgent(callerAgentID, task.AssignedTo, message)
}

// GetAgentStatus returns id, name, role, status, message count, assigned
// task ids, timestamps, and metadata for agentID.
func (t *Tools) GetAgentStatus(agentID string) ToolResult {
	a, err := t.agents.Get(agentID)
	if err != nil {
		return fail(err)
	}

	assigned := t.tasks.ListByAssignee(agentID)
	taskIDs := make([]string, 0, len(assigned))
	for _, task := range assigned {
		taskIDs = append(taskIDs, task.ID)
	}

	return ok(map[string]any{
		"id":            a.ID,
		"name":          a.Name,
		"role":          a.Role,
		"status":        a.Status,
		"messageCount":  t.conversations.Len(agentID),
		"assignedTasks": taskIDs,
		"createdAt":     a.CreatedAt,
		"updatedAt":     a.UpdatedAt,
		"metadata":      a.Metadata,
	})
}

// GetAgentSummary returns a human-readable synopsis of agentID's activity.
func (t *Tools) GetAgentSummary(agentID string) ToolResult {
	a, err := t.agents.Get(agentID)
	if err != nil {
		return fail(err)
	}

	messages := t.conversations.Read(agentID)
	toolCounts := make(map[string]int)
	var lastAssistant string
	for _, m := range messages {
		if m.Role == domain.RoleTool && m.ToolName != "" {
			toolCounts[m.ToolName]++
		}
		if m.Role == domain.RoleAssistant {
			lastAssistant = m.Content
		}
	}
	if len(lastAssistant) > 1000 {
		lastAssistant = lastAssistant[:1000]
	}

	assigned := t.tasks.ListByAssignee(agentID)
	taskIDs := make([]string, 0, len(assigned))
	for _, task := range assigned {
		taskIDs = append(taskIDs, task.ID)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s) is %s with %d messages.", a.Name, a.Role, a.Status, len(messages))
	if len(toolCounts) > 0 {
		names := make([]string, 0, len(toolCounts))
		for name := range toolCounts {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(&sb, " Tool calls: ")
		for i, name := range names {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%d", name, toolCounts[name])
		}
		sb.WriteString(".")
	}

	return ok(map[string]any{
		"summary":        sb.String(),
		"messageCount":   len(messages),
		"toolCallCounts": toolCounts,
		"lastAssistant":  lastAssistant,
		"assignedTasks":  taskIDs,
	})
}
