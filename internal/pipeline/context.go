package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/arcway-dev/orchestra/internal/coordination"
	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/eventbus"
	"github.com/arcway-dev/orchestra/internal/provider"
	"github.com/arcway-dev/orchestra/internal/store"
)

// PhaseKind names a point in the pipeline's progress a caller may want to
// observe (stream to a UI, log, test against).
type PhaseKind string

const (
	PhasePlanning              PhaseKind = "Planning"
	PhasePlanReady             PhaseKind = "PlanReady"
	PhaseTasksRegistered       PhaseKind = "TasksRegistered"
	PhaseCrafterRunning        PhaseKind = "CrafterRunning"
	PhaseCrafterCompleted      PhaseKind = "CrafterCompleted"
	PhaseVerificationStarting  PhaseKind = "VerificationStarting"
	PhaseVerificationCompleted PhaseKind = "VerificationCompleted"
	PhaseNeedsFix              PhaseKind = "NeedsFix"
	PhaseCompleted             PhaseKind = "Completed"
	PhaseMaxWavesReached       PhaseKind = "MaxWavesReached"
)

// Phase is one callback payload delivered to Context.OnPhase.
type Phase struct {
	Kind   PhaseKind
	Output string
	Count  int
	TaskID string
	Wave   int
}

// PhaseCallback observes pipeline progress. It must not block the pipeline
// for long and must not panic.
type PhaseCallback func(Phase)

// Context carries everything a Stage needs: the entity stores, the event
// bus, the coordination tool surface, the provider router, the in-flight
// plan text, and the observer callbacks. One Context is built per
// Engine.Execute call and threaded through every stage and iteration.
type Context struct {
	WorkspaceID string
	SessionID   string
	Request     string

	Agents        *store.AgentStore
	Tasks         *store.TaskStore
	Conversations *store.ConversationStore
	Bus           *eventbus.Bus
	Tools         *coordination.Tools
	Router        *provider.Router

	ParallelCrafters bool

	OnPhase       PhaseCallback
	OnStreamChunk func(provider.StreamChunk)

	PlanText string

	coordinatorID string
	wave          int
}

// NewContext builds a Context bound to one workspace/session and the given
// collaborators.
func NewContext(workspaceID, sessionID, request string, agents *store.AgentStore, tasks *store.TaskStore, conversations *store.ConversationStore, bus *eventbus.Bus, tools *coordination.Tools, router *provider.Router) *Context {
	return &Context{
		WorkspaceID:   workspaceID,
		SessionID:     sessionID,
		Request:       request,
		Agents:        agents,
		Tasks:         tasks,
		Conversations: conversations,
		Bus:           bus,
		Tools:         tools,
		Router:        router,
	}
}

func (c *Context) emit(p Phase) {
	if c.OnPhase != nil {
		c.OnPhase(p)
	}
}

// ensureCoordinator lazily creates the single Coordinator agent for this
// pipeline run, reusing it across every Planning invocation in later waves.
func (c *Context) ensureCoordinator() (string, error) {
	if c.coordinatorID != "" {
		return c.coordinatorID, nil
	}
	res := c.Tools.CreateAgent("coordinator", domain.RoleCoordinator, c.WorkspaceID, "", domain.TierSmart)
	if !res.Success {
		return "", fmt.Errorf("pipeline: create coordinator: %s", res.Error)
	}
	id, _ := res.Data["agentId"].(string)
	c.coordinatorID = id
	return id, nil
}

// runAgent selects a provider for role, drives one streaming turn for
// agentID, and returns the concatenated text along with every
// CompletionReport chunk observed during the turn, in emission order. A
// single turn may carry more than one CompletionReport (e.g. a Verifier
// judging several tasks in one pass, one report per task id).
func (c *Context) runAgent(ctx context.Context, role domain.AgentRole, agentID, prompt string) (string, []domain.CompletionReport, error) {
	prov, err := c.Router.Select(role)
	if err != nil {
		return "", nil, err
	}

	var text strings.Builder
	var reports []domain.CompletionReport
	runErr := prov.RunStreaming(ctx, provider.RunRequest{AgentID: agentID, Role: role, Prompt: prompt, Context: ctx}, func(chunk provider.StreamChunk) {
		if c.OnStreamChunk != nil {
			c.OnStreamChunk(chunk)
		}
		switch chunk.Kind {
		case provider.ChunkText:
			text.WriteString(chunk.Text)
		case provider.ChunkCompletionReport:
			reports = append(reports, chunk.Completion)
		}
	})
	return text.String(), reports, runErr
}

// reportFor returns the CompletionReport among reports whose TaskID matches
// taskID, falling back to the last report seen (single-task turns carry
// exactly one), or nil if none were emitted at all.
func reportFor(reports []domain.CompletionReport, taskID string) *domain.CompletionReport {
	for i := range reports {
		if reports[i].TaskID == taskID {
			r := reports[i]
			return &r
		}
	}
	if len(reports) > 0 {
		r := reports[len(reports)-1]
		return &r
	}
	return nil
}

// summaries returns a TaskSummary for every task in the workspace, used to
// build the final OrchestratorResult.
func (c *Context) summaries() []TaskSummary {
	tasks := c.Tasks.ListByWorkspace(c.WorkspaceID)
	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskSummary{ID: t.ID, Title: t.Title, Status: t.Status, Verdict: t.VerificationVerdict})
	}
	return out
}

func buildTaskContext(t *domain.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n", t.Title)
	if t.Objective != "" {
		fmt.Fprintf(&sb, "Objective: %s\n", t.Objective)
	}
	if t.Scope != "" {
		fmt.Fprintf(&sb, "Scope: %s\n", t.Scope)
	}
	if len(t.AcceptanceCriteria) > 0 {
		sb.WriteString("Acceptance Criteria:\n")
		for _, item := range t.AcceptanceCriteria {
			fmt.Fprintf(&sb, "- %s\n", item)
		}
	}
	if len(t.VerificationCommands) > 0 {
		sb.WriteString("Verification:\n")
		for _, item := range t.VerificationCommands {
			fmt.Fprintf(&sb, "- %s\n", item)
		}
	}
	return sb.String()
}

func buildWaveContext(tasks []*domain.Task) string {
	var sb strings.Builder
	sb.WriteString("Review the following tasks for approval:\n\n")
	for _, t := range tasks {
		sb.WriteString(buildTaskContext(t))
		if t.CompletionSummary != "" {
			fmt.Fprintf(&sb, "Completion summary: %s\n", t.CompletionSummary)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
