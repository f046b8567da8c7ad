package coordination

import (
	"testing"
	"time"

	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/eventbus"
	"github.com/arcway-dev/orchestra/internal/store"
)

func newFixture() (*Tools, *store.AgentStore, *store.TaskStore, *eventbus.Bus) {
	agents := store.NewAgentStore()
	tasks := store.NewTaskStore()
	convs := store.NewConversationStore()
	bus := eventbus.New(16)
	return New(agents, tasks, convs, bus), agents, tasks, bus
}

func TestCreateAgentDefaultsModelTierByRole(t *testing.T) {
	tools, agents, _, _ := newFixture()

	res := tools.CreateAgent("impl-1", domain.RoleImplementor, "w1", "", "")
	if !res.Success {
		t.Fatalf("CreateAgent failed: %v", res.Error)
	}
	id := res.Data["agentId"].(string)
	a, err := agents.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.ModelTier != domain.TierFast {
		t.Fatalf("expected Implementor to default to Fast tier, got %v", a.ModelTier)
	}
	if a.Status != domain.AgentPending {
		t.Fatalf("expected new agent to be Pending, got %v", a.Status)
	}
}

func TestDelegateTransitionsTaskAndAgent(t *testing.T) {
	tools, agents, tasks, _ := newFixture()

	created := tools.CreateAgent("impl", domain.RoleImplementor, "w1", "", "")
	agentID := created.Data["agentId"].(string)

	tasks.Save(&domain.Task{ID: "t1", Status: domain.TaskPending, WorkspaceID: "w1", CreatedAt: time.Now()})

	res := tools.Delegate(agentID, "t1", "coordinator-1")
	if !res.Success {
		t.Fatalf("Delegate failed: %v", res.Error)
	}

	task, _ := tasks.Get("t1")
	if task.Status != domain.TaskInProgress || task.AssignedTo != agentID {
		t.Fatalf("unexpected task state: %+v", task)
	}
	agent, _ := agents.Get(agentID)
	if agent.Status != domain.AgentActive {
		t.Fatalf("expected agent Active, got %v", agent.Status)
	}
}

func TestDelegatePublishesEventsInOrder(t *testing.T) {
	tools, _, tasks, bus := newFixture()

	created := tools.CreateAgent("impl", domain.RoleImplementor, "w1", "", "")
	agentID := created.Data["agentId"].(string)
	tasks.Save(&domain.Task{ID: "t1", Status: domain.TaskPending, WorkspaceID: "w1", CreatedAt: time.Now()})

	var types []domain.EventType
	bus.Subscribe(func(e domain.AgentEvent) { types = append(types, e.Type) })

	if res := tools.Delegate(agentID, "t1", "coordinator-1"); !res.Success {
		t.Fatalf("Delegate failed: %v", res.Error)
	}

	want := []domain.EventType{domain.EventTaskDelegated, domain.EventTaskStatusChanged, domain.EventAgentStatusChanged}
	if len(types) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(types), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d = %v, want %v", i, types[i], want[i])
		}
	}
}

func TestDelegateUnknownAgentFails(t *testing.T) {
	tools, _, tasks, _ := newFixture()
	tasks.Save(&domain.Task{ID: "t1", Status: domain.TaskPending, CreatedAt: time.Now()})

	res := tools.Delegate("missing-agent", "t1", "coordinator-1")
	if res.Success {
		t.Fatal("expected Delegate to fail for unknown agent")
	}
}

func TestMessageAgentAppendsTaggedMessage(t *testing.T) {
	tools, _, _, _ := newFixture()
	created := tools.CreateAgent("a", domain.RoleImplementor, "w1", "", "")
	toID := created.Data["agentId"].(string)

	res := tools.MessageAgent("coordinator-1", toID, "please proceed")
	if !res.Success {
		t.Fatalf("MessageAgent failed: %v", res.Error)
	}

	msgs := tools.conversations.Read(toID)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser {
		t.Fatalf("expected User role, got %v", msgs[0].Role)
	}
	if got := msgs[0].Content; got != "[from coordinator-1] please proceed" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestReportToParentTransitionTable(t *testing.T) {
	tests := []struct {
		name        string
		role        domain.AgentRole
		success     bool
		wantStatus  domain.TaskStatus
		wantVerdict domain.VerificationVerdict
	}{
		{"verifier approves", domain.RoleVerifier, true, domain.TaskCompleted, domain.VerdictApproved},
		{"verifier rejects", domain.RoleVerifier, false, domain.TaskNeedsFix, domain.VerdictNotApproved},
		{"implementor succeeds", domain.RoleImplementor, true, domain.TaskReviewRequired, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools, agents, tasks, _ := newFixture()

			parent := tools.CreateAgent("coordinator", domain.RoleCoordinator, "w1", "", "")
			parentID := parent.Data["agentId"].(string)

			child := tools.CreateAgent("child", tt.role, "w1", parentID, "")
			childID := child.Data["agentId"].(string)

			tasks.Save(&domain.Task{ID: "t1", Status: domain.TaskInProgress, AssignedTo: childID, CreatedAt: time.Now()})

			res := tools.ReportToParent(childID, domain.CompletionReport{
				AgentID: childID, TaskID: "t1", Summary: "done", Success: tt.success,
			})
			if !res.Success {
				t.Fatalf("ReportToParent failed: %v", res.Error)
			}

			task, _ := tasks.Get("t1")
			if task.Status != tt.wantStatus {
				t.Fatalf("status = %v, want %v", task.Status, tt.wantStatus)
			}
			if task.VerificationVerdict != tt.wantVerdict {
				t.Fatalf("verdict = %v, want %v", task.VerificationVerdict, tt.wantVerdict)
			}

			agent, _ := agents.Get(childID)
			if agent.Status != domain.AgentCompleted {
				t.Fatalf("expected reporting agent Completed, got %v", agent.Status)
			}

			parentMsgs := tools.conversations.Read(parentID)
			if len(parentMsgs) != 1 {
				t.Fatalf("expected 1 message appended to parent, got %d", len(parentMsgs))
			}
			if parentMsgs[0].Role != domain.RoleUser {
				t.Fatalf("expected completion message to land as User role, got %v", parentMsgs[0].Role)
			}
		})
	}
}

func TestReportToParentImplementorFailureLeavesTaskUnchanged(t *testing.T) {
	tools, _, tasks, _ := newFixture()
	parent := tools.CreateAgent("coordinator", domain.RoleCoordinator, "w1", "", "")
	parentID := parent.Data["agentId"].(string)
	child := tools.CreateAgent("impl", domain.RoleImplementor, "w1", parentID, "")
	childID := child.Data["agentId"].(string)

	tasks.Save(&domain.Task{ID: "t1", Status: domain.TaskInProgress, AssignedTo: childID, CreatedAt: time.Now()})

	res := tools.ReportToParent(childID, domain.CompletionReport{TaskID: "t1", Success: false})
	if !res.Success {
		t.Fatalf("ReportToParent failed: %v", res.Error)
	}

	task, _ := tasks.Get("t1")
	if task.Status != domain.TaskInProgress {
		t.Fatalf("expected task status unchanged, got %v", task.Status)
	}
}

func TestReportToParentRequiresParent(t *testing.T) {
	tools, _, _, _ := newFixture()
	orphan := tools.CreateAgent("orphan", domain.RoleImplementor, "w1", "", "")
	orphanID := orphan.Data["agentId"].(string)

	res := tools.ReportToParent(orphanID, domain.CompletionReport{Success: true})
	if res.Success {
		t.Fatal("expected ReportToParent to fail for agent with no parent")
	}
}

func TestWakeOrCreateTaskAgentWakesExisting(t *testing.T) {
	tools, _, tasks, _ := newFixture()
	created := tools.CreateAgent("impl", domain.RoleImplementor, "w1", "", "")
	agentID := created.Data["agentId"].(string)
	tools.agents.UpdateStatus(agentID, domain.AgentActive)

	tasks.Save(&domain.Task{ID: "t1", AssignedTo: agentID, Status: domain.TaskInProgress, CreatedAt: time.Now()})

	res := tools.WakeOrCreateTaskAgent("t1", "new context", "caller", "w1", "", "")
	if !res.Success {
		t.Fatalf("WakeOrCreateTaskAgent failed: %v", res.Error)
	}
	if res.Data["action"] != "woke_existing" {
		t.Fatalf("expected woke_existing, got %v", res.Data["action"])
	}
	if res.Data["agentId"] != agentID {
		t.Fatalf("expected existing agent id, got %v", res.Data["agentId"])
	}

	// A second wake on a live assignee is idempotent: one more message, no
	// second agent.
	again := tools.WakeOrCreateTaskAgent("t1", "more context", "caller", "w1", "", "")
	if again.Data["action"] != "woke_existing" || again.Data["agentId"] != agentID {
		t.Fatalf("expected repeated wake to reuse the live assignee, got %+v", again.Data)
	}
	if n := tools.conversations.Len(agentID); n != 2 {
		t.Fatalf("expected 2 queued context messages, got %d", n)
	}
}

func TestWakeOrCreateTaskAgentCreatesNew(t *testing.T) {
	tools, _, tasks, _ := newFixture()
	tasks.Save(&domain.Task{ID: "t1", Status: domain.TaskPending, CreatedAt: time.Now()})

	res := tools.WakeOrCreateTaskAgent("t1", "start here", "caller", "w1", "", "")
	if !res.Success {
		t.Fatalf("WakeOrCreateTaskAgent failed: %v", res.Error)
	}
	if res.Data["action"] != "created_new" {
		t.Fatalf("expected created_new, got %v", res.Data["action"])
	}

	task, _ := tasks.Get("t1")
	if task.AssignedTo == "" {
		t.Fatal("expected task to be assigned to the newly created agent")
	}
}

func TestSendMessageToTaskAgentFailsWhenUnassigned(t *testing.T) {
	tools, _, tasks, _ := newFixture()
	tasks.Save(&domain.Task{ID: "t1", Status: domain.TaskPending, CreatedAt: time.Now()})

	res := tools.SendMessageToTaskAgent("t1", "hello", "caller")
	if res.Success {
		t.Fatal("expected failure for unassigned task")
	}
}

func TestGetAgentStatusAndSummary(t *testing.T) {
	tools, _, tasks, _ := newFixture()
	created := tools.CreateAgent("impl", domain.RoleImplementor, "w1", "", "")
	agentID := created.Data["agentId"].(string)
	tasks.Save(&domain.Task{ID: "t1", AssignedTo: agentID, Status: domain.TaskInProgress, CreatedAt: time.Now()})
	tools.MessageAgent("coordinator-1", agentID, "go")

	status := tools.GetAgentStatus(agentID)
	if !status.Success {
		t.Fatalf("GetAgentStatus failed: %v", status.Error)
	}
	if status.Data["messageCount"] != 1 {
		t.Fatalf("expected messageCount=1, got %v", status.Data["messageCount"])
	}

	summary := tools.GetAgentSummary(agentID)
	if !summary.Success {
		t.Fatalf("GetAgentSummary failed: %v", summary.Error)
	}
	if summary.Data["summary"] == "" {
		t.Fatal("expected non-empty summary text")
	}
}
