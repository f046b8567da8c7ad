package pipeline

import (
	"context"
	"testing"

	"github.com/arcway-dev/orchestra/internal/coordination"
	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/eventbus"
	"github.com/arcway-dev/orchestra/internal/orcherrors"
	"github.com/arcway-dev/orchestra/internal/provider"
	"github.com/arcway-dev/orchestra/internal/store"
)

const singleTaskPlan = "" +
	"@@@task\n" +
	"# Add login form\n" +
	"## Objective\n" +
	"Implement a login form\n" +
	"## Definition of Done\n" +
	"- Form validates email\n" +
	"@@@"

var comboCaps = provider.ProviderCapabilities{
	Name:                "combo",
	SupportsToolCalling: true,
	SupportsFileEditing: true,
	SupportsTerminal:    true,
	MaxConcurrentAgents: 2,
}

// scriptedProvider is a deterministic test double behaving differently per
// role: it echoes a fixed plan for the Coordinator, reports a fixed success
// flag for the Implementor, and consumes a scripted sequence of verdicts
// for the Verifier (the last entry repeats once exhausted).
type scriptedProvider struct {
	caps provider.ProviderCapabilities

	planText    string
	implSuccess bool
	verifierSeq []bool

	coordinatorCalls int
	implementorCalls int
	verifierCalls    int
}

func (p *scriptedProvider) Capabilities() provider.ProviderCapabilities { return p.caps }

func (p *scriptedProvider) Run(ctx context.Context, req provider.RunRequest) (provider.RunResult, error) {
	return provider.RunResult{}, nil
}

func (p *scriptedProvider) RunStreaming(_ context.Context, req provider.RunRequest, onChunk func(provider.StreamChunk)) error {
	switch req.Role {
	case domain.RoleCoordinator:
		p.coordinatorCalls++
		onChunk(provider.StreamChunk{Kind: provider.ChunkText, Text: p.planText})
	case domain.RoleImplementor:
		p.implementorCalls++
		onChunk(provider.StreamChunk{Kind: provider.ChunkCompletionReport, Completion: domain.CompletionReport{
			Success: p.implSuccess, Summary: "implemented",
		}})
	case domain.RoleVerifier:
		idx := p.verifierCalls
		if idx >= len(p.verifierSeq) {
			idx = len(p.verifierSeq) - 1
		}
		success := true
		if idx >= 0 {
			success = p.verifierSeq[idx]
		}
		p.verifierCalls++
		summary := "approved"
		if !success {
			summary = "Missing email regex"
		}
		onChunk(provider.StreamChunk{Kind: provider.ChunkCompletionReport, Completion: domain.CompletionReport{
			Success: success, Summary: summary,
		}})
	}
	onChunk(provider.StreamChunk{Kind: provider.ChunkCompleted, StopReason: "end_turn"})
	return nil
}

func (p *scriptedProvider) IsHealthy(context.Context) bool          { return true }
func (p *scriptedProvider) Interrupt(context.Context, string) error { return nil }
func (p *scriptedProvider) Cleanup(context.Context, string) error   { return nil }
func (p *scriptedProvider) Shutdown(context.Context) error          { return nil }

var _ provider.Provider = (*scriptedProvider)(nil)

func newHarness(prov *scriptedProvider, maxIterations int) (*Context, *Engine) {
	agents := store.NewAgentStore()
	tasks := store.NewTaskStore()
	convs := store.NewConversationStore()
	bus := eventbus.New(16)
	tools := coordination.New(agents, tasks, convs, bus)

	router := provider.NewRouter()
	router.Register(prov)

	pctx := NewContext("w1", "s1", "build a login form", agents, tasks, convs, bus, tools, router)
	return pctx, New(DefaultStages(), maxIterations)
}

func TestS1SingleTaskHappyPath(t *testing.T) {
	prov := &scriptedProvider{caps: comboCaps, planText: singleTaskPlan, implSuccess: true, verifierSeq: []bool{true}}
	pctx, engine := newHarness(prov, 3)

	result := engine.Execute(context.Background(), pctx)
	if result.Kind != ResultSuccess {
		t.Fatalf("expected Success, got %v (err=%v)", result.Kind, result.Err)
	}
	if len(result.TaskSummaries) != 1 {
		t.Fatalf("expected 1 task summary, got %d", len(result.TaskSummaries))
	}
	if result.TaskSummaries[0].Status != domain.TaskCompleted {
		t.Fatalf("expected task Completed, got %v", result.TaskSummaries[0].Status)
	}
	if result.TaskSummaries[0].Verdict != domain.VerdictApproved {
		t.Fatalf("expected Approved verdict, got %v", result.TaskSummaries[0].Verdict)
	}
	if prov.coordinatorCalls != 1 {
		t.Fatalf("expected exactly one Planning call, got %d", prov.coordinatorCalls)
	}
	if prov.verifierCalls != 1 {
		t.Fatalf("expected exactly one Verifier call, got %d", prov.verifierCalls)
	}
}

func TestS2RejectedThenApproved(t *testing.T) {
	prov := &scriptedProvider{caps: comboCaps, planText: singleTaskPlan, implSuccess: true, verifierSeq: []bool{false, true}}
	pctx, engine := newHarness(prov, 5)

	result := engine.Execute(context.Background(), pctx)
	if result.Kind != ResultSuccess {
		t.Fatalf("expected Success, got %v (err=%v)", result.Kind, result.Err)
	}
	if prov.coordinatorCalls != 1 {
		t.Fatalf("expected Planning invoked exactly once, got %d", prov.coordinatorCalls)
	}
	if prov.verifierCalls != 2 {
		t.Fatalf("expected Verifier invoked exactly twice, got %d", prov.verifierCalls)
	}
	if prov.implementorCalls != 2 {
		t.Fatalf("expected Implementor invoked twice (initial + retry wave), got %d", prov.implementorCalls)
	}
	if result.TaskSummaries[0].Status != domain.TaskCompleted {
		t.Fatalf("expected final task status Completed, got %v", result.TaskSummaries[0].Status)
	}
}

func TestS3NoTasks(t *testing.T) {
	prov := &scriptedProvider{caps: comboCaps, planText: "Here is some prose with no task blocks at all."}
	pctx, engine := newHarness(prov, 3)

	result := engine.Execute(context.Background(), pctx)
	if result.Kind != ResultNoTasks {
		t.Fatalf("expected NoTasks, got %v", result.Kind)
	}
	if result.PlanText != prov.planText {
		t.Fatalf("expected plan text preserved, got %q", result.PlanText)
	}
	if prov.implementorCalls != 0 || prov.verifierCalls != 0 {
		t.Fatalf("expected no Implementor/Verifier invocations, got impl=%d verifier=%d", prov.implementorCalls, prov.verifierCalls)
	}
}

func TestS4MaxIterationsReached(t *testing.T) {
	prov := &scriptedProvider{caps: comboCaps, planText: singleTaskPlan, implSuccess: true, verifierSeq: []bool{false, false, false}}
	pctx, engine := newHarness(prov, 2)

	result := engine.Execute(context.Background(), pctx)
	if result.Kind != ResultMaxWavesReached {
		t.Fatalf("expected MaxWavesReached, got %v (err=%v)", result.Kind, result.Err)
	}
	if result.Waves != 2 {
		t.Fatalf("expected 2 waves, got %d", result.Waves)
	}
	if prov.implementorCalls != 2 {
		t.Fatalf("expected 2 Implementor waves, got %d", prov.implementorCalls)
	}
	if prov.verifierCalls != 2 {
		t.Fatalf("expected 2 Verifier calls, got %d", prov.verifierCalls)
	}
	if result.TaskSummaries[0].Status != domain.TaskNeedsFix {
		t.Fatalf("expected task status to remain NeedsFix, got %v", result.TaskSummaries[0].Status)
	}
}

func TestS5RoutingFailureNamesMissingRequirement(t *testing.T) {
	router := provider.NewRouter()
	router.Register(provider.NewStubProvider(provider.ProviderCapabilities{Name: "readonly", SupportsToolCalling: true}, ""))

	_, err := router.Select(domain.RoleImplementor)
	if !orcherrors.Is(err, orcherrors.KindRoutingNoSuitable) {
		t.Fatalf("expected KindRoutingNoSuitable, got %v", err)
	}
	if err == nil || !contains(err.Error(), "readonly") {
		t.Fatalf("expected error to name the registered provider, got %v", err)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func TestCrafterExecutionFailsFastWithNoSuitableProvider(t *testing.T) {
	agents := store.NewAgentStore()
	tasks := store.NewTaskStore()
	convs := store.NewConversationStore()
	bus := eventbus.New(16)
	tools := coordination.New(agents, tasks, convs, bus)

	router := provider.NewRouter()
	router.Register(provider.NewStubProvider(provider.ProviderCapabilities{Name: "readonly", SupportsToolCalling: true}, ""))

	tasks.Save(&domain.Task{ID: "t1", Title: "t", Status: domain.TaskPending, WorkspaceID: "w1"})

	pctx := NewContext("w1", "s1", "x", agents, tasks, convs, bus, tools, router)
	sr := CrafterExecutionStage{}.Run(context.Background(), pctx)
	if sr.status != statusFailed {
		t.Fatalf("expected Failed status, got %v", sr.status)
	}
}

func TestWithTracingRunsStagesToCompletion(t *testing.T) {
	prov := &scriptedProvider{caps: comboCaps, planText: singleTaskPlan, implSuccess: true, verifierSeq: []bool{true}}
	agents := store.NewAgentStore()
	tasks := store.NewTaskStore()
	convs := store.NewConversationStore()
	bus := eventbus.New(16)
	tools := coordination.New(agents, tasks, convs, bus)

	router := provider.NewRouter()
	router.Register(prov)

	pctx := NewContext("w1", "s1", "build a login form", agents, tasks, convs, bus, tools, router)
	engine := New(DefaultStages(), 3, WithTracing())

	result := engine.Execute(context.Background(), pctx)
	if result.Kind != ResultSuccess {
		t.Fatalf("expected Success with tracing enabled, got %v (err=%v)", result.Kind, result.Err)
	}
}
