package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/taskparser"
)

// Stage is one named step of a pipeline. Run is called once per iteration
// in which the stage is not skipped by an earlier RepeatPipeline point.
type Stage interface {
	Name() string
	Run(ctx context.Context, pctx *Context) StageResult
}

// DefaultStages returns the standard four-stage pipeline: Planning,
// TaskRegistration, CrafterExecution, GateVerification.
func DefaultStages() []Stage {
	return []Stage{
		PlanningStage{},
		TaskRegistrationStage{},
		CrafterExecutionStage{},
		GateVerificationStage{},
	}
}

// PlanningStage invokes the Coordinator provider with the user request and
// stores its textual output on the pipeline context.
type PlanningStage struct{}

// Name identifies this stage for RepeatPipeline targeting and metrics.
func (PlanningStage) Name() string { return "Planning" }

// Run drives one Coordinator turn and records the plan text.
func (PlanningStage) Run(ctx context.Context, pctx *Context) StageResult {
	pctx.emit(Phase{Kind: PhasePlanning})

	coordID, err := pctx.ensureCoordinator()
	if err != nil {
		return Failed(err)
	}

	text, _, err := pctx.runAgent(ctx, domain.RoleCoordinator, coordID, pctx.Request)
	if err != nil {
		return Failed(fmt.Errorf("planning: %w", err))
	}

	pctx.PlanText = text
	pctx.emit(Phase{Kind: PhasePlanReady, Output: text})
	return Continue()
}

// TaskRegistrationStage parses the Coordinator's plan text into Task
// values and persists them, or terminates with NoTasks when the plan
// contained no task blocks.
type TaskRegistrationStage struct{}

// Name identifies this stage.
func (TaskRegistrationStage) Name() string { return "TaskRegistration" }

// Run parses pctx.PlanText and registers every extracted task.
func (TaskRegistrationStage) Run(_ context.Context, pctx *Context) StageResult {
	tasks := taskparser.Parse(pctx.PlanText, pctx.WorkspaceID)
	for _, t := range tasks {
		pctx.Tasks.Save(t)
	}

	pctx.emit(Phase{Kind: PhaseTasksRegistered, Count: len(tasks)})

	if len(tasks) == 0 {
		return Done(OrchestratorResult{Kind: ResultNoTasks, PlanText: pctx.PlanText})
	}
	return Continue()
}

// CrafterExecutionStage runs an Implementor agent for every ready task
// (Pending with satisfied dependencies, or NeedsFix awaiting a retry),
// serially or with bounded parallelism per ParallelCrafters.
type CrafterExecutionStage struct{}

// Name identifies this stage; GateVerification's RepeatPipeline targets it
// by name to skip Planning and TaskRegistration on later waves.
func (CrafterExecutionStage) Name() string { return "CrafterExecution" }

// Run dispatches every ready task to an Implementor and waits for each to
// report completion.
func (CrafterExecutionStage) Run(ctx context.Context, pctx *Context) StageResult {
	tasks := readyForWave(pctx)
	if len(tasks) == 0 {
		return Continue()
	}

	prov, err := pctx.Router.Select(domain.RoleImplementor)
	if err != nil {
		return Failed(err)
	}

	limit := prov.Capabilities().MaxConcurrentAgents
	if limit <= 0 {
		limit = 1
	}

	coordID, err := pctx.ensureCoordinator()
	if err != nil {
		return Failed(err)
	}

	run := func(task *domain.Task) error {
		return runImplementor(ctx, pctx, coordID, task)
	}

	if pctx.ParallelCrafters {
		group, gctx := errgroup.WithContext(ctx)
		group.SetLimit(limit)
		for _, task := range tasks {
			task := task
			group.Go(func() error { return runImplementor(gctx, pctx, coordID, task) })
		}
		if err := group.Wait(); err != nil {
			return Failed(err)
		}
		return Continue()
	}

	for _, task := range tasks {
		if err := run(task); err != nil {
			return Failed(err)
		}
	}
	return Continue()
}

// readyForWave returns every task eligible for this CrafterExecution pass:
// Pending tasks with satisfied dependencies, plus NeedsFix tasks awaiting a
// retry dispatch.
func readyForWave(pctx *Context) []*domain.Task {
	tasks := pctx.Tasks.FindReady(pctx.WorkspaceID)
	for _, t := range pctx.Tasks.ListByStatus(domain.TaskNeedsFix) {
		if t.WorkspaceID == pctx.WorkspaceID {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

func runImplementor(ctx context.Context, pctx *Context, coordID string, task *domain.Task) error {
	wake := pctx.Tools.WakeOrCreateTaskAgent(task.ID, buildTaskContext(task), coordID, pctx.WorkspaceID, "", domain.TierFast)
	if !wake.Success {
		return fmt.Errorf("crafterExecution: wake %s: %s", task.ID, wake.Error)
	}
	agentID, _ := wake.Data["agentId"].(string)

	if wake.Data["action"] == "created_new" {
		if res := pctx.Tools.Delegate(agentID, task.ID, coordID); !res.Success {
			return fmt.Errorf("crafterExecution: delegate %s: %s", task.ID, res.Error)
		}
	}

	pctx.emit(Phase{Kind: PhaseCrafterRunning, TaskID: task.ID})
	_, reports, err := pctx.runAgent(ctx, domain.RoleImplementor, agentID, buildTaskContext(task))
	pctx.emit(Phase{Kind: PhaseCrafterCompleted, TaskID: task.ID})
	if err != nil {
		return fmt.Errorf("crafterExecution: run %s: %w", agentID, err)
	}

	report := reportFor(reports, task.ID)
	if report == nil {
		report = &domain.CompletionReport{Success: true}
	}
	report.AgentID = agentID
	report.TaskID = task.ID

	if res := pctx.Tools.ReportToParent(agentID, *report); !res.Success {
		return fmt.Errorf("crafterExecution: report %s: %s", agentID, res.Error)
	}
	return nil
}

// GateVerificationStage runs a single Verifier agent over every task in
// ReviewRequired, then either approves the wave or loops the pipeline back
// to CrafterExecution for the tasks marked NeedsFix.
type GateVerificationStage struct{}

// Name identifies this stage.
func (GateVerificationStage) Name() string { return "GateVerification" }

// Run verifies the current wave's ReviewRequired tasks and decides whether
// the pipeline is done or must repeat.
func (GateVerificationStage) Run(ctx context.Context, pctx *Context) StageResult {
	wave := pctx.Tasks.ListByStatus(domain.TaskReviewRequired)
	var waveTasks []*domain.Task
	for _, t := range wave {
		if t.WorkspaceID == pctx.WorkspaceID {
			waveTasks = append(waveTasks, t)
		}
	}

	if len(waveTasks) == 0 {
		return Done(OrchestratorResult{Kind: ResultSuccess, PlanText: pctx.PlanText, TaskSummaries: pctx.summaries()})
	}

	coordID, err := pctx.ensureCoordinator()
	if err != nil {
		return Failed(err)
	}

	pctx.wave++
	created := pctx.Tools.CreateAgent(fmt.Sprintf("verifier-wave-%d", pctx.wave), domain.RoleVerifier, pctx.WorkspaceID, coordID, domain.TierSmart)
	if !created.Success {
		return Failed(fmt.Errorf("gateVerification: create verifier: %s", created.Error))
	}
	verifierID, _ := created.Data["agentId"].(string)
	pctx.Agents.UpdateStatus(verifierID, domain.AgentActive)

	pctx.emit(Phase{Kind: PhaseVerificationStarting, Wave: pctx.wave})

	output, reports, err := pctx.runAgent(ctx, domain.RoleVerifier, verifierID, buildWaveContext(waveTasks))
	if err != nil {
		return Failed(fmt.Errorf("gateVerification: run %s: %w", verifierID, err))
	}

	allApproved := true
	var lastSummary string
	for _, task := range waveTasks {
		report := reportFor(reports, task.ID)
		if report == nil {
			report = &domain.CompletionReport{Success: true}
		}
		lastSummary = report.Summary
		if res := pctx.Tools.ApplyTaskVerdict(domain.RoleVerifier, verifierID, task.ID, report.Success, report.Summary); !res.Success {
			return Failed(fmt.Errorf("gateVerification: apply verdict %s: %s", task.ID, res.Error))
		}
		if !report.Success {
			allApproved = false
		}
	}

	waveReport := domain.CompletionReport{AgentID: verifierID, Summary: lastSummary, Success: allApproved}
	if res := pctx.Tools.ReportToParent(verifierID, waveReport); !res.Success {
		return Failed(fmt.Errorf("gateVerification: report verifier completion: %s", res.Error))
	}

	pctx.emit(Phase{Kind: PhaseVerificationCompleted, Output: output, Wave: pctx.wave})

	if allApproved {
		pctx.emit(Phase{Kind: PhaseCompleted})
		return Done(OrchestratorResult{Kind: ResultSuccess, PlanText: pctx.PlanText, TaskSummaries: pctx.summaries()})
	}

	pctx.emit(Phase{Kind: PhaseNeedsFix, Wave: pctx.wave})
	return RepeatPipeline("CrafterExecution")
}
