package pipeline

import "github.com/arcway-dev/orchestra/internal/domain"

// ResultKind discriminates the OrchestratorResult tagged union.
type ResultKind string

const (
	ResultSuccess         ResultKind = "Success"
	ResultNoTasks         ResultKind = "NoTasks"
	ResultMaxWavesReached ResultKind = "MaxWavesReached"
	ResultError           ResultKind = "Error"
)

// TaskSummary is a condensed view of a task's terminal state, reported back
// to the pipeline's caller.
type TaskSummary struct {
	ID      string
	Title   string
	Status  domain.TaskStatus
	Verdict domain.VerificationVerdict
}

// OrchestratorResult is the pipeline's final, tagged outcome.
type OrchestratorResult struct {
	Kind ResultKind

	PlanText      string
	TaskSummaries []TaskSummary
	Waves         int

	Err   error
	Stage string
}

// StageStatus discriminates the StageResult a stage returns.
type StageStatus string

const (
	statusContinue      StageStatus = "continue"
	statusSkipRemaining StageStatus = "skip_remaining"
	statusRepeat        StageStatus = "repeat"
	statusDone          StageStatus = "done"
	statusFailed        StageStatus = "failed"
)

// StageResult is what a Stage.Run returns to the engine: advance, terminate
// early, repeat the pipeline from a named stage, terminate normally, or
// fail.
type StageResult struct {
	status StageStatus

	result     *OrchestratorResult
	repeatFrom string
	err        error
}

// Continue advances the engine to the next stage in sequence.
func Continue() StageResult { return StageResult{status: statusContinue} }

// SkipRemaining terminates the pipeline immediately with result, skipping
// every stage after the caller.
func SkipRemaining(result OrchestratorResult) StageResult {
	return StageResult{status: statusSkipRemaining, result: &result}
}

// RepeatPipeline begins a new iteration. When fromStageName is empty, the
// next iteration resumes at the stage that issued the request; otherwise it
// resumes at the named stage, skipping every stage strictly before it.
func RepeatPipeline(fromStageName string) StageResult {
	return StageResult{status: statusRepeat, repeatFrom: fromStageName}
}

// Done terminates the pipeline normally with result.
func Done(result OrchestratorResult) StageResult {
	return StageResult{status: statusDone, result: &result}
}

// Failed terminates the pipeline with an error tagged with the issuing
// stage's name by the engine.
func Failed(err error) StageResult {
	return StageResult{status: statusFailed, err: err}
}
