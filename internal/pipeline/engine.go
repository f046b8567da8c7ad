// Package pipeline implements the orchestrator's ordered-stage engine: a
// bounded-iteration loop over named stages, each returning a tagged
// StageResult that advances, terminates, or repeats the pipeline from a
// named point, with phase callbacks and prometheus-backed stage metrics.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/arcway-dev/orchestra/internal/logging"
	"github.com/arcway-dev/orchestra/internal/telemetry"
)

// Engine runs an ordered list of stages up to maxIterations times,
// honoring each stage's StageResult.
type Engine struct {
	stages        []Stage
	maxIterations int
	metrics       *Metrics
	logger        logging.Logger
	traced        bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger used for stage-failure diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l) }
}

// WithTracing wraps every stage invocation in an OpenTelemetry span.
func WithTracing() Option {
	return func(e *Engine) { e.traced = true }
}

// New returns an Engine running stages up to maxIterations times. A
// maxIterations of zero or less defaults to 1 (a single wave, no repeats).
func New(stages []Stage, maxIterations int, opts ...Option) *Engine {
	if maxIterations <= 0 {
		maxIterations = 1
	}
	e := &Engine{stages: stages, maxIterations: maxIterations, logger: logging.Nop}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) indexOf(name string) int {
	for i, s := range e.stages {
		if s.Name() == name {
			return i
		}
	}
	return -1
}

// Execute runs the pipeline to completion: Planning and TaskRegistration
// (or whichever stages precede the first repeat point) run at most once;
// later iterations resume at the repeat point named by the stage that
// requested it. Execute never runs more than maxIterations iterations; if
// the budget is exhausted without reaching a terminal result, it returns a
// MaxWavesReached-shaped result reflecting the latest stored state.
func (e *Engine) Execute(ctx context.Context, pctx *Context) OrchestratorResult {
	e.metrics.jobStarted()
	defer e.metrics.jobFinished()

	startIdx := 0
	for iteration := 1; ; iteration++ {
		nextStart, done := e.runIteration(ctx, pctx, startIdx)
		if done != nil {
			return *done
		}

		if iteration >= e.maxIterations {
			pctx.emit(Phase{Kind: PhaseMaxWavesReached, Wave: iteration})
			return OrchestratorResult{
				Kind:          ResultMaxWavesReached,
				PlanText:      pctx.PlanText,
				TaskSummaries: pctx.summaries(),
				Waves:         iteration,
			}
		}
		startIdx = nextStart
	}
}

// runIteration runs stages[startIdx:] in order, returning either a terminal
// result or the index the next iteration should resume at.
func (e *Engine) runIteration(ctx context.Context, pctx *Context, startIdx int) (nextStart int, done *OrchestratorResult) {
	for i := startIdx; i < len(e.stages); i++ {
		stage := e.stages[i]
		started := time.Now()
		sr := e.runStageSafely(ctx, pctx, stage)

		switch sr.status {
		case statusContinue:
			e.metrics.observeDuration(stage.Name(), "continue", time.Since(started).Seconds())

		case statusSkipRemaining, statusDone:
			e.metrics.observeDuration(stage.Name(), "done", time.Since(started).Seconds())
			result := *sr.result
			return 0, &result

		case statusRepeat:
			e.metrics.observeDuration(stage.Name(), "repeat", time.Since(started).Seconds())
			e.metrics.recordRetry(stage.Name())
			idx := i
			if sr.repeatFrom != "" {
				if found := e.indexOf(sr.repeatFrom); found >= 0 {
					idx = found
				}
			}
			return idx, nil

		case statusFailed:
			e.metrics.observeDuration(stage.Name(), "failed", time.Since(started).Seconds())
			e.metrics.recordFailure(stage.Name(), "stage_error")
			e.logger.Error("pipeline: stage %s failed: %v", stage.Name(), sr.err)
			result := OrchestratorResult{Kind: ResultError, Err: sr.err, Stage: stage.Name()}
			return 0, &result
		}
	}

	result := OrchestratorResult{Kind: ResultError, Err: fmt.Errorf("pipeline: stage list exhausted without a terminal result")}
	return 0, &result
}

// runStageSafely recovers a panicking stage into a Failed result so one
// misbehaving stage cannot crash the whole orchestrator process.
func (e *Engine) runStageSafely(ctx context.Context, pctx *Context, stage Stage) (result StageResult) {
	var span trace.Span
	if e.traced {
		ctx, span = telemetry.StartStageSpan(ctx, stage.Name())
	}
	defer func() {
		if r := recover(); r != nil {
			result = Failed(fmt.Errorf("pipeline: stage %s panicked: %v", stage.Name(), r))
		}
		if span != nil {
			telemetry.End(span, result.err)
		}
	}()
	return stage.Run(ctx, pctx)
}
