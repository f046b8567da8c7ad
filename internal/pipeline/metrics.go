package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the pipeline engine's prometheus instrumentation: retry and
// failure counters per stage, a duration histogram split by stage/status,
// and a gauge of pipelines currently running.
type Metrics struct {
	stageRetries  *prometheus.CounterVec
	stageFailures *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	jobsActive    prometheus.Gauge
}

// MustNewMetrics registers the pipeline engine's metrics on registry and
// panics if registration fails (duplicate registration is a programming
// error, not a runtime condition to recover from).
func MustNewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestra_pipeline_stage_retries_total",
			Help: "Number of times a pipeline stage was retried via RepeatPipeline.",
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestra_pipeline_stage_failures_total",
			Help: "Number of pipeline stage failures, by stage and error kind.",
		}, []string{"stage", "error"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchestra_pipeline_stage_duration_seconds",
			Help:    "Stage execution duration in seconds, labeled by stage and outcome status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage", "status"}),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orchestra_pipeline_jobs_active",
			Help: "Number of pipeline runs currently in progress.",
		}),
	}
	registry.MustRegister(m.stageRetries, m.stageFailures, m.stageDuration, m.jobsActive)
	return m
}

func (m *Metrics) recordRetry(stage string) {
	if m == nil {
		return
	}
	m.stageRetries.WithLabelValues(stage).Inc()
}

func (m *Metrics) recordFailure(stage, kind string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage, kind).Inc()
}

func (m *Metrics) observeDuration(stage, status string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(seconds)
}

func (m *Metrics) jobStarted() {
	if m == nil {
		return
	}
	m.jobsActive.Inc()
}

func (m *Metrics) jobFinished() {
	if m == nil {
		return
	}
	m.jobsActive.Dec()
}
