package pipeline

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcway-dev/orchestra/internal/coordination"
	"github.com/arcway-dev/orchestra/internal/eventbus"
	"github.com/arcway-dev/orchestra/internal/provider"
	"github.com/arcway-dev/orchestra/internal/store"
)

func TestPipelineMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := MustNewMetrics(reg)

	prov := &scriptedProvider{caps: comboCaps, planText: singleTaskPlan, implSuccess: true, verifierSeq: []bool{false, true}}

	agents := store.NewAgentStore()
	tasks := store.NewTaskStore()
	convs := store.NewConversationStore()
	bus := eventbus.New(16)
	tools := coordination.New(agents, tasks, convs, bus)
	router := provider.NewRouter()
	router.Register(prov)

	pctx := NewContext("w1", "s1", "build it", agents, tasks, convs, bus, tools, router)
	engine := New(DefaultStages(), 5, WithMetrics(metrics))

	result := engine.Execute(context.Background(), pctx)
	require.Equal(t, ResultSuccess, result.Kind)

	retries := testutil.ToFloat64(metrics.stageRetries.WithLabelValues("GateVerification"))
	assert.Equal(t, 1.0, retries, "one RepeatPipeline from the rejected first wave")

	assert.Zero(t, testutil.ToFloat64(metrics.stageFailures.WithLabelValues("GateVerification", "stage_error")))
	assert.Zero(t, testutil.ToFloat64(metrics.jobsActive), "gauge returns to zero once Execute finishes")
}

func TestMustNewMetricsPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustNewMetrics(reg)
	assert.Panics(t, func() { MustNewMetrics(reg) })
}
