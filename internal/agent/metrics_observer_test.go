package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/teemow/inboxpilot/internal/instrumentation"
)

func TestMetricsObserverRecordsLifecycleEvents(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	m, err := instrumentation.NewMetrics(provider.Meter("test"), false)
	require.NoError(t, err)

	obs := NewMetricsObserver(m)
	ctx := context.Background()
	obs.QueryHandled(ctx, StateDone, 2, 120*time.Millisecond)
	obs.PlannerRound(ctx, 1, "steps", 40*time.Millisecond)
	obs.StepExecuted(ctx, "search_gmail", OutcomeSuccess, 30*time.Millisecond)
	obs.StepExecuted(ctx, "get_repo_alerts", OutcomeFailure, 30*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var names []string
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			names = append(names, metric.Name)
		}
	}
	assert.Contains(t, names, "agent_queries_total")
	assert.Contains(t, names, "agent_planner_rounds_total")
	assert.Contains(t, names, "agent_capability_invocations_total")
}
