package agent

import (
	"context"
	"time"

	"github.com/teemow/inboxpilot/internal/instrumentation"
)

// MetricsObserver bridges the orchestrator's execution events to the
// metrics recorder.
type MetricsObserver struct {
	metrics *instrumentation.Metrics
}

// NewMetricsObserver creates an observer over the given metrics recorder.
func NewMetricsObserver(metrics *instrumentation.Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: metrics}
}

func (o *MetricsObserver) QueryHandled(ctx context.Context, state State, rounds int, d time.Duration) {
	o.metrics.RecordQuery(ctx, string(state), rounds, d)
}

func (o *MetricsObserver) PlannerRound(ctx context.Context, round int, outcome string, d time.Duration) {
	o.metrics.RecordPlannerRound(ctx, outcome, d)
}

func (o *MetricsObserver) StepExecuted(ctx context.Context, capabilityName string, outcome Outcome, d time.Duration) {
	status := instrumentation.StatusSuccess
	if outcome != OutcomeSuccess {
		status = instrumentation.StatusError
	}
	o.metrics.RecordCapabilityInvocation(ctx, capabilityName, status, d)
}

var _ Observer = (*MetricsObserver)(nil)
