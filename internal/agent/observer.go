package agent

import (
	"context"
	"time"
)

// Observer receives execution events for metrics and auditing. The
// orchestrator calls it on the hot path, so implementations must be
// cheap and must not block.
type Observer interface {
	QueryHandled(ctx context.Context, state State, rounds int, d time.Duration)
	PlannerRound(ctx context.Context, round int, outcome string, d time.Duration)
	StepExecuted(ctx context.Context, capabilityName string, outcome Outcome, d time.Duration)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) QueryHandled(context.Context, State, int, time.Duration)      {}
func (NopObserver) PlannerRound(context.Context, int, string, time.Duration)     {}
func (NopObserver) StepExecuted(context.Context, string, Outcome, time.Duration) {}
