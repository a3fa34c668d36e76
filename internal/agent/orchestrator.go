package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/teemow/inboxpilot/internal/capability"
	"github.com/teemow/inboxpilot/internal/fault"
	"github.com/teemow/inboxpilot/internal/logging"
)

// State is the orchestrator's position in the query lifecycle. Terminal
// states are StateDone and StateFailed.
type State string

const (
	StateReceived     State = "received"
	StatePlanning     State = "planning"
	StateExecuting    State = "executing"
	StateSynthesizing State = "synthesizing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Options bound the orchestrator's planning and execution loop.
type Options struct {
	// MaxRounds caps how many planning rounds may emit steps before
	// synthesis is forced.
	MaxRounds int
	// RoundTimeout bounds one planner invocation.
	RoundTimeout time.Duration
	// StepTimeout bounds one adapter call attempt.
	StepTimeout time.Duration
	// RetryBackoff is the pause before the single retry of a rate
	// limited or transient upstream failure.
	RetryBackoff time.Duration
}

func (o *Options) withDefaults() {
	if o.MaxRounds <= 0 {
		o.MaxRounds = 3
	}
	if o.RoundTimeout <= 0 {
		o.RoundTimeout = 60 * time.Second
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = 30 * time.Second
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
}

// Orchestrator drives one query through planning, execution, and
// synthesis. A single instance serves concurrent queries; all mutable
// state lives in the per-query run.
type Orchestrator struct {
	registry *capability.Registry
	planner  Planner
	opts     Options
	observer Observer
	logger   *slog.Logger
}

// NewOrchestrator wires the orchestrator. Pass nil for observer to
// disable instrumentation.
func NewOrchestrator(registry *capability.Registry, planner Planner, opts Options, observer Observer) *Orchestrator {
	opts.withDefaults()
	if observer == nil {
		observer = NopObserver{}
	}
	return &Orchestrator{
		registry: registry,
		planner:  planner,
		opts:     opts,
		observer: observer,
		logger:   logging.WithService(slog.Default(), "orchestrator"),
	}
}

// queryRun holds the mutable state of one query in flight.
type queryRun struct {
	query    Query
	results  []StepResult
	excluded map[string]bool
	state    State
	rounds   int
}

// HandleQuery processes one query end to end and always returns a
// Response. Failures degrade into the response text and the
// actions_taken trace; no error reaches the caller.
func (o *Orchestrator) HandleQuery(ctx context.Context, text string) *Response {
	start := time.Now()
	run := &queryRun{
		query: Query{
			ID:         uuid.NewString(),
			Text:       text,
			ReceivedAt: start,
		},
		excluded: make(map[string]bool),
		state:    StateReceived,
	}
	logger := logging.WithQuery(o.logger, run.query.ID)
	logger.InfoContext(ctx, "query received", slog.Int("query_chars", len(text)))

	resp := o.run(ctx, run, logger)

	o.observer.QueryHandled(ctx, run.state, run.rounds, time.Since(start))
	logger.InfoContext(ctx, "query finished",
		slog.String("state", string(run.state)),
		logging.Round(run.rounds),
		slog.Int("actions", len(resp.ActionsTaken)),
		slog.Duration(logging.KeyDuration, time.Since(start)),
	)
	return resp
}

func (o *Orchestrator) run(ctx context.Context, run *queryRun, logger *slog.Logger) *Response {
	for round := 1; round <= o.opts.MaxRounds; round++ {
		run.rounds = round
		out, err := o.planRound(ctx, run, PlanContext{
			Query:            run.query,
			Results:          run.results,
			Round:            round,
			ExcludedServices: run.excluded,
		})
		if err != nil {
			return o.fail(ctx, run, logger, err)
		}
		if out.FinalAnswer != "" {
			run.state = StateSynthesizing
			return o.finish(run, out.FinalAnswer)
		}

		run.state = StateExecuting
		o.executeRound(ctx, run, out.Steps, logger)

		if err := ctx.Err(); err != nil {
			return o.fail(ctx, run, logger, err)
		}
	}

	// Round budget exhausted: force synthesis from whatever exists.
	run.state = StateSynthesizing
	out, err := o.planRound(ctx, run, PlanContext{
		Query:            run.query,
		Results:          run.results,
		Round:            run.rounds + 1,
		ForceFinal:       true,
		ExcludedServices: run.excluded,
	})
	if err != nil || out.FinalAnswer == "" {
		logger.WarnContext(ctx, "forced synthesis unavailable, using deterministic summary", logging.Err(err))
		return o.finish(run, summarizeTrace(run.results))
	}
	return o.finish(run, out.FinalAnswer)
}

func (o *Orchestrator) planRound(ctx context.Context, run *queryRun, pc PlanContext) (*PlannerOutput, error) {
	run.state = StatePlanning
	roundCtx, cancel := context.WithTimeout(ctx, o.opts.RoundTimeout)
	defer cancel()

	// The model backend gets the same retry policy as adapter calls:
	// one retry after a bounded backoff for rate limited and transient
	// upstream failures, nothing else.
	attempt := func() (*PlannerOutput, error) {
		out, err := o.planner.Plan(roundCtx, pc)
		if err != nil && !fault.Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return out, err
	}

	start := time.Now()
	out, err := backoff.Retry(roundCtx, attempt,
		backoff.WithBackOff(backoff.NewConstantBackOff(o.opts.RetryBackoff)),
		backoff.WithMaxTries(2),
	)
	outcome := "steps"
	switch {
	case err != nil:
		outcome = logging.StatusError
	case out.Fallback:
		outcome = "fallback"
	case out.FinalAnswer != "":
		outcome = "final_answer"
	}
	o.observer.PlannerRound(ctx, pc.Round, outcome, time.Since(start))
	return out, err
}

// executeRound fans the round's steps out to their adapters and joins
// them. Results are appended in plan order regardless of which adapter
// answers first.
func (o *Orchestrator) executeRound(ctx context.Context, run *queryRun, steps []Step, logger *slog.Logger) {
	base := len(run.results)
	results := make([]StepResult, len(steps))
	done := make([]chan struct{}, len(steps))
	for i := range done {
		done[i] = make(chan struct{})
	}

	var wg sync.WaitGroup
	for i, step := range steps {
		wg.Add(1)
		go func(i int, step Step) {
			defer wg.Done()
			defer close(done[i])
			results[i] = o.executeStep(ctx, run, step, base, i, results, done, logger)
		}(i, step)
	}
	wg.Wait()

	run.results = append(run.results, results...)
	for _, r := range results {
		if r.Outcome == OutcomeFailure && fault.Kind(r.ErrKind) == fault.KindAuth && r.Service != "" {
			run.excluded[r.Service] = true
		}
	}
}

// executeStep runs one step: dependency wait, schema validation,
// dispatch with the retry policy, and trace rendering.
func (o *Orchestrator) executeStep(ctx context.Context, run *queryRun, step Step, base, index int, roundResults []StepResult, done []chan struct{}, logger *slog.Logger) StepResult {
	stepLogger := logger.With(logging.Step(base+index), logging.Capability(step.Capability))

	// Records of earlier successful steps, made available to
	// capabilities whose optional arguments can be derived from them.
	prior := completedRecords(run.results)

	if step.DependsOn != nil {
		dep := *step.DependsOn
		if dep < 0 || dep >= base+index {
			return failureResult(step, "",
				fmt.Sprintf("Planned step %q with an invalid dependency", step.Capability),
				fault.Newf(fault.KindInvalidArguments, "depends_on %d must reference an earlier step", dep))
		}
		var depResult StepResult
		if dep >= base {
			<-done[dep-base]
			depResult = roundResults[dep-base]
		} else {
			depResult = run.results[dep]
		}
		if depResult.Outcome != OutcomeSuccess {
			stepLogger.InfoContext(ctx, "step skipped, dependency failed", slog.Int("depends_on", dep))
			return failureResult(step, "",
				fmt.Sprintf("Skipped %s because a step it depends on failed", step.Capability),
				fault.Newf(fault.KindDependencyUnmet, "step %d did not succeed", dep))
		}
		if dep >= base && depResult.Data != nil {
			prior = append(prior, depResult.Data.Records...)
		}
	}

	c, err := o.registry.Resolve(step.Capability)
	if err != nil {
		stepLogger.WarnContext(ctx, "planner named unknown capability")
		return failureResult(step, "",
			fmt.Sprintf("Attempted unknown capability %q", step.Capability),
			fault.Wrapf(fault.KindUnknownCapability, err, "resolve step"))
	}

	desc := c.ActionDescription(step.Arguments)
	if run.excluded[c.Service] {
		return failureResult(step, c.Service,
			fmt.Sprintf("Skipped %s, the %s connection failed authentication earlier", step.Capability, c.Service),
			fault.Newf(fault.KindAuth, "%s excluded after authentication failure", c.Service))
	}
	if err := c.ValidateArgs(step.Arguments); err != nil {
		stepLogger.WarnContext(ctx, "step arguments rejected", logging.Err(err))
		return failureResult(step, c.Service, desc, err)
	}

	start := time.Now()
	res, err := o.invoke(capability.WithPriorRecords(ctx, prior), c, step.Arguments)
	duration := time.Since(start)

	if err != nil {
		o.observer.StepExecuted(ctx, c.Name, OutcomeFailure, duration)
		stepLogger.WarnContext(ctx, "step failed",
			logging.Status(logging.StatusError),
			slog.String("kind", string(fault.KindOf(err))),
			slog.Duration(logging.KeyDuration, duration),
			logging.Err(err),
		)
		return failureResult(step, c.Service, desc, err)
	}

	o.observer.StepExecuted(ctx, c.Name, OutcomeSuccess, duration)
	stepLogger.InfoContext(ctx, "step succeeded",
		logging.Status(logging.StatusSuccess),
		slog.Int("records", len(res.Records)),
		slog.Duration(logging.KeyDuration, duration),
	)
	return StepResult{
		Step:    step,
		Outcome: OutcomeSuccess,
		Action:  desc,
		Data:    res,
		Service: c.Service,
	}
}

// invoke dispatches to the adapter with the retry policy: rate limited
// and transient upstream failures get exactly one retry after a bounded
// backoff; everything else is permanent.
func (o *Orchestrator) invoke(ctx context.Context, c *capability.Capability, args capability.Args) (*capability.Result, error) {
	attempt := func() (*capability.Result, error) {
		stepCtx, cancel := context.WithTimeout(ctx, o.opts.StepTimeout)
		defer cancel()

		res, err := c.Invoke(stepCtx, args)
		if err != nil {
			if !fault.Retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return res, nil
	}

	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewConstantBackOff(o.opts.RetryBackoff)),
		backoff.WithMaxTries(2),
	)
}

func (o *Orchestrator) fail(ctx context.Context, run *queryRun, logger *slog.Logger, err error) *Response {
	run.state = StateFailed
	logger.ErrorContext(ctx, "query failed", logging.Err(err))

	text := "I couldn't process that request right now. Please try again in a moment."
	switch {
	case errors.Is(err, context.Canceled):
		text = "The request was cancelled before an answer was ready."
	case fault.KindOf(err) == fault.KindAuth:
		text = "I couldn't reach the language model because its credentials were rejected. Please check the API key configuration."
	case fault.KindOf(err) == fault.KindRateLimited:
		text = "The language model is rate limiting requests right now. Please try again shortly."
	}
	return &Response{Text: text, ActionsTaken: actions(run.results)}
}

func (o *Orchestrator) finish(run *queryRun, text string) *Response {
	run.state = StateDone
	return &Response{Text: text, ActionsTaken: actions(run.results)}
}

// completedRecords collects the records of all successful steps from
// fully joined earlier rounds.
func completedRecords(results []StepResult) []capability.Record {
	var records []capability.Record
	for _, r := range results {
		if r.Outcome == OutcomeSuccess && r.Data != nil {
			records = append(records, r.Data.Records...)
		}
	}
	return records
}

// actions renders the ordered actions_taken trace. Always non-nil so
// the JSON field serializes as an empty array rather than null.
func actions(results []StepResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Action)
	}
	return out
}

// summarizeTrace is the deterministic last resort when even forced
// synthesis produced nothing usable.
func summarizeTrace(results []StepResult) string {
	if len(results) == 0 {
		return fallbackAnswer
	}
	var b strings.Builder
	b.WriteString("I wasn't able to compose a full answer, but here is what I attempted:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n", r.Action)
	}
	return strings.TrimRight(b.String(), "\n")
}

func failureResult(step Step, service, action string, err error) StepResult {
	kind := fault.KindOf(err)
	if action == "" {
		action = fmt.Sprintf("Attempted %s", step.Capability)
	}
	return StepResult{
		Step:       step,
		Outcome:    OutcomeFailure,
		Action:     renderFailureAction(action, kind),
		Service:    service,
		ErrKind:    string(kind),
		ErrMessage: err.Error(),
	}
}

// renderFailureAction appends the failure reason to the trace entry
// unless the entry already explains itself (skips, unknown names).
func renderFailureAction(action string, kind fault.Kind) string {
	switch kind {
	case fault.KindDependencyUnmet, fault.KindUnknownCapability:
		return action
	case fault.KindAuth:
		if strings.HasPrefix(action, "Skipped ") {
			return action
		}
		return action + " (failed: authentication error)"
	case fault.KindTimeout:
		return action + " (failed: timed out)"
	case fault.KindInvalidArguments:
		if strings.HasPrefix(action, "Planned ") {
			return action
		}
		return action + " (failed: invalid arguments)"
	default:
		return fmt.Sprintf("%s (failed: %s)", action, kind)
	}
}
