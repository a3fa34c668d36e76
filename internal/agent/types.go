package agent

import (
	"time"

	"github.com/teemow/inboxpilot/internal/capability"
)

// Query is one incoming natural-language request. It lives for the
// duration of a single HandleQuery call and is never persisted.
type Query struct {
	ID         string
	Text       string
	ReceivedAt time.Time
}

// Step is a single planned capability invocation.
type Step struct {
	Capability string          `json:"capability"`
	Arguments  capability.Args `json:"arguments"`
	// DependsOn references an earlier step by its position in the
	// accumulated trace. A dependent step is not dispatched until that
	// step's result exists, and is skipped when it failed.
	DependsOn *int `json:"depends_on,omitempty"`
}

// Outcome classifies how a step ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// StepResult records one executed (or skipped) step. The ordered
// sequence of StepResults for a query is the actions_taken trace.
type StepResult struct {
	Step    Step
	Outcome Outcome
	// Action is the human-readable trace entry, e.g.
	// `Searched Gmail for "dependency alert"`.
	Action string
	// Data holds the normalized records on success.
	Data *capability.Result
	// Service names the backing adapter, used to exclude it from later
	// rounds after an authentication failure.
	Service string
	// ErrKind and ErrMessage describe the failure, empty on success.
	ErrKind    string
	ErrMessage string
}

// PlanContext is the planner's input for one round.
type PlanContext struct {
	Query   Query
	Results []StepResult
	// Round is the 1-based planning round number.
	Round int
	// ForceFinal tells the planner the round budget is exhausted and it
	// must synthesize an answer from the results it has.
	ForceFinal bool
	// ExcludedServices lists adapters that failed authentication in an
	// earlier round; their capabilities are withheld from the prompt.
	ExcludedServices map[string]bool
}

// PlannerOutput is the planner's decision for one round: either more
// steps to execute, or the final answer text. Exactly one is set.
type PlannerOutput struct {
	Steps       []Step
	FinalAnswer string
	// Fallback marks a final answer produced by the degraded path after
	// repeated malformed model output.
	Fallback bool
}

// Response is the terminal artifact returned for every query. The
// orchestrator always produces one; failures are explained in Text
// rather than raised to the caller.
type Response struct {
	Text         string   `json:"response"`
	ActionsTaken []string `json:"actions_taken"`
}
