package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so the orchestrator can decide whether to
// retry, skip, or surface it.
type Kind string

const (
	// KindAuth means credentials are invalid or expired. Never retried;
	// the affected adapter is excluded from further planning rounds.
	KindAuth Kind = "auth"

	// KindRateLimited means the upstream service rejected the call due to
	// rate limiting. Retried once after a bounded backoff.
	KindRateLimited Kind = "rate_limited"

	// KindNotFound means the requested resource does not exist upstream.
	KindNotFound Kind = "not_found"

	// KindUpstream is a transient upstream failure (5xx, connection reset).
	// Same single-retry policy as KindRateLimited.
	KindUpstream Kind = "upstream"

	// KindTimeout means the call exceeded its deadline. Not retried.
	KindTimeout Kind = "timeout"

	// KindInvalidArguments means a planned step's arguments failed schema
	// validation. The step is rejected before dispatch.
	KindInvalidArguments Kind = "invalid_arguments"

	// KindUnknownCapability means the planner named a capability that is
	// not registered.
	KindUnknownCapability Kind = "unknown_capability"

	// KindDependencyUnmet means a step was skipped because the step it
	// depends on did not succeed.
	KindDependencyUnmet Kind = "dependency_unmet"

	// KindPlannerParse means the language model produced output that could
	// not be parsed into a plan or final answer.
	KindPlannerParse Kind = "planner_parse"
)

// Error is the error type used across adapter and planner boundaries.
// Status carries the upstream HTTP status when one exists, 0 otherwise.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	wrapped error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind that wraps err. The message
// defaults to err's text.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), wrapped: err}
}

// Wrapf creates an Error of the given kind with a formatted message,
// wrapping err.
func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...) + ": " + err.Error(),
		wrapped: err,
	}
}

// WithStatus sets the upstream HTTP status and returns e for chaining.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// KindOf returns the Kind of err, or an empty Kind when err is not a
// *fault.Error. Context deadline errors are mapped to KindTimeout so
// callers do not need to special-case them.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return ""
}

// Retryable reports whether a failure of this kind should be retried
// once before being recorded as a step failure.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindUpstream:
		return true
	}
	return false
}

// FromHTTPStatus maps an upstream HTTP status code to an Error. Callers
// should only invoke it for non-2xx responses.
func FromHTTPStatus(status int, message string) *Error {
	var kind Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusNotFound:
		kind = KindNotFound
	default:
		kind = KindUpstream
	}
	return &Error{Kind: kind, Status: status, Message: message}
}
