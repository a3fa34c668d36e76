// Package agent contains the query-to-action orchestration loop: the
// planner that turns a natural-language query into a bounded sequence
// of capability invocations, and the orchestrator that executes them,
// absorbs partial failures, and assembles the final answer together
// with the ordered actions_taken trace.
//
// The orchestrator always returns a Response. Individual step failures
// degrade into the trace; only the language model becoming entirely
// unavailable or caller cancellation reaches the failed terminal state,
// and even that still produces a Response explaining what happened.
package agent
