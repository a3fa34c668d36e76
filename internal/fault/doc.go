// Package fault defines the error taxonomy shared by the service
// adapters, the planner, and the orchestrator.
//
// Adapters translate upstream failures (HTTP status codes, transport
// errors) into *fault.Error values with a Kind. The orchestrator uses
// the Kind to pick a policy: retry once (rate_limited, upstream), skip
// without retry (timeout, invalid_arguments), or exclude the adapter
// for the rest of the query (auth).
package fault
