// Package capability defines the tool surface the planner can choose
// from: named, schema-described read operations bound to service
// adapter calls.
//
// The registry is process-wide state initialized once at startup and
// treated as immutable thereafter. Capabilities are advertised to the
// planner in registration order so prompts are reproducible, and every
// planned step's arguments are validated against the capability's
// parameter schema before the adapter is invoked.
package capability
