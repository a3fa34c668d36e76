// Package llm wraps the language model backend behind a minimal text
// completion interface. Backend failures are classified into the same
// fault kinds the upstream adapters use, so the planner treats a rate
// limited model and a rate limited API the same way.
package llm
