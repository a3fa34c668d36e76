// Package github provides read-only access to the GitHub REST API.
//
// The client covers Dependabot security alerts, issue listings, and
// repository search. Responses are normalized into compact record types
// and bounded to MaxRecords per call. Rate limit responses arm a shared
// cool-off window so concurrent callers back off together.
package github
