// Package gmail provides read-only access to a Gmail mailbox.
//
// The client authenticates with an OAuth2 refresh token and exposes
// bounded search and single-message retrieval. Results are normalized
// into compact Message records so upstream consumers never handle raw
// API payloads. The package also recognizes GitHub notification mail
// and extracts the repositories it refers to.
package gmail
