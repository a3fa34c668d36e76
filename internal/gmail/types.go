package gmail

import "time"

// MaxRecords bounds how many messages a single search returns. Larger
// result sets are cut off and flagged as truncated so callers know the
// view is partial.
const MaxRecords = 20

// Message is the normalized view of a Gmail message used throughout the
// service. It carries only the fields needed to summarize a mailbox
// search, never the full payload.
type Message struct {
	ID        string    `json:"email_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Sender    string    `json:"sender"`
	Subject   string    `json:"subject"`
	Snippet   string    `json:"snippet"`
	Timestamp time.Time `json:"timestamp"`
}

// FullMessage is the detailed view returned when a single message is
// fetched by ID. Body holds the decoded text/plain part when one exists,
// otherwise the snippet.
type FullMessage struct {
	Message
	To     string   `json:"to,omitempty"`
	Cc     string   `json:"cc,omitempty"`
	Labels []string `json:"labels,omitempty"`
	Body   string   `json:"body"`
}
