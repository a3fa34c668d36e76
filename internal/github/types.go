package github

import "time"

// MaxRecords bounds how many records a single listing or search call
// returns. Larger result sets are cut off and flagged as truncated.
const MaxRecords = 20

// IssueState filters issue listings. The zero value lists open issues.
type IssueState string

const (
	StateOpen   IssueState = "open"
	StateClosed IssueState = "closed"
	StateAll    IssueState = "all"
)

// Alert is the normalized view of a Dependabot security alert.
type Alert struct {
	Number     int       `json:"number"`
	Package    string    `json:"package"`
	Ecosystem  string    `json:"ecosystem,omitempty"`
	Severity   string    `json:"severity"`
	Summary    string    `json:"summary"`
	State      string    `json:"state"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"created_at"`
	FixedAt    time.Time `json:"fixed_at,omitempty"`
	Repository string    `json:"repository"`
}

// Issue is the normalized view of a repository issue.
type Issue struct {
	Number     int       `json:"number"`
	Title      string    `json:"title"`
	State      string    `json:"state"`
	Author     string    `json:"author"`
	URL        string    `json:"url"`
	Comments   int       `json:"comments"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Repository string    `json:"repository"`
}

// TreeEntry is one file or directory in a repository tree listing.
type TreeEntry struct {
	Path       string `json:"path"`
	Type       string `json:"type"`
	Size       int64  `json:"size,omitempty"`
	Repository string `json:"repository"`
}

// ContentEntry is one item of a repository directory listing.
type ContentEntry struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Type       string `json:"type"`
	Size       int64  `json:"size,omitempty"`
	URL        string `json:"url"`
	Repository string `json:"repository"`
}

// Repo is the normalized view of a repository search hit.
type Repo struct {
	FullName    string    `json:"full_name"`
	Description string    `json:"description,omitempty"`
	Stars       int       `json:"stars"`
	Language    string    `json:"language,omitempty"`
	URL         string    `json:"url"`
	UpdatedAt   time.Time `json:"updated_at"`
}
