package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teemow/inboxpilot/internal/fault"
	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/logging"
)

const (
	defaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"

	// rateLimitCoolOff is how long the client refuses new calls after
	// the API reports rate limiting without a reset header.
	rateLimitCoolOff = 30 * time.Second
)

// Config holds the credentials for the GitHub API.
type Config struct {
	Token    string
	Username string
	// BaseURL overrides the API endpoint, used in tests.
	BaseURL string
}

// Client provides read-only access to the GitHub REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	username   string
	logger     *slog.Logger

	mu           sync.Mutex
	coolOffUntil time.Time
}

// NewClient builds a GitHub client from a personal access token.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fault.New(fault.KindAuth, "github token not configured")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      cfg.Token,
		username:   cfg.Username,
		logger:     logging.WithService(slog.Default(), "github"),
	}, nil
}

// Ping verifies the token by fetching the authenticated user.
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/user", nil, &struct{}{})
}

// ListAlerts returns the open Dependabot alerts for a repository, most
// severe first as GitHub orders them. At most MaxRecords alerts are
// returned; truncated reports whether more existed.
func (c *Client) ListAlerts(ctx context.Context, repo string) (alerts []Alert, truncated bool, err error) {
	ctx, span := instrumentation.StartUpstreamSpan(ctx, instrumentation.ServiceGitHub, instrumentation.OperationList)
	defer func() { instrumentation.EndUpstreamSpan(span, err) }()

	if err := validateRepoName(repo); err != nil {
		return nil, false, err
	}

	var raw []struct {
		Number     int    `json:"number"`
		State      string `json:"state"`
		Dependency struct {
			Package struct {
				Ecosystem string `json:"ecosystem"`
				Name      string `json:"name"`
			} `json:"package"`
		} `json:"dependency"`
		SecurityAdvisory struct {
			Summary  string `json:"summary"`
			Severity string `json:"severity"`
		} `json:"security_advisory"`
		HTMLURL   string    `json:"html_url"`
		CreatedAt time.Time `json:"created_at"`
		FixedAt   time.Time `json:"fixed_at"`
	}
	query := url.Values{
		"state":    {"open"},
		"per_page": {strconv.Itoa(MaxRecords + 1)},
	}
	if err := c.get(ctx, "/repos/"+repo+"/dependabot/alerts", query, &raw); err != nil {
		return nil, false, err
	}

	if len(raw) > MaxRecords {
		raw = raw[:MaxRecords]
		truncated = true
	}
	alerts = make([]Alert, 0, len(raw))
	for _, a := range raw {
		alerts = append(alerts, Alert{
			Number:     a.Number,
			Package:    a.Dependency.Package.Name,
			Ecosystem:  a.Dependency.Package.Ecosystem,
			Severity:   a.SecurityAdvisory.Severity,
			Summary:    a.SecurityAdvisory.Summary,
			State:      a.State,
			URL:        a.HTMLURL,
			CreatedAt:  a.CreatedAt,
			FixedAt:    a.FixedAt,
			Repository: repo,
		})
	}
	return alerts, truncated, nil
}

// ListIssues returns a repository's issues filtered by state, most
// recently updated first. Pull requests are excluded. At most
// MaxRecords issues are returned; truncated reports whether more
// existed.
func (c *Client) ListIssues(ctx context.Context, repo string, state IssueState) (issues []Issue, truncated bool, err error) {
	ctx, span := instrumentation.StartUpstreamSpan(ctx, instrumentation.ServiceGitHub, instrumentation.OperationList)
	defer func() { instrumentation.EndUpstreamSpan(span, err) }()

	if err := validateRepoName(repo); err != nil {
		return nil, false, err
	}
	if state == "" {
		state = StateOpen
	}
	switch state {
	case StateOpen, StateClosed, StateAll:
	default:
		return nil, false, fault.Newf(fault.KindInvalidArguments, "invalid issue state %q", state)
	}

	var raw []struct {
		Number   int    `json:"number"`
		Title    string `json:"title"`
		State    string `json:"state"`
		HTMLURL  string `json:"html_url"`
		Comments int    `json:"comments"`
		User     struct {
			Login string `json:"login"`
		} `json:"user"`
		PullRequest *struct{} `json:"pull_request,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}
	query := url.Values{
		"state":    {string(state)},
		"sort":     {"updated"},
		"per_page": {strconv.Itoa(MaxRecords * 2)},
	}
	if err := c.get(ctx, "/repos/"+repo+"/issues", query, &raw); err != nil {
		return nil, false, err
	}

	issues = make([]Issue, 0, len(raw))
	for _, i := range raw {
		if i.PullRequest != nil {
			continue
		}
		if len(issues) == MaxRecords {
			truncated = true
			break
		}
		issues = append(issues, Issue{
			Number:     i.Number,
			Title:      i.Title,
			State:      i.State,
			Author:     i.User.Login,
			URL:        i.HTMLURL,
			Comments:   i.Comments,
			CreatedAt:  i.CreatedAt,
			UpdatedAt:  i.UpdatedAt,
			Repository: repo,
		})
	}
	return issues, truncated, nil
}

// DefaultTreeDepth bounds how deep GetRepoStructure descends when the
// caller does not say.
const DefaultTreeDepth = 3

// GetRepoStructure returns the file tree of the repository's default
// branch down to maxDepth directory levels. At most MaxRecords entries
// are returned; truncated reports whether more existed.
func (c *Client) GetRepoStructure(ctx context.Context, repo string, maxDepth int) (entries []TreeEntry, truncated bool, err error) {
	ctx, span := instrumentation.StartUpstreamSpan(ctx, instrumentation.ServiceGitHub, instrumentation.OperationList)
	defer func() { instrumentation.EndUpstreamSpan(span, err) }()

	if err := validateRepoName(repo); err != nil {
		return nil, false, err
	}
	if maxDepth <= 0 {
		maxDepth = DefaultTreeDepth
	}

	var meta struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := c.get(ctx, "/repos/"+repo, nil, &meta); err != nil {
		return nil, false, err
	}
	if meta.DefaultBranch == "" {
		meta.DefaultBranch = "main"
	}

	var raw struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
			Size int64  `json:"size"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	query := url.Values{"recursive": {"1"}}
	if err := c.get(ctx, "/repos/"+repo+"/git/trees/"+meta.DefaultBranch, query, &raw); err != nil {
		return nil, false, err
	}

	truncated = raw.Truncated
	entries = make([]TreeEntry, 0, MaxRecords)
	for _, e := range raw.Tree {
		if strings.Count(e.Path, "/") >= maxDepth {
			continue
		}
		if len(entries) == MaxRecords {
			truncated = true
			break
		}
		kind := "file"
		if e.Type == "tree" {
			kind = "dir"
		}
		entries = append(entries, TreeEntry{
			Path:       e.Path,
			Type:       kind,
			Size:       e.Size,
			Repository: repo,
		})
	}
	return entries, truncated, nil
}

// ListContents lists the files and directories at a path inside a
// repository. An empty path lists the repository root. A path naming a
// single file yields one entry. At most MaxRecords entries are
// returned; truncated reports whether more existed.
func (c *Client) ListContents(ctx context.Context, repo, path string) (entries []ContentEntry, truncated bool, err error) {
	ctx, span := instrumentation.StartUpstreamSpan(ctx, instrumentation.ServiceGitHub, instrumentation.OperationList)
	defer func() { instrumentation.EndUpstreamSpan(span, err) }()

	if err := validateRepoName(repo); err != nil {
		return nil, false, err
	}

	// The contents endpoint answers with an array for a directory and
	// a bare object for a file.
	var raw json.RawMessage
	if err := c.get(ctx, "/repos/"+repo+"/contents/"+strings.TrimPrefix(path, "/"), nil, &raw); err != nil {
		return nil, false, err
	}

	type contentItem struct {
		Name    string `json:"name"`
		Path    string `json:"path"`
		Type    string `json:"type"`
		Size    int64  `json:"size"`
		HTMLURL string `json:"html_url"`
	}
	var items []contentItem
	if len(raw) > 0 && raw[0] == '{' {
		var single contentItem
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, false, fault.Wrapf(fault.KindUpstream, err, "github: decode contents of %s", repo)
		}
		items = []contentItem{single}
	} else if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, fault.Wrapf(fault.KindUpstream, err, "github: decode contents of %s", repo)
	}

	if len(items) > MaxRecords {
		items = items[:MaxRecords]
		truncated = true
	}
	entries = make([]ContentEntry, 0, len(items))
	for _, i := range items {
		entries = append(entries, ContentEntry{
			Name:       i.Name,
			Path:       i.Path,
			Type:       i.Type,
			Size:       i.Size,
			URL:        i.HTMLURL,
			Repository: repo,
		})
	}
	return entries, truncated, nil
}

// SearchRepos searches public repositories, best match first. At most
// maxResults repositories are returned, bounded by MaxRecords;
// truncated reports whether more matches existed.
func (c *Client) SearchRepos(ctx context.Context, searchQuery string, maxResults int) (repos []Repo, truncated bool, err error) {
	ctx, span := instrumentation.StartUpstreamSpan(ctx, instrumentation.ServiceGitHub, instrumentation.OperationSearch)
	defer func() { instrumentation.EndUpstreamSpan(span, err) }()

	if searchQuery == "" {
		return nil, false, fault.New(fault.KindInvalidArguments, "search query must not be empty")
	}
	if maxResults <= 0 || maxResults > MaxRecords {
		maxResults = MaxRecords
	}

	var raw struct {
		TotalCount int `json:"total_count"`
		Items      []struct {
			FullName    string    `json:"full_name"`
			Description string    `json:"description"`
			Stars       int       `json:"stargazers_count"`
			Language    string    `json:"language"`
			HTMLURL     string    `json:"html_url"`
			UpdatedAt   time.Time `json:"updated_at"`
		} `json:"items"`
	}
	query := url.Values{
		"q":        {searchQuery},
		"per_page": {strconv.Itoa(maxResults)},
	}
	if err := c.get(ctx, "/search/repositories", query, &raw); err != nil {
		return nil, false, err
	}

	repos = make([]Repo, 0, len(raw.Items))
	for _, r := range raw.Items {
		repos = append(repos, Repo{
			FullName:    r.FullName,
			Description: r.Description,
			Stars:       r.Stars,
			Language:    r.Language,
			URL:         r.HTMLURL,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	return repos, raw.TotalCount > len(repos), nil
}

// get performs an authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.checkCoolOff(); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fault.Wrapf(fault.KindUpstream, err, "github: build request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fault.Wrapf(fault.KindTimeout, err, "github: %s", path)
		}
		return fault.Wrapf(fault.KindUpstream, err, "github: %s", path)
	}
	defer res.Body.Close()

	c.logger.DebugContext(ctx, "github api call",
		slog.String("path", path),
		slog.Int(logging.KeyStatus, res.StatusCode),
		slog.Duration(logging.KeyDuration, time.Since(start)),
	)

	if res.StatusCode != http.StatusOK {
		return c.statusError(res, path)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fault.Wrapf(fault.KindUpstream, err, "github: decode %s", path)
	}
	return nil
}

// statusError maps a non-200 response to a fault, engaging the cool-off
// window when the primary or secondary rate limit is hit.
func (c *Client) statusError(res *http.Response, path string) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	msg := fmt.Sprintf("github: %s: %s", path, string(body))

	rateLimited := res.StatusCode == http.StatusTooManyRequests ||
		(res.StatusCode == http.StatusForbidden && res.Header.Get("X-RateLimit-Remaining") == "0")
	if rateLimited {
		c.mu.Lock()
		c.coolOffUntil = time.Now().Add(resetDelay(res.Header))
		c.mu.Unlock()
		return fault.New(fault.KindRateLimited, msg).WithStatus(res.StatusCode)
	}
	return fault.FromHTTPStatus(res.StatusCode, msg)
}

func (c *Client) checkCoolOff() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Now().Before(c.coolOffUntil) {
		return fault.New(fault.KindRateLimited, "github rate limit hit, backing off")
	}
	return nil
}

// resetDelay derives the cool-off duration from the rate limit reset
// header, falling back to a fixed window.
func resetDelay(h http.Header) time.Duration {
	if reset := h.Get("X-RateLimit-Reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 && d < 5*time.Minute {
				return d
			}
		}
	}
	return rateLimitCoolOff
}

func validateRepoName(repo string) error {
	if repo == "" {
		return fault.New(fault.KindInvalidArguments, "repo_name must not be empty")
	}
	parts := 0
	for _, r := range repo {
		if r == '/' {
			parts++
		}
	}
	if parts != 1 {
		return fault.Newf(fault.KindInvalidArguments, "repo_name %q must be in owner/repo form", repo)
	}
	return nil
}
