package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/teemow/inboxpilot/internal/capability"
	"github.com/teemow/inboxpilot/internal/fault"
	"github.com/teemow/inboxpilot/internal/github"
	"github.com/teemow/inboxpilot/internal/gmail"
)

// Service names recorded on capabilities, matched against the adapter
// exclusion list after authentication failures.
const (
	ServiceGmail  = "gmail"
	ServiceGitHub = "github"
)

// maxFallbackRepos bounds how many repositories derived from prior mail
// results a single step will query.
const maxFallbackRepos = 5

// Mailbox is the mailbox adapter surface the catalog binds to.
type Mailbox interface {
	SearchMessages(ctx context.Context, query string, maxResults int) ([]gmail.Message, bool, error)
	GetMessage(ctx context.Context, id string) (*gmail.FullMessage, error)
}

// RepoHost is the repository-hosting adapter surface the catalog binds to.
type RepoHost interface {
	ListAlerts(ctx context.Context, repo string) ([]github.Alert, bool, error)
	ListIssues(ctx context.Context, repo string, state github.IssueState) ([]github.Issue, bool, error)
	GetRepoStructure(ctx context.Context, repo string, maxDepth int) ([]github.TreeEntry, bool, error)
	ListContents(ctx context.Context, repo, path string) ([]github.ContentEntry, bool, error)
	SearchRepos(ctx context.Context, query string, maxResults int) ([]github.Repo, bool, error)
}

// Register binds the capability set to the given adapters and registers
// it in planner-visible order. A nil adapter leaves its capabilities
// unregistered so a partially configured service still starts.
func Register(reg *capability.Registry, mailbox Mailbox, repoHost RepoHost) error {
	if mailbox != nil {
		if err := registerMailbox(reg, mailbox); err != nil {
			return err
		}
	}
	if repoHost != nil {
		if err := registerRepoHost(reg, repoHost); err != nil {
			return err
		}
	}
	return nil
}

func registerMailbox(reg *capability.Registry, mailbox Mailbox) error {
	searchGmail := &capability.Capability{
		Name:        "search_gmail",
		Description: "Search mailbox messages with a Gmail query string. Returns sender, subject, snippet, and timestamp per message.",
		Service:     ServiceGmail,
		Params: []capability.Param{
			{Name: "query", Type: capability.TypeString, Description: "Gmail search query (e.g., 'from:notifications@github.com', 'is:unread')", Required: true},
			{Name: "max_results", Type: capability.TypeInteger, Description: fmt.Sprintf("Maximum number of messages to return (default and cap: %d)", gmail.MaxRecords)},
		},
		Invoke: func(ctx context.Context, args capability.Args) (*capability.Result, error) {
			msgs, truncated, err := mailbox.SearchMessages(ctx, args.String("query"), args.Int("max_results", gmail.MaxRecords))
			if err != nil {
				return nil, err
			}
			return newResult(msgs, truncated)
		},
		Describe: func(args capability.Args) string {
			return fmt.Sprintf("Searched Gmail for %q", args.String("query"))
		},
	}

	getEmail := &capability.Capability{
		Name:        "get_email",
		Description: "Fetch a single mailbox message by its email_id, including recipients, labels, and the decoded text body.",
		Service:     ServiceGmail,
		Params: []capability.Param{
			{Name: "email_id", Type: capability.TypeString, Description: "The email_id of a message returned by search_gmail", Required: true},
		},
		Invoke: func(ctx context.Context, args capability.Args) (*capability.Result, error) {
			msg, err := mailbox.GetMessage(ctx, args.String("email_id"))
			if err != nil {
				return nil, err
			}
			return newResult([]*gmail.FullMessage{msg}, false)
		},
		Describe: func(args capability.Args) string {
			return fmt.Sprintf("Fetched email %s", args.String("email_id"))
		},
	}

	for _, c := range []*capability.Capability{searchGmail, getEmail} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func registerRepoHost(reg *capability.Registry, repoHost RepoHost) error {
	getRepoAlerts := &capability.Capability{
		Name:        "get_repo_alerts",
		Description: "List open Dependabot security alerts for a repository. When repo_name is omitted, repositories are derived from mail results fetched earlier in this query.",
		Service:     ServiceGitHub,
		Params: []capability.Param{
			{Name: "repo_name", Type: capability.TypeString, Description: "Repository in owner/repo form. Optional when earlier steps fetched GitHub notification mail."},
		},
		Invoke: func(ctx context.Context, args capability.Args) (*capability.Result, error) {
			return collectRepos(ctx, args, func(ctx context.Context, repo string) ([]github.Alert, bool, error) {
				return repoHost.ListAlerts(ctx, repo)
			})
		},
		Describe: func(args capability.Args) string {
			if repo := args.String("repo_name"); repo != "" {
				return fmt.Sprintf("Fetched Dependabot alerts for %s", repo)
			}
			return "Fetched Dependabot alerts for repositories found in email"
		},
	}

	getRepoIssues := &capability.Capability{
		Name:        "get_repo_issues",
		Description: "List issues for a repository, most recently updated first. When repo_name is omitted, repositories are derived from mail results fetched earlier in this query.",
		Service:     ServiceGitHub,
		Params: []capability.Param{
			{Name: "repo_name", Type: capability.TypeString, Description: "Repository in owner/repo form. Optional when earlier steps fetched GitHub notification mail."},
			{Name: "state", Type: capability.TypeString, Description: "Issue state filter (default: open)", Enum: []string{"open", "closed", "all"}},
		},
		Invoke: func(ctx context.Context, args capability.Args) (*capability.Result, error) {
			state := github.IssueState(args.String("state"))
			if state == "" {
				state = github.StateOpen
			}
			return collectRepos(ctx, args, func(ctx context.Context, repo string) ([]github.Issue, bool, error) {
				return repoHost.ListIssues(ctx, repo, state)
			})
		},
		Describe: func(args capability.Args) string {
			state := args.String("state")
			if state == "" {
				state = string(github.StateOpen)
			}
			if repo := args.String("repo_name"); repo != "" {
				return fmt.Sprintf("Fetched %s issues for %s", state, repo)
			}
			return fmt.Sprintf("Fetched %s issues for repositories found in email", state)
		},
	}

	getRepoStructure := &capability.Capability{
		Name:        "get_repo_structure",
		Description: "Fetch the file tree of a repository's default branch down to a bounded depth. When repo_name is omitted, repositories are derived from mail results fetched earlier in this query.",
		Service:     ServiceGitHub,
		Params: []capability.Param{
			{Name: "repo_name", Type: capability.TypeString, Description: "Repository in owner/repo form. Optional when earlier steps fetched GitHub notification mail."},
			{Name: "max_depth", Type: capability.TypeInteger, Description: fmt.Sprintf("Maximum directory depth to include (default: %d)", github.DefaultTreeDepth)},
		},
		Invoke: func(ctx context.Context, args capability.Args) (*capability.Result, error) {
			depth := args.Int("max_depth", github.DefaultTreeDepth)
			return collectRepos(ctx, args, func(ctx context.Context, repo string) ([]github.TreeEntry, bool, error) {
				return repoHost.GetRepoStructure(ctx, repo, depth)
			})
		},
		Describe: func(args capability.Args) string {
			if repo := args.String("repo_name"); repo != "" {
				return fmt.Sprintf("Fetched the file structure of %s", repo)
			}
			return "Fetched the file structure of repositories found in email"
		},
	}

	getRepoContents := &capability.Capability{
		Name:        "get_repo_contents",
		Description: "List the files and directories at a path inside a repository. An empty path lists the repository root. When repo_name is omitted, repositories are derived from mail results fetched earlier in this query.",
		Service:     ServiceGitHub,
		Params: []capability.Param{
			{Name: "repo_name", Type: capability.TypeString, Description: "Repository in owner/repo form. Optional when earlier steps fetched GitHub notification mail."},
			{Name: "path", Type: capability.TypeString, Description: "Path inside the repository (default: the repository root)"},
		},
		Invoke: func(ctx context.Context, args capability.Args) (*capability.Result, error) {
			path := args.String("path")
			return collectRepos(ctx, args, func(ctx context.Context, repo string) ([]github.ContentEntry, bool, error) {
				return repoHost.ListContents(ctx, repo, path)
			})
		},
		Describe: func(args capability.Args) string {
			repo := args.String("repo_name")
			path := args.String("path")
			switch {
			case repo != "" && path != "":
				return fmt.Sprintf("Listed the contents of %s at %q", repo, path)
			case repo != "":
				return fmt.Sprintf("Listed the root contents of %s", repo)
			default:
				return "Listed contents of repositories found in email"
			}
		},
	}

	searchRepos := &capability.Capability{
		Name:        "search_github_repos",
		Description: "Search public GitHub repositories by keyword, best match first.",
		Service:     ServiceGitHub,
		Params: []capability.Param{
			{Name: "query", Type: capability.TypeString, Description: "Search keywords", Required: true},
			{Name: "max_results", Type: capability.TypeInteger, Description: fmt.Sprintf("Maximum number of repositories to return (default and cap: %d)", github.MaxRecords)},
		},
		Invoke: func(ctx context.Context, args capability.Args) (*capability.Result, error) {
			repos, truncated, err := repoHost.SearchRepos(ctx, args.String("query"), args.Int("max_results", github.MaxRecords))
			if err != nil {
				return nil, err
			}
			return newResult(repos, truncated)
		},
		Describe: func(args capability.Args) string {
			return fmt.Sprintf("Searched GitHub repositories for %q", args.String("query"))
		},
	}

	for _, c := range []*capability.Capability{getRepoAlerts, getRepoIssues, getRepoStructure, getRepoContents, searchRepos} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// collectRepos resolves the target repositories for a per-repo listing
// and aggregates the records. An explicit repo_name is authoritative and
// its failures propagate; fallback repositories derived from prior mail
// results are best effort, so inaccessible ones are skipped.
func collectRepos[T any](ctx context.Context, args capability.Args, list func(ctx context.Context, repo string) ([]T, bool, error)) (*capability.Result, error) {
	explicit := args.String("repo_name")

	repos := []string{explicit}
	if explicit == "" {
		repos = reposFromRecords(capability.PriorRecords(ctx))
		if len(repos) == 0 {
			return nil, fault.New(fault.KindInvalidArguments, "no repo_name given and no repositories found in earlier mail results")
		}
		if len(repos) > maxFallbackRepos {
			repos = repos[:maxFallbackRepos]
		}
	}

	result := &capability.Result{Records: []capability.Record{}}
	for _, repo := range repos {
		items, truncated, err := list(ctx, repo)
		if err != nil {
			if explicit == "" && fault.KindOf(err) == fault.KindNotFound {
				continue
			}
			return nil, err
		}
		for _, item := range items {
			if len(result.Records) >= github.MaxRecords {
				result.Truncated = true
				return result, nil
			}
			rec, err := toRecord(item)
			if err != nil {
				return nil, err
			}
			result.Records = append(result.Records, rec)
		}
		result.Truncated = result.Truncated || truncated
	}
	return result, nil
}

// reposFromRecords recovers owner/repo names from normalized mail
// records produced by earlier search_gmail or get_email steps.
func reposFromRecords(records []capability.Record) []string {
	msgs := make([]gmail.Message, 0, len(records))
	for _, rec := range records {
		subject, _ := rec["subject"].(string)
		snippet, _ := rec["snippet"].(string)
		sender, _ := rec["sender"].(string)
		if subject == "" && snippet == "" {
			continue
		}
		msgs = append(msgs, gmail.Message{Sender: sender, Subject: subject, Snippet: snippet})
	}
	return gmail.ExtractRepoNames(msgs)
}

// newResult normalizes a slice of adapter records into a Result.
func newResult[T any](items []T, truncated bool) (*capability.Result, error) {
	result := &capability.Result{
		Records:   make([]capability.Record, 0, len(items)),
		Truncated: truncated,
	}
	for _, item := range items {
		rec, err := toRecord(item)
		if err != nil {
			return nil, err
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

func toRecord(v interface{}) (capability.Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	var rec capability.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}
