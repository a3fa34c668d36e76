package gmail

import (
	"regexp"
	"strings"
)

var (
	// GitHub notification subjects carry the repository in brackets, as
	// in "[owner/repo] Fix flaky test (#123)".
	subjectRepoRe = regexp.MustCompile(`\[([\w.-]+)/([\w.-]+)\]`)

	// Links in message bodies and snippets point at the repository
	// directly.
	urlRepoRe = regexp.MustCompile(`github\.com[/:]([\w.-]+)/([\w.-]+)`)
)

// reserved top-level GitHub paths that the URL pattern would otherwise
// mistake for repository owners.
var reservedOwners = map[string]bool{
	"notifications": true,
	"settings":      true,
	"orgs":          true,
	"features":      true,
	"marketplace":   true,
}

// IsGitHubNotification reports whether a message came from GitHub's
// notification pipeline.
func IsGitHubNotification(m Message) bool {
	return strings.Contains(strings.ToLower(m.Sender), "notifications@github.com")
}

// ExtractRepoNames scans messages for "owner/repo" references and
// returns them deduplicated, in the order first seen. GitHub
// notification subjects are the most reliable signal; snippet URLs are
// the fallback for other senders.
func ExtractRepoNames(msgs []Message) []string {
	seen := make(map[string]bool)
	var repos []string
	add := func(owner, repo string) {
		if reservedOwners[owner] {
			return
		}
		repo = strings.TrimSuffix(repo, ".git")
		full := owner + "/" + repo
		if !seen[full] {
			seen[full] = true
			repos = append(repos, full)
		}
	}

	for _, m := range msgs {
		for _, match := range subjectRepoRe.FindAllStringSubmatch(m.Subject, -1) {
			add(match[1], match[2])
		}
		for _, text := range []string{m.Subject, m.Snippet} {
			for _, match := range urlRepoRe.FindAllStringSubmatch(text, -1) {
				add(match[1], match[2])
			}
		}
	}
	return repos
}
