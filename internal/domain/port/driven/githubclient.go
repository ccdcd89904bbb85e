package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
)

// PRSummary is the partial pull request data available from GitHub's list
// endpoint: enough to filter discovery candidates by date and state before
// paying for a full per-PR fetch.
type PRSummary struct {
	Number    int
	CreatedAt time.Time
	State     string // "open" or "closed", as reported by the list endpoint.
	Merged    bool
}

// GitHubClient defines the driven port for fetching pull request data from
// the GitHub API.
type GitHubClient interface {
	// DiscoverPullRequests lists pull requests for repoFullName sorted by
	// creation date descending, invoking yield once per pull request in
	// that order. Returning false from yield stops discovery immediately —
	// no further page is requested. Used for discovery only; it does not
	// fetch per-PR detail.
	DiscoverPullRequests(ctx context.Context, repoFullName string, yield func(PRSummary) bool) error

	// FetchPullRequest retrieves full detail for a single pull request:
	// metadata, diff stats, changed files, commit history, and reviews. The
	// returned PullRequest has RepositoryID unset; the caller fills it in.
	FetchPullRequest(ctx context.Context, repoFullName string, number int) (model.PullRequest, error)
}
