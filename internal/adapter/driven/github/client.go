// Package github implements the GitHubClient port using the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
	"github.com/ericfisherdev/ghactivity/internal/domain/port/driven"
	"github.com/ericfisherdev/ghactivity/internal/ratelimit"
)

// Discovery retries a rate-limited list page up to maxDiscoveryRetries
// times, sleeping until the reported reset instant plus a small buffer
// before each retry, rather than aborting the whole discovery run.
const (
	maxDiscoveryRetries  = 3
	rateLimitRetryBuffer = 2 * time.Second
)

// Compile-time interface satisfaction check.
var _ driven.GitHubClient = (*Client)(nil)

// Client implements the driven.GitHubClient port using the go-github library.
//
// Every successful call reports the response's rate-limit headers to an
// *ratelimit.Monitor so the pacer and scheduler can react to how much
// headroom actually remains, rather than estimating it.
type Client struct {
	gh      *gh.Client
	monitor *ratelimit.Monitor
}

// NewClient creates a new GitHub API client with the following transport
// stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 403
//     "secondary rate limit" responses so ingestion never has to handle them)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string, monitor *ratelimit.Monitor) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{gh: client, monitor: monitor}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. This constructor is intended for testing, allowing injection of an
// httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, monitor *ratelimit.Monitor) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client, monitor: monitor}, nil
}

// DiscoverPullRequests lists pull requests for repoFullName sorted by
// creation date descending, invoking yield once per pull request in that
// order. Returning false from yield stops discovery immediately: no further
// page is requested, which lets a caller doing since-bounded discovery break
// as soon as it sees the first out-of-range PR instead of draining every
// page. This is the list endpoint, which returns partial data; callers
// needing full detail call FetchPullRequest per number.
//
// A page that comes back rate-limited (403, zero remaining) is retried up to
// maxDiscoveryRetries times rather than aborting discovery outright.
func (c *Client) DiscoverPullRequests(ctx context.Context, repoFullName string, yield func(driven.PRSummary) bool) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	opts := &gh.PullRequestListOptions{
		State:     "all",
		Sort:      "created",
		Direction: "desc",
		ListOptions: gh.ListOptions{
			PerPage: 100,
		},
	}

	for {
		prs, resp, err := c.listPullRequestsPage(ctx, owner, repo, opts)
		if err != nil {
			return wrapError(resp, fmt.Errorf("listing pull requests for %s (page %d): %w", repoFullName, opts.Page, err))
		}
		c.reportRateLimit(model.RateLimitPoolCore, resp)

		for _, pr := range prs {
			summary := driven.PRSummary{
				Number:    pr.GetNumber(),
				CreatedAt: pr.GetCreatedAt().Time,
				State:     pr.GetState(),
				Merged:    pr.GetMerged(),
			}
			if !yield(summary) {
				return nil
			}
		}

		if resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

// listPullRequestsPage lists one page of pull requests, retrying when the
// response indicates the primary rate limit was exhausted instead of
// surfacing the error immediately.
func (c *Client) listPullRequestsPage(ctx context.Context, owner, repo string, opts *gh.PullRequestListOptions) ([]*gh.PullRequest, *gh.Response, error) {
	for attempt := 0; ; attempt++ {
		prs, resp, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
		if err == nil || !isRateLimited(resp) || attempt >= maxDiscoveryRetries {
			return prs, resp, err
		}

		wait := time.Until(resp.Rate.Reset.Time) + rateLimitRetryBuffer
		if wait < rateLimitRetryBuffer {
			wait = rateLimitRetryBuffer
		}
		slog.Warn("discovery page rate limited, waiting for reset before retry",
			"owner", owner, "repo", repo, "page", opts.Page, "attempt", attempt+1, "wait", wait)

		select {
		case <-ctx.Done():
			return nil, resp, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// isRateLimited reports whether resp indicates the primary rate limit was
// exhausted (403 with zero remaining), as distinct from an ordinary 403.
func isRateLimited(resp *gh.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusForbidden && resp.Rate.Remaining == 0
}

// FetchPullRequest retrieves full detail for a single pull request: PR
// metadata and stats, changed filenames, commit authorship, and a
// participants map derived from reviews. It makes up to four API calls.
func (c *Client) FetchPullRequest(ctx context.Context, repoFullName string, number int) (model.PullRequest, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return model.PullRequest{}, err
	}

	pr, resp, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return model.PullRequest{}, wrapError(resp, fmt.Errorf("fetching PR %s#%d: %w", repoFullName, number, err))
	}
	c.reportRateLimit(model.RateLimitPoolCore, resp)

	filenames, err := c.fetchFilenames(ctx, owner, repo, number)
	if err != nil {
		return model.PullRequest{}, err
	}

	commits, err := c.fetchCommitsBreakdown(ctx, owner, repo, number)
	if err != nil {
		return model.PullRequest{}, err
	}

	participants, err := c.fetchParticipants(ctx, owner, repo, number)
	if err != nil {
		return model.PullRequest{}, err
	}

	return mapPullRequest(pr, repoFullName, filenames, commits, participants), nil
}

func (c *Client) fetchFilenames(ctx context.Context, owner, repo string, number int) ([]string, error) {
	opts := &gh.ListOptions{PerPage: 100}
	var filenames []string

	for {
		files, resp, err := c.gh.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, wrapError(resp, fmt.Errorf("listing files for %s/%s#%d (page %d): %w", owner, repo, number, opts.Page, err))
		}
		c.reportRateLimit(model.RateLimitPoolCore, resp)

		for _, f := range files {
			filenames = append(filenames, f.GetFilename())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return filenames, nil
}

func (c *Client) fetchCommitsBreakdown(ctx context.Context, owner, repo string, number int) ([]model.CommitEntry, error) {
	opts := &gh.ListOptions{PerPage: 100}
	var commits []model.CommitEntry

	for {
		page, resp, err := c.gh.PullRequests.ListCommits(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, wrapError(resp, fmt.Errorf("listing commits for %s/%s#%d (page %d): %w", owner, repo, number, opts.Page, err))
		}
		c.reportRateLimit(model.RateLimitPoolCore, resp)

		for _, commit := range page {
			author := commit.GetCommit().GetAuthor()
			commits = append(commits, model.CommitEntry{
				Date:   author.GetDate().Time,
				Author: author.GetName(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return commits, nil
}

// fetchParticipants derives a participants map from PR reviews: one entry per
// reviewer login, recording every distinct action they took (approval,
// changes-requested, dismissal, or a plain review/comment).
func (c *Client) fetchParticipants(ctx context.Context, owner, repo string, number int) (map[string][]model.ParticipantAction, error) {
	opts := &gh.ListOptions{PerPage: 100}
	seen := make(map[string]map[model.ParticipantAction]bool)

	for {
		reviews, resp, err := c.gh.PullRequests.ListReviews(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, wrapError(resp, fmt.Errorf("listing reviews for %s/%s#%d (page %d): %w", owner, repo, number, opts.Page, err))
		}
		c.reportRateLimit(model.RateLimitPoolCore, resp)

		for _, review := range reviews {
			login := review.GetUser().GetLogin()
			action, ok := mapReviewAction(review.GetState())
			if !ok {
				continue
			}
			if seen[login] == nil {
				seen[login] = make(map[model.ParticipantAction]bool)
			}
			seen[login][action] = true
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	participants := make(map[string][]model.ParticipantAction, len(seen))
	for login, actions := range seen {
		for action := range actions {
			participants[login] = append(participants[login], action)
		}
	}

	return participants, nil
}

func mapReviewAction(state string) (model.ParticipantAction, bool) {
	switch strings.ToUpper(state) {
	case "APPROVED":
		return model.ParticipantActionApproval, true
	case "CHANGES_REQUESTED":
		return model.ParticipantActionChangesRequested, true
	case "DISMISSED":
		return model.ParticipantActionDismissed, true
	case "COMMENTED", "PENDING":
		return model.ParticipantActionReview, true
	default:
		return "", false
	}
}

// mapPullRequest converts a go-github PullRequest plus its auxiliary fetches
// into a domain model PullRequest. RepositoryID is left unset; the caller
// fills it in once the owning repository row is known.
func mapPullRequest(pr *gh.PullRequest, repoFullName string, filenames []string, commits []model.CommitEntry, participants map[string][]model.ParticipantAction) model.PullRequest {
	state := model.PRStateOpen
	if pr.GetMerged() {
		state = model.PRStateMerged
	} else if pr.GetState() == "closed" {
		state = model.PRStateClosed
	}

	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}

	reviewers := make([]string, 0, len(pr.RequestedReviewers))
	for _, r := range pr.RequestedReviewers {
		reviewers = append(reviewers, r.GetLogin())
	}

	assignees := make([]string, 0, len(pr.Assignees))
	for _, a := range pr.Assignees {
		assignees = append(assignees, a.GetLogin())
	}

	var closeDate *time.Time
	var mergedBy string
	if state == model.PRStateMerged {
		if t := pr.GetMergedAt().Time; !t.IsZero() {
			closeDate = &t
		} else if t := pr.GetClosedAt().Time; !t.IsZero() {
			closeDate = &t
		}
		mergedBy = pr.GetMergedBy().GetLogin()
	} else if state == model.PRStateClosed {
		if t := pr.GetClosedAt().Time; !t.IsZero() {
			closeDate = &t
		}
	}

	return model.PullRequest{
		Number:             pr.GetNumber(),
		Link:               pr.GetHTMLURL(),
		OpenDate:           pr.GetCreatedAt().Time,
		Submitter:          pr.GetUser().GetLogin(),
		Title:              pr.GetTitle(),
		Description:        pr.GetBody(),
		LastUpdateDate:     pr.GetUpdatedAt().Time,
		State:              state,
		FilesChanged:       pr.GetChangedFiles(),
		LinesAdded:         pr.GetAdditions(),
		LinesDeleted:       pr.GetDeletions(),
		CommitsCount:       pr.GetCommits(),
		Labels:             labels,
		Filenames:          filenames,
		RequestedReviewers: reviewers,
		Assignees:          assignees,
		CommitsBreakdown:   commits,
		Participants:       participants,
		CloseDate:          closeDate,
		MergedBy:           mergedBy,
	}
}

// reportRateLimit forwards a response's rate-limit headers to the monitor so
// pacing decisions reflect the GitHub API's actual current state rather than
// an estimate.
func (c *Client) reportRateLimit(pool model.RateLimitPool, resp *gh.Response) {
	if c.monitor == nil || resp == nil {
		return
	}

	c.monitor.Update(ratelimit.PoolState{
		Pool:      pool,
		Limit:     resp.Rate.Limit,
		Remaining: resp.Rate.Remaining,
		ResetAt:   resp.Rate.Reset.Time,
	})
}

// wrapError enriches a go-github error with a driven.RateLimitError-shaped
// wrapper when the response indicates the primary rate limit was exhausted,
// so the scheduler's retry branch can detect it without parsing status codes
// itself.
func wrapError(resp *gh.Response, err error) error {
	if resp == nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", driven.ErrGitHubAuth, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", driven.ErrGitHubNotFound, err)
	case http.StatusForbidden:
		if resp.Rate.Remaining == 0 {
			return &driven.GitHubRateLimitError{ResetTime: resp.Rate.Reset.Time, Err: err}
		}
	}

	return err
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
