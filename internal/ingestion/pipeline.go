package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
	"github.com/ericfisherdev/ghactivity/internal/domain/port/driven"
	"github.com/ericfisherdev/ghactivity/internal/pacing"
)

// Pipeline ingests individual pull requests: fetching current state from
// GitHub and applying it against the stored PR state machine (insert,
// update, or one of the documented skips).
//
// IngestPR schedules its own GitHub fetch through the scheduler, bounding
// its concurrency and participating in priority ordering like any other
// request. The bulk path (IngestRepository) instead runs each PR's fetch
// directly, since the BatchExecutor driving it already holds a scheduler
// slot for the item — nesting a second Submit call inside one already
// running under Submit would deadlock the semaphore once MaxConcurrent is
// exhausted.
type Pipeline struct {
	client    driven.GitHubClient
	repos     driven.RepoStore
	prs       driven.PRStore
	scheduler *pacing.Scheduler

	gracePeriod time.Duration
}

// NewPipeline creates a Pipeline. gracePeriod is the merge grace period
// after which a merged PR is treated as frozen and no longer synced.
func NewPipeline(client driven.GitHubClient, repos driven.RepoStore, prs driven.PRStore, scheduler *pacing.Scheduler, gracePeriod time.Duration) *Pipeline {
	return &Pipeline{
		client:      client,
		repos:       repos,
		prs:         prs,
		scheduler:   scheduler,
		gracePeriod: gracePeriod,
	}
}

// IngestPR fetches and syncs a single pull request, scheduling the GitHub
// fetch through the pipeline's scheduler. Use this for standalone or retry
// ingestion of one PR; bulk ingestion uses the internal unscheduled variant
// instead, since the BatchExecutor already schedules the call.
func (p *Pipeline) IngestPR(ctx context.Context, repoFullName string, number int, dryRun bool) PRIngestionResult {
	return p.ingestPR(ctx, repoFullName, number, dryRun, true)
}

func (p *Pipeline) ingestPR(ctx context.Context, repoFullName string, number int, dryRun bool, schedule bool) PRIngestionResult {
	repo, err := p.repos.GetByFullName(ctx, repoFullName)
	if err != nil {
		return resultError(repoFullName, number, fmt.Errorf("look up repository %s: %w", repoFullName, err))
	}
	if repo == nil {
		return resultError(repoFullName, number, fmt.Errorf("repository %s is not tracked", repoFullName))
	}

	existing, err := p.prs.GetByNumber(ctx, repo.ID, number)
	if err != nil {
		return resultError(repoFullName, number, fmt.Errorf("look up PR %s#%d: %w", repoFullName, number, err))
	}

	if existing != nil && existing.IsFrozen(time.Now().UTC(), p.gracePeriod) {
		return resultSkippedFrozen(repoFullName, *existing)
	}

	fetched, err := p.fetch(ctx, repoFullName, number, schedule)
	if err != nil {
		return resultError(repoFullName, number, err)
	}
	fetched.RepositoryID = repo.ID

	if fetched.IsAbandoned() {
		return resultSkippedAbandoned(repoFullName, number)
	}
	if existing != nil && existing.IsUnchanged(fetched) {
		return resultSkippedUnchanged(repoFullName, *existing)
	}
	if fetched.State == model.PRStateMerged && fetched.CloseDate == nil {
		return resultError(repoFullName, number, &ValidationError{
			Repo: repoFullName, Number: number, Reason: "merged PR reported without a close date",
		})
	}

	if dryRun {
		if existing == nil {
			return resultCreated(repoFullName, fetched)
		}
		return resultUpdated(repoFullName, fetched)
	}

	stored, created, err := p.prs.CreateOrUpdate(ctx, fetched)
	if err != nil {
		return resultError(repoFullName, number, fmt.Errorf("store PR %s#%d: %w", repoFullName, number, err))
	}

	newlyMerged := existing != nil && existing.State != model.PRStateMerged && fetched.State == model.PRStateMerged
	if newlyMerged {
		if err := p.prs.ApplyMerge(ctx, repo.ID, number, *fetched.CloseDate, fetched.MergedBy); err != nil {
			return resultError(repoFullName, number, fmt.Errorf("apply merge to PR %s#%d: %w", repoFullName, number, err))
		}
		stored.State = model.PRStateMerged
		stored.CloseDate = fetched.CloseDate
		stored.MergedBy = fetched.MergedBy
	}

	if created {
		return resultCreated(repoFullName, stored)
	}
	return resultUpdated(repoFullName, stored)
}

func (p *Pipeline) fetch(ctx context.Context, repoFullName string, number int, schedule bool) (model.PullRequest, error) {
	if !schedule {
		pr, err := p.client.FetchPullRequest(ctx, repoFullName, number)
		if err != nil {
			return model.PullRequest{}, fmt.Errorf("fetch PR %s#%d: %w", repoFullName, number, err)
		}
		return pr, nil
	}

	v, err := p.scheduler.Submit(ctx, model.RateLimitPoolCore, model.PriorityNormal, func(taskCtx context.Context) (any, error) {
		return p.client.FetchPullRequest(taskCtx, repoFullName, number)
	})
	if err != nil {
		return model.PullRequest{}, fmt.Errorf("fetch PR %s#%d: %w", repoFullName, number, err)
	}

	pr, ok := v.(model.PullRequest)
	if !ok {
		slog.Error("scheduler returned unexpected type for PR fetch", "repo", repoFullName, "number", number)
		return model.PullRequest{}, fmt.Errorf("fetch PR %s#%d: unexpected result type", repoFullName, number)
	}
	return pr, nil
}
