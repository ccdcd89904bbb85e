package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
	"github.com/ericfisherdev/ghactivity/internal/domain/port/driven"
)

// defaultMaxRetries bounds how many times a pending failure is retried
// before it is marked permanent, mirroring the retry budget the original
// failure-retry service enforced.
const defaultMaxRetries = 3

// RetryOutcome is the per-PR result of one retry attempt.
type RetryOutcome struct {
	Repository string
	PRNumber   int
	Result     PRIngestionResult
	Status     model.SyncFailureStatus // What the failure record transitioned to.
}

// RetryResult aggregates a RetryFailures run.
type RetryResult struct {
	TotalPending    int
	Succeeded       int
	FailedAgain     int
	MarkedPermanent int
	SkippedDryRun   int
	Outcomes        []RetryOutcome
}

// TotalAttempted returns the number of pending failures processed, counting
// dry-run skips (excludes any left untouched by the maxItems cap).
func (r RetryResult) TotalAttempted() int {
	return r.Succeeded + r.FailedAgain + r.MarkedPermanent + r.SkippedDryRun
}

// RetryService re-attempts recorded sync failures, resolving, re-recording,
// or permanently failing each one depending on the outcome and how many
// times it has already been retried.
type RetryService struct {
	pipeline   *Pipeline
	failures   driven.SyncFailureStore
	repos      driven.RepoStore
	maxRetries int
}

// NewRetryService creates a RetryService. maxRetries <= 0 uses
// defaultMaxRetries.
func NewRetryService(pipeline *Pipeline, failures driven.SyncFailureStore, repos driven.RepoStore, maxRetries int) *RetryService {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &RetryService{pipeline: pipeline, failures: failures, repos: repos, maxRetries: maxRetries}
}

// RetryFailures retries pending sync failures across every active
// repository, up to maxItems total (0 for no cap). dryRun reports what each
// retry would do without resolving, re-recording, or permanently failing
// anything.
//
// The SyncFailureStore port scopes GetPending to a single repository, unlike
// the original service's "all repositories" default, so this loops over
// every active repository and concatenates their pending failures.
func (s *RetryService) RetryFailures(ctx context.Context, maxItems int, dryRun bool) (RetryResult, error) {
	repos, err := s.repos.ListActive(ctx)
	if err != nil {
		return RetryResult{}, fmt.Errorf("list active repositories: %w", err)
	}

	type pending struct {
		repo    model.Repository
		failure model.SyncFailure
	}
	var all []pending
	for _, repo := range repos {
		failures, err := s.failures.GetPending(ctx, repo.ID)
		if err != nil {
			return RetryResult{}, fmt.Errorf("list pending failures for %s: %w", repo.FullName, err)
		}
		for _, f := range failures {
			all = append(all, pending{repo: repo, failure: f})
		}
	}

	var result RetryResult
	result.TotalPending = len(all)

	for _, item := range all {
		if maxItems > 0 && result.TotalAttempted() >= maxItems {
			break
		}

		if dryRun {
			result.SkippedDryRun++
			continue
		}

		ingestResult := s.pipeline.IngestPR(ctx, item.repo.FullName, item.failure.PRNumber, false)
		outcome := RetryOutcome{Repository: item.repo.FullName, PRNumber: item.failure.PRNumber, Result: ingestResult}

		if ingestResult.Success() {
			if err := s.failures.MarkResolved(ctx, item.failure.ID); err != nil {
				slog.Error("failed to mark retry resolved", "repo", item.repo.FullName, "pr", item.failure.PRNumber, "error", err)
			}
			outcome.Status = model.SyncFailureStatusResolved
			result.Succeeded++
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}

		if item.failure.RetryCount >= s.maxRetries-1 {
			if err := s.failures.MarkPermanent(ctx, item.failure.ID); err != nil {
				slog.Error("failed to mark retry permanent", "repo", item.repo.FullName, "pr", item.failure.PRNumber, "error", err)
			}
			outcome.Status = model.SyncFailureStatusPermanent
			result.MarkedPermanent++
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}

		if _, err := s.failures.RecordFailure(ctx, model.SyncFailure{
			RepositoryID: item.repo.ID,
			PRNumber:     item.failure.PRNumber,
			ErrorMessage: ingestResult.Err.Error(),
			ErrorType:    string(Classify(ingestResult.Err)),
			FailedAt:     time.Now().UTC(),
		}); err != nil {
			slog.Error("failed to re-record retry failure", "repo", item.repo.FullName, "pr", item.failure.PRNumber, "error", err)
		}
		outcome.Status = model.SyncFailureStatusPending
		result.FailedAgain++
		result.Outcomes = append(result.Outcomes, outcome)
	}

	return result, nil
}
