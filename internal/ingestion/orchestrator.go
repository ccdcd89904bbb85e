package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/ghactivity/internal/commit"
	"github.com/ericfisherdev/ghactivity/internal/domain/model"
	"github.com/ericfisherdev/ghactivity/internal/domain/port/driven"
	"github.com/ericfisherdev/ghactivity/internal/pacing"
)

// RepoSyncResult is the outcome of a bulk ingestion run against one
// repository, with the wall-clock window it ran in.
type RepoSyncResult struct {
	Repository  string
	Result      BulkResult
	Err         error
	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns how long the repository's sync run took.
func (r RepoSyncResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// MultiRepoSyncResult aggregates bulk ingestion across every tracked
// repository in one orchestrator run.
type MultiRepoSyncResult struct {
	RepoResults []RepoSyncResult

	TotalDiscovered int
	TotalCreated    int
	TotalUpdated    int
	TotalSkipped    int
	TotalFailed     int
}

// ReposSucceeded returns the repositories that completed without error.
func (r MultiRepoSyncResult) ReposSucceeded() []string {
	var out []string
	for _, rr := range r.RepoResults {
		if rr.Err == nil {
			out = append(out, rr.Repository)
		}
	}
	return out
}

// ReposWithFailures returns the repositories that errored out entirely,
// independent of any per-PR failures recorded within a repository's
// BulkResult.
func (r MultiRepoSyncResult) ReposWithFailures() []string {
	var out []string
	for _, rr := range r.RepoResults {
		if rr.Err != nil {
			out = append(out, rr.Repository)
		}
	}
	return out
}

// Orchestrator drives ingestion across every tracked repository: ensuring
// each is registered, running a bulk sync per repository, and committing
// ingestion writes at batch boundaries when a commit.Manager is supplied.
type Orchestrator struct {
	pipeline *Pipeline
	repos    driven.RepoStore
	executor *pacing.BatchExecutor
	commits  *commit.Manager // Optional; nil disables batched commit boundaries.
}

// NewOrchestrator creates an Orchestrator. commits may be nil, in which case
// the caller's store implementations are assumed to auto-commit each write.
func NewOrchestrator(pipeline *Pipeline, repos driven.RepoStore, executor *pacing.BatchExecutor, commits *commit.Manager) *Orchestrator {
	return &Orchestrator{pipeline: pipeline, repos: repos, executor: executor, commits: commits}
}

// InitializeRepositories ensures every full name in repoFullNames is
// registered as a tracked repository, creating any that don't already
// exist. Already-tracked repositories are left untouched.
func (o *Orchestrator) InitializeRepositories(ctx context.Context, repoFullNames []string) (map[string]model.Repository, error) {
	out := make(map[string]model.Repository, len(repoFullNames))

	for _, fullName := range repoFullNames {
		existing, err := o.repos.GetByFullName(ctx, fullName)
		if err != nil {
			return nil, fmt.Errorf("look up repository %s: %w", fullName, err)
		}
		if existing != nil {
			out[fullName] = *existing
			continue
		}

		owner, name, ok := strings.Cut(fullName, "/")
		if !ok {
			return nil, fmt.Errorf("repository %q must be owner/name", fullName)
		}

		created, err := o.repos.Add(ctx, model.Repository{Owner: owner, Name: name, FullName: fullName})
		if err != nil && !errors.Is(err, driven.ErrRepoAlreadyExists) {
			return nil, fmt.Errorf("register repository %s: %w", fullName, err)
		}
		if err != nil {
			// Another run registered it between the lookup and the insert;
			// re-fetch rather than treat this as a failure.
			refetched, err := o.repos.GetByFullName(ctx, fullName)
			if err != nil {
				return nil, fmt.Errorf("look up repository %s after race: %w", fullName, err)
			}
			created = *refetched
		}
		out[fullName] = created
	}

	return out, nil
}

// SyncAll registers every repository in repoFullNames and runs a bulk
// ingestion pass against each, sequentially. A single repository's failure
// is recorded on its RepoSyncResult rather than aborting the remaining
// repositories.
func (o *Orchestrator) SyncAll(ctx context.Context, repoFullNames []string, cfg BulkConfig) (MultiRepoSyncResult, error) {
	registry, err := o.InitializeRepositories(ctx, repoFullNames)
	if err != nil {
		return MultiRepoSyncResult{}, fmt.Errorf("initialize repositories: %w", err)
	}

	var multi MultiRepoSyncResult

	for _, fullName := range repoFullNames {
		started := time.Now().UTC()
		bulkResult, err := o.pipeline.IngestRepository(ctx, fullName, cfg, o.executor)
		completed := time.Now().UTC()

		repoResult := RepoSyncResult{
			Repository:  fullName,
			Result:      bulkResult,
			Err:         err,
			StartedAt:   started,
			CompletedAt: completed,
		}
		multi.RepoResults = append(multi.RepoResults, repoResult)

		if err != nil {
			slog.Error("repository sync failed", "repo", fullName, "error", err)
			continue
		}

		multi.TotalDiscovered += bulkResult.TotalDiscovered
		multi.TotalCreated += bulkResult.Created
		multi.TotalUpdated += bulkResult.Updated
		multi.TotalSkipped += bulkResult.TotalSkipped()
		multi.TotalFailed += bulkResult.Failed

		if !cfg.DryRun {
			if o.commits != nil {
				if _, err := o.commits.Commit(); err != nil {
					slog.Error("failed to commit ingestion batch", "repo", fullName, "error", err)
				}
			}
			if err := o.repos.MarkSynced(ctx, registry[fullName].ID, completed); err != nil {
				slog.Warn("failed to mark repository synced", "repo", fullName, "error", err)
			}
		}
	}

	return multi, nil
}
