package ingestion_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/ghactivity/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/ghactivity/internal/domain/model"
	"github.com/ericfisherdev/ghactivity/internal/ingestion"
	"github.com/ericfisherdev/ghactivity/internal/pacing"
)

func testExecutor(t *testing.T, sched *pacing.Scheduler) *pacing.BatchExecutor {
	t.Helper()
	return pacing.NewBatchExecutor(sched, nil, model.RateLimitPoolCore, false, 10)
}

func TestIngestRepository_AggregatesOutcomes(t *testing.T) {
	db := setupTestDB(t)
	repos := sqlite.NewRepoRepo(db)
	prs := sqlite.NewPRRepo(db, testGracePeriod)
	addRepo(t, repos, "octocat/hello-world")

	client := &fakeGitHubClient{
		numbers: []int{1, 2, 3},
		prs: map[int]model.PullRequest{
			1: openPR(1, model.PRStateOpen, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)),
			2: openPR(2, model.PRStateClosed, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)),
		},
		errs: map[int]error{
			3: fmt.Errorf("boom"),
		},
	}
	sched := testScheduler(t)
	pipeline := ingestion.NewPipeline(client, repos, prs, sched, testGracePeriod)
	executor := testExecutor(t, sched)

	result, err := pipeline.IngestRepository(context.Background(), "octocat/hello-world", ingestion.BulkConfig{}, executor)

	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalDiscovered)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.SkippedAbandoned)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.FailedPRs, 1)
	assert.Equal(t, 3, result.FailedPRs[0].Number)
}

func TestIngestRepository_RespectsMaxPRs(t *testing.T) {
	db := setupTestDB(t)
	repos := sqlite.NewRepoRepo(db)
	prs := sqlite.NewPRRepo(db, testGracePeriod)
	addRepo(t, repos, "octocat/hello-world")

	client := &fakeGitHubClient{
		numbers: []int{1, 2, 3, 4, 5},
		prs: map[int]model.PullRequest{
			1: openPR(1, model.PRStateOpen, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)),
			2: openPR(2, model.PRStateOpen, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)),
		},
	}
	sched := testScheduler(t)
	pipeline := ingestion.NewPipeline(client, repos, prs, sched, testGracePeriod)
	executor := testExecutor(t, sched)

	result, err := pipeline.IngestRepository(context.Background(), "octocat/hello-world", ingestion.BulkConfig{MaxPRs: 2}, executor)

	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalDiscovered)
	assert.Equal(t, 2, result.Created)
}

func TestIngestRepository_NoDiscoveredPRs(t *testing.T) {
	db := setupTestDB(t)
	repos := sqlite.NewRepoRepo(db)
	prs := sqlite.NewPRRepo(db, testGracePeriod)
	addRepo(t, repos, "octocat/hello-world")

	client := &fakeGitHubClient{numbers: []int{}}
	sched := testScheduler(t)
	pipeline := ingestion.NewPipeline(client, repos, prs, sched, testGracePeriod)
	executor := testExecutor(t, sched)

	result, err := pipeline.IngestRepository(context.Background(), "octocat/hello-world", ingestion.BulkConfig{}, executor)

	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalDiscovered)
	assert.Equal(t, float64(100), result.SuccessRate())
}

func TestIngestRepository_DryRunDoesNotPersist(t *testing.T) {
	db := setupTestDB(t)
	repos := sqlite.NewRepoRepo(db)
	prs := sqlite.NewPRRepo(db, testGracePeriod)
	repo := addRepo(t, repos, "octocat/hello-world")

	client := &fakeGitHubClient{
		numbers: []int{1},
		prs:     map[int]model.PullRequest{1: openPR(1, model.PRStateOpen, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))},
	}
	sched := testScheduler(t)
	pipeline := ingestion.NewPipeline(client, repos, prs, sched, testGracePeriod)
	executor := testExecutor(t, sched)

	result, err := pipeline.IngestRepository(context.Background(), "octocat/hello-world", ingestion.BulkConfig{DryRun: true}, executor)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	stored, err := prs.GetByNumber(context.Background(), repo.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, stored)
}
