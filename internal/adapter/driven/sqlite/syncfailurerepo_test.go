package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
)

func TestSyncFailureRepo_RecordFailure_InsertsNew(t *testing.T) {
	db := setupTestDB(t)
	repo := addTestRepo(t, db, "octocat/hello-world", "octocat", "hello-world")
	failures := NewSyncFailureRepo(db)
	ctx := context.Background()

	f, err := failures.RecordFailure(ctx, model.SyncFailure{
		RepositoryID: repo.ID,
		PRNumber:     42,
		ErrorMessage: "rate limited",
		ErrorType:    "RateLimitError",
	})
	require.NoError(t, err)
	assert.NotZero(t, f.ID)
	assert.Equal(t, 0, f.RetryCount)
	assert.Equal(t, model.SyncFailureStatusPending, f.Status)
}

func TestSyncFailureRepo_RecordFailure_IncrementsExistingPending(t *testing.T) {
	db := setupTestDB(t)
	repo := addTestRepo(t, db, "octocat/hello-world", "octocat", "hello-world")
	failures := NewSyncFailureRepo(db)
	ctx := context.Background()

	first, err := failures.RecordFailure(ctx, model.SyncFailure{
		RepositoryID: repo.ID, PRNumber: 42, ErrorMessage: "timeout", ErrorType: "TransportError",
	})
	require.NoError(t, err)

	second, err := failures.RecordFailure(ctx, model.SyncFailure{
		RepositoryID: repo.ID, PRNumber: 42, ErrorMessage: "timeout again", ErrorType: "TransportError",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "repeated failure for the same PR updates the existing row")
	assert.Equal(t, 1, second.RetryCount)
	assert.Equal(t, "timeout again", second.ErrorMessage)

	pending, err := failures.GetPending(ctx, repo.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "only one pending row should exist per PR")
}

func TestSyncFailureRepo_MarkResolved_AllowsNewPendingAfterward(t *testing.T) {
	db := setupTestDB(t)
	repo := addTestRepo(t, db, "octocat/hello-world", "octocat", "hello-world")
	failures := NewSyncFailureRepo(db)
	ctx := context.Background()

	f, err := failures.RecordFailure(ctx, model.SyncFailure{
		RepositoryID: repo.ID, PRNumber: 42, ErrorMessage: "boom", ErrorType: "TransportError",
	})
	require.NoError(t, err)

	require.NoError(t, failures.MarkResolved(ctx, f.ID))

	again, err := failures.RecordFailure(ctx, model.SyncFailure{
		RepositoryID: repo.ID, PRNumber: 42, ErrorMessage: "boom again", ErrorType: "TransportError",
	})
	require.NoError(t, err)
	assert.NotEqual(t, f.ID, again.ID, "a resolved failure should not block a fresh pending record")
}

func TestSyncFailureRepo_MarkPermanent(t *testing.T) {
	db := setupTestDB(t)
	repo := addTestRepo(t, db, "octocat/hello-world", "octocat", "hello-world")
	failures := NewSyncFailureRepo(db)
	ctx := context.Background()

	f, err := failures.RecordFailure(ctx, model.SyncFailure{
		RepositoryID: repo.ID, PRNumber: 1, ErrorMessage: "bad payload", ErrorType: "ValidationError",
	})
	require.NoError(t, err)

	require.NoError(t, failures.MarkPermanent(ctx, f.ID))

	pending, err := failures.GetPending(ctx, repo.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err := failures.Stats(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Permanent)
	assert.Equal(t, 0, stats.Pending)
}

func TestSyncFailureRepo_GetByRepoAndPR_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := addTestRepo(t, db, "octocat/hello-world", "octocat", "hello-world")
	failures := NewSyncFailureRepo(db)
	ctx := context.Background()

	got, err := failures.GetByRepoAndPR(ctx, repo.ID, 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSyncFailureRepo_DeleteResolved(t *testing.T) {
	db := setupTestDB(t)
	repo := addTestRepo(t, db, "octocat/hello-world", "octocat", "hello-world")
	failures := NewSyncFailureRepo(db)
	ctx := context.Background()

	f, err := failures.RecordFailure(ctx, model.SyncFailure{
		RepositoryID: repo.ID, PRNumber: 1, ErrorMessage: "x", ErrorType: "TransportError",
	})
	require.NoError(t, err)
	require.NoError(t, failures.MarkResolved(ctx, f.ID))

	deleted, err := failures.DeleteResolved(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	stats, err := failures.Stats(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Resolved)
}

func TestSyncFailureRepo_Stats_AllZeroWhenNoFailures(t *testing.T) {
	db := setupTestDB(t)
	repo := addTestRepo(t, db, "octocat/hello-world", "octocat", "hello-world")
	failures := NewSyncFailureRepo(db)
	ctx := context.Background()

	stats, err := failures.Stats(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FailureStats{}, stats)
}
