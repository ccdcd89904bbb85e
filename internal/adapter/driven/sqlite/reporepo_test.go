package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
	"github.com/ericfisherdev/ghactivity/internal/domain/port/driven"
)

func makeRepo(fullName, owner, name string) model.Repository {
	return model.Repository{
		FullName:  fullName,
		Owner:     owner,
		Name:      name,
		CreatedAt: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestRepoRepo_Add(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepoRepo(db)
	ctx := context.Background()

	stored, err := repo.Add(ctx, makeRepo("octocat/hello-world", "octocat", "hello-world"))
	require.NoError(t, err)
	assert.NotZero(t, stored.ID)
	assert.True(t, stored.IsActive)
	assert.Nil(t, stored.LastSyncedAt)

	got, err := repo.GetByFullName(ctx, "octocat/hello-world")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "octocat/hello-world", got.FullName)
	assert.Equal(t, "octocat", got.Owner)
	assert.Equal(t, "hello-world", got.Name)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRepoRepo_Add_Duplicate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepoRepo(db)
	ctx := context.Background()

	r := makeRepo("octocat/hello-world", "octocat", "hello-world")
	_, err := repo.Add(ctx, r)
	require.NoError(t, err)

	_, err = repo.Add(ctx, r)
	assert.ErrorIs(t, err, driven.ErrRepoAlreadyExists)
}

func TestRepoRepo_ListAll(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepoRepo(db)
	ctx := context.Background()

	_, err := repo.Add(ctx, makeRepo("charlie/zeta", "charlie", "zeta"))
	require.NoError(t, err)
	_, err = repo.Add(ctx, makeRepo("alice/alpha", "alice", "alpha"))
	require.NoError(t, err)
	_, err = repo.Add(ctx, makeRepo("bob/beta", "bob", "beta"))
	require.NoError(t, err)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, "alice/alpha", all[0].FullName)
	assert.Equal(t, "bob/beta", all[1].FullName)
	assert.Equal(t, "charlie/zeta", all[2].FullName)
}

func TestRepoRepo_ListActive_ExcludesInactive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepoRepo(db)
	ctx := context.Background()

	active, err := repo.Add(ctx, makeRepo("octocat/active", "octocat", "active"))
	require.NoError(t, err)
	_, err = repo.Add(ctx, makeRepo("octocat/other", "octocat", "other"))
	require.NoError(t, err)

	_, err = db.Writer.ExecContext(ctx, `UPDATE repositories SET is_active = 0 WHERE full_name = ?`, "octocat/other")
	require.NoError(t, err)

	got, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.FullName, got[0].FullName)
}

func TestRepoRepo_GetByFullName_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepoRepo(db)
	ctx := context.Background()

	got, err := repo.GetByFullName(ctx, "nonexistent/repo")
	require.NoError(t, err)
	assert.Nil(t, got, "non-existent repo should return nil without error")
}

func TestRepoRepo_MarkSynced(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepoRepo(db)
	ctx := context.Background()

	stored, err := repo.Add(ctx, makeRepo("octocat/hello-world", "octocat", "hello-world"))
	require.NoError(t, err)

	syncedAt := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkSynced(ctx, stored.ID, syncedAt))

	got, err := repo.GetByFullName(ctx, "octocat/hello-world")
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncedAt)
	assert.True(t, got.LastSyncedAt.Equal(syncedAt))
}

func TestRepoRepo_MarkSynced_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepoRepo(db)
	ctx := context.Background()

	err := repo.MarkSynced(ctx, 999, time.Now().UTC())
	assert.ErrorIs(t, err, driven.ErrRepoNotFound)
}
