package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
	"github.com/ericfisherdev/ghactivity/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoStore = (*RepoRepo)(nil)

// RepoRepo is the SQLite implementation of the RepoStore port interface.
type RepoRepo struct {
	db *DB
}

// NewRepoRepo creates a new RepoRepo backed by the given DB.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{db: db}
}

// Add inserts a new repository, tracked as active from the start. Returns
// ErrRepoAlreadyExists if a repository with the same full name is already
// tracked.
func (r *RepoRepo) Add(ctx context.Context, repo model.Repository) (model.Repository, error) {
	const query = `
		INSERT INTO repositories (owner, name, full_name, is_active, created_at)
		VALUES (?, ?, ?, 1, ?)
	`

	createdAt := repo.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := r.db.Writer.ExecContext(ctx, query, repo.Owner, repo.Name, repo.FullName, formatTime(createdAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return model.Repository{}, fmt.Errorf("add repository %s: %w", repo.FullName, driven.ErrRepoAlreadyExists)
		}
		return model.Repository{}, fmt.Errorf("add repository %s: %w", repo.FullName, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return model.Repository{}, fmt.Errorf("read inserted repository id: %w", err)
	}

	stored, err := r.GetByFullName(ctx, repo.FullName)
	if err != nil {
		return model.Repository{}, err
	}
	if stored == nil {
		return model.Repository{}, fmt.Errorf("add repository %s: row %d vanished after insert", repo.FullName, id)
	}

	return *stored, nil
}

// GetByFullName retrieves a repository by its "owner/name" full name.
// Returns nil, nil if no such repository is tracked.
func (r *RepoRepo) GetByFullName(ctx context.Context, fullName string) (*model.Repository, error) {
	const query = `
		SELECT id, owner, name, full_name, is_active, last_synced_at, created_at
		FROM repositories WHERE full_name = ?
	`

	repo, err := scanRepository(r.db.Reader.QueryRowContext(ctx, query, fullName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", fullName, err)
	}

	return repo, nil
}

// ListActive returns all repositories currently marked active, ordered by
// full name.
func (r *RepoRepo) ListActive(ctx context.Context) ([]model.Repository, error) {
	const query = `
		SELECT id, owner, name, full_name, is_active, last_synced_at, created_at
		FROM repositories WHERE is_active = 1 ORDER BY full_name
	`
	return r.queryRepositories(ctx, query)
}

// ListAll returns every tracked repository, active or not, ordered by full
// name.
func (r *RepoRepo) ListAll(ctx context.Context) ([]model.Repository, error) {
	const query = `
		SELECT id, owner, name, full_name, is_active, last_synced_at, created_at
		FROM repositories ORDER BY full_name
	`
	return r.queryRepositories(ctx, query)
}

// MarkSynced records the time of a repository's most recent successful
// ingestion run.
func (r *RepoRepo) MarkSynced(ctx context.Context, repositoryID int64, syncedAt time.Time) error {
	const query = `UPDATE repositories SET last_synced_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, formatTime(syncedAt), repositoryID)
	if err != nil {
		return fmt.Errorf("mark repository %d synced: %w", repositoryID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("mark repository %d synced: %w", repositoryID, driven.ErrRepoNotFound)
	}

	return nil
}

func (r *RepoRepo) queryRepositories(ctx context.Context, query string, args ...any) ([]model.Repository, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRepository(s scanner) (*model.Repository, error) {
	var repo model.Repository
	var isActive int
	var lastSyncedAt sql.NullString
	var createdAt string

	err := s.Scan(&repo.ID, &repo.Owner, &repo.Name, &repo.FullName, &isActive, &lastSyncedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	repo.IsActive = isActive != 0

	if lastSyncedAt.Valid {
		t, err := parseTime(lastSyncedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_synced_at: %w", err)
		}
		repo.LastSyncedAt = &t
	}

	repo.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &repo, nil
}

// formatTime renders a time.Time the same way across every writer so reads
// parse it back unambiguously regardless of which formats parseTime tries.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime tries multiple SQLite datetime formats, since golang-migrate's
// default column affinity stores whatever string form the driver handed it.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
