package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
	"github.com/ericfisherdev/ghactivity/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SyncFailureStore = (*SyncFailureRepo)(nil)

// SyncFailureRepo is the SQLite implementation of the SyncFailureStore port
// interface. RecordFailure enforces the single-PENDING-row-per-PR invariant
// by updating any existing pending row in place instead of inserting a
// duplicate; the partial unique index on (repository_id, pr_number) WHERE
// status = 'pending' backstops this at the database level.
type SyncFailureRepo struct {
	db *DB
}

// NewSyncFailureRepo creates a new SyncFailureRepo backed by the given DB.
func NewSyncFailureRepo(db *DB) *SyncFailureRepo {
	return &SyncFailureRepo{db: db}
}

const syncFailureColumns = `
	id, repository_id, pr_number, error_message, error_type,
	retry_count, status, failed_at, resolved_at, created_at
`

// RecordFailure records a new sync failure, or increments the retry count of
// an already-pending failure for the same (RepositoryID, PRNumber).
func (r *SyncFailureRepo) RecordFailure(ctx context.Context, failure model.SyncFailure) (model.SyncFailure, error) {
	existing, err := r.GetByRepoAndPR(ctx, failure.RepositoryID, failure.PRNumber)
	if err != nil {
		return model.SyncFailure{}, err
	}

	now := time.Now().UTC()
	if existing != nil && existing.Status == model.SyncFailureStatusPending {
		const query = `
			UPDATE sync_failures SET retry_count = retry_count + 1, error_message = ?, error_type = ?, failed_at = ?
			WHERE id = ?
		`
		_, err := r.db.Writer.ExecContext(ctx, query, failure.ErrorMessage, failure.ErrorType, formatTime(now), existing.ID)
		if err != nil {
			return model.SyncFailure{}, fmt.Errorf("update pending failure for PR %d#%d: %w", failure.RepositoryID, failure.PRNumber, err)
		}
		return r.mustGet(ctx, existing.ID)
	}

	const insert = `
		INSERT INTO sync_failures (repository_id, pr_number, error_message, error_type, retry_count, status, failed_at, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)
	`
	result, err := r.db.Writer.ExecContext(ctx, insert,
		failure.RepositoryID, failure.PRNumber, failure.ErrorMessage, failure.ErrorType,
		string(model.SyncFailureStatusPending), formatTime(now), formatTime(now),
	)
	if err != nil {
		return model.SyncFailure{}, fmt.Errorf("record failure for PR %d#%d: %w", failure.RepositoryID, failure.PRNumber, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return model.SyncFailure{}, fmt.Errorf("read inserted failure id: %w", err)
	}

	return r.mustGet(ctx, id)
}

// GetPending returns every pending failure for a repository, oldest first.
func (r *SyncFailureRepo) GetPending(ctx context.Context, repositoryID int64) ([]model.SyncFailure, error) {
	query := `SELECT ` + syncFailureColumns + ` FROM sync_failures WHERE repository_id = ? AND status = ? ORDER BY failed_at`

	rows, err := r.db.Reader.QueryContext(ctx, query, repositoryID, string(model.SyncFailureStatusPending))
	if err != nil {
		return nil, fmt.Errorf("get pending failures: %w", err)
	}
	defer rows.Close()

	var failures []model.SyncFailure
	for rows.Next() {
		f, err := scanSyncFailure(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync failure: %w", err)
		}
		failures = append(failures, *f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync failures: %w", err)
	}

	return failures, nil
}

// GetByRepoAndPR returns the pending failure record for a given PR, if any.
// Returns nil, nil if no pending failure exists for that PR.
func (r *SyncFailureRepo) GetByRepoAndPR(ctx context.Context, repositoryID int64, prNumber int) (*model.SyncFailure, error) {
	query := `SELECT ` + syncFailureColumns + ` FROM sync_failures WHERE repository_id = ? AND pr_number = ? AND status = ?`

	f, err := scanSyncFailure(r.db.Reader.QueryRowContext(ctx, query, repositoryID, prNumber, string(model.SyncFailureStatusPending)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failure for PR %d#%d: %w", repositoryID, prNumber, err)
	}

	return f, nil
}

// MarkResolved marks a failure as resolved after a successful retry.
func (r *SyncFailureRepo) MarkResolved(ctx context.Context, id int64) error {
	const query = `UPDATE sync_failures SET status = ?, resolved_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, string(model.SyncFailureStatusResolved), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("mark failure %d resolved: %w", id, err)
	}
	return requireRowsAffected(result, "sync failure", id)
}

// MarkPermanent marks a failure as permanent, meaning no further retries
// should be attempted (exhausted retry budget, or a non-retryable error).
func (r *SyncFailureRepo) MarkPermanent(ctx context.Context, id int64) error {
	const query = `UPDATE sync_failures SET status = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, string(model.SyncFailureStatusPermanent), id)
	if err != nil {
		return fmt.Errorf("mark failure %d permanent: %w", id, err)
	}
	return requireRowsAffected(result, "sync failure", id)
}

// DeleteResolved deletes resolved failures with resolved_at before the given
// time, returning the number of rows removed. Used for periodic cleanup.
func (r *SyncFailureRepo) DeleteResolved(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM sync_failures WHERE status = ? AND resolved_at < ?`

	result, err := r.db.Writer.ExecContext(ctx, query, string(model.SyncFailureStatusResolved), formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("delete resolved failures: %w", err)
	}

	return result.RowsAffected()
}

// Stats summarizes failure counts by status for a repository.
func (r *SyncFailureRepo) Stats(ctx context.Context, repositoryID int64) (model.FailureStats, error) {
	const query = `SELECT status, COUNT(*) FROM sync_failures WHERE repository_id = ? GROUP BY status`

	rows, err := r.db.Reader.QueryContext(ctx, query, repositoryID)
	if err != nil {
		return model.FailureStats{}, fmt.Errorf("get failure stats: %w", err)
	}
	defer rows.Close()

	var stats model.FailureStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return model.FailureStats{}, fmt.Errorf("scan failure stats: %w", err)
		}
		switch model.SyncFailureStatus(status) {
		case model.SyncFailureStatusPending:
			stats.Pending = count
		case model.SyncFailureStatusResolved:
			stats.Resolved = count
		case model.SyncFailureStatusPermanent:
			stats.Permanent = count
		}
	}

	if err := rows.Err(); err != nil {
		return model.FailureStats{}, fmt.Errorf("iterate failure stats: %w", err)
	}

	return stats, nil
}

func (r *SyncFailureRepo) mustGet(ctx context.Context, id int64) (model.SyncFailure, error) {
	query := `SELECT ` + syncFailureColumns + ` FROM sync_failures WHERE id = ?`

	f, err := scanSyncFailure(r.db.Reader.QueryRowContext(ctx, query, id))
	if err != nil {
		return model.SyncFailure{}, fmt.Errorf("read back failure %d: %w", id, err)
	}
	return *f, nil
}

func requireRowsAffected(result sql.Result, entity string, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %d not found", entity, id)
	}
	return nil
}

func scanSyncFailure(s scanner) (*model.SyncFailure, error) {
	var f model.SyncFailure
	var status string
	var failedAt, createdAt string
	var resolvedAt sql.NullString

	err := s.Scan(
		&f.ID, &f.RepositoryID, &f.PRNumber, &f.ErrorMessage, &f.ErrorType,
		&f.RetryCount, &status, &failedAt, &resolvedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	f.Status = model.SyncFailureStatus(status)

	if f.FailedAt, err = parseTime(failedAt); err != nil {
		return nil, fmt.Errorf("parse failed_at: %w", err)
	}
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if resolvedAt.Valid {
		t, err := parseTime(resolvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse resolved_at: %w", err)
		}
		f.ResolvedAt = &t
	}

	return &f, nil
}
