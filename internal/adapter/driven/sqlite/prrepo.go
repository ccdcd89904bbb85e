package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
	"github.com/ericfisherdev/ghactivity/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PRStore = (*PRRepo)(nil)

// execer is satisfied by both *sql.DB and *sql.Tx, letting PRRepo's queries
// run either against the DB's pooled connections or a caller-managed
// transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PRRepo is the SQLite implementation of the PRStore port interface.
//
// CreateOrUpdate enforces the PR state machine before writing: a frozen,
// unchanged, or abandoned existing row is left untouched rather than
// rewritten. ApplyMerge writes the merge fields without those checks.
type PRRepo struct {
	reader      execer
	writer      execer
	gracePeriod time.Duration
}

// NewPRRepo creates a new PRRepo backed by the given DB. gracePeriod controls
// how long a merged PR continues to accept sync updates before it is
// considered frozen.
func NewPRRepo(db *DB, gracePeriod time.Duration) *PRRepo {
	return &PRRepo{reader: db.Reader, writer: db.Writer, gracePeriod: gracePeriod}
}

// WithTx returns a PRRepo that reads and writes through tx instead of the
// DB's separate reader/writer connection pools. The commit manager hands
// ingestion a single *sql.Tx per batch; routing both reads and writes
// through it is what lets CreateOrUpdate's read-back-after-write see its own
// uncommitted changes before the batch boundary commits.
func (r *PRRepo) WithTx(tx *sql.Tx) *PRRepo {
	return &PRRepo{reader: tx, writer: tx, gracePeriod: r.gracePeriod}
}

const prColumns = `
	id, repository_id, number, link, open_date, submitter,
	title, description, last_update_date, state,
	files_changed, lines_added, lines_deleted, commits_count,
	labels, filenames, reviewers, assignees, commits_breakdown, participants,
	classify_tags, close_date, merged_by, ai_summary, created_at, updated_at
`

// GetByNumber retrieves a single pull request by repository and PR number.
// Returns nil, nil if no such PR is stored.
func (r *PRRepo) GetByNumber(ctx context.Context, repositoryID int64, number int) (*model.PullRequest, error) {
	query := `SELECT ` + prColumns + ` FROM pull_requests WHERE repository_id = ? AND number = ?`

	pr, err := scanPR(r.reader.QueryRowContext(ctx, query, repositoryID, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get PR %d#%d: %w", repositoryID, number, err)
	}

	return pr, nil
}

// GetNumbersByState returns just the PR numbers in a given state, a cheap
// projection used to diff against a freshly fetched list of open PRs.
func (r *PRRepo) GetNumbersByState(ctx context.Context, repositoryID int64, state model.PRState) ([]int, error) {
	const query = `SELECT number FROM pull_requests WHERE repository_id = ? AND state = ?`

	rows, err := r.reader.QueryContext(ctx, query, repositoryID, string(state))
	if err != nil {
		return nil, fmt.Errorf("get PR numbers by state: %w", err)
	}
	defer rows.Close()

	var numbers []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan PR number: %w", err)
		}
		numbers = append(numbers, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate PR numbers: %w", err)
	}

	return numbers, nil
}

// ListByRepository returns every pull request tracked for a repository,
// ordered by PR number.
func (r *PRRepo) ListByRepository(ctx context.Context, repositoryID int64) ([]model.PullRequest, error) {
	query := `SELECT ` + prColumns + ` FROM pull_requests WHERE repository_id = ? ORDER BY number`

	rows, err := r.reader.QueryContext(ctx, query, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("list PRs for repository %d: %w", repositoryID, err)
	}
	defer rows.Close()

	var prs []model.PullRequest
	for rows.Next() {
		pr, err := scanPR(rows)
		if err != nil {
			return nil, fmt.Errorf("scan PR: %w", err)
		}
		prs = append(prs, *pr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate PRs: %w", err)
	}

	return prs, nil
}

// CreateOrUpdate inserts incoming as a new row if no PR with its number
// exists yet, or applies its synced fields to the existing row. An existing
// row that is frozen (merged past the grace period) or unchanged relative to
// incoming is returned untouched.
//
// Abandoned PRs (closed without merge) are never inserted or updated; callers
// should not pass a PullRequest with State PRStateClosed here for a PR that
// does not already exist, but if one is passed for an existing row the
// existing row is left as-is and created is reported false.
func (r *PRRepo) CreateOrUpdate(ctx context.Context, incoming model.PullRequest) (model.PullRequest, bool, error) {
	existing, err := r.GetByNumber(ctx, incoming.RepositoryID, incoming.Number)
	if err != nil {
		return model.PullRequest{}, false, err
	}

	if existing == nil {
		if incoming.IsAbandoned() {
			return model.PullRequest{}, false, fmt.Errorf(
				"create PR %d#%d: abandoned PRs are never inserted", incoming.RepositoryID, incoming.Number,
			)
		}
		created, err := r.insert(ctx, incoming)
		if err != nil {
			return model.PullRequest{}, false, err
		}
		return created, true, nil
	}

	if existing.IsFrozen(time.Now().UTC(), r.gracePeriod) {
		return *existing, false, nil
	}
	if existing.IsUnchanged(incoming) {
		return *existing, false, nil
	}
	if incoming.IsAbandoned() {
		return *existing, false, nil
	}

	updated, err := r.updateSynced(ctx, *existing, incoming)
	if err != nil {
		return model.PullRequest{}, false, err
	}
	return updated, false, nil
}

func (r *PRRepo) insert(ctx context.Context, pr model.PullRequest) (model.PullRequest, error) {
	const query = `
		INSERT INTO pull_requests (
			repository_id, number, link, open_date, submitter,
			title, description, last_update_date, state,
			files_changed, lines_added, lines_deleted, commits_count,
			labels, filenames, reviewers, assignees, commits_breakdown, participants,
			classify_tags, close_date, merged_by, ai_summary, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	enc, err := encodePR(pr)
	if err != nil {
		return model.PullRequest{}, err
	}

	_, err = r.writer.ExecContext(ctx, query,
		pr.RepositoryID, pr.Number, pr.Link, formatTime(pr.OpenDate), pr.Submitter,
		pr.Title, pr.Description, formatTime(pr.LastUpdateDate), string(pr.State),
		pr.FilesChanged, pr.LinesAdded, pr.LinesDeleted, pr.CommitsCount,
		enc.labels, enc.filenames, enc.reviewers, enc.assignees, enc.commitsBreakdown, enc.participants,
		pr.ClassifyTags, nullableTime(pr.CloseDate), pr.MergedBy, pr.AISummary,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return model.PullRequest{}, fmt.Errorf("insert PR %d#%d: %w", pr.RepositoryID, pr.Number, err)
	}

	stored, err := r.GetByNumber(ctx, pr.RepositoryID, pr.Number)
	if err != nil {
		return model.PullRequest{}, err
	}
	if stored == nil {
		return model.PullRequest{}, fmt.Errorf("insert PR %d#%d: row vanished after insert", pr.RepositoryID, pr.Number)
	}
	return *stored, nil
}

func (r *PRRepo) updateSynced(ctx context.Context, existing, incoming model.PullRequest) (model.PullRequest, error) {
	const query = `
		UPDATE pull_requests SET
			title = ?, description = ?, last_update_date = ?, state = ?,
			files_changed = ?, lines_added = ?, lines_deleted = ?, commits_count = ?,
			labels = ?, filenames = ?, reviewers = ?, assignees = ?,
			commits_breakdown = ?, participants = ?, classify_tags = ?, updated_at = ?
		WHERE id = ?
	`

	enc, err := encodePR(incoming)
	if err != nil {
		return model.PullRequest{}, err
	}

	_, err = r.writer.ExecContext(ctx, query,
		incoming.Title, incoming.Description, formatTime(incoming.LastUpdateDate), string(incoming.State),
		incoming.FilesChanged, incoming.LinesAdded, incoming.LinesDeleted, incoming.CommitsCount,
		enc.labels, enc.filenames, enc.reviewers, enc.assignees, enc.commitsBreakdown, enc.participants,
		incoming.ClassifyTags, formatTime(time.Now().UTC()),
		existing.ID,
	)
	if err != nil {
		return model.PullRequest{}, fmt.Errorf("update PR %d#%d: %w", existing.RepositoryID, existing.Number, err)
	}

	stored, err := r.GetByNumber(ctx, existing.RepositoryID, existing.Number)
	if err != nil {
		return model.PullRequest{}, err
	}
	if stored == nil {
		return model.PullRequest{}, fmt.Errorf("update PR %d#%d: row vanished after update", existing.RepositoryID, existing.Number)
	}
	return *stored, nil
}

// ApplyMerge records the merge-only fields on an already-stored PR,
// transitioning it to PRStateMerged.
func (r *PRRepo) ApplyMerge(ctx context.Context, repositoryID int64, number int, closeDate time.Time, mergedBy string) error {
	const query = `
		UPDATE pull_requests SET state = ?, close_date = ?, merged_by = ?, updated_at = ?
		WHERE repository_id = ? AND number = ?
	`

	result, err := r.writer.ExecContext(ctx, query,
		string(model.PRStateMerged), formatTime(closeDate), mergedBy, formatTime(time.Now().UTC()),
		repositoryID, number,
	)
	if err != nil {
		return fmt.Errorf("apply merge to PR %d#%d: %w", repositoryID, number, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("apply merge to PR %d#%d: not found", repositoryID, number)
	}

	return nil
}

type encodedPR struct {
	labels           string
	filenames        string
	reviewers        string
	assignees        string
	commitsBreakdown string
	participants     string
}

func encodePR(pr model.PullRequest) (encodedPR, error) {
	labels, err := marshalStrings(pr.Labels)
	if err != nil {
		return encodedPR{}, fmt.Errorf("marshal labels: %w", err)
	}
	filenames, err := marshalStrings(pr.Filenames)
	if err != nil {
		return encodedPR{}, fmt.Errorf("marshal filenames: %w", err)
	}
	reviewers, err := marshalStrings(pr.RequestedReviewers)
	if err != nil {
		return encodedPR{}, fmt.Errorf("marshal reviewers: %w", err)
	}
	assignees, err := marshalStrings(pr.Assignees)
	if err != nil {
		return encodedPR{}, fmt.Errorf("marshal assignees: %w", err)
	}

	commits := pr.CommitsBreakdown
	if commits == nil {
		commits = []model.CommitEntry{}
	}
	commitsJSON, err := json.Marshal(commits)
	if err != nil {
		return encodedPR{}, fmt.Errorf("marshal commits breakdown: %w", err)
	}

	participants := pr.Participants
	if participants == nil {
		participants = map[string][]model.ParticipantAction{}
	}
	participantsJSON, err := json.Marshal(participants)
	if err != nil {
		return encodedPR{}, fmt.Errorf("marshal participants: %w", err)
	}

	return encodedPR{
		labels:           string(labels),
		filenames:        string(filenames),
		reviewers:        string(reviewers),
		assignees:        string(assignees),
		commitsBreakdown: string(commitsJSON),
		participants:     string(participantsJSON),
	}, nil
}

func marshalStrings(ss []string) ([]byte, error) {
	if ss == nil {
		ss = []string{}
	}
	return json.Marshal(ss)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanPR(s scanner) (*model.PullRequest, error) {
	var pr model.PullRequest
	var state string
	var openDate, lastUpdateDate, createdAt, updatedAt string
	var closeDate sql.NullString
	var labelsJSON, filenamesJSON, reviewersJSON, assigneesJSON, commitsJSON, participantsJSON string

	err := s.Scan(
		&pr.ID, &pr.RepositoryID, &pr.Number, &pr.Link, &openDate, &pr.Submitter,
		&pr.Title, &pr.Description, &lastUpdateDate, &state,
		&pr.FilesChanged, &pr.LinesAdded, &pr.LinesDeleted, &pr.CommitsCount,
		&labelsJSON, &filenamesJSON, &reviewersJSON, &assigneesJSON, &commitsJSON, &participantsJSON,
		&pr.ClassifyTags, &closeDate, &pr.MergedBy, &pr.AISummary, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	pr.State = model.PRState(state)

	if pr.OpenDate, err = parseTime(openDate); err != nil {
		return nil, fmt.Errorf("parse open_date: %w", err)
	}
	if pr.LastUpdateDate, err = parseTime(lastUpdateDate); err != nil {
		return nil, fmt.Errorf("parse last_update_date: %w", err)
	}
	if pr.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if pr.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	if closeDate.Valid {
		t, err := parseTime(closeDate.String)
		if err != nil {
			return nil, fmt.Errorf("parse close_date: %w", err)
		}
		pr.CloseDate = &t
	}

	if err := json.Unmarshal([]byte(labelsJSON), &pr.Labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}
	if err := json.Unmarshal([]byte(filenamesJSON), &pr.Filenames); err != nil {
		return nil, fmt.Errorf("unmarshal filenames: %w", err)
	}
	if err := json.Unmarshal([]byte(reviewersJSON), &pr.RequestedReviewers); err != nil {
		return nil, fmt.Errorf("unmarshal reviewers: %w", err)
	}
	if err := json.Unmarshal([]byte(assigneesJSON), &pr.Assignees); err != nil {
		return nil, fmt.Errorf("unmarshal assignees: %w", err)
	}
	if err := json.Unmarshal([]byte(commitsJSON), &pr.CommitsBreakdown); err != nil {
		return nil, fmt.Errorf("unmarshal commits breakdown: %w", err)
	}
	if err := json.Unmarshal([]byte(participantsJSON), &pr.Participants); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}

	return &pr, nil
}
