package model

import (
	"log/slog"
	"time"
)

// CommitEntry is a single commit in a pull request's history, as recorded in
// PullRequest.CommitsBreakdown.
type CommitEntry struct {
	Date   time.Time
	Author string
}

// Participant records the set of actions a GitHub login contributed to a
// pull request (review comments, approvals, commits, ...).
type Participant struct {
	Username string
	Actions  []ParticipantAction
}

// PullRequest represents a GitHub pull request tracked for ingestion.
//
// Fields are grouped by how ingestion treats them:
//   - immutable: set once at creation and never rewritten by later syncs.
//   - synced: overwritten on every sync until the PR is frozen.
//   - merge-only: populated when the PR transitions to merged; read-only
//     afterward once the merge grace period elapses (see IsFrozen).
type PullRequest struct {
	ID           int64
	RepositoryID int64

	// Immutable.
	Number    int
	Link      string
	OpenDate  time.Time
	Submitter string

	// Synced.
	Title              string
	Description        string
	LastUpdateDate     time.Time
	State              PRState
	FilesChanged       int
	LinesAdded         int
	LinesDeleted       int
	CommitsCount       int
	Labels             []string
	Filenames          []string
	RequestedReviewers []string
	Assignees          []string
	CommitsBreakdown   []CommitEntry
	Participants       map[string][]ParticipantAction
	ClassifyTags       string // Agent-generated free-text classification, passed through as supplied.

	// Merge-only.
	CloseDate *time.Time
	MergedBy  string
	AISummary string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAbandoned reports whether the pull request was closed without merging.
// Abandoned PRs are never inserted or updated by the ingestion pipeline.
func (pr PullRequest) IsAbandoned() bool {
	return pr.State == PRStateClosed
}

// IsFrozen reports whether a merged pull request is past the merge grace
// period and should be treated as read-only by subsequent syncs. Non-merged
// PRs are never frozen.
func (pr PullRequest) IsFrozen(now time.Time, gracePeriod time.Duration) bool {
	if pr.State != PRStateMerged {
		return false
	}
	if pr.CloseDate == nil {
		slog.Warn("merged PR stored without a close date, treating as not frozen",
			"repository_id", pr.RepositoryID, "number", pr.Number)
		return false
	}
	return now.Sub(*pr.CloseDate) > gracePeriod
}

// IsUnchanged reports whether incoming would produce no observable update
// relative to the currently stored PR, comparing last-update timestamps with
// a >= rule: an incoming record whose LastUpdateDate is not strictly newer
// than the stored one is considered unchanged.
func (pr PullRequest) IsUnchanged(incoming PullRequest) bool {
	return !incoming.LastUpdateDate.After(pr.LastUpdateDate)
}
