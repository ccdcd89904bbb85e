package model

import "time"

// SyncFailure records a single PR that could not be ingested, for later
// inspection and retry. At most one PENDING row may exist for a given
// (RepositoryID, PRNumber) pair; repeated failures for the same PR update
// that row in place rather than inserting a duplicate.
type SyncFailure struct {
	ID           int64
	RepositoryID int64
	PRNumber     int
	ErrorMessage string
	ErrorType    string
	RetryCount   int
	Status       SyncFailureStatus
	FailedAt     time.Time
	ResolvedAt   *time.Time
	CreatedAt    time.Time
}

// FailureStats summarizes recorded sync failures by status, for operational
// visibility into how much ingestion backlog is outstanding.
type FailureStats struct {
	Pending   int
	Resolved  int
	Permanent int
}
