package model

import "time"

// Repository represents a GitHub repository tracked for PR ingestion.
type Repository struct {
	ID           int64
	Owner        string
	Name         string
	FullName     string // "owner/name", unique.
	IsActive     bool
	LastSyncedAt *time.Time // nil until the first successful sync completes.
	CreatedAt    time.Time
}
