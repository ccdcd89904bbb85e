package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
)

// SyncFailureStore defines the driven port for sync failure bookkeeping.
//
// RecordFailure enforces the single-PENDING-row-per-PR invariant: if a
// PENDING row already exists for (RepositoryID, PRNumber) it is updated in
// place (incrementing RetryCount) rather than duplicated.
type SyncFailureStore interface {
	RecordFailure(ctx context.Context, failure model.SyncFailure) (model.SyncFailure, error)
	GetPending(ctx context.Context, repositoryID int64) ([]model.SyncFailure, error)
	GetByRepoAndPR(ctx context.Context, repositoryID int64, prNumber int) (*model.SyncFailure, error)
	MarkResolved(ctx context.Context, id int64) error
	MarkPermanent(ctx context.Context, id int64) error
	DeleteResolved(ctx context.Context, before time.Time) (int64, error)
	Stats(ctx context.Context, repositoryID int64) (model.FailureStats, error)
}
