package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
)

// PRStore defines the driven port for pull request persistence.
//
// CreateOrUpdate is the only write path used by ingestion: it inserts a new
// row on first sight of a PR, or updates the synced fields of an existing
// one, applying the frozen/unchanged rules described on model.PullRequest.
type PRStore interface {
	GetByNumber(ctx context.Context, repositoryID int64, number int) (*model.PullRequest, error)
	GetNumbersByState(ctx context.Context, repositoryID int64, state model.PRState) ([]int, error)
	ListByRepository(ctx context.Context, repositoryID int64) ([]model.PullRequest, error)

	// CreateOrUpdate persists incoming, returning the stored row and whether
	// it was newly created. If an existing row is frozen or unchanged
	// relative to incoming, the store leaves it untouched and returns it
	// as-is.
	CreateOrUpdate(ctx context.Context, incoming model.PullRequest) (pr model.PullRequest, created bool, err error)

	// ApplyMerge records the merge-only fields on an already-stored PR.
	ApplyMerge(ctx context.Context, repositoryID int64, number int, closeDate time.Time, mergedBy string) error
}
