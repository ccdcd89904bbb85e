package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/ghactivity/internal/domain/model"
)

// Sentinel errors returned by RepoStore implementations.
var (
	// ErrRepoNotFound indicates the requested repository does not exist.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrRepoAlreadyExists indicates a repository with the same full name
	// already exists.
	ErrRepoAlreadyExists = errors.New("repository already exists")
)

// RepoStore defines the driven port for repository persistence.
type RepoStore interface {
	Add(ctx context.Context, repo model.Repository) (model.Repository, error)
	GetByFullName(ctx context.Context, fullName string) (*model.Repository, error)
	ListActive(ctx context.Context) ([]model.Repository, error)
	ListAll(ctx context.Context) ([]model.Repository, error)
	MarkSynced(ctx context.Context, repositoryID int64, syncedAt time.Time) error
}
