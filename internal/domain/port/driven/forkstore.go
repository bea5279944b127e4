package driven

import (
	"context"

	"github.com/govambam/prospector/internal/domain/model"
)

// ForkStore defines the driven port for fork persistence.
type ForkStore interface {
	// Create inserts a fork and returns its ID.
	Create(ctx context.Context, fork model.Fork) (int64, error)
	// GetByRepo returns the fork for owner/repo, or nil if absent.
	GetByRepo(ctx context.Context, owner, repo string) (*model.Fork, error)
	// UpdateFromWorkflow reconciles an optimistic row with the owner and URL
	// GitHub reported once the fork actually exists.
	UpdateFromWorkflow(ctx context.Context, id int64, owner, url string) error
	// ListInternal returns all forks owned by the configured target org.
	ListInternal(ctx context.Context) ([]model.Fork, error)
}

// SimulatedPRStore defines the driven port for simulated PR persistence.
type SimulatedPRStore interface {
	// Create inserts a simulated PR row (possibly optimistic) and returns its ID.
	Create(ctx context.Context, pr model.SimulatedPR) (int64, error)
	// GetByID returns a single row, or model.ErrNotFound.
	GetByID(ctx context.Context, id int64) (*model.SimulatedPR, error)
	// GetByQueueOp returns the row created for a queue operation, or nil.
	GetByQueueOp(ctx context.Context, queueOpID int64) (*model.SimulatedPR, error)
	// UpdateFromWorkflow reconciles an optimistic row with real values once
	// the workflow has opened the PR.
	UpdateFromWorkflow(ctx context.Context, id int64, number int, url string, state model.SimulatedPRState) error
	// ListByFork returns all simulated PRs for a fork.
	ListByFork(ctx context.Context, forkID int64) ([]model.SimulatedPR, error)
}
