package driven

import (
	"context"
	"time"

	"github.com/govambam/prospector/internal/domain/model"
)

// QueueStore defines the driven port for queue operation persistence.
// The store enforces the status state machine; it performs no workflow logic.
type QueueStore interface {
	// Enqueue inserts a new operation with status queued and returns its ID.
	Enqueue(ctx context.Context, op model.QueueOperation) (int64, error)

	// GetByID returns a single operation, or model.ErrNotFound.
	GetByID(ctx context.Context, id int64) (*model.QueueOperation, error)

	// GetByIDs returns the operations matching the given IDs; missing IDs
	// are silently omitted.
	GetByIDs(ctx context.Context, ids []int64) ([]model.QueueOperation, error)

	// ListPending returns queued and processing operations ordered by
	// priority descending, then creation order. Callers use this for
	// duplicate detection and queue position reporting.
	ListPending(ctx context.Context) ([]model.QueueOperation, error)

	// NextQueued returns the head of the queue (highest priority, oldest
	// first), or nil when nothing is queued.
	NextQueued(ctx context.Context) (*model.QueueOperation, error)

	// MarkProcessing transitions queued→processing and records startedAt.
	// Returns model.ErrInvalidState if the row is not queued.
	MarkProcessing(ctx context.Context, id int64, startedAt time.Time) error

	// MarkCompleted transitions processing→completed with a result payload.
	MarkCompleted(ctx context.Context, id int64, result model.SimulatePRResult, completedAt time.Time) error

	// MarkFailed transitions processing→failed with an error message.
	MarkFailed(ctx context.Context, id int64, errMsg string, completedAt time.Time) error

	// Cancel transitions queued→cancelled. Returns model.ErrNotFound if the
	// row does not exist, model.ErrInvalidState if it is not queued.
	Cancel(ctx context.Context, id int64) error
}

// SimulatePREnqueuer atomically persists a queue operation together with its
// optimistic fork and simulated PR rows.
type SimulatePREnqueuer interface {
	EnqueueSimulatePR(ctx context.Context, op model.QueueOperation, fork model.Fork, pr model.SimulatedPR) (opID, forkID, prID int64, err error)
}
