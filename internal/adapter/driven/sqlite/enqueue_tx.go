package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/govambam/prospector/internal/domain/model"
)

// EnqueueSimulatePR atomically creates a queue operation with its optimistic
// fork and simulated PR rows. The fork row is reused when one already exists
// for owner/repo. All three writes share one transaction so a crash cannot
// leave a queued operation without its optimistic rows.
func (r *QueueRepo) EnqueueSimulatePR(ctx context.Context, op model.QueueOperation, fork model.Fork, pr model.SimulatedPR) (opID, forkID, prID int64, err error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("begin enqueue transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	opID, err = enqueueOp(ctx, tx, op)
	if err != nil {
		return 0, 0, 0, err
	}

	// Reuse an existing fork row for the same fork namespace.
	var existingID int64
	row := tx.QueryRowContext(ctx, `SELECT id FROM forks WHERE owner = ? AND repo = ?`, fork.Owner, fork.Repo)
	switch scanErr := row.Scan(&existingID); scanErr {
	case nil:
		forkID = existingID
	case sql.ErrNoRows:
		forkID, err = createFork(ctx, tx, fork)
		if err != nil {
			return 0, 0, 0, err
		}
	default:
		err = fmt.Errorf("look up fork %s/%s: %w", fork.Owner, fork.Repo, scanErr)
		return 0, 0, 0, err
	}

	pr.ForkID = forkID
	pr.QueueOpID = opID
	pr.State = model.SimPRStatePending
	now := time.Now().UTC()
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = now
	}
	if pr.UpdatedAt.IsZero() {
		pr.UpdatedAt = now
	}

	prID, err = createSimulatedPR(ctx, tx, pr)
	if err != nil {
		return 0, 0, 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, 0, fmt.Errorf("commit enqueue transaction: %w", err)
	}

	return opID, forkID, prID, nil
}
