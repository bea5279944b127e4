package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/govambam/prospector/internal/domain/model"
	"github.com/govambam/prospector/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SimulatedPRStore = (*SimulatedPRRepo)(nil)

// SimulatedPRRepo is the SQLite implementation of the SimulatedPRStore port
// interface.
type SimulatedPRRepo struct {
	db *DB
}

// NewSimulatedPRRepo creates a new SimulatedPRRepo backed by the given DB.
func NewSimulatedPRRepo(db *DB) *SimulatedPRRepo {
	return &SimulatedPRRepo{db: db}
}

const simPRColumns = `id, fork_id, queue_op_id, pr_number, title, url, upstream_url,
       state, bug_count, created_at, updated_at`

// Create inserts a simulated PR row (possibly optimistic) and returns its ID.
func (r *SimulatedPRRepo) Create(ctx context.Context, pr model.SimulatedPR) (int64, error) {
	return createSimulatedPR(ctx, r.db.Writer, pr)
}

func createSimulatedPR(ctx context.Context, ex execer, pr model.SimulatedPR) (int64, error) {
	const query = `
		INSERT INTO simulated_prs (fork_id, queue_op_id, pr_number, title, url, upstream_url, state, bug_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := ex.ExecContext(ctx, query,
		pr.ForkID, pr.QueueOpID, pr.Number, pr.Title, pr.URL, pr.UpstreamURL,
		string(pr.State), pr.BugCount, pr.CreatedAt.UTC(), pr.UpdatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("create simulated PR for fork %d: %w", pr.ForkID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read created simulated PR id: %w", err)
	}

	return id, nil
}

// GetByID returns a single row, or model.ErrNotFound.
func (r *SimulatedPRRepo) GetByID(ctx context.Context, id int64) (*model.SimulatedPR, error) {
	query := `SELECT ` + simPRColumns + ` FROM simulated_prs WHERE id = ?`

	pr, err := scanSimulatedPR(r.db.Reader.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("simulated PR %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get simulated PR %d: %w", id, err)
	}

	return pr, nil
}

// GetByQueueOp returns the row created for a queue operation, or nil.
func (r *SimulatedPRRepo) GetByQueueOp(ctx context.Context, queueOpID int64) (*model.SimulatedPR, error) {
	query := `SELECT ` + simPRColumns + ` FROM simulated_prs WHERE queue_op_id = ?`

	pr, err := scanSimulatedPR(r.db.Reader.QueryRowContext(ctx, query, queueOpID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get simulated PR for operation %d: %w", queueOpID, err)
	}

	return pr, nil
}

// UpdateFromWorkflow reconciles an optimistic row with real values once the
// workflow has opened the PR.
func (r *SimulatedPRRepo) UpdateFromWorkflow(ctx context.Context, id int64, number int, url string, state model.SimulatedPRState) error {
	const query = `
		UPDATE simulated_prs
		SET pr_number = ?, url = ?, state = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query, number, url, string(state), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update simulated PR %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("simulated PR %d: %w", id, model.ErrNotFound)
	}

	return nil
}

// ListByFork returns all simulated PRs for a fork, newest first.
func (r *SimulatedPRRepo) ListByFork(ctx context.Context, forkID int64) ([]model.SimulatedPR, error) {
	query := `SELECT ` + simPRColumns + ` FROM simulated_prs WHERE fork_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query, forkID)
	if err != nil {
		return nil, fmt.Errorf("query simulated PRs for fork %d: %w", forkID, err)
	}
	defer rows.Close()

	var prs []model.SimulatedPR
	for rows.Next() {
		pr, err := scanSimulatedPR(rows)
		if err != nil {
			return nil, fmt.Errorf("scan simulated PR: %w", err)
		}
		prs = append(prs, *pr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate simulated PRs: %w", err)
	}

	if prs == nil {
		prs = []model.SimulatedPR{}
	}

	return prs, nil
}

func scanSimulatedPR(s scanner) (*model.SimulatedPR, error) {
	var pr model.SimulatedPR
	var state string
	var createdAt, updatedAt string

	err := s.Scan(
		&pr.ID, &pr.ForkID, &pr.QueueOpID, &pr.Number, &pr.Title, &pr.URL,
		&pr.UpstreamURL, &state, &pr.BugCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	pr.State = model.SimulatedPRState(state)

	pr.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	pr.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &pr, nil
}
