package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/govambam/prospector/internal/domain/model"
	"github.com/govambam/prospector/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.QueueStore = (*QueueRepo)(nil)

// QueueRepo is the SQLite implementation of the QueueStore port interface.
// Status transitions are enforced in SQL via guarded UPDATEs: each transition
// includes the expected current status in its WHERE clause, so an illegal
// transition affects zero rows and is reported as model.ErrInvalidState.
type QueueRepo struct {
	db *DB
}

// NewQueueRepo creates a new QueueRepo backed by the given DB.
func NewQueueRepo(db *DB) *QueueRepo {
	return &QueueRepo{db: db}
}

const queueColumns = `id, operation_type, payload, status, priority, created_by,
       created_at, started_at, completed_at, result, error`

// Enqueue inserts a new operation with status queued and returns its ID.
func (r *QueueRepo) Enqueue(ctx context.Context, op model.QueueOperation) (int64, error) {
	return enqueueOp(ctx, r.db.Writer, op)
}

// enqueueOp performs the insert against any execer so EnqueueSimulatePR can
// reuse it inside a transaction.
func enqueueOp(ctx context.Context, ex execer, op model.QueueOperation) (int64, error) {
	payload, err := model.EncodePayload(op.Type, op.Payload)
	if err != nil {
		return 0, err
	}

	const query = `
		INSERT INTO queue_operations (operation_type, payload, status, priority, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := ex.ExecContext(ctx, query,
		string(op.Type), payload, string(model.OpStatusQueued),
		op.Priority, op.CreatedBy, op.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s operation: %w", op.Type, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read enqueued operation id: %w", err)
	}

	return id, nil
}

// GetByID returns a single operation, or model.ErrNotFound.
func (r *QueueRepo) GetByID(ctx context.Context, id int64) (*model.QueueOperation, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_operations WHERE id = ?`

	op, err := scanQueueOp(r.db.Reader.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("queue operation %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get queue operation %d: %w", id, err)
	}

	return op, nil
}

// GetByIDs returns the operations matching the given IDs; missing IDs are
// silently omitted.
func (r *QueueRepo) GetByIDs(ctx context.Context, ids []int64) ([]model.QueueOperation, error) {
	if len(ids) == 0 {
		return []model.QueueOperation{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `SELECT ` + queueColumns + ` FROM queue_operations WHERE id IN (` + placeholders + `) ORDER BY id`

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	return r.queryOps(ctx, query, args...)
}

// ListPending returns queued and processing operations ordered by priority
// descending, then creation order.
func (r *QueueRepo) ListPending(ctx context.Context) ([]model.QueueOperation, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM queue_operations
		WHERE status IN ('queued', 'processing')
		ORDER BY priority DESC, created_at, id
	`

	return r.queryOps(ctx, query)
}

// NextQueued returns the head of the queue, or nil when nothing is queued.
func (r *QueueRepo) NextQueued(ctx context.Context) (*model.QueueOperation, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM queue_operations
		WHERE status = 'queued'
		ORDER BY priority DESC, created_at, id
		LIMIT 1
	`

	op, err := scanQueueOp(r.db.Reader.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued operation: %w", err)
	}

	return op, nil
}

// MarkProcessing transitions queued→processing and records startedAt.
func (r *QueueRepo) MarkProcessing(ctx context.Context, id int64, startedAt time.Time) error {
	const query = `
		UPDATE queue_operations
		SET status = 'processing', started_at = ?
		WHERE id = ? AND status = 'queued'
	`

	return r.guardedTransition(ctx, id, "processing", query, startedAt.UTC(), id)
}

// MarkCompleted transitions processing→completed with a result payload.
func (r *QueueRepo) MarkCompleted(ctx context.Context, id int64, result model.SimulatePRResult, completedAt time.Time) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal operation result: %w", err)
	}

	const query = `
		UPDATE queue_operations
		SET status = 'completed', completed_at = ?, result = ?
		WHERE id = ? AND status = 'processing'
	`

	return r.guardedTransition(ctx, id, "completed", query, completedAt.UTC(), string(resultJSON), id)
}

// MarkFailed transitions processing→failed with an error message.
func (r *QueueRepo) MarkFailed(ctx context.Context, id int64, errMsg string, completedAt time.Time) error {
	const query = `
		UPDATE queue_operations
		SET status = 'failed', completed_at = ?, error = ?
		WHERE id = ? AND status = 'processing'
	`

	return r.guardedTransition(ctx, id, "failed", query, completedAt.UTC(), errMsg, id)
}

// Cancel transitions queued→cancelled. The row is kept for audit rather
// than deleted.
func (r *QueueRepo) Cancel(ctx context.Context, id int64) error {
	const query = `
		UPDATE queue_operations
		SET status = 'cancelled', completed_at = ?
		WHERE id = ? AND status = 'queued'
	`

	return r.guardedTransition(ctx, id, "cancelled", query, time.Now().UTC(), id)
}

// guardedTransition runs a status-guarded UPDATE and distinguishes a missing
// row (ErrNotFound) from a row in the wrong state (ErrInvalidState).
func (r *QueueRepo) guardedTransition(ctx context.Context, id int64, to string, query string, args ...any) error {
	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark operation %d %s: %w", id, to, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var status string
	err = r.db.Reader.QueryRowContext(ctx, `SELECT status FROM queue_operations WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("queue operation %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check operation %d status: %w", id, err)
	}

	return fmt.Errorf("queue operation %d is %s, cannot mark %s: %w", id, status, to, model.ErrInvalidState)
}

func (r *QueueRepo) queryOps(ctx context.Context, query string, args ...any) ([]model.QueueOperation, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query queue operations: %w", err)
	}
	defer rows.Close()

	var ops []model.QueueOperation
	for rows.Next() {
		op, err := scanQueueOp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue operation: %w", err)
		}
		ops = append(ops, *op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue operations: %w", err)
	}

	if ops == nil {
		ops = []model.QueueOperation{}
	}

	return ops, nil
}

func scanQueueOp(s scanner) (*model.QueueOperation, error) {
	var op model.QueueOperation
	var opType, status, payload string
	var createdAt string
	var startedAt, completedAt, result sql.NullString

	err := s.Scan(
		&op.ID, &opType, &payload, &status, &op.Priority, &op.CreatedBy,
		&createdAt, &startedAt, &completedAt, &result, &op.Error,
	)
	if err != nil {
		return nil, err
	}

	op.Type = model.OperationType(opType)
	op.Status = model.OperationStatus(status)

	op.Payload, err = model.DecodePayload(op.Type, payload)
	if err != nil {
		return nil, err
	}

	op.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	if op.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if op.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}

	if result.Valid && result.String != "" {
		var res model.SimulatePRResult
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return nil, fmt.Errorf("unmarshal operation result: %w", err)
		}
		op.Result = &res
	}

	return &op, nil
}
