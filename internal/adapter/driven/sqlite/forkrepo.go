package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/govambam/prospector/internal/domain/model"
	"github.com/govambam/prospector/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ForkStore = (*ForkRepo)(nil)

// ForkRepo is the SQLite implementation of the ForkStore port interface.
type ForkRepo struct {
	db *DB
}

// NewForkRepo creates a new ForkRepo backed by the given DB.
func NewForkRepo(db *DB) *ForkRepo {
	return &ForkRepo{db: db}
}

// Create inserts a fork and returns its ID.
func (r *ForkRepo) Create(ctx context.Context, fork model.Fork) (int64, error) {
	return createFork(ctx, r.db.Writer, fork)
}

func createFork(ctx context.Context, ex execer, fork model.Fork) (int64, error) {
	const query = `
		INSERT INTO forks (owner, repo, url, is_internal, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	isInternal := 0
	if fork.IsInternal {
		isInternal = 1
	}

	result, err := ex.ExecContext(ctx, query,
		fork.Owner, fork.Repo, fork.URL, isInternal, fork.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("create fork %s/%s: %w", fork.Owner, fork.Repo, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read created fork id: %w", err)
	}

	return id, nil
}

// UpdateFromWorkflow reconciles an optimistic fork row with the owner and
// URL GitHub reported. Returns model.ErrNotFound when the row is gone.
func (r *ForkRepo) UpdateFromWorkflow(ctx context.Context, id int64, owner, url string) error {
	const query = `UPDATE forks SET owner = ?, url = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, owner, url, id)
	if err != nil {
		return fmt.Errorf("update fork %d from workflow: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows for fork %d: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: fork %d", model.ErrNotFound, id)
	}

	return nil
}

// GetByRepo returns the fork for owner/repo, or nil if absent.
func (r *ForkRepo) GetByRepo(ctx context.Context, owner, repo string) (*model.Fork, error) {
	const query = `
		SELECT id, owner, repo, url, is_internal, created_at
		FROM forks
		WHERE owner = ? AND repo = ?
	`

	fork, err := scanFork(r.db.Reader.QueryRowContext(ctx, query, owner, repo))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fork %s/%s: %w", owner, repo, err)
	}

	return fork, nil
}

// ListInternal returns all forks owned by the configured target org, newest first.
func (r *ForkRepo) ListInternal(ctx context.Context) ([]model.Fork, error) {
	const query = `
		SELECT id, owner, repo, url, is_internal, created_at
		FROM forks
		WHERE is_internal = 1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query internal forks: %w", err)
	}
	defer rows.Close()

	var forks []model.Fork
	for rows.Next() {
		fork, err := scanFork(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fork: %w", err)
		}
		forks = append(forks, *fork)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forks: %w", err)
	}

	if forks == nil {
		forks = []model.Fork{}
	}

	return forks, nil
}

func scanFork(s scanner) (*model.Fork, error) {
	var fork model.Fork
	var isInternal int
	var createdAt string

	err := s.Scan(&fork.ID, &fork.Owner, &fork.Repo, &fork.URL, &isInternal, &createdAt)
	if err != nil {
		return nil, err
	}

	fork.IsInternal = isInternal != 0

	fork.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &fork, nil
}
