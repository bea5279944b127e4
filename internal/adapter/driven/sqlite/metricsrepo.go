package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/govambam/prospector/internal/domain/model"
	"github.com/govambam/prospector/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MetricsStore = (*MetricsRepo)(nil)

// MetricsRepo is the SQLite implementation of the MetricsStore port interface.
type MetricsRepo struct {
	db *DB
}

// NewMetricsRepo creates a new MetricsRepo backed by the given DB.
func NewMetricsRepo(db *DB) *MetricsRepo {
	return &MetricsRepo{db: db}
}

// Upsert inserts or replaces the metrics row for an org.
func (r *MetricsRepo) Upsert(ctx context.Context, m model.OrgMetrics) error {
	const query = `
		INSERT INTO org_metrics (org, pr_count, commit_count, lines_changed, computed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(org) DO UPDATE SET
			pr_count = excluded.pr_count,
			commit_count = excluded.commit_count,
			lines_changed = excluded.lines_changed,
			computed_at = excluded.computed_at
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		m.Org, m.PRCount, m.CommitCount, m.LinesChanged, m.ComputedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert metrics for %s: %w", m.Org, err)
	}

	return nil
}

// Get returns the metrics for an org, or nil if absent.
func (r *MetricsRepo) Get(ctx context.Context, org string) (*model.OrgMetrics, error) {
	const query = `
		SELECT org, pr_count, commit_count, lines_changed, computed_at
		FROM org_metrics
		WHERE org = ?
	`

	var m model.OrgMetrics
	var computedAt string

	err := r.db.Reader.QueryRowContext(ctx, query, org).Scan(
		&m.Org, &m.PRCount, &m.CommitCount, &m.LinesChanged, &computedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metrics for %s: %w", org, err)
	}

	m.ComputedAt, err = parseTime(computedAt)
	if err != nil {
		return nil, fmt.Errorf("parse computed_at: %w", err)
	}

	return &m, nil
}

// Delete removes the metrics for an org. Deleting an absent row is not an error.
func (r *MetricsRepo) Delete(ctx context.Context, org string) error {
	const query = `DELETE FROM org_metrics WHERE org = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, org); err != nil {
		return fmt.Errorf("delete metrics for %s: %w", org, err)
	}

	return nil
}
