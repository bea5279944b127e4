package driven

import (
	"context"

	"github.com/govambam/prospector/internal/domain/model"
)

// MetricsStore defines the driven port for org metrics persistence.
// Metrics exist only while a discovery run produced at least one candidate.
type MetricsStore interface {
	Upsert(ctx context.Context, m model.OrgMetrics) error
	// Get returns the metrics for an org, or nil if absent.
	Get(ctx context.Context, org string) (*model.OrgMetrics, error)
	// Delete removes the metrics for an org. Deleting an absent row is not
	// an error.
	Delete(ctx context.Context, org string) error
}
