package model

import "time"

// OrgMetrics holds trailing-monthly aggregate activity for an organization,
// persisted only while at least one actionable candidate exists for it.
type OrgMetrics struct {
	Org          string
	PRCount      int
	CommitCount  int
	LinesChanged int
	ComputedAt   time.Time
}
