package model

import "time"

// Fork represents a scratch fork of a third-party repository, owned by the
// configured GitHub account and used to host simulated PRs.
type Fork struct {
	ID         int64
	Owner      string
	Repo       string
	URL        string
	IsInternal bool // True when the fork lives under the configured target org.
	CreatedAt  time.Time
}

// SimulatedPRState represents the lifecycle of a simulated PR row.
type SimulatedPRState string

const (
	SimPRStatePending SimulatedPRState = "pending" // Optimistic row, workflow not yet run.
	SimPRStateOpen    SimulatedPRState = "open"
	SimPRStateClosed  SimulatedPRState = "closed"
)

// SimulatedPR is a pull request opened in a scratch fork to trigger an
// automated review. An optimistic row is created at enqueue time with
// Number 0 and a placeholder URL; the processor reconciles real values
// once the workflow executes.
type SimulatedPR struct {
	ID          int64
	ForkID      int64
	QueueOpID   int64 // Queue operation that will (or did) produce this PR.
	Number      int
	Title       string
	URL         string
	UpstreamURL string // URL of the third-party PR being replayed.
	State       SimulatedPRState
	BugCount    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsPlaceholder returns true while the row still carries optimistic values.
func (pr SimulatedPR) IsPlaceholder() bool {
	return pr.Number == 0
}
