// Package model holds the domain types for queue operations, forks,
// simulated PRs, and discovery candidates.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// OperationType identifies the kind of work a queue operation carries.
type OperationType string

const (
	OpTypeSimulatePR OperationType = "simulate_pr"
)

// OperationStatus represents the lifecycle state of a queue operation.
type OperationStatus string

const (
	OpStatusQueued     OperationStatus = "queued"
	OpStatusProcessing OperationStatus = "processing"
	OpStatusCompleted  OperationStatus = "completed"
	OpStatusFailed     OperationStatus = "failed"
	OpStatusCancelled  OperationStatus = "cancelled"
)

// IsTerminal returns true for statuses that admit no further transitions.
func (s OperationStatus) IsTerminal() bool {
	return s == OpStatusCompleted || s == OpStatusFailed || s == OpStatusCancelled
}

// CanTransition reports whether moving from s to next is a legal state
// machine edge. Legal edges: queued→processing, processing→completed,
// processing→failed, queued→cancelled.
func (s OperationStatus) CanTransition(next OperationStatus) bool {
	switch s {
	case OpStatusQueued:
		return next == OpStatusProcessing || next == OpStatusCancelled
	case OpStatusProcessing:
		return next == OpStatusCompleted || next == OpStatusFailed
	default:
		return false
	}
}

// SimulatePRPayload is the payload for a simulate_pr operation.
type SimulatePRPayload struct {
	PRURL     string `json:"pr_url"`
	TargetOrg string `json:"target_org,omitempty"`
	CacheRepo string `json:"cache_repo,omitempty"`
}

// SimulatePRResult is the success payload recorded when a simulate_pr
// operation completes.
type SimulatePRResult struct {
	ForkURL  string `json:"fork_url"`
	PRNumber int    `json:"pr_number"`
	PRURL    string `json:"pr_url"`
	Branch   string `json:"branch"`
}

// QueueOperation is a persisted long-running operation. The processor is the
// only writer of processing/completed/failed transitions; cancellation is
// only legal while queued.
type QueueOperation struct {
	ID          int64
	Type        OperationType
	Payload     SimulatePRPayload
	Status      OperationStatus
	Priority    int // Higher dequeues first; ties break on creation order.
	CreatedBy   string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      *SimulatePRResult
	Error       string
}

// EncodePayload serializes an operation payload for its declared type.
// The payload column is a tagged union keyed by operation type; unknown
// types are rejected rather than stored opaquely.
func EncodePayload(opType OperationType, payload SimulatePRPayload) (string, error) {
	switch opType {
	case OpTypeSimulatePR:
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("marshal %s payload: %w", opType, err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: unknown operation type %q", ErrValidation, opType)
	}
}

// DecodePayload deserializes a stored payload for its declared type,
// validating required fields at the read boundary.
func DecodePayload(opType OperationType, raw string) (SimulatePRPayload, error) {
	switch opType {
	case OpTypeSimulatePR:
		var p SimulatePRPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return SimulatePRPayload{}, fmt.Errorf("unmarshal %s payload: %w", opType, err)
		}
		if p.PRURL == "" {
			return SimulatePRPayload{}, fmt.Errorf("%w: %s payload missing pr_url", ErrValidation, opType)
		}
		return p, nil
	default:
		return SimulatePRPayload{}, fmt.Errorf("%w: unknown operation type %q", ErrValidation, opType)
	}
}
