// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/govambam/prospector/internal/domain/model"
	"github.com/govambam/prospector/internal/domain/port/driven"
)

// EnqueueResult is returned to callers when a simulate PR operation is queued.
type EnqueueResult struct {
	QueueID       int64
	ForkID        int64
	PRID          int64
	QueuePosition int
}

// QueueStatus is the aggregate returned for a status query without IDs.
type QueueStatus struct {
	Status  string
	Pending []model.QueueOperation
}

// QueueService validates and enqueues simulate PR operations and answers
// status and cancellation requests. Workflow execution belongs to the
// Processor.
type QueueService struct {
	store    driven.QueueStore
	enqueuer driven.SimulatePREnqueuer
	username string // Fork owner when no target org is given.
	kick     func() // Nudges the processor after enqueue; may be nil.
}

// NewQueueService creates a QueueService. username is the GitHub account
// forks land under when an enqueue names no target org. kick may be nil when
// no processor is running (e.g. in tests).
func NewQueueService(store driven.QueueStore, enqueuer driven.SimulatePREnqueuer, username string, kick func()) *QueueService {
	return &QueueService{
		store:    store,
		enqueuer: enqueuer,
		username: username,
		kick:     kick,
	}
}

// EnqueueSimulatePR validates the PR URL, rejects duplicates against pending
// operations, and creates the operation together with its optimistic fork
// and simulated PR rows.
func (s *QueueService) EnqueueSimulatePR(ctx context.Context, prURL, targetOrg, createdBy string, priority int) (*EnqueueResult, error) {
	owner, repo, number, err := model.ParsePRURL(prURL)
	if err != nil {
		return nil, err
	}

	normalized, err := model.NormalizePRURL(prURL)
	if err != nil {
		return nil, err
	}

	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending operations: %w", err)
	}

	position := 0
	for _, op := range pending {
		if op.Type != model.OpTypeSimulatePR {
			continue
		}
		pendingURL, normErr := model.NormalizePRURL(op.Payload.PRURL)
		if normErr == nil && pendingURL == normalized {
			return nil, fmt.Errorf("%w: operation for %s already %s", model.ErrConflict, normalized, op.Status)
		}
		if op.Status == model.OpStatusQueued && op.Priority >= priority {
			position++
		}
	}

	now := time.Now().UTC()
	op := model.QueueOperation{
		Type: model.OpTypeSimulatePR,
		Payload: model.SimulatePRPayload{
			PRURL:     normalized,
			TargetOrg: targetOrg,
			CacheRepo: owner + "/" + repo,
		},
		Priority:  priority,
		CreatedBy: createdBy,
		CreatedAt: now,
	}

	// The optimistic fork row carries the owner the fork will actually land
	// under, so duplicate enqueues for the same destination reuse one row.
	// The processor reconciles owner and URL with what GitHub reports.
	forkOwner := targetOrg
	if forkOwner == "" {
		forkOwner = s.username
	}

	fork := model.Fork{
		Owner:      forkOwner,
		Repo:       repo,
		URL:        fmt.Sprintf("https://github.com/%s/%s", forkOwner, repo),
		IsInternal: targetOrg != "",
		CreatedAt:  now,
	}

	pr := model.SimulatedPR{
		Number:      0,
		Title:       fmt.Sprintf("Simulated review of %s/%s#%d", owner, repo, number),
		URL:         "pending",
		UpstreamURL: normalized,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	opID, forkID, prID, err := s.enqueuer.EnqueueSimulatePR(ctx, op, fork, pr)
	if err != nil {
		return nil, fmt.Errorf("enqueue simulate PR: %w", err)
	}

	if s.kick != nil {
		s.kick()
	}

	return &EnqueueResult{
		QueueID:       opID,
		ForkID:        forkID,
		PRID:          prID,
		QueuePosition: position,
	}, nil
}

// Status returns the operations matching the given IDs, or the pending
// overview when ids is empty.
func (s *QueueService) Status(ctx context.Context, ids []int64) ([]model.QueueOperation, *QueueStatus, error) {
	if len(ids) > 0 {
		ops, err := s.store.GetByIDs(ctx, ids)
		if err != nil {
			return nil, nil, fmt.Errorf("get operations by ids: %w", err)
		}
		return ops, nil, nil
	}

	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list pending operations: %w", err)
	}

	status := "idle"
	for _, op := range pending {
		if op.Status == model.OpStatusProcessing {
			status = "processing"
			break
		}
	}
	if status == "idle" && len(pending) > 0 {
		status = "queued"
	}

	return nil, &QueueStatus{Status: status, Pending: pending}, nil
}

// Cancel cancels a still-queued operation. Processing and terminal
// operations cannot be cancelled.
func (s *QueueService) Cancel(ctx context.Context, id int64) error {
	return s.store.Cancel(ctx, id)
}
