package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/govambam/prospector/internal/domain/model"
	"github.com/govambam/prospector/internal/domain/port/driven"
	"github.com/govambam/prospector/internal/repocache"
)

const (
	// forkPollDelay paces fork-readiness polling. GitHub creates forks
	// asynchronously; this is rate shaping, not a concurrency primitive.
	forkPollDelay    = 2 * time.Second
	forkPollAttempts = 15
)

// RepoCloner is the slice of the repo cache the processor needs.
type RepoCloner interface {
	EnsureClone(ctx context.Context, owner, repo string) (repocache.Action, error)
}

// Processor dequeues operations in priority order and drives the simulate PR
// workflow: fork, local clone under lock/semaphore, branch, PR. It is the
// only writer of processing/completed/failed transitions. Operations are
// never silently dropped; a workflow panic is recovered and recorded as a
// failure. There is no cooperative cancellation once a workflow starts.
type Processor struct {
	queueStore driven.QueueStore
	forkStore  driven.ForkStore
	prStore    driven.SimulatedPRStore
	gh         driven.GitHubClient
	cache      RepoCloner
	interval   time.Duration
	kickCh     chan struct{}
}

// NewProcessor creates a Processor. gh may be nil when no GitHub credentials
// are configured; queued operations then fail with a configuration error
// instead of sitting forever.
func NewProcessor(
	queueStore driven.QueueStore,
	forkStore driven.ForkStore,
	prStore driven.SimulatedPRStore,
	gh driven.GitHubClient,
	cache RepoCloner,
	interval time.Duration,
) *Processor {
	return &Processor{
		queueStore: queueStore,
		forkStore:  forkStore,
		prStore:    prStore,
		gh:         gh,
		cache:      cache,
		interval:   interval,
		kickCh:     make(chan struct{}, 1),
	}
}

// Kick nudges the processor to check the queue without waiting for the next
// tick. Non-blocking; a pending nudge absorbs further kicks.
func (p *Processor) Kick() {
	select {
	case p.kickCh <- struct{}{}:
	default:
	}
}

// Start runs the processing loop until the context is canceled. Each wakeup
// drains the queue head by head so a burst of enqueues does not wait a full
// interval per operation.
func (p *Processor) Start(ctx context.Context) {
	p.drain(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("queue processor stopped")
			return
		case <-ticker.C:
			p.drain(ctx)
		case <-p.kickCh:
			p.drain(ctx)
		}
	}
}

// drain processes queued operations until the queue is empty or the context
// is canceled.
func (p *Processor) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := p.runNext(ctx)
		if err != nil {
			slog.Error("queue cycle failed", "error", err)
			return
		}
		if !processed {
			return
		}
	}
}

// runNext claims and executes the head of the queue. Returns false when the
// queue is empty.
func (p *Processor) runNext(ctx context.Context) (bool, error) {
	op, err := p.queueStore.NextQueued(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch next queued operation: %w", err)
	}
	if op == nil {
		return false, nil
	}

	if err := p.queueStore.MarkProcessing(ctx, op.ID, time.Now().UTC()); err != nil {
		// A concurrent cancel can win the race; skip to the next operation.
		slog.Warn("could not claim operation", "id", op.ID, "error", err)
		return true, nil
	}

	slog.Info("operation processing", "id", op.ID, "type", op.Type, "priority", op.Priority)

	result, execErr := p.executeGuarded(ctx, op)
	now := time.Now().UTC()

	if execErr != nil {
		slog.Error("operation failed", "id", op.ID, "error", execErr)
		if markErr := p.queueStore.MarkFailed(ctx, op.ID, execErr.Error(), now); markErr != nil {
			return false, fmt.Errorf("mark operation %d failed: %w", op.ID, markErr)
		}
		return true, nil
	}

	if markErr := p.queueStore.MarkCompleted(ctx, op.ID, *result, now); markErr != nil {
		return false, fmt.Errorf("mark operation %d completed: %w", op.ID, markErr)
	}

	slog.Info("operation completed", "id", op.ID, "pr_url", result.PRURL)
	return true, nil
}

// executeGuarded runs the operation's workflow, converting panics into errors
// so the queue row always reaches a terminal state.
func (p *Processor) executeGuarded(ctx context.Context, op *model.QueueOperation) (result *model.SimulatePRResult, err error) {
	defer func() {
		if v := recover(); v != nil {
			result = nil
			err = fmt.Errorf("workflow panic: %v", v)
		}
	}()

	switch op.Type {
	case model.OpTypeSimulatePR:
		return p.executeSimulatePR(ctx, op)
	default:
		return nil, fmt.Errorf("%w: unknown operation type %q", model.ErrValidation, op.Type)
	}
}

// executeSimulatePR drives the multi-step GitHub workflow: fork the upstream
// repo, ensure the local cache clone, create a work branch, open the PR in
// the fork, reconciling the optimistic fork and simulated PR rows along the
// way.
func (p *Processor) executeSimulatePR(ctx context.Context, op *model.QueueOperation) (*model.SimulatePRResult, error) {
	if p.gh == nil {
		return nil, fmt.Errorf("%w: github credentials required for simulate PR operations", model.ErrNotConfigured)
	}

	owner, repo, number, err := model.ParsePRURL(op.Payload.PRURL)
	if err != nil {
		return nil, err
	}

	simPR, err := p.prStore.GetByQueueOp(ctx, op.ID)
	if err != nil {
		return nil, fmt.Errorf("load optimistic PR row for operation %d: %w", op.ID, err)
	}

	forkOwner, forkURL, err := p.gh.CreateFork(ctx, owner, repo, op.Payload.TargetOrg)
	if err != nil {
		return nil, err
	}

	if err := p.awaitForkReady(ctx, forkOwner, repo); err != nil {
		return nil, err
	}

	// The fork exists on GitHub now; record its real owner and URL even if
	// a later step fails.
	if simPR != nil {
		if err := p.forkStore.UpdateFromWorkflow(ctx, simPR.ForkID, forkOwner, forkURL); err != nil {
			return nil, err
		}
	}

	if _, err := p.cache.EnsureClone(ctx, owner, repo); err != nil {
		return nil, err
	}

	baseBranch, sha, err := p.gh.DefaultBranchSHA(ctx, forkOwner, repo)
	if err != nil {
		return nil, err
	}

	branch := fmt.Sprintf("simulated-pr-%d", op.ID)
	if err := p.gh.CreateBranch(ctx, forkOwner, repo, branch, sha); err != nil {
		return nil, err
	}

	title := fmt.Sprintf("Replay review findings from %s/%s#%d", owner, repo, number)
	body := fmt.Sprintf("Simulated PR replaying %s for automated review.", op.Payload.PRURL)
	prNumber, prURL, err := p.gh.CreatePullRequest(ctx, forkOwner, repo, title, body, branch, baseBranch)
	if err != nil {
		return nil, err
	}

	if simPR != nil {
		if err := p.prStore.UpdateFromWorkflow(ctx, simPR.ID, prNumber, prURL, model.SimPRStateOpen); err != nil {
			return nil, err
		}
	}

	return &model.SimulatePRResult{
		ForkURL:  forkURL,
		PRNumber: prNumber,
		PRURL:    prURL,
		Branch:   branch,
	}, nil
}

// awaitForkReady polls the fork with a fixed inter-request delay until
// GitHub reports it exists.
func (p *Processor) awaitForkReady(ctx context.Context, forkOwner, repo string) error {
	for attempt := 0; attempt < forkPollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(forkPollDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		_, exists, err := p.gh.GetRepo(ctx, forkOwner, repo)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}

	return fmt.Errorf("fork %s/%s not ready after %d attempts", forkOwner, repo, forkPollAttempts)
}
