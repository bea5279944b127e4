package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govambam/prospector/internal/domain/model"
)

func testOperation(prURL string, priority int) model.QueueOperation {
	return model.QueueOperation{
		Type: model.OpTypeSimulatePR,
		Payload: model.SimulatePRPayload{
			PRURL:     prURL,
			TargetOrg: "acme-sim",
			CacheRepo: "upstream/widget",
		},
		Priority:  priority,
		CreatedBy: "tester",
		CreatedAt: time.Now().UTC(),
	}
}

func TestQueueRepo_Enqueue_GetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepo(db)
	ctx := context.Background()

	id, err := repo.Enqueue(ctx, testOperation("https://github.com/upstream/widget/pull/42", 5))
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	op, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.OpTypeSimulatePR, op.Type)
	assert.Equal(t, model.OpStatusQueued, op.Status)
	assert.Equal(t, "https://github.com/upstream/widget/pull/42", op.Payload.PRURL)
	assert.Equal(t, "acme-sim", op.Payload.TargetOrg)
	assert.Equal(t, 5, op.Priority)
	assert.Equal(t, "tester", op.CreatedBy)
	assert.Nil(t, op.StartedAt)
	assert.Nil(t, op.CompletedAt)
	assert.Nil(t, op.Result)
	assert.Empty(t, op.Error)
}

func TestQueueRepo_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepo(db)

	op, err := repo.GetByID(context.Background(), 999)

	assert.Nil(t, op)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestQueueRepo_GetByIDs_OmitsMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepo(db)
	ctx := context.Background()

	id1, err := repo.Enqueue(ctx, testOperation("https://github.com/upstream/widget/pull/1", 0))
	require.NoError(t, err)
	id2, err := repo.Enqueue(ctx, testOperation("https://github.com/upstream/widget/pull/2", 0))
	require.NoError(t, err)

	ops, err := repo.GetByIDs(ctx, []int64{id1, id2, 999})
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, id1, ops[0].ID)
	assert.Equal(t, id2, ops[1].ID)
}

func TestQueueRepo_GetByIDs_Empty(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepo(db)

	ops, err := repo.GetByIDs(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, ops)
}

// TestQueueRepo_NextQueued_PriorityOrder verifies the dequeue order: higher
// priority first, creation order within equal priority.
func TestQueueRepo_NextQueued_PriorityOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepo(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	low := testOperation("https://github.com/upstream/widget/pull/1", 0)
	low.CreatedAt = base
	_, err := repo.Enqueue(ctx, low)
	require.NoError(t, err)

	high := testOperation("https://github.com/upstream/widget/pull/2", 10)
	high.CreatedAt = base.Add(time.Minute)
	highID, err := repo.Enqueue(ctx, high)
	require.NoError(t, err)

	highLater := testOperation("https://github.com/upstream/widget/pull/3", 10)
	highLater.CreatedAt = base.Add(2 * time.Minute)
	_, err = repo.Enqueue(ctx, highLater)
	require.NoError(t, err)

	next, err := repo.NextQueued(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, highID, next.ID)

	require.NoError(t, repo.MarkProcessing(ctx, highID, time.Now().UTC()))
	require.NoError(t, repo.MarkCompleted(ctx, highID, model.SimulatePRResult{}, time.Now().UTC()))

	next, err = repo.NextQueued(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "https://github.com/upstream/widget/pull/3", next.Payload.PRURL)
}

func TestQueueRepo_NextQueued_EmptyQueue(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepo(db)

	next, err := repo.NextQueued(context.Background())

	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestQueueRepo_MarkProcessing_RecordsStartedAt(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepo(db)
	ctx := context.Background()

	id, err := repo.Enqueue(ctx, testOperation("https://github.com/upstream/widget/pull/7", 0))
	require.NoError(t, err)

	started := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, repo.MarkProcessing(ctx, id, started))

	op, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.OpStatusProcessing, op.Status)
	require.NotNil(t, op.StartedAt)
	assert.Equal(t, started, op.StartedAt.UTC())
}

func TestQueueRepo_MarkCompleted_StoresResult(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepo(db)
	ctx := context.Background()

	id, err := repo.Enqueue(ctx, testOperation("https://github.com/upstream/widget/pull/7", 0))
	require.NoError(t, err)
	require.NoError(t, repo.MarkProcessing(ctx, id, time.Now().UTC()))

	result := model.SimulatePRResult{
		ForkURL:  "https://github.com/acme-sim/widget",
		PRNumber: 3,
		PRURL:    "https://github.com/acme-sim/widget/pull/3",
		Branch:   "simulated-pr-1",
	}
	require.NoError(t, repo.MarkCompleted(ctx, id, result, time.Now().UTC()))

	op, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.OpStatusCompleted, op.Status)
	require.NotNil(t, op.CompletedAt)
	require.NotNil(t, op.Result)
	assert.Equal(t, result, *op.Result)
}

func TestQueueRepo_MarkFailed_StoresError(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepo(db)
	ctx := context.Background()

	id, err := repo.Enqueue(ctx, testOperation("https://github.com/upstream/widget/pull/7", 0))
	require.NoError(t, err)
	require.NoError(t, repo.MarkProcessing(ctx, id, time.Now().UTC()))

	require.NoError(t, repo.MarkFailed(ctx, id, "fork creation failed", time.Now().UTC()))

	op, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.OpStatusFailed, op.Status)
	assert.Equal(t, "fork creation failed", op.Error)
	assert.Nil(t, op.Result)
}

// TestQueueRepo_IllegalTransitions verifies the guarded UPDATEs reject every
// edge outside queued→processing→{completed,failed} and queued→cancelled.
func TestQueueRepo_IllegalTransitions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepo(db)
	ctx := context.Background()

	id, err := repo.Enqueue(ctx, testOperation("https://github.com/upstream/widget/pull/7", 0))
	require.NoError(t, err)

	// Completed and failed require processing first.
	require.ErrorIs(t, repo.MarkCompleted(ctx, id, model.SimulatePRResult{}, time.Now().UTC()), model.ErrInvalidState)
	require.ErrorIs(t, repo.MarkFailed(ctx, id, "boom", time.Now().UTC()), model.ErrInvalidState)

	require.NoError(t, repo.MarkProcessing(ctx, id, time.Now().UTC()))

	// Processing is not re-enterable and not cancellable.
	require.ErrorIs(t, repo.MarkProcessing(ctx, id, time.Now().UTC()), model.ErrInvalidState)
	require.ErrorIs(t, repo.Cancel(ctx, id), model.ErrInvalidState)

	require.NoError(t, repo.MarkCompleted(ctx, id, model.SimulatePRResult{}, time.Now().UTC()))

	// Terminal states admit nothing.
	require.ErrorIs(t, repo.MarkProcessing(ctx, id, time.Now().UTC()), model.ErrInvalidState)
	require.ErrorIs(t, repo.MarkFailed(ctx, id, "boom", time.Now().UTC()), model.ErrInvalidState)
	require.ErrorIs(t, repo.Cancel(ctx, id), model.ErrInvalidState)
}

func TestQueueRepo_Cancel_QueuedOnly(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepo(db)
	ctx := context.Background()

	id, err := repo.Enqueue(ctx, testOperation("https://github.com/upstream/widget/pull/7", 0))
	require.NoError(t, err)

	require.NoError(t, repo.Cancel(ctx, id))

	op, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.OpStatusCancelled, op.Status)
	require.NotNil(t, op.CompletedAt)

	// Cancelled rows stay cancelled.
	require.ErrorIs(t, repo.Cancel(ctx, id), model.ErrInvalidState)
	require.ErrorIs(t, repo.MarkProcessing(ctx, id, time.Now().UTC()), model.ErrInvalidState)
}

func TestQueueRepo_Cancel_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepo(db)

	require.ErrorIs(t, repo.Cancel(context.Background(), 999), model.ErrNotFound)
}

func TestQueueRepo_ListPending_ExcludesTerminal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQueueRepo(db)
	ctx := context.Background()

	queuedID, err := repo.Enqueue(ctx, testOperation("https://github.com/upstream/widget/pull/1", 0))
	require.NoError(t, err)

	processingID, err := repo.Enqueue(ctx, testOperation("https://github.com/upstream/widget/pull/2", 0))
	require.NoError(t, err)
	require.NoError(t, repo.MarkProcessing(ctx, processingID, time.Now().UTC()))

	doneID, err := repo.Enqueue(ctx, testOperation("https://github.com/upstream/widget/pull/3", 0))
	require.NoError(t, err)
	require.NoError(t, repo.MarkProcessing(ctx, doneID, time.Now().UTC()))
	require.NoError(t, repo.MarkCompleted(ctx, doneID, model.SimulatePRResult{}, time.Now().UTC()))

	cancelledID, err := repo.Enqueue(ctx, testOperation("https://github.com/upstream/widget/pull/4", 0))
	require.NoError(t, err)
	require.NoError(t, repo.Cancel(ctx, cancelledID))

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	ids := []int64{pending[0].ID, pending[1].ID}
	assert.Contains(t, ids, queuedID)
	assert.Contains(t, ids, processingID)
}
