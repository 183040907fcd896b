package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/possync/internal/config"
	"github.com/prudhvinik1/possync/internal/models"
	"github.com/prudhvinik1/possync/internal/repositories"
	"github.com/prudhvinik1/possync/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue() (*QueueService, repositories.SyncItemRepository) {
	items := repositories.NewStoreSyncItemRepository(storage.NewMemoryStore())
	return NewQueueService(items, config.DefaultEntityWeights()), items
}

func TestQueueService_EnqueueReturnsBatch(t *testing.T) {
	queue, items := newTestQueue()
	ctx := context.Background()
	businessID := uuid.New()

	batch, err := queue.Enqueue(ctx, "c1", businessID, []EnqueueItem{
		{
			EntityType:      models.EntityOrder,
			Operation:       models.OpCreate,
			Payload:         map[string]any{"total": 42},
			ClientTimestamp: time.Now(),
		},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, batch.ID)
	assert.Equal(t, 1, batch.TotalItems)

	// Every item is durably recorded before Enqueue returns
	ids, err := items.QueueItemIDs(ctx, "c1", 0, 0)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	stored, err := items.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, businessID, stored.BusinessID)
}

// TestQueueService_PriorityFormula verifies the documented weights: earlier
// batch positions slightly preferred, financial entities before catalog
// edits, creations before deletes.
func TestQueueService_PriorityFormula(t *testing.T) {
	queue, items := newTestQueue()
	ctx := context.Background()
	businessID := uuid.New()

	_, err := queue.Enqueue(ctx, "c1", businessID, []EnqueueItem{
		{EntityType: models.EntityCategory, Operation: models.OpDelete, EntityID: uuid.New(), ClientTimestamp: time.Now()},
		{EntityType: models.EntityProduct, Operation: models.OpUpdate, EntityID: uuid.New(), ClientTimestamp: time.Now()},
		{EntityType: models.EntityOrder, Operation: models.OpCreate, ClientTimestamp: time.Now()},
	})
	require.NoError(t, err)

	ids, err := items.QueueItemIDs(ctx, "c1", 0, 0)
	require.NoError(t, err)
	queued, err := items.GetItems(ctx, ids)
	require.NoError(t, err)
	require.Len(t, queued, 3)

	// order CREATE at position 2: 100 - 2 + 1000 + 50 = 1148
	assert.Equal(t, models.EntityOrder, queued[0].EntityType)
	assert.Equal(t, 1148, queued[0].Priority)
	// product UPDATE at position 1: 100 - 1 + 400 + 30 = 529
	assert.Equal(t, models.EntityProduct, queued[1].EntityType)
	assert.Equal(t, 529, queued[1].Priority)
	// category DELETE at position 0: 100 - 0 + 300 + 10 = 410
	assert.Equal(t, models.EntityCategory, queued[2].EntityType)
	assert.Equal(t, 410, queued[2].Priority)
}

func TestQueueService_SamePriorityKeepsInsertionOrder(t *testing.T) {
	queue, items := newTestQueue()
	ctx := context.Background()

	// Two batches: identical item shape gets identical priority
	first, err := queue.Enqueue(ctx, "c1", uuid.New(), []EnqueueItem{
		{EntityType: models.EntityOrder, Operation: models.OpCreate, ClientTimestamp: time.Now()},
	})
	require.NoError(t, err)
	second, err := queue.Enqueue(ctx, "c1", first.BusinessID, []EnqueueItem{
		{EntityType: models.EntityOrder, Operation: models.OpCreate, ClientTimestamp: time.Now()},
	})
	require.NoError(t, err)

	ids, err := items.QueueItemIDs(ctx, "c1", 0, 0)
	require.NoError(t, err)
	queued, err := items.GetItems(ctx, ids)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, first.ID, queued[0].BatchID, "earlier enqueue dequeues first on ties")
	assert.Equal(t, second.ID, queued[1].BatchID)
}

func TestQueueService_RejectsUnknownEntityType(t *testing.T) {
	queue, _ := newTestQueue()

	_, err := queue.Enqueue(context.Background(), "c1", uuid.New(), []EnqueueItem{
		{EntityType: "spaceship", Operation: models.OpCreate, ClientTimestamp: time.Now()},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestQueueService_RejectsUnknownOperation(t *testing.T) {
	queue, _ := newTestQueue()

	_, err := queue.Enqueue(context.Background(), "c1", uuid.New(), []EnqueueItem{
		{EntityType: models.EntityOrder, Operation: "UPSERT", ClientTimestamp: time.Now()},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestQueueService_RejectsPayloadTenantMismatch(t *testing.T) {
	queue, _ := newTestQueue()

	_, err := queue.Enqueue(context.Background(), "c1", uuid.New(), []EnqueueItem{
		{
			EntityType:      models.EntityOrder,
			Operation:       models.OpCreate,
			Payload:         map[string]any{"businessId": uuid.New().String()},
			ClientTimestamp: time.Now(),
		},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestQueueService_RejectsMissingEntityIDForUpdate(t *testing.T) {
	queue, _ := newTestQueue()

	_, err := queue.Enqueue(context.Background(), "c1", uuid.New(), []EnqueueItem{
		{EntityType: models.EntityOrder, Operation: models.OpUpdate, ClientTimestamp: time.Now()},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestQueueService_StatusCounts(t *testing.T) {
	queue, items := newTestQueue()
	ctx := context.Background()
	businessID := uuid.New()

	_, err := queue.Enqueue(ctx, "c1", businessID, []EnqueueItem{
		{EntityType: models.EntityOrder, Operation: models.OpCreate, ClientTimestamp: time.Now()},
		{EntityType: models.EntityProduct, Operation: models.OpCreate, ClientTimestamp: time.Now()},
	})
	require.NoError(t, err)

	// Flip one item to CONFLICT by hand
	ids, err := items.QueueItemIDs(ctx, "c1", 0, 0)
	require.NoError(t, err)
	queued, err := items.GetItems(ctx, ids)
	require.NoError(t, err)
	queued[1].Status = models.StatusConflict
	require.NoError(t, items.SaveItem(ctx, queued[1]))

	status, err := queue.Status(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, status.Pending)
	assert.Equal(t, 1, status.Conflicts)
	assert.False(t, status.IsProcessing)

	conflicts, err := queue.Conflicts(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, queued[1].ID, conflicts[0].ID)
}
