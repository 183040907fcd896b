package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/possync/internal/models"
	"github.com/prudhvinik1/possync/internal/storage"
)

var ErrNotFound = errors.New("not found")

const (
	itemKeyPrefix       = "sync:item:"
	batchKeyPrefix      = "sync:batch:"
	queueKeyPrefix      = "sync:queue:"
	processingKeyPrefix = "sync:processing:"
	seqKeyPrefix        = "sync:seq:"

	itemTTL       = 7 * 24 * time.Hour
	batchTTL      = 24 * time.Hour
	processingTTL = 30 * time.Minute
)

var (
	negInf = math.Inf(-1)
	posInf = math.Inf(1)
)

// StoreSyncItemRepository keeps items and batches as JSON values and the
// per-client ordering as a sorted set, all through the storage facade.
type StoreSyncItemRepository struct {
	store storage.Store
}

func NewStoreSyncItemRepository(store storage.Store) *StoreSyncItemRepository {
	return &StoreSyncItemRepository{store: store}
}

func (r *StoreSyncItemRepository) SaveItem(ctx context.Context, item *models.SyncItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal sync item: %w", err)
	}
	if err := r.store.Set(ctx, itemKey(item.ID), string(data), itemTTL); err != nil {
		return fmt.Errorf("failed to save sync item: %w", err)
	}
	return nil
}

func (r *StoreSyncItemRepository) GetItem(ctx context.Context, id uuid.UUID) (*models.SyncItem, error) {
	data, err := r.store.Get(ctx, itemKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync item: %w", err)
	}

	var item models.SyncItem
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync item: %w", err)
	}
	return &item, nil
}

// GetItems resolves queue member ids to items in one round trip. Members whose
// item key expired are skipped, not errors.
func (r *StoreSyncItemRepository) GetItems(ctx context.Context, ids []string) ([]*models.SyncItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = itemKeyPrefix + id
	}

	values, err := r.store.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to mget sync items: %w", err)
	}

	items := make([]*models.SyncItem, 0, len(values))
	for _, value := range values {
		if value == nil {
			continue
		}
		var item models.SyncItem
		if err := json.Unmarshal([]byte(*value), &item); err != nil {
			continue
		}
		items = append(items, &item)
	}
	return items, nil
}

func (r *StoreSyncItemRepository) DeleteItem(ctx context.Context, clientID string, id uuid.UUID) error {
	if err := r.store.ZRem(ctx, queueKey(clientID), id.String()); err != nil {
		return fmt.Errorf("failed to remove item from queue: %w", err)
	}
	if err := r.store.Del(ctx, itemKey(id)); err != nil {
		return fmt.Errorf("failed to delete sync item: %w", err)
	}
	return nil
}

// Enqueue records the item and adds it to the client's sorted set. The score
// is the negated priority so ascending range scans yield highest priority
// first; a monotonic per-client sequence breaks ties in insertion order.
func (r *StoreSyncItemRepository) Enqueue(ctx context.Context, item *models.SyncItem) error {
	if err := r.SaveItem(ctx, item); err != nil {
		return err
	}

	seq, err := r.store.Incr(ctx, seqKeyPrefix+item.ClientID)
	if err != nil {
		return fmt.Errorf("failed to advance queue sequence: %w", err)
	}
	score := -float64(item.Priority) + float64(seq)*1e-9

	if err := r.store.ZAdd(ctx, queueKey(item.ClientID), score, item.ID.String()); err != nil {
		return fmt.Errorf("failed to enqueue sync item: %w", err)
	}
	return nil
}

func (r *StoreSyncItemRepository) QueueItemIDs(ctx context.Context, clientID string, offset, count int64) ([]string, error) {
	ids, err := r.store.ZRangeByScore(ctx, queueKey(clientID), negInf, posInf, offset, count)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	return ids, nil
}

func (r *StoreSyncItemRepository) QueueLen(ctx context.Context, clientID string) (int64, error) {
	n, err := r.store.ZCard(ctx, queueKey(clientID))
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

func (r *StoreSyncItemRepository) RemoveFromQueue(ctx context.Context, clientID string, ids ...string) error {
	if err := r.store.ZRem(ctx, queueKey(clientID), ids...); err != nil {
		return fmt.Errorf("failed to remove from queue: %w", err)
	}
	return nil
}

func (r *StoreSyncItemRepository) SaveBatch(ctx context.Context, batch *models.SyncBatch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal sync batch: %w", err)
	}
	if err := r.store.Set(ctx, batchKey(batch.ID), string(data), batchTTL); err != nil {
		return fmt.Errorf("failed to save sync batch: %w", err)
	}
	return nil
}

func (r *StoreSyncItemRepository) GetBatch(ctx context.Context, id uuid.UUID) (*models.SyncBatch, error) {
	data, err := r.store.Get(ctx, batchKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync batch: %w", err)
	}

	var batch models.SyncBatch
	if err := json.Unmarshal([]byte(data), &batch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync batch: %w", err)
	}
	return &batch, nil
}

// SetProcessing flips the observability flag for the status endpoint. The TTL
// keeps a crashed pass from reporting "processing" forever.
func (r *StoreSyncItemRepository) SetProcessing(ctx context.Context, clientID string, on bool) error {
	key := processingKeyPrefix + clientID
	if !on {
		if err := r.store.Del(ctx, key); err != nil {
			return fmt.Errorf("failed to clear processing flag: %w", err)
		}
		return nil
	}
	if err := r.store.Set(ctx, key, "1", processingTTL); err != nil {
		return fmt.Errorf("failed to set processing flag: %w", err)
	}
	return nil
}

func (r *StoreSyncItemRepository) IsProcessing(ctx context.Context, clientID string) (bool, error) {
	_, err := r.store.Get(ctx, processingKeyPrefix+clientID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read processing flag: %w", err)
	}
	return true, nil
}

func itemKey(id uuid.UUID) string {
	return itemKeyPrefix + id.String()
}

func batchKey(id uuid.UUID) string {
	return batchKeyPrefix + id.String()
}

func queueKey(clientID string) string {
	return queueKeyPrefix + clientID
}
