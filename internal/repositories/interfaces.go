package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/possync/internal/models"
)

// SyncItemRepository persists queued mutations, batch envelopes and the
// per-client queue ordering through the storage facade.
type SyncItemRepository interface {
	SaveItem(ctx context.Context, item *models.SyncItem) error
	GetItem(ctx context.Context, id uuid.UUID) (*models.SyncItem, error)
	GetItems(ctx context.Context, ids []string) ([]*models.SyncItem, error)
	DeleteItem(ctx context.Context, clientID string, id uuid.UUID) error

	Enqueue(ctx context.Context, item *models.SyncItem) error
	QueueItemIDs(ctx context.Context, clientID string, offset, count int64) ([]string, error)
	QueueLen(ctx context.Context, clientID string) (int64, error)
	RemoveFromQueue(ctx context.Context, clientID string, ids ...string) error

	SaveBatch(ctx context.Context, batch *models.SyncBatch) error
	GetBatch(ctx context.Context, id uuid.UUID) (*models.SyncBatch, error)

	SetProcessing(ctx context.Context, clientID string, on bool) error
	IsProcessing(ctx context.Context, clientID string) (bool, error)
}

// EntityRepository is the authoritative store for tenant data. Every mutation
// carries the tenant id in its WHERE clause so the isolation check happens in
// the same statement that performs the write.
type EntityRepository interface {
	Get(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, id uuid.UUID) (*models.EntityRecord, error)
	Insert(ctx context.Context, record *models.EntityRecord) error
	Update(ctx context.Context, record *models.EntityRecord) error
	Delete(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, id uuid.UUID) error

	List(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, since *time.Time) ([]*models.EntityRecord, error)
	CreatedSince(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, since time.Time) ([]*models.EntityRecord, error)
	UpdatedSince(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, since time.Time) ([]*models.EntityRecord, error)
	DeletedSince(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, since time.Time) ([]uuid.UUID, error)
}
