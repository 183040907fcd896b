package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/possync/internal/metrics"
	"github.com/prudhvinik1/possync/internal/models"
	"github.com/prudhvinik1/possync/internal/repositories"
)

// ErrValidation marks permanently rejected input; never retried.
var ErrValidation = errors.New("validation error")

const basePriority = 100

var operationWeights = map[models.SyncOperation]int{
	models.OpCreate: 50,
	models.OpUpdate: 30,
	models.OpDelete: 10,
}

// EnqueueItem is one proposed mutation inside an enqueue request.
type EnqueueItem struct {
	EntityType      models.EntityType    `json:"entityType"`
	EntityID        uuid.UUID            `json:"entityId"`
	Operation       models.SyncOperation `json:"operation"`
	Payload         map[string]any       `json:"payload"`
	ClientTimestamp time.Time            `json:"clientTimestamp"`
	Version         *int64               `json:"version,omitempty"`
}

// QueueService accepts batches of mutations, computes priorities and persists
// them in queue order.
type QueueService struct {
	items         repositories.SyncItemRepository
	entityWeights map[string]int
}

func NewQueueService(items repositories.SyncItemRepository, entityWeights map[string]int) *QueueService {
	return &QueueService{items: items, entityWeights: entityWeights}
}

// Enqueue validates, prioritizes and persists the items, then the batch
// envelope. Every item is durably recorded before the batch id is returned.
func (s *QueueService) Enqueue(ctx context.Context, clientID string, businessID uuid.UUID, proposed []EnqueueItem) (*models.SyncBatch, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrValidation)
	}
	if businessID == uuid.Nil {
		return nil, fmt.Errorf("%w: business id is required", ErrValidation)
	}
	if len(proposed) == 0 {
		return nil, fmt.Errorf("%w: no items to enqueue", ErrValidation)
	}
	for i, p := range proposed {
		if err := s.validate(i, p, businessID); err != nil {
			return nil, err
		}
	}

	batch := &models.SyncBatch{
		ID:         uuid.New(),
		ClientID:   clientID,
		BusinessID: businessID,
		TotalItems: len(proposed),
		Status:     models.StatusPending,
		CreatedAt:  time.Now(),
	}

	for i, p := range proposed {
		payload := p.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		if _, ok := payload["businessId"]; !ok {
			payload["businessId"] = businessID.String()
		}

		item := &models.SyncItem{
			ID:              uuid.New(),
			BatchID:         batch.ID,
			ClientID:        clientID,
			BusinessID:      businessID,
			EntityType:      p.EntityType,
			EntityID:        p.EntityID,
			Operation:       p.Operation,
			Payload:         payload,
			ClientTimestamp: p.ClientTimestamp,
			Status:          models.StatusPending,
			Version:         p.Version,
			Priority:        s.priority(i, p.EntityType, p.Operation),
		}
		if err := s.items.Enqueue(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to enqueue item %d: %w", i, err)
		}
		metrics.ItemsEnqueued.Inc()
	}

	if err := s.items.SaveBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to save batch: %w", err)
	}
	return batch, nil
}

func (s *QueueService) validate(i int, p EnqueueItem, businessID uuid.UUID) error {
	if !models.ValidEntityType(p.EntityType) {
		return fmt.Errorf("%w: item %d has unknown entity type %q", ErrValidation, i, p.EntityType)
	}
	if !models.ValidOperation(p.Operation) {
		return fmt.Errorf("%w: item %d has unknown operation %q", ErrValidation, i, p.Operation)
	}
	if p.Operation != models.OpCreate && p.EntityID == uuid.Nil {
		return fmt.Errorf("%w: item %d is missing an entity id", ErrValidation, i)
	}
	// The payload's embedded tenant must match the item's tenant; a mismatch
	// here is never repaired silently.
	if embedded, ok := p.Payload["businessId"].(string); ok && embedded != businessID.String() {
		return fmt.Errorf("%w: item %d payload tenant %q does not match %q", ErrValidation, i, embedded, businessID)
	}
	return nil
}

// priority orders reconciliation: earlier batch positions slightly preferred,
// financial/inventory entities before catalog edits, creations before
// destructive operations.
func (s *QueueService) priority(position int, entityType models.EntityType, op models.SyncOperation) int {
	return basePriority - position + s.entityWeights[string(entityType)] + operationWeights[op]
}

// Status reports queue composition for one client by walking the queue and
// resolving item records.
func (s *QueueService) Status(ctx context.Context, clientID string) (*models.QueueStatus, error) {
	items, err := s.queuedItems(ctx, clientID)
	if err != nil {
		return nil, err
	}

	status := &models.QueueStatus{}
	for _, item := range items {
		switch item.Status {
		case models.StatusPending:
			status.Pending++
		case models.StatusProcessing:
			status.Processing++
		case models.StatusCompleted:
			status.Completed++
		case models.StatusFailed:
			status.Failed++
		case models.StatusConflict:
			status.Conflicts++
		}
	}

	processing, err := s.items.IsProcessing(ctx, clientID)
	if err != nil {
		return nil, err
	}
	status.IsProcessing = processing
	return status, nil
}

// Conflicts lists items awaiting manual resolution for one client.
func (s *QueueService) Conflicts(ctx context.Context, clientID string) ([]*models.SyncItem, error) {
	items, err := s.queuedItems(ctx, clientID)
	if err != nil {
		return nil, err
	}
	conflicts := make([]*models.SyncItem, 0)
	for _, item := range items {
		if item.Status == models.StatusConflict {
			conflicts = append(conflicts, item)
		}
	}
	return conflicts, nil
}

func (s *QueueService) Batch(ctx context.Context, id uuid.UUID) (*models.SyncBatch, error) {
	return s.items.GetBatch(ctx, id)
}

func (s *QueueService) queuedItems(ctx context.Context, clientID string) ([]*models.SyncItem, error) {
	ids, err := s.items.QueueItemIDs(ctx, clientID, 0, 0)
	if err != nil {
		return nil, err
	}
	return s.items.GetItems(ctx, ids)
}
