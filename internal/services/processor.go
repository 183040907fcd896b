package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/possync/internal/config"
	"github.com/prudhvinik1/possync/internal/metrics"
	"github.com/prudhvinik1/possync/internal/models"
	"github.com/prudhvinik1/possync/internal/repositories"
)

// ErrTenantMismatch marks a security-relevant rejection: an item (or a
// resolution call) whose tenant does not match the authenticated caller.
var ErrTenantMismatch = errors.New("tenant mismatch")

// ProcessOptions tunes a single processing pass.
type ProcessOptions struct {
	Strategy config.ResolutionStrategy `json:"strategy,omitempty"`
}

// Processor drains a client's queue in priority order, one pass at a time,
// applying each mutation through the entity repository.
type Processor struct {
	items    repositories.SyncItemRepository
	entities repositories.EntityRepository
	locks    *LockCoordinator
	detector *ConflictDetector

	batchSize       int
	maxRetries      int
	defaultStrategy config.ResolutionStrategy
}

func NewProcessor(
	items repositories.SyncItemRepository,
	entities repositories.EntityRepository,
	locks *LockCoordinator,
	cfg *config.Config,
) *Processor {
	return &Processor{
		items:           items,
		entities:        entities,
		locks:           locks,
		detector:        NewConflictDetector(entities),
		batchSize:       cfg.BatchSize,
		maxRetries:      cfg.MaxRetries,
		defaultStrategy: cfg.Strategy,
	}
}

// Process runs one reconciliation pass for the client. It fails immediately
// with ErrSyncInProgress when another pass holds the lock; per-item failures
// never abort the pass.
func (p *Processor) Process(ctx context.Context, clientID string, businessID uuid.UUID, opts *ProcessOptions) ([]models.SyncResult, error) {
	strategy := p.defaultStrategy
	if opts != nil && opts.Strategy != "" {
		strategy = opts.Strategy
	}
	resolver := ResolverFor(strategy)

	token, err := p.locks.Acquire(ctx, clientID)
	if errors.Is(err, ErrSyncInProgress) {
		metrics.LockContention.Inc()
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := p.locks.Release(ctx, clientID, token); err != nil {
			log.Printf("failed to release sync lock for client %s: %v", clientID, err)
		}
	}()

	if err := p.items.SetProcessing(ctx, clientID, true); err != nil {
		return nil, err
	}
	defer func() {
		if err := p.items.SetProcessing(ctx, clientID, false); err != nil {
			log.Printf("failed to clear processing flag for client %s: %v", clientID, err)
		}
	}()

	var results []models.SyncResult
	var offset int64
	for {
		ids, err := p.items.QueueItemIDs(ctx, clientID, offset, int64(p.batchSize))
		if err != nil {
			return results, err
		}
		if len(ids) == 0 {
			break
		}

		items, err := p.items.GetItems(ctx, ids)
		if err != nil {
			return results, err
		}
		byID := make(map[string]*models.SyncItem, len(items))
		for _, item := range items {
			byID[item.ID.String()] = item
		}

		var leftover int64
		for _, id := range ids {
			item, ok := byID[id]
			if !ok {
				// Item record expired; drop the dangling queue member.
				if err := p.items.RemoveFromQueue(ctx, clientID, id); err != nil {
					return results, err
				}
				continue
			}
			if item.Status != models.StatusPending {
				// FAILED and CONFLICT items stay in the queue for inspection;
				// they are never silently advanced.
				leftover++
				continue
			}

			result := p.processItem(ctx, item, businessID, resolver)
			results = append(results, result)
			metrics.ItemsProcessed.WithLabelValues(string(result.Status)).Inc()
			if result.Status != models.StatusCompleted {
				leftover++
			}
		}
		offset += leftover
	}

	return results, nil
}

func (p *Processor) processItem(ctx context.Context, item *models.SyncItem, businessID uuid.UUID, resolver Resolver) models.SyncResult {
	// Hard tenant isolation: the item's tenant must match the caller that
	// triggered the pass, and the tenant embedded in its own payload.
	if item.BusinessID != businessID {
		return p.rejectTenant(ctx, item, fmt.Sprintf(
			"item tenant %s does not match caller tenant %s", item.BusinessID, businessID))
	}
	if embedded, ok := item.Payload["businessId"].(string); ok && embedded != item.BusinessID.String() {
		return p.rejectTenant(ctx, item, fmt.Sprintf(
			"payload tenant %s does not match item tenant %s", embedded, item.BusinessID))
	}
	if !models.ValidEntityType(item.EntityType) || !models.ValidOperation(item.Operation) {
		return p.failPermanent(ctx, item, fmt.Sprintf(
			"invalid entity type %q or operation %q", item.EntityType, item.Operation))
	}

	item.Status = models.StatusProcessing
	if err := p.items.SaveItem(ctx, item); err != nil {
		return p.retryOrFail(ctx, item, err)
	}

	conflict, record, err := p.detector.Detect(ctx, item)
	if err != nil {
		return p.retryOrFail(ctx, item, err)
	}

	payload := item.Payload
	if conflict != nil {
		metrics.ConflictsDetected.Inc()
		resolution := resolver.Resolve(conflict.Snapshot, item.Payload)
		if resolution.Manual {
			return p.markConflict(ctx, item, conflict)
		}
		if resolution.Payload == nil {
			// Server wins: existing state is already correct.
			return p.complete(ctx, item, nil)
		}
		payload = resolution.Payload
	}

	serverID, err := p.apply(ctx, item, record, payload)
	if err != nil {
		return p.retryOrFail(ctx, item, err)
	}
	return p.complete(ctx, item, serverID)
}

// apply performs the entity mutation. record is the authoritative row loaded
// during conflict detection, nil for CREATE or when the row is gone.
func (p *Processor) apply(ctx context.Context, item *models.SyncItem, record *models.EntityRecord, payload map[string]any) (*uuid.UUID, error) {
	switch item.Operation {
	case models.OpCreate:
		rec := &models.EntityRecord{
			BusinessID: item.BusinessID,
			EntityType: item.EntityType,
			Data:       sanitizePayload(payload),
		}
		if err := p.entities.Insert(ctx, rec); err != nil {
			return nil, err
		}
		return &rec.ID, nil

	case models.OpUpdate:
		if record == nil {
			// Entity was deleted server-side and the resolution chose the
			// client data: recreate it under the client's id.
			rec := &models.EntityRecord{
				ID:         item.EntityID,
				BusinessID: item.BusinessID,
				EntityType: item.EntityType,
				Data:       sanitizePayload(payload),
			}
			if err := p.entities.Insert(ctx, rec); err != nil {
				return nil, err
			}
			return nil, nil
		}
		record.Data = sanitizePayload(payload)
		return nil, p.entities.Update(ctx, record)

	case models.OpDelete:
		err := p.entities.Delete(ctx, item.BusinessID, item.EntityType, item.EntityID)
		if errors.Is(err, repositories.ErrNotFound) {
			// Already gone; deleting twice is a no-op.
			return nil, nil
		}
		return nil, err

	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrValidation, item.Operation)
	}
}

func (p *Processor) complete(ctx context.Context, item *models.SyncItem, serverID *uuid.UUID) models.SyncResult {
	now := time.Now()
	item.Status = models.StatusCompleted
	item.ServerTimestamp = &now

	// Completed items leave the queue structures entirely; replaying the same
	// item after this point is a no-op.
	if err := p.items.DeleteItem(ctx, item.ClientID, item.ID); err != nil {
		return p.retryOrFail(ctx, item, err)
	}
	p.updateBatch(ctx, item)

	return models.SyncResult{
		ItemID:         item.ID,
		EntityType:     item.EntityType,
		EntityID:       item.EntityID,
		Status:         models.StatusCompleted,
		ServerEntityID: serverID,
	}
}

func (p *Processor) markConflict(ctx context.Context, item *models.SyncItem, conflict *Conflict) models.SyncResult {
	item.Status = models.StatusConflict
	item.ConflictData = conflict.Snapshot
	if err := p.items.SaveItem(ctx, item); err != nil {
		return p.retryOrFail(ctx, item, err)
	}
	p.updateBatch(ctx, item)

	return models.SyncResult{
		ItemID:       item.ID,
		EntityType:   item.EntityType,
		EntityID:     item.EntityID,
		Status:       models.StatusConflict,
		ConflictData: conflict.Snapshot,
	}
}

// retryOrFail handles transient apply errors: back to PENDING while retries
// remain, terminally FAILED after that.
func (p *Processor) retryOrFail(ctx context.Context, item *models.SyncItem, cause error) models.SyncResult {
	item.RetryCount++
	item.LastError = cause.Error()

	if item.RetryCount < p.maxRetries {
		item.Status = models.StatusPending
	} else {
		item.Status = models.StatusFailed
	}
	if err := p.items.SaveItem(ctx, item); err != nil {
		log.Printf("failed to persist retry state for item %s: %v", item.ID, err)
	}
	if item.Status == models.StatusFailed {
		p.updateBatch(ctx, item)
	}

	return models.SyncResult{
		ItemID:     item.ID,
		EntityType: item.EntityType,
		EntityID:   item.EntityID,
		Status:     item.Status,
		Error:      cause.Error(),
	}
}

func (p *Processor) failPermanent(ctx context.Context, item *models.SyncItem, reason string) models.SyncResult {
	item.Status = models.StatusFailed
	item.LastError = reason
	if err := p.items.SaveItem(ctx, item); err != nil {
		log.Printf("failed to persist failure for item %s: %v", item.ID, err)
	}
	p.updateBatch(ctx, item)

	return models.SyncResult{
		ItemID:     item.ID,
		EntityType: item.EntityType,
		EntityID:   item.EntityID,
		Status:     models.StatusFailed,
		Error:      reason,
	}
}

func (p *Processor) rejectTenant(ctx context.Context, item *models.SyncItem, reason string) models.SyncResult {
	log.Printf("SECURITY: rejected sync item %s for client %s: %s", item.ID, item.ClientID, reason)
	metrics.TenantRejections.Inc()
	return p.failPermanent(ctx, item, fmt.Sprintf("%s: %s", ErrTenantMismatch, reason))
}

// updateBatch keeps the audit envelope's counters current. Best-effort: the
// batch record may have expired, and queue correctness never depends on it.
func (p *Processor) updateBatch(ctx context.Context, item *models.SyncItem) {
	batch, err := p.items.GetBatch(ctx, item.BatchID)
	if errors.Is(err, repositories.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("failed to load batch %s: %v", item.BatchID, err)
		return
	}

	switch item.Status {
	case models.StatusCompleted:
		batch.ProcessedItems++
	case models.StatusFailed:
		batch.FailedItems++
	case models.StatusConflict:
		batch.ConflictItems++
	}
	now := time.Now()
	batch.UpdatedAt = &now
	if batch.ProcessedItems+batch.FailedItems+batch.ConflictItems >= batch.TotalItems {
		batch.Status = models.StatusCompleted
	} else {
		batch.Status = models.StatusProcessing
	}

	if err := p.items.SaveBatch(ctx, batch); err != nil {
		log.Printf("failed to update batch %s: %v", batch.ID, err)
	}
}

// sanitizePayload copies the payload without system fields; those are owned
// by the entity table's columns.
func sanitizePayload(payload map[string]any) map[string]any {
	data := make(map[string]any, len(payload))
	for k, v := range payload {
		if protectedFields[k] || k == "businessId" {
			continue
		}
		data[k] = v
	}
	return data
}
