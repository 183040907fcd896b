package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/possync/internal/models"
	"github.com/prudhvinik1/possync/internal/repositories"
)

// Operator decisions for an item stuck in CONFLICT.
const (
	ResolutionUseClient = "use_client"
	ResolutionUseServer = "use_server"
	ResolutionUseMerged = "use_merged"
)

// ResolveConflict applies an explicit operator decision to a CONFLICT item.
// The item must belong to the authenticated tenant and client.
func (p *Processor) ResolveConflict(ctx context.Context, clientID string, businessID uuid.UUID, itemID uuid.UUID, resolution string, mergedData map[string]any, resolvedBy string) (*models.SyncResult, error) {
	item, err := p.items.GetItem(ctx, itemID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("%w: item %s not found", ErrValidation, itemID)
	}
	if err != nil {
		return nil, err
	}

	if item.BusinessID != businessID || item.ClientID != clientID {
		return nil, fmt.Errorf("%w: item %s does not belong to this caller", ErrTenantMismatch, itemID)
	}
	if item.Status != models.StatusConflict {
		return nil, fmt.Errorf("%w: item %s is %s, not in conflict", ErrValidation, itemID, item.Status)
	}

	var payload map[string]any
	switch resolution {
	case ResolutionUseServer:
		payload = nil
	case ResolutionUseClient:
		payload = item.Payload
	case ResolutionUseMerged:
		if mergedData == nil {
			return nil, fmt.Errorf("%w: use_merged requires merged data", ErrValidation)
		}
		payload = mergedData
	default:
		return nil, fmt.Errorf("%w: unknown resolution %q", ErrValidation, resolution)
	}

	now := time.Now()
	item.ResolvedBy = resolvedBy
	item.ResolvedAt = &now

	if item.Operation == models.OpDelete && resolution == ResolutionUseClient {
		err := p.entities.Delete(ctx, item.BusinessID, item.EntityType, item.EntityID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			result := p.retryOrFail(ctx, item, err)
			return &result, nil
		}
		result := p.complete(ctx, item, nil)
		return &result, nil
	}

	if payload == nil {
		// Server state stands; the item just completes.
		result := p.complete(ctx, item, nil)
		return &result, nil
	}

	serverID, err := p.applyResolved(ctx, item, payload)
	if err != nil {
		result := p.retryOrFail(ctx, item, err)
		return &result, nil
	}
	result := p.complete(ctx, item, serverID)
	return &result, nil
}

// applyResolved writes the decided payload against the current server row,
// reloading it so the optimistic version check uses fresh state.
func (p *Processor) applyResolved(ctx context.Context, item *models.SyncItem, payload map[string]any) (*uuid.UUID, error) {
	record, err := p.entities.Get(ctx, item.BusinessID, item.EntityType, item.EntityID)
	if errors.Is(err, repositories.ErrNotFound) {
		rec := &models.EntityRecord{
			ID:         item.EntityID,
			BusinessID: item.BusinessID,
			EntityType: item.EntityType,
			Data:       sanitizePayload(payload),
		}
		if err := p.entities.Insert(ctx, rec); err != nil {
			return nil, err
		}
		return &rec.ID, nil
	}
	if err != nil {
		return nil, err
	}

	record.Data = sanitizePayload(payload)
	if err := p.entities.Update(ctx, record); err != nil {
		return nil, err
	}
	return nil, nil
}
