package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/prudhvinik1/possync/internal/config"
	"github.com/prudhvinik1/possync/internal/models"
	"github.com/prudhvinik1/possync/internal/repositories"
)

// Conflict describes a mismatch between the client's assumed entity state and
// the server's actual state. Record is nil when the entity was deleted.
type Conflict struct {
	Deleted  bool
	Record   *models.EntityRecord
	Snapshot map[string]any
}

// ConflictDetector compares an incoming mutation against the authoritative
// entity. CREATE operations never conflict.
type ConflictDetector struct {
	entities repositories.EntityRepository
}

func NewConflictDetector(entities repositories.EntityRepository) *ConflictDetector {
	return &ConflictDetector{entities: entities}
}

// Detect returns the conflict (or nil) plus the current record so the caller
// does not reload it. ErrNotFound from the repository is absorbed here.
func (d *ConflictDetector) Detect(ctx context.Context, item *models.SyncItem) (*Conflict, *models.EntityRecord, error) {
	if item.Operation == models.OpCreate {
		return nil, nil, nil
	}

	record, err := d.entities.Get(ctx, item.BusinessID, item.EntityType, item.EntityID)
	if errors.Is(err, repositories.ErrNotFound) {
		if item.Operation == models.OpUpdate {
			// Cannot apply an update to a deleted entity.
			return &Conflict{Deleted: true, Snapshot: map[string]any{"deleted": true}}, nil, nil
		}
		// DELETE of a missing entity is a no-op, not a conflict.
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load entity for conflict check: %w", err)
	}

	if item.Version != nil && record.Version > *item.Version {
		return &Conflict{Record: record, Snapshot: record.Snapshot()}, record, nil
	}
	if record.UpdatedAt.After(item.ClientTimestamp) {
		return &Conflict{Record: record, Snapshot: record.Snapshot()}, record, nil
	}
	return nil, record, nil
}

// Resolution is a resolver's decision for one conflicted item.
type Resolution struct {
	// Payload is the final data to apply. Nil means leave server state as is
	// and complete the item.
	Payload map[string]any
	// Manual defers the item to operator resolution.
	Manual bool
}

// Resolver is the strategy applied when a conflict is detected.
type Resolver interface {
	Resolve(serverData, clientData map[string]any) Resolution
}

type ClientWinsResolver struct{}

func (ClientWinsResolver) Resolve(serverData, clientData map[string]any) Resolution {
	return Resolution{Payload: clientData}
}

type ServerWinsResolver struct{}

func (ServerWinsResolver) Resolve(serverData, clientData map[string]any) Resolution {
	return Resolution{}
}

// MergeResolver starts from the server snapshot and overlays every non-null
// client field except protected system fields.
type MergeResolver struct{}

var protectedFields = map[string]bool{
	"id":        true,
	"createdAt": true,
	"updatedAt": true,
	"version":   true,
}

func (MergeResolver) Resolve(serverData, clientData map[string]any) Resolution {
	merged := make(map[string]any, len(serverData)+len(clientData))
	for k, v := range serverData {
		merged[k] = v
	}
	for k, v := range clientData {
		if v == nil || protectedFields[k] {
			continue
		}
		merged[k] = v
	}
	return Resolution{Payload: merged}
}

type ManualResolver struct{}

func (ManualResolver) Resolve(serverData, clientData map[string]any) Resolution {
	return Resolution{Manual: true}
}

// ResolverFor maps the configured strategy to its resolver.
func ResolverFor(strategy config.ResolutionStrategy) Resolver {
	switch strategy {
	case config.StrategyClientWins:
		return ClientWinsResolver{}
	case config.StrategyMerge:
		return MergeResolver{}
	case config.StrategyManual:
		return ManualResolver{}
	default:
		return ServerWinsResolver{}
	}
}
