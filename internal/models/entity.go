package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityType is the closed set of logical tables a client may sync.
// Anything outside this set is rejected at enqueue time.
type EntityType string

const (
	EntityOrder     EntityType = "order"
	EntityPayment   EntityType = "payment"
	EntityInventory EntityType = "inventory"
	EntityCustomer  EntityType = "customer"
	EntityProduct   EntityType = "product"
	EntityCategory  EntityType = "category"
)

func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityOrder, EntityPayment, EntityInventory, EntityCustomer, EntityProduct, EntityCategory:
		return true
	}
	return false
}

// AllEntityTypes returns the closed set in a stable order.
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityOrder, EntityPayment, EntityInventory,
		EntityCustomer, EntityProduct, EntityCategory,
	}
}

// EntityRecord is one authoritative row, payload kept as opaque JSON.
// Version increments on every update; DeletedAt is the tombstone used
// by the delta pull.
type EntityRecord struct {
	ID         uuid.UUID      `json:"id"`
	BusinessID uuid.UUID      `json:"businessId"`
	EntityType EntityType     `json:"entityType"`
	Data       map[string]any `json:"data"`
	Version    int64          `json:"version"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	DeletedAt  *time.Time     `json:"deletedAt,omitempty"`
}

// Snapshot flattens the record for conflict payloads: the stored data plus
// the system fields the resolver must protect.
func (r *EntityRecord) Snapshot() map[string]any {
	snap := make(map[string]any, len(r.Data)+5)
	for k, v := range r.Data {
		snap[k] = v
	}
	snap["id"] = r.ID.String()
	snap["businessId"] = r.BusinessID.String()
	snap["version"] = r.Version
	snap["createdAt"] = r.CreatedAt
	snap["updatedAt"] = r.UpdatedAt
	return snap
}
