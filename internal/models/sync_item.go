package models

import (
	"time"

	"github.com/google/uuid"
)

type SyncOperation string

const (
	OpCreate SyncOperation = "CREATE"
	OpUpdate SyncOperation = "UPDATE"
	OpDelete SyncOperation = "DELETE"
)

type SyncStatus string

const (
	StatusPending    SyncStatus = "PENDING"
	StatusProcessing SyncStatus = "PROCESSING"
	StatusCompleted  SyncStatus = "COMPLETED"
	StatusFailed     SyncStatus = "FAILED"
	StatusConflict   SyncStatus = "CONFLICT"
)

// SyncItem is one queued client mutation awaiting reconciliation.
type SyncItem struct {
	ID              uuid.UUID      `json:"id"`
	BatchID         uuid.UUID      `json:"batchId"`
	ClientID        string         `json:"clientId"`
	BusinessID      uuid.UUID      `json:"businessId"`
	EntityType      EntityType     `json:"entityType"`
	EntityID        uuid.UUID      `json:"entityId"`
	Operation       SyncOperation  `json:"operation"`
	Payload         map[string]any `json:"payload"`
	ClientTimestamp time.Time      `json:"clientTimestamp"`
	ServerTimestamp *time.Time     `json:"serverTimestamp,omitempty"`
	Status          SyncStatus     `json:"status"`
	RetryCount      int            `json:"retryCount"`
	Version         *int64         `json:"version,omitempty"`
	ConflictData    map[string]any `json:"conflictData,omitempty"`
	LastError       string         `json:"lastError,omitempty"`
	ResolvedBy      string         `json:"resolvedBy,omitempty"`
	ResolvedAt      *time.Time     `json:"resolvedAt,omitempty"`
	Priority        int            `json:"priority"`
}

// SyncBatch is the audit envelope for a group of items enqueued together.
// It is never consulted for queue correctness.
type SyncBatch struct {
	ID             uuid.UUID  `json:"id"`
	ClientID       string     `json:"clientId"`
	BusinessID     uuid.UUID  `json:"businessId"`
	TotalItems     int        `json:"totalItems"`
	ProcessedItems int        `json:"processedItems"`
	FailedItems    int        `json:"failedItems"`
	ConflictItems  int        `json:"conflictItems"`
	Status         SyncStatus `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

// SyncResult is the per-item outcome of one processing pass.
type SyncResult struct {
	ItemID         uuid.UUID      `json:"itemId"`
	EntityType     EntityType     `json:"entityType"`
	EntityID       uuid.UUID      `json:"entityId"`
	Status         SyncStatus     `json:"status"`
	ServerEntityID *uuid.UUID     `json:"serverEntityId,omitempty"`
	ConflictData   map[string]any `json:"conflictData,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// QueueStatus is the per-client view returned by the status endpoint.
type QueueStatus struct {
	Pending      int  `json:"pending"`
	Processing   int  `json:"processing"`
	Completed    int  `json:"completed"`
	Failed       int  `json:"failed"`
	Conflicts    int  `json:"conflicts"`
	IsProcessing bool `json:"isProcessing"`
}

func ValidOperation(op SyncOperation) bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}
