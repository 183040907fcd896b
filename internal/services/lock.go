package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prudhvinik1/possync/internal/storage"
)

const lockKeyPrefix = "sync:lock:"

// ErrSyncInProgress is returned when a processing pass is already running for
// the client. Callers retry later; acquisition never blocks or queues.
var ErrSyncInProgress = errors.New("sync already in progress for this client")

// LockCoordinator serializes reconciliation per client. The TTL is a crash
// safety net: a pass that dies without releasing self-expires.
type LockCoordinator struct {
	store storage.Store
	ttl   time.Duration
}

func NewLockCoordinator(store storage.Store, ttl time.Duration) *LockCoordinator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LockCoordinator{store: store, ttl: ttl}
}

// Acquire returns the release token, or ErrSyncInProgress when held.
func (c *LockCoordinator) Acquire(ctx context.Context, clientID string) (string, error) {
	acquired, token, err := c.store.AcquireLock(ctx, lockKeyPrefix+clientID, c.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		return "", ErrSyncInProgress
	}
	return token, nil
}

func (c *LockCoordinator) Release(ctx context.Context, clientID, token string) error {
	return c.store.ReleaseLock(ctx, lockKeyPrefix+clientID, token)
}
