package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("key not found")

// Store is the single interface the sync engine talks to. RedisStore is the
// durable backend; MemoryStore is the process-local fallback used when Redis
// is unreachable at startup. Callers never branch on connectivity themselves;
// the implementation is picked once at construction.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	MGet(ctx context.Context, keys ...string) ([]*string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRangeByScore returns members with min <= score <= max in ascending
	// score order. count <= 0 means no limit.
	ZRangeByScore(ctx context.Context, key string, min, max float64, offset, count int64) ([]string, error)
	ZRem(ctx context.Context, key string, members ...string) error
	ZCard(ctx context.Context, key string) (int64, error)

	// Incr returns the incremented value of an integer counter key.
	Incr(ctx context.Context, key string) (int64, error)

	// AcquireLock takes a mutual-exclusion lock with expiry. It never blocks:
	// acquired=false means someone else holds it.
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (acquired bool, token string, err error)
	// ReleaseLock releases only if token still owns the lock.
	ReleaseLock(ctx context.Context, name, token string) error

	// Connected reports whether this store is backed by the durable service.
	Connected() bool
}
