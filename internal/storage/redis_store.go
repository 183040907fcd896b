package storage

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

func (s *RedisStore) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget: %w", err)
	}
	values := make([]*string, len(results))
	for i, result := range results {
		if result == nil {
			continue
		}
		if str, ok := result.(string); ok {
			values[i] = &str
		}
	}
	return values, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("failed to expire key %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	err := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	if err != nil {
		return fmt.Errorf("failed to zadd to %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ZRangeByScore(ctx context.Context, key string, min, max float64, offset, count int64) ([]string, error) {
	opt := &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}
	if count > 0 || offset > 0 {
		opt.Offset = offset
		opt.Count = count
		if count <= 0 {
			// LIMIT offset -1 means no count cap.
			opt.Count = -1
		}
	}
	members, err := s.client.ZRangeByScore(ctx, key, opt).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to zrangebyscore on %s: %w", key, err)
	}
	return members, nil
}

func (s *RedisStore) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.ZRem(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("failed to zrem from %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to zcard on %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to incr %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, string, error) {
	token := uuid.New().String()
	ok, err := s.client.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return false, "", nil
	}
	return true, token, nil
}

func (s *RedisStore) ReleaseLock(ctx context.Context, name, token string) error {
	current, err := s.client.Get(ctx, name).Result()
	if err == redis.Nil {
		// Lock already expired; nothing to release.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lock %s: %w", name, err)
	}
	if current != token {
		// Someone else holds it now; do not steal.
		return nil
	}
	if err := s.client.Del(ctx, name).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}

func (s *RedisStore) Connected() bool {
	return true
}

func formatScore(f float64) string {
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsInf(f, 1) {
		return "+inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
