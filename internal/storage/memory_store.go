package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the single-node fallback used when Redis is unreachable.
// Data written here does not survive a process restart; that is the accepted
// degradation. All state is owned by the instance, guarded by one mutex.
type MemoryStore struct {
	mu    sync.Mutex
	kv    map[string]memoryEntry
	zsets map[string][]zsetMember
	locks map[string]lockEntry
	seq   uint64
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

type zsetMember struct {
	member string
	score  float64
	seq    uint64 // insertion order tie-break, matching Redis member-lex only loosely
}

type lockEntry struct {
	token     string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kv:    make(map[string]memoryEntry),
		zsets: make(map[string][]zsetMember),
		locks: make(map[string]lockEntry),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.kv[key]
	if !ok || expired(entry.expiresAt) {
		delete(s.kv, key)
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kv[key] = memoryEntry{value: value, expiresAt: deadline(ttl)}
	return nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.kv, key)
		delete(s.zsets, key)
	}
	return nil
}

func (s *MemoryStore) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make([]*string, len(keys))
	for i, key := range keys {
		entry, ok := s.kv[key]
		if !ok || expired(entry.expiresAt) {
			continue
		}
		v := entry.value
		values[i] = &v
	}
	return values, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.kv[key]; ok {
		entry.expiresAt = deadline(ttl)
		s.kv[key] = entry
	}
	return nil
}

func (s *MemoryStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.zsets[key]
	for i := range members {
		if members[i].member == member {
			members[i].score = score
			s.sortedInsert(key, members)
			return nil
		}
	}
	s.seq++
	members = append(members, zsetMember{member: member, score: score, seq: s.seq})
	s.sortedInsert(key, members)
	return nil
}

// sortedInsert keeps the slice ordered by score ascending, insertion order
// for equal scores.
func (s *MemoryStore) sortedInsert(key string, members []zsetMember) {
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].score != members[j].score {
			return members[i].score < members[j].score
		}
		return members[i].seq < members[j].seq
	})
	s.zsets[key] = members
}

func (s *MemoryStore) ZRangeByScore(ctx context.Context, key string, min, max float64, offset, count int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []string
	var skipped int64
	for _, m := range s.zsets[key] {
		if m.score < min || m.score > max {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		result = append(result, m.member)
		if count > 0 && int64(len(result)) >= count {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) ZRem(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remove := make(map[string]bool, len(members))
	for _, m := range members {
		remove[m] = true
	}
	existing := s.zsets[key]
	kept := existing[:0]
	for _, m := range existing {
		if !remove[m.member] {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		delete(s.zsets, key)
	} else {
		s.zsets[key] = kept
	}
	return nil
}

func (s *MemoryStore) ZCard(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.zsets[key])), nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if entry, ok := s.kv[key]; ok && !expired(entry.expiresAt) {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++
	s.kv[key] = memoryEntry{value: strconv.FormatInt(n, 10)}
	return n, nil
}

// AcquireLock degrades to a per-key flag. Safe against concurrent calls
// within one process only; the fallback store is never shared across
// processes.
func (s *MemoryStore) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.locks[name]; ok && !expired(entry.expiresAt) {
		return false, "", nil
	}
	token := uuid.New().String()
	s.locks[name] = lockEntry{token: token, expiresAt: deadline(ttl)}
	return true, token, nil
}

func (s *MemoryStore) ReleaseLock(ctx context.Context, name, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.locks[name]; ok && entry.token == token {
		delete(s.locks, name)
	}
	return nil
}

func (s *MemoryStore) Connected() bool {
	return false
}

func expired(at time.Time) bool {
	return !at.IsZero() && time.Now().After(at)
}

func deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
