package access

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/keetontrades/membergate/internal/pkg/cache"
)

// Store memoizes entitlement answers keyed by (user, required plan).
// Invalidation is event-driven and per-user: all of a user's entries drop
// together, never a partial set. Each invalidation bumps the user's
// generation; Set carries the generation observed at the cache miss and the
// store discards the write when it no longer matches, so a refill that
// resolved before an invalidation can never store a stale grant after it.
type Store interface {
	Get(userID, planID string) (allowed, ok bool)
	Generation(userID string) uint64
	Set(userID, planID string, allowed bool, gen uint64)
	InvalidateUser(userID string)
}

type memoryEntry struct {
	allowed   bool
	createdAt time.Time
}

// MemoryStore is the default in-process store. Entries for one user live in
// a per-user map that is swapped out as a whole on invalidation, so readers
// never observe a torn entry set.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]map[string]memoryEntry
	gens  map[string]uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]map[string]memoryEntry),
		gens:  make(map[string]uint64),
	}
}

func (s *MemoryStore) Get(userID, planID string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.users[userID]
	if !ok {
		return false, false
	}
	e, ok := entries[planID]
	if !ok {
		return false, false
	}
	return e.allowed, true
}

func (s *MemoryStore) Generation(userID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[userID]
}

func (s *MemoryStore) Set(userID, planID string, allowed bool, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[userID] != gen {
		// An invalidation landed while this answer was being resolved; the
		// answer may predate it. Drop the write, the next lookup re-resolves.
		return
	}
	entries, ok := s.users[userID]
	if !ok {
		entries = make(map[string]memoryEntry)
		s.users[userID] = entries
	}
	entries[planID] = memoryEntry{allowed: allowed, createdAt: time.Now()}
}

func (s *MemoryStore) InvalidateUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[userID]++
	delete(s.users, userID)
}

// RedisStore keeps answers in Redis so multiple instances share them. The
// per-user key set makes bulk invalidation a single round of deletes. Redis
// here is a cache, never a source of truth: any error degrades to a miss.
type RedisStore struct{}

func NewRedisStore() *RedisStore { return &RedisStore{} }

func accessKey(userID, planID string) string {
	return fmt.Sprintf("membergate:access:%s:%s", userID, planID)
}

func userKeySet(userID string) string {
	return fmt.Sprintf("membergate:access_keys:%s", userID)
}

func userGenKey(userID string) string {
	return fmt.Sprintf("membergate:access_gen:%s", userID)
}

func (s *RedisStore) Get(userID, planID string) (bool, bool) {
	val, err := cache.Get(accessKey(userID, planID))
	if err != nil {
		return false, false
	}
	return val == "1", true
}

func (s *RedisStore) Generation(userID string) uint64 {
	val, err := cache.Get(userGenKey(userID))
	if err != nil {
		return 0
	}
	gen, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0
	}
	return gen
}

func (s *RedisStore) Set(userID, planID string, allowed bool, gen uint64) {
	val := "0"
	if allowed {
		val = "1"
	}
	key := accessKey(userID, planID)
	if err := cache.Set(key, val, 0); err != nil {
		log.Warnf("[Access] Could not cache entitlement for user=%s: %v", userID, err)
		return
	}
	if err := cache.AddToSet(userKeySet(userID), key); err != nil {
		// Without the key-set entry the key could dodge invalidation, so
		// remove it again rather than risk a stale grant.
		_ = cache.Delete(key)
		log.Warnf("[Access] Could not track entitlement key for user=%s: %v", userID, err)
		return
	}
	// Invalidation bumps the generation before it sweeps keys. Either this
	// write made the sweep (the key was in the set by then), or the re-read
	// here sees the bumped generation and the write is rolled back.
	if s.Generation(userID) != gen {
		_ = cache.Delete(key)
	}
}

func (s *RedisStore) InvalidateUser(userID string) {
	if err := cache.Incr(userGenKey(userID)); err != nil {
		log.Warnf("[Access] Could not bump entitlement generation for user=%s: %v", userID, err)
	}
	keys, err := cache.SetMembers(userKeySet(userID))
	if err != nil {
		log.Warnf("[Access] Could not list entitlement keys for user=%s: %v", userID, err)
	}
	keys = append(keys, userKeySet(userID))
	if err := cache.Delete(keys...); err != nil {
		log.Warnf("[Access] Could not invalidate entitlements for user=%s: %v", userID, err)
	}
}
