package infra

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DedupeStore suppresses re-processing of the same logical webhook
// event under GitLab's at-least-once delivery. Keys are either the
// event UUID or a composite {project}:{mr}:{sha_or_updated_at}:{action}.
type DedupeStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, struct{}]
}

// NewDedupeStore builds a TTL-bounded dedupe store
func NewDedupeStore(ttl time.Duration, capacity int) *DedupeStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if capacity < 128 {
		capacity = 4096
	}
	return &DedupeStore{
		cache: expirable.NewLRU[string, struct{}](capacity, nil, ttl),
	}
}

// ShouldProcess returns true if this key has not been seen within the
// TTL, recording it. Returns false for a recently seen duplicate. The
// check-and-record is atomic so racing deliveries cannot both pass.
func (s *DedupeStore) ShouldProcess(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.cache.Get(key); seen {
		return false
	}
	s.cache.Add(key, struct{}{})
	return true
}

// Release forgets a dedupe key so a redelivery can be processed.
func (s *DedupeStore) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(key)
}

// CooldownStore enforces a short per-MR quiet period so a burst of
// webhook deliveries (or our own posted notes echoing back) does not
// trigger back-to-back review runs.
type CooldownStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, struct{}]
}

// NewCooldownStore builds a TTL-bounded cooldown store
func NewCooldownStore(ttl time.Duration, capacity int) *CooldownStore {
	if ttl <= 0 {
		ttl = 20 * time.Second
	}
	if capacity < 256 {
		capacity = 8192
	}
	return &CooldownStore{
		cache: expirable.NewLRU[string, struct{}](capacity, nil, ttl),
	}
}

// Acquire returns true on first acquisition and starts the cooldown;
// false while the key is still cooling down.
func (s *CooldownStore) Acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, cooling := s.cache.Get(key); cooling {
		return false
	}
	s.cache.Add(key, struct{}{})
	return true
}

// Release ends a cooldown early, for callers that acquired one but then
// failed to start the work it guards.
func (s *CooldownStore) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(key)
}
