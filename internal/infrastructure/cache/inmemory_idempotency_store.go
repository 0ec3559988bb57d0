package cache

import (
	"context"
	"sync"
	"time"

	"github.com/channelsync/backend/internal/domain/job"
)

// claim is a held dedupe key with its expiry
type claim struct {
	expiresAt time.Time
}

// InMemoryIdempotencyStore implements job.IdempotencyStore with a plain map.
// Suitable for single-instance deployments and tests; claims are lost on
// restart, which only risks one duplicate enqueue per tick.
type InMemoryIdempotencyStore struct {
	mu        sync.Mutex
	claims    map[string]claim
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryIdempotencyStore creates an in-memory idempotency store with a
// background sweep of expired claims
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	store := &InMemoryIdempotencyStore{
		claims:   make(map[string]claim),
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop()

	return store
}

// Claim claims the dedupe key for ttl. Returns false when the key is already
// held and not yet expired.
func (s *InMemoryIdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, exists := s.claims[key]; exists && time.Now().Before(c.expiresAt) {
		return false, nil
	}
	s.claims[key] = claim{expiresAt: time.Now().Add(ttl)}
	return true, nil
}

// Ping always succeeds; there is no remote dependency
func (s *InMemoryIdempotencyStore) Ping(ctx context.Context) error {
	return nil
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (s *InMemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryIdempotencyStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InMemoryIdempotencyStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, c := range s.claims {
		if now.After(c.expiresAt) {
			delete(s.claims, key)
		}
	}
}

// Size returns the number of held claims, used by tests
func (s *InMemoryIdempotencyStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

var _ job.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
