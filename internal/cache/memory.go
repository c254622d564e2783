package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"commerce-sync/internal/model"
)

// lockEntry represents a held store lock with expiration.
type lockEntry struct {
	owner     string
	expiresAt time.Time
}

// isExpired checks if the lock has expired.
func (e *lockEntry) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// MemoryStore is an in-memory implementation of Store.
// Use this for development/testing or single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]model.SyncResult
	locks   map[string]*lockEntry

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryStore creates a new in-memory store with automatic lock cleanup.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		results:         make(map[string]model.SyncResult),
		locks:           make(map[string]*lockEntry),
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go s.cleanup()

	return s
}

// Record stores result as the latest result of its store.
func (s *MemoryStore) Record(ctx context.Context, result model.SyncResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[result.StoreID] = cloneResult(result)
	return nil
}

// Latest returns the latest result of a store.
func (s *MemoryStore) Latest(ctx context.Context, storeID string) (*model.SyncResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[storeID]
	if !ok {
		return nil, ErrCacheMiss
	}
	out := cloneResult(result)
	return &out, nil
}

// All returns the latest results ordered by store id.
func (s *MemoryStore) All(ctx context.Context) ([]model.SyncResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.SyncResult, 0, len(s.results))
	for _, result := range s.results {
		out = append(out, cloneResult(result))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreID < out[j].StoreID })
	return out, nil
}

// TryLock takes the store's lock for owner unless someone else holds an unexpired lock.
func (s *MemoryStore) TryLock(ctx context.Context, storeID, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, held := s.locks[storeID]; held && !entry.isExpired() && entry.owner != owner {
		return false, nil
	}

	s.locks[storeID] = &lockEntry{owner: owner, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

// Unlock releases the store's lock if owner holds it.
func (s *MemoryStore) Unlock(ctx context.Context, storeID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, held := s.locks[storeID]; held && entry.owner == owner {
		delete(s.locks, storeID)
	}
	return nil
}

// Close stops the background cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

// cleanup periodically removes expired locks.
func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

// removeExpired removes all expired locks.
func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.locks {
		if entry.isExpired() {
			delete(s.locks, key)
		}
	}
}

func cloneResult(r model.SyncResult) model.SyncResult {
	out := r
	out.Counts = make(map[model.EntityType]*model.WriteCounts, len(r.Counts))
	for entity, counts := range r.Counts {
		if counts == nil {
			continue
		}
		c := *counts
		out.Counts[entity] = &c
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
