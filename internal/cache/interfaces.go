package cache

import (
	"context"
	"time"

	"commerce-sync/internal/model"
)

// Ledger remembers the latest pass result of every store.
// This abstraction allows swapping between memory (single process)
// and Redis (several sync processes) without changing the orchestrator.
type Ledger interface {
	// Record stores result as the latest result of its store.
	Record(ctx context.Context, result model.SyncResult) error

	// Latest returns the latest result of a store. Returns ErrCacheMiss if none.
	Latest(ctx context.Context, storeID string) (*model.SyncResult, error)

	// All returns the latest result of every store that has one.
	All(ctx context.Context) ([]model.SyncResult, error)
}

// Locker keeps two passes from syncing the same store at once.
type Locker interface {
	// TryLock takes the store's lock for owner. It returns false if another owner holds it.
	TryLock(ctx context.Context, storeID, owner string, ttl time.Duration) (bool, error)

	// Unlock releases the lock if owner still holds it.
	Unlock(ctx context.Context, storeID, owner string) error
}

// Store is a Ledger and a Locker sharing one backend.
type Store interface {
	Ledger
	Locker
	Close() error
}

// Common cache errors
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss CacheError = "cache miss"
)
