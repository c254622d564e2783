package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"commerce-sync/internal/cache"
	"commerce-sync/internal/model"
	"commerce-sync/internal/repository"
	"commerce-sync/internal/syncerr"
	"commerce-sync/pkg/uid"
)

const (
	// DefaultConcurrency is the number of stores synced at once.
	DefaultConcurrency = 5

	// DefaultLockTTL bounds how long a crashed pass can keep a store locked.
	DefaultLockTTL = time.Hour
)

// OrchestratorOptions tune an Orchestrator. Zero values take defaults.
type OrchestratorOptions struct {
	Concurrency int
	LockTTL     time.Duration
	Session     SessionOptions
}

// runFunc runs one store pass.
type runFunc func(ctx context.Context, store model.StoreProfile) model.SyncResult

// Orchestrator runs store passes across many stores with bounded parallelism.
// One store's failure never affects another's.
type Orchestrator struct {
	stores []model.StoreProfile
	byID   map[string]model.StoreProfile
	cache  cache.Store
	opts   OrchestratorOptions
	run    runFunc
	logger *slog.Logger
}

// NewOrchestrator returns an orchestrator over stores. Store ids must be unique.
func NewOrchestrator(stores []model.StoreProfile, store cache.Store, opts OrchestratorOptions, logger *slog.Logger) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("orchestrator: cache store is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	byID := make(map[string]model.StoreProfile, len(stores))
	for _, s := range stores {
		if s.ID == "" {
			return nil, &syncerr.ConfigurationError{Field: "stores", Msg: "store id must not be empty"}
		}
		if _, dup := byID[s.ID]; dup {
			return nil, &syncerr.ConfigurationError{StoreID: s.ID, Field: "stores", Msg: "duplicate store id"}
		}
		byID[s.ID] = s
	}

	o := &Orchestrator{
		stores: append([]model.StoreProfile(nil), stores...),
		byID:   byID,
		cache:  store,
		opts:   opts,
		logger: logger.With("component", "orchestrator"),
	}
	o.run = func(ctx context.Context, s model.StoreProfile) model.SyncResult {
		return NewStoreSession(s, o.opts.Session, logger).Run(ctx)
	}
	return o, nil
}

// Stores returns the configured store profiles in id order.
func (o *Orchestrator) Stores() []model.StoreProfile {
	out := append([]model.StoreProfile(nil), o.stores...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Store returns the profile of one store.
func (o *Orchestrator) Store(id string) (model.StoreProfile, bool) {
	s, ok := o.byID[id]
	return s, ok
}

// Ingest syncs the given stores, or every store when none are given, and
// returns their results keyed by store id. The only error is a selection
// that names an unknown store, reported before any store is touched.
func (o *Orchestrator) Ingest(ctx context.Context, storeIDs ...string) (map[string]model.SyncResult, error) {
	results, err := o.IngestStream(ctx, storeIDs...)
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.SyncResult)
	for r := range results {
		out[r.StoreID] = r
	}
	return out, nil
}

// IngestStream is Ingest with results delivered in completion order. The
// channel is closed after the last store finishes.
func (o *Orchestrator) IngestStream(ctx context.Context, storeIDs ...string) (<-chan model.SyncResult, error) {
	selected, err := o.selectStores(storeIDs)
	if err != nil {
		return nil, err
	}

	passID := uid.New()
	logger := o.logger.With("pass_id", passID)

	workers := o.opts.Concurrency
	if workers > len(selected) {
		workers = len(selected)
	}
	logger.Info("pass started", "stores", len(selected), "workers", workers)

	jobs := make(chan model.StoreProfile)
	results := make(chan model.SyncResult, len(selected))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for store := range jobs {
				results <- o.runStore(ctx, store, passID, logger)
			}
		}()
	}

	go func() {
		for _, store := range selected {
			jobs <- store
		}
		close(jobs)
		wg.Wait()
		close(results)
		logger.Info("pass finished", "stores", len(selected))
	}()

	return results, nil
}

// FailedStores returns the ids of configured stores whose latest recorded
// pass failed.
func (o *Orchestrator) FailedStores(ctx context.Context) ([]string, error) {
	results, err := o.cache.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}

	var ids []string
	for _, r := range results {
		if _, ok := o.byID[r.StoreID]; ok && !r.Success {
			ids = append(ids, r.StoreID)
		}
	}
	return ids, nil
}

// Results returns the latest recorded result of every store.
func (o *Orchestrator) Results(ctx context.Context) ([]model.SyncResult, error) {
	return o.cache.All(ctx)
}

// Status reports what the warehouse holds for one store.
func (o *Orchestrator) Status(ctx context.Context, storeID string) (*repository.StoreStatus, error) {
	conn, err := o.openStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return conn.StoreStatus(ctx, storeID)
}

// Cursors returns the persisted cursors of one store.
func (o *Orchestrator) Cursors(ctx context.Context, storeID string) ([]model.SyncCursor, error) {
	conn, err := o.openStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return conn.ListCursors(ctx, storeID)
}

// ResetCursors deletes the cursors of one store so the next pass starts over.
func (o *Orchestrator) ResetCursors(ctx context.Context, storeID string, entities ...model.EntityType) (int64, error) {
	conn, err := o.openStore(ctx, storeID)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	n, err := conn.ResetCursors(ctx, storeID, entities...)
	if err != nil {
		return 0, err
	}
	o.logger.Info("cursors reset", "store_id", storeID, "deleted", n)
	return n, nil
}

func (o *Orchestrator) openStore(ctx context.Context, storeID string) (*repository.Conn, error) {
	store, ok := o.byID[storeID]
	if !ok {
		return nil, unknownStore(storeID)
	}
	return openWarehouse(ctx, store, o.opts.Session, o.logger)
}

func (o *Orchestrator) selectStores(ids []string) ([]model.StoreProfile, error) {
	if len(ids) == 0 {
		return o.Stores(), nil
	}

	seen := make(map[string]bool, len(ids))
	selected := make([]model.StoreProfile, 0, len(ids))
	for _, id := range ids {
		store, ok := o.byID[id]
		if !ok {
			return nil, unknownStore(id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		selected = append(selected, store)
	}
	return selected, nil
}

// runStore runs one store pass inside its lock and a recover boundary, and
// records the outcome in the ledger.
func (o *Orchestrator) runStore(ctx context.Context, store model.StoreProfile, passID string, logger *slog.Logger) (result model.SyncResult) {
	logger = logger.With("store_id", store.ID)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("store pass panicked", "panic", p)
			result = model.NewSyncResult(store.ID)
			result.Fail("", fmt.Errorf("store pass panicked: %v", p))
			result.Finish()
		}
		result.PassID = passID

		if err := o.cache.Record(context.Background(), result); err != nil {
			logger.Warn("failed to record result", "error", err)
		}
	}()

	locked, err := o.cache.TryLock(ctx, store.ID, passID, o.opts.LockTTL)
	if err != nil {
		result = model.NewSyncResult(store.ID)
		result.Fail("", fmt.Errorf("failed to lock store: %w", err))
		result.Finish()
		return result
	}
	if !locked {
		logger.Warn("store is locked by another pass")
		result = model.NewSyncResult(store.ID)
		result.Fail("", syncerr.ErrStoreBusy)
		result.Finish()
		return result
	}
	defer func() {
		if err := o.cache.Unlock(context.Background(), store.ID, passID); err != nil {
			logger.Warn("failed to unlock store", "error", err)
		}
	}()

	return o.run(ctx, store)
}

func unknownStore(id string) error {
	return &syncerr.ConfigurationError{StoreID: id, Field: "store", Msg: "unknown store"}
}
