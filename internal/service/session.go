package service

import (
	"context"
	"log/slog"
	"time"

	"commerce-sync/internal/config"
	"commerce-sync/internal/model"
	"commerce-sync/internal/normalize"
	"commerce-sync/internal/repository"
	"commerce-sync/internal/syncerr"
	"commerce-sync/internal/upstream"
)

// DefaultBatchSize is the number of records merged per warehouse statement
// when a store profile does not set one.
const DefaultBatchSize = 1000

// SessionOptions are shared by every store pass. Per-store values come from
// the store profile.
type SessionOptions struct {
	// Warehouse carries the dialect and base DSN. Database and schema are
	// taken from each store profile.
	Warehouse   repository.Options
	AutoMigrate bool

	Upstream    upstream.Options
	MinInterval time.Duration
}

// StoreSession runs one pass for one store. It owns its upstream session and
// its warehouse connection for the duration of Run and shares neither.
type StoreSession struct {
	store  model.StoreProfile
	opts   SessionOptions
	logger *slog.Logger
}

// NewStoreSession prepares a pass for store. Nothing is opened until Run.
func NewStoreSession(store model.StoreProfile, opts SessionOptions, logger *slog.Logger) *StoreSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSession{
		store:  store,
		opts:   opts,
		logger: logger.With("component", "session", "store_id", store.ID),
	}
}

// Run syncs every entity type in dependency order. The first failure stops
// the remaining entity types; work committed before it stands.
func (s *StoreSession) Run(ctx context.Context) (result model.SyncResult) {
	result = model.NewSyncResult(s.store.ID)
	defer result.Finish()

	if err := config.ValidateStore(s.store); err != nil {
		s.logger.Error("invalid store profile", "error", err)
		result.Fail("", err)
		return result
	}

	api, err := upstream.NewSession(s.store, s.opts.Upstream, s.logger)
	if err != nil {
		s.logger.Error("failed to open upstream session", "error", err)
		result.Fail("", err)
		return result
	}
	defer api.Close()

	conn, err := openWarehouse(ctx, s.store, s.opts, s.logger)
	if err != nil {
		s.logger.Error("failed to open warehouse", "error", err)
		result.Fail("", err)
		return result
	}
	defer conn.Close()

	s.logger.Info("store pass started", "entities", len(model.SyncOrder))

	for _, entity := range model.SyncOrder {
		if err := s.syncEntity(ctx, api, conn, entity, &result); err != nil {
			s.logger.Error("store pass failed", "entity", entity, "error", err)
			result.Fail(entity, err)
			return result
		}
	}

	s.logger.Info("store pass finished", "duration", time.Since(result.StartedAt))
	return result
}

// syncEntity extracts one entity type page by page. Each page's records and
// the cursor after it commit in one transaction.
func (s *StoreSession) syncEntity(ctx context.Context, api upstream.PageFetcher, conn *repository.Conn, entity model.EntityType, result *model.SyncResult) error {
	cursor, err := conn.LoadCursor(ctx, s.store.ID, entity)
	if err != nil {
		return err
	}

	logger := s.logger.With("entity", entity)
	logger.Debug("resuming extraction", "cursor", cursor.LastID)

	extractor := upstream.NewExtractor(api, cursor, upstream.ExtractorOptions{
		PageSize:    s.store.EffectivePageSize(),
		MinInterval: s.opts.MinInterval,
	}, logger)

	pages := 0
	for {
		page, ok, err := extractor.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		pages++

		batch, err := normalize.Batch(entity, s.store.ID, page.Records)
		if err != nil {
			return err
		}
		for e, n := range batch.Skipped {
			result.CountsFor(e).Skipped += n
		}
		for _, skip := range batch.Skips {
			logger.Debug("record skipped", "reason", skip)
		}

		counts := make(map[model.EntityType]model.WriteCounts)
		err = conn.WithTransaction(ctx, func(tx *repository.Tx) error {
			for _, e := range writeOrder(entity) {
				c, err := writeChunks(ctx, tx, e, batch.Records[e], s.batchSize())
				if err != nil {
					return err
				}
				counts[e] = c
			}
			return tx.SaveCursor(ctx, page.Cursor)
		})
		if err != nil {
			return err
		}

		for e, c := range counts {
			result.CountsFor(e).Add(c)
		}
		logger.Debug("page committed", "records", len(page.Records), "cursor", page.Cursor.LastID)
	}

	c := result.CountsFor(entity)
	logger.Info("entity synced",
		"pages", pages,
		"inserted", c.Inserted,
		"updated", c.Updated,
		"skipped", c.Skipped,
		"cursor", extractor.Cursor().LastID,
	)
	return nil
}

func (s *StoreSession) batchSize() int {
	if s.store.Warehouse.BatchSize > 0 {
		return s.store.Warehouse.BatchSize
	}
	return DefaultBatchSize
}

// writeOrder lists the tables one extracted entity type lands in, parents first.
func writeOrder(entity model.EntityType) []model.EntityType {
	if entity == model.EntityOrders {
		return []model.EntityType{model.EntityOrders, model.EntityOrderItems}
	}
	return []model.EntityType{entity}
}

// writeChunks writes records in slices of at most size.
func writeChunks(ctx context.Context, w repository.RecordWriter, entity model.EntityType, records []model.Record, size int) (model.WriteCounts, error) {
	var total model.WriteCounts
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		c, err := w.Write(ctx, entity, records[start:end])
		if err != nil {
			return total, err
		}
		total.Add(c)
	}
	return total, nil
}

// openWarehouse opens a dedicated single-connection handle on the store's
// database and schema.
func openWarehouse(ctx context.Context, store model.StoreProfile, opts SessionOptions, logger *slog.Logger) (*repository.Conn, error) {
	wopts := opts.Warehouse
	if store.Warehouse.Database != "" {
		wopts.Database = store.Warehouse.Database
	}
	wopts.Schema = store.Warehouse.Schema
	wopts.MaxOpenConns = 1

	conn, err := repository.Open(ctx, wopts, logger)
	if err != nil {
		return nil, &syncerr.WriteError{Table: "-", Statement: "connect", Err: err}
	}

	if opts.AutoMigrate {
		if err := conn.EnsureSchema(ctx); err != nil {
			conn.Close()
			return nil, &syncerr.WriteError{Table: "-", Statement: "create schema", Err: err}
		}
	}
	return conn, nil
}
