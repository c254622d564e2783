package repository

import (
	"context"

	"commerce-sync/internal/model"
)

// RecordWriter merges canonical records of one entity type into the warehouse.
type RecordWriter interface {
	// Write merges records by natural key, keeping the newest version of each.
	Write(ctx context.Context, entity model.EntityType, records []model.Record) (model.WriteCounts, error)
}

// CursorStore persists extraction progress.
type CursorStore interface {
	// LoadCursor returns the stored cursor, or a zero cursor if none exists.
	LoadCursor(ctx context.Context, storeID string, entity model.EntityType) (model.SyncCursor, error)

	// ListCursors returns the cursors of a store, or of every store when storeID is empty.
	ListCursors(ctx context.Context, storeID string) ([]model.SyncCursor, error)

	// ResetCursors deletes the cursors of a store. No entities means all of them.
	ResetCursors(ctx context.Context, storeID string, entities ...model.EntityType) (int64, error)
}

var (
	_ RecordWriter = (*Conn)(nil)
	_ RecordWriter = (*Tx)(nil)
	_ CursorStore  = (*Conn)(nil)
)
