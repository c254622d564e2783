package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"commerce-sync/internal/model"
	"commerce-sync/internal/syncerr"
)

// LoadCursor returns the persisted cursor for a store and entity type.
// A store that was never synced starts at zero.
func (c *Conn) LoadCursor(ctx context.Context, storeID string, entity model.EntityType) (model.SyncCursor, error) {
	d := c.dialect
	query := fmt.Sprintf("SELECT last_id FROM %s WHERE store_id = %s AND entity_type = %s",
		c.table(CursorTable), d.Placeholder(1), d.Placeholder(2))

	cursor := model.SyncCursor{StoreID: storeID, Entity: entity}
	err := c.db.QueryRowContext(ctx, query, storeID, string(entity)).Scan(&cursor.LastID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return cursor, &syncerr.WriteError{Table: CursorTable, Statement: "load cursor", Err: err}
	}
	return cursor, nil
}

// SaveCursor persists cursor within the transaction. A stored cursor is never moved backwards.
func (t *Tx) SaveCursor(ctx context.Context, cursor model.SyncCursor) error {
	c := t.conn
	d := c.dialect
	target := c.table(CursorTable)
	now := d.Value(time.Now().UTC())

	var stmt string
	if d == MySQL {
		stmt = fmt.Sprintf(`INSERT INTO %s (store_id, entity_type, last_id, updated_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE updated_at = IF(VALUES(last_id) > last_id, VALUES(updated_at), updated_at),
			last_id = GREATEST(last_id, VALUES(last_id))`, target)
	} else {
		stmt = fmt.Sprintf(`INSERT INTO %s AS w (store_id, entity_type, last_id, updated_at) VALUES (%s)
			ON CONFLICT (store_id, entity_type) DO UPDATE SET last_id = excluded.last_id, updated_at = excluded.updated_at
			WHERE excluded.last_id > w.last_id`, target, d.placeholders(1, 4))
	}

	if _, err := t.tx.ExecContext(ctx, stmt, cursor.StoreID, string(cursor.Entity), cursor.LastID, now); err != nil {
		return &syncerr.WriteError{Table: CursorTable, Statement: "save cursor", Err: err}
	}
	return nil
}

// ListCursors returns every cursor of a store, or of all stores when storeID is empty.
func (c *Conn) ListCursors(ctx context.Context, storeID string) ([]model.SyncCursor, error) {
	query := fmt.Sprintf("SELECT store_id, entity_type, last_id FROM %s", c.table(CursorTable))
	var args []any
	if storeID != "" {
		query += " WHERE store_id = " + c.dialect.Placeholder(1)
		args = append(args, storeID)
	}
	query += " ORDER BY store_id, entity_type"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}
	defer rows.Close()

	var cursors []model.SyncCursor
	for rows.Next() {
		var (
			cur    model.SyncCursor
			entity string
		)
		if err := rows.Scan(&cur.StoreID, &entity, &cur.LastID); err != nil {
			return nil, fmt.Errorf("failed to scan cursor: %w", err)
		}
		cur.Entity = model.EntityType(entity)
		cursors = append(cursors, cur)
	}
	return cursors, rows.Err()
}

// ResetCursors deletes a store's cursors so its next pass extracts from the
// beginning. With entities given, only those cursors are removed.
func (c *Conn) ResetCursors(ctx context.Context, storeID string, entities ...model.EntityType) (int64, error) {
	d := c.dialect
	query := fmt.Sprintf("DELETE FROM %s WHERE store_id = %s", c.table(CursorTable), d.Placeholder(1))
	args := []any{storeID}

	if len(entities) > 0 {
		query += fmt.Sprintf(" AND entity_type IN (%s)", d.placeholders(2, len(entities)))
		for _, e := range entities {
			args = append(args, string(e))
		}
	}

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset cursors for %s: %w", storeID, err)
	}
	return res.RowsAffected()
}
