package repository

import (
	"context"
	"fmt"
	"time"

	"commerce-sync/internal/model"
)

// StoreStatus summarizes what the warehouse holds for one store.
type StoreStatus struct {
	StoreID     string                     `json:"store_id"`
	Counts      map[model.EntityType]int64 `json:"counts"`
	LastOrderAt *time.Time                 `json:"last_order_at,omitempty"`
	Cursors     []model.SyncCursor         `json:"cursors"`
}

// StoreStatus counts a store's rows per table and finds its newest order.
func (c *Conn) StoreStatus(ctx context.Context, storeID string) (*StoreStatus, error) {
	d := c.dialect
	status := &StoreStatus{
		StoreID: storeID,
		Counts:  make(map[model.EntityType]int64, len(model.AllEntities)),
	}

	for _, entity := range model.AllEntities {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE store_id = %s", c.table(entity.Table()), d.Placeholder(1))
		var n int64
		if err := c.db.QueryRowContext(ctx, query, storeID).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", entity.Table(), err)
		}
		status.Counts[entity] = n
	}

	query := fmt.Sprintf("SELECT MAX(created_at) FROM %s WHERE store_id = %s", c.table(model.EntityOrders.Table()), d.Placeholder(1))
	var last any
	if err := c.db.QueryRowContext(ctx, query, storeID).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to read last order date: %w", err)
	}
	if t, ok := parseTime(last); ok {
		status.LastOrderAt = &t
	}

	cursors, err := c.ListCursors(ctx, storeID)
	if err != nil {
		return nil, err
	}
	status.Cursors = cursors

	return status, nil
}
