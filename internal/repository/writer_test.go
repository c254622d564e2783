package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-sync/internal/model"
	"commerce-sync/internal/syncerr"
)

// newTestConn returns an in-memory SQLite warehouse with the default tables.
func newTestConn(t *testing.T) *Conn {
	t.Helper()

	conn, err := Open(context.Background(), Options{Dialect: SQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.EnsureSchema(context.Background()))
	return conn
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func order(id string, price float64, updated time.Time) *model.Order {
	return &model.Order{
		OrderID:    id,
		StoreID:    "us",
		TotalPrice: price,
		Currency:   "USD",
		CreatedAt:  day(1),
		UpdatedAt:  updated,
	}
}

func orderPrice(t *testing.T, conn *Conn, storeID, id string) float64 {
	t.Helper()
	var price float64
	err := conn.db.QueryRow(`SELECT total_price FROM orders WHERE order_id = ? AND store_id = ?`, id, storeID).Scan(&price)
	require.NoError(t, err)
	return price
}

func rowCount(t *testing.T, conn *Conn, table string) int {
	t.Helper()
	var n int
	require.NoError(t, conn.db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func TestWriteDuplicateKeysInBatch(t *testing.T) {
	ctx := context.Background()
	conn := newTestConn(t)

	counts, err := conn.Write(ctx, model.EntityOrders, []model.Record{
		order("1", 10, day(1)),
		order("1", 12, day(2)),
	})
	require.NoError(t, err)

	assert.Equal(t, model.WriteCounts{Inserted: 1, Skipped: 1}, counts)
	assert.Equal(t, 1, rowCount(t, conn, "orders"))
	assert.Equal(t, 12.0, orderPrice(t, conn, "us", "1"))
}

func TestWriteLastWriterWinsInEitherOrder(t *testing.T) {
	tests := []struct {
		name  string
		batch []model.Record
	}{
		{"newer last", []model.Record{order("7", 1, day(3)), order("7", 2, day(5))}},
		{"newer first", []model.Record{order("7", 2, day(5)), order("7", 1, day(3))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newTestConn(t)
			_, err := conn.Write(context.Background(), model.EntityOrders, tt.batch)
			require.NoError(t, err)
			assert.Equal(t, 2.0, orderPrice(t, conn, "us", "7"))
		})
	}
}

func TestWriteEqualTimestampsLaterArrivalWins(t *testing.T) {
	conn := newTestConn(t)
	_, err := conn.Write(context.Background(), model.EntityOrders, []model.Record{
		order("7", 1, day(3)),
		order("7", 2, day(3)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, orderPrice(t, conn, "us", "7"))
}

func TestWriteStaleRecordAcrossPassesIgnored(t *testing.T) {
	ctx := context.Background()
	conn := newTestConn(t)

	_, err := conn.Write(ctx, model.EntityOrders, []model.Record{order("1", 12, day(2))})
	require.NoError(t, err)

	counts, err := conn.Write(ctx, model.EntityOrders, []model.Record{order("1", 10, day(1)), order("2", 5, day(1))})
	require.NoError(t, err)

	assert.Equal(t, model.WriteCounts{Inserted: 1, Updated: 0, Skipped: 1}, counts)
	assert.Equal(t, 12.0, orderPrice(t, conn, "us", "1"))
	assert.Equal(t, 5.0, orderPrice(t, conn, "us", "2"))
}

func TestWriteNewerRecordUpdates(t *testing.T) {
	ctx := context.Background()
	conn := newTestConn(t)

	_, err := conn.Write(ctx, model.EntityOrders, []model.Record{order("1", 10, day(1))})
	require.NoError(t, err)

	counts, err := conn.Write(ctx, model.EntityOrders, []model.Record{order("1", 15, day(4))})
	require.NoError(t, err)

	assert.Equal(t, model.WriteCounts{Updated: 1}, counts)
	assert.Equal(t, 15.0, orderPrice(t, conn, "us", "1"))
}

func TestWriteIdempotent(t *testing.T) {
	ctx := context.Background()
	conn := newTestConn(t)

	batch := []model.Record{order("1", 10, day(1)), order("2", 20, day(2)), order("3", 30, day(3))}

	first, err := conn.Write(ctx, model.EntityOrders, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)

	second, err := conn.Write(ctx, model.EntityOrders, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 3, second.Updated)

	assert.Equal(t, 3, rowCount(t, conn, "orders"))
}

func TestWriteStoresArePartitioned(t *testing.T) {
	ctx := context.Background()
	conn := newTestConn(t)

	eu := order("1", 99, day(1))
	eu.StoreID = "eu"

	_, err := conn.Write(ctx, model.EntityOrders, []model.Record{order("1", 10, day(1)), eu})
	require.NoError(t, err)

	assert.Equal(t, 2, rowCount(t, conn, "orders"))
	assert.Equal(t, 10.0, orderPrice(t, conn, "us", "1"))
	assert.Equal(t, 99.0, orderPrice(t, conn, "eu", "1"))
}

func TestWriteDropsColumnsMissingFromTable(t *testing.T) {
	ctx := context.Background()
	conn := newTestConn(t)

	customer := &model.Customer{
		CustomerID: "42",
		StoreID:    "us",
		Email:      "a@example.com",
		Currency:   "USD",
		State:      "enabled",
		City:       "Ottawa",
		Tags:       "vip",
		UpdatedAt:  day(2),
	}

	counts, err := conn.Write(ctx, model.EntityCustomers, []model.Record{customer})
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Inserted)

	var email, tags string
	require.NoError(t, conn.db.QueryRow(`SELECT email, tags FROM customers WHERE customer_id = '42'`).Scan(&email, &tags))
	assert.Equal(t, "a@example.com", email)
	assert.Equal(t, "vip", tags)
}

func TestWriteNullsForEmptyOptionalFields(t *testing.T) {
	conn := newTestConn(t)

	_, err := conn.Write(context.Background(), model.EntityOrders, []model.Record{order("1", 1, day(1))})
	require.NoError(t, err)

	var customerID, cancelled any
	require.NoError(t, conn.db.QueryRow(`SELECT customer_id, cancelled_at FROM orders WHERE order_id = '1'`).Scan(&customerID, &cancelled))
	assert.Nil(t, customerID)
	assert.Nil(t, cancelled)
}

func TestWriteRequiresUpdatedAt(t *testing.T) {
	ctx := context.Background()

	conn, err := Open(ctx, Options{Dialect: SQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.db.Exec(`CREATE TABLE abandoned_checkouts (
		checkout_id TEXT NOT NULL, store_id TEXT NOT NULL, email TEXT, created_at TIMESTAMP,
		PRIMARY KEY (checkout_id, store_id))`)
	require.NoError(t, err)

	_, err = conn.Write(ctx, model.EntityAbandonedCheckouts, []model.Record{
		&model.AbandonedCheckout{CheckoutID: "1", StoreID: "us", CreatedAt: day(1)},
	})
	require.Error(t, err)

	var cfgErr *syncerr.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Field, "updated_at")
	assert.Equal(t, 0, rowCount(t, conn, "abandoned_checkouts"))
}

func TestWriteMissingTable(t *testing.T) {
	ctx := context.Background()

	conn, err := Open(ctx, Options{Dialect: SQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(ctx, model.EntityOrders, []model.Record{order("1", 1, day(1))})
	assert.Equal(t, syncerr.KindConfiguration, syncerr.KindOf(err))
}

func TestWriteEmptyBatch(t *testing.T) {
	conn := newTestConn(t)

	counts, err := conn.Write(context.Background(), model.EntityOrders, nil)
	require.NoError(t, err)
	assert.Equal(t, model.WriteCounts{}, counts)
}

func TestWriteDropsStagingTable(t *testing.T) {
	conn := newTestConn(t)

	_, err := conn.Write(context.Background(), model.EntityOrders, []model.Record{order("1", 1, day(1))})
	require.NoError(t, err)

	var n int
	require.NoError(t, conn.db.QueryRow(`SELECT COUNT(*) FROM sqlite_temp_master WHERE type = 'table'`).Scan(&n))
	assert.Zero(t, n)
}

func TestWithTransactionRollsBackOrderGraph(t *testing.T) {
	ctx := context.Background()
	conn := newTestConn(t)
	boom := errors.New("boom")

	err := conn.WithTransaction(ctx, func(tx *Tx) error {
		if _, err := tx.Write(ctx, model.EntityOrders, []model.Record{order("1", 1, day(1))}); err != nil {
			return err
		}
		item := &model.OrderLineItem{OrderItemID: "11", StoreID: "us", OrderID: "1", UpdatedAt: day(1)}
		if _, err := tx.Write(ctx, model.EntityOrderItems, []model.Record{item}); err != nil {
			return err
		}
		if err := tx.SaveCursor(ctx, model.SyncCursor{StoreID: "us", Entity: model.EntityOrders, LastID: 1}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 0, rowCount(t, conn, "orders"))
	assert.Equal(t, 0, rowCount(t, conn, "order_items"))

	cursor, err := conn.LoadCursor(ctx, "us", model.EntityOrders)
	require.NoError(t, err)
	assert.Zero(t, cursor.LastID)
}

func TestDedupe(t *testing.T) {
	a1 := order("a", 1, day(1))
	b := order("b", 2, day(1))
	a2 := order("a", 3, day(2))
	zero := order("a", 4, time.Time{})
	zero.CreatedAt = time.Time{}

	got := dedupe([]model.Record{a1, b, a2, zero})
	require.Len(t, got, 2)
	assert.Same(t, a2, got[0])
	assert.Same(t, b, got[1])
}
