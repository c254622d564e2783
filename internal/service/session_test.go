package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-sync/internal/model"
	"commerce-sync/internal/repository"
	"commerce-sync/internal/syncerr"
)

func storeStatus(t *testing.T, opts SessionOptions, store model.StoreProfile) *repository.StoreStatus {
	t.Helper()
	ctx := context.Background()

	conn, err := openWarehouse(ctx, store, opts, nil)
	require.NoError(t, err)
	defer conn.Close()

	status, err := conn.StoreStatus(ctx, store.ID)
	require.NoError(t, err)
	return status
}

func TestStoreSessionRun(t *testing.T) {
	ctx := context.Background()
	shop := seededShop()
	srv := startShop(t, shop)
	opts := testSessionOptions(t)

	store := profile("us", srv.URL)
	store.PageSize = 1

	result := NewStoreSession(store, opts, nil).Run(ctx)
	require.True(t, result.Success, result.Error)
	assert.False(t, result.FinishedAt.IsZero())

	assert.Equal(t, 2, result.Counts[model.EntityCustomers].Inserted)
	assert.Equal(t, 1, result.Counts[model.EntityOrders].Inserted)
	assert.Equal(t, 2, result.Counts[model.EntityOrderItems].Inserted)
	assert.Equal(t, 1, result.Counts[model.EntityAbandonedCheckouts].Inserted)

	// Page size 1: one request per record plus the empty page.
	assert.Equal(t, 3, shop.requestCount("customers"))

	status := storeStatus(t, opts, store)
	assert.Equal(t, int64(2), status.Counts[model.EntityCustomers])
	assert.Equal(t, int64(2), status.Counts[model.EntityOrderItems])
	require.NotNil(t, status.LastOrderAt)

	cursors := make(map[model.EntityType]int64)
	for _, c := range status.Cursors {
		cursors[c.Entity] = c.LastID
	}
	assert.Equal(t, int64(2), cursors[model.EntityCustomers])
	assert.Equal(t, int64(100), cursors[model.EntityOrders])
	assert.Equal(t, int64(500), cursors[model.EntityAbandonedCheckouts])
}

func TestStoreSessionResumesFromCursor(t *testing.T) {
	ctx := context.Background()
	shop := seededShop()
	srv := startShop(t, shop)
	opts := testSessionOptions(t)
	store := profile("us", srv.URL)

	first := NewStoreSession(store, opts, nil).Run(ctx)
	require.True(t, first.Success, first.Error)

	shop.add("customers", customer(3, "2024-01-03T00:00:00Z"))

	second := NewStoreSession(store, opts, nil).Run(ctx)
	require.True(t, second.Success, second.Error)
	assert.Equal(t, model.WriteCounts{Inserted: 1}, *second.Counts[model.EntityCustomers])
	assert.Equal(t, 0, second.Counts[model.EntityOrders].Total())

	status := storeStatus(t, opts, store)
	assert.Equal(t, int64(3), status.Counts[model.EntityCustomers])
}

func TestStoreSessionKeepsNewestVersion(t *testing.T) {
	ctx := context.Background()
	shop := seededShop()
	srv := startShop(t, shop)
	opts := testSessionOptions(t)
	store := profile("us", srv.URL)

	require.True(t, NewStoreSession(store, opts, nil).Run(ctx).Success)

	shop.mu.Lock()
	shop.records["orders"][0] = shopOrder(100, "15.00", "2024-02-01T00:00:00Z", 1000, 1001)
	shop.mu.Unlock()

	conn, err := openWarehouse(ctx, store, opts, nil)
	require.NoError(t, err)
	_, err = conn.ResetCursors(ctx, store.ID)
	require.NoError(t, err)
	conn.Close()

	result := NewStoreSession(store, opts, nil).Run(ctx)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, model.WriteCounts{Updated: 1}, *result.Counts[model.EntityOrders])
	assert.Equal(t, model.WriteCounts{Updated: 2}, *result.Counts[model.EntityOrderItems])

	// Unchanged customers re-extracted after the reset carry equal timestamps.
	assert.Equal(t, 2, result.Counts[model.EntityCustomers].Updated)
}

func TestStoreSessionStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	shop := seededShop()
	shop.fail("orders", 503)
	srv := startShop(t, shop)
	opts := testSessionOptions(t)
	store := profile("us", srv.URL)

	result := NewStoreSession(store, opts, nil).Run(ctx)
	assert.False(t, result.Success)
	assert.Equal(t, syncerr.KindExtraction, result.ErrorKind)
	assert.Equal(t, model.EntityOrders, result.FailedAt)
	assert.Equal(t, 2, result.Counts[model.EntityCustomers].Inserted, "committed work stands")
	assert.Zero(t, shop.requestCount("checkouts"))

	status := storeStatus(t, opts, store)
	assert.Equal(t, int64(2), status.Counts[model.EntityCustomers])
	assert.Zero(t, status.Counts[model.EntityOrders])
}

func TestStoreSessionCountsNormalizerSkips(t *testing.T) {
	ctx := context.Background()
	shop := newFakeShop()
	shop.add("orders", shopOrder(100, "10.00", "2024-01-01T00:00:00Z", 1000))
	shop.mu.Lock()
	lines := shop.records["orders"][0]["line_items"].([]any)
	shop.records["orders"][0]["line_items"] = append(lines, map[string]any{"title": "no id"})
	shop.mu.Unlock()
	srv := startShop(t, shop)
	opts := testSessionOptions(t)

	result := NewStoreSession(profile("us", srv.URL), opts, nil).Run(ctx)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, model.WriteCounts{Inserted: 1, Skipped: 1}, *result.Counts[model.EntityOrderItems])
}

func TestStoreSessionInvalidProfile(t *testing.T) {
	shop := seededShop()
	srv := startShop(t, shop)

	store := profile("us", srv.URL)
	store.API.AccessToken = "${MISSING_TOKEN}"

	result := NewStoreSession(store, testSessionOptions(t), nil).Run(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, syncerr.KindConfiguration, result.ErrorKind)
	assert.Zero(t, shop.totalRequests())
}

func TestStoreSessionAuthFailure(t *testing.T) {
	shop := seededShop()
	shop.fail("customers", 401)
	srv := startShop(t, shop)

	result := NewStoreSession(profile("us", srv.URL), testSessionOptions(t), nil).Run(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, syncerr.KindExtraction, result.ErrorKind)
	assert.Equal(t, model.EntityCustomers, result.FailedAt)
	assert.Contains(t, result.Error, "401")
}

func TestWriteChunks(t *testing.T) {
	w := &countingWriter{}
	recs := make([]model.Record, 5)
	for i := range recs {
		recs[i] = &model.Customer{CustomerID: string(rune('a' + i)), StoreID: "us"}
	}

	counts, err := writeChunks(context.Background(), w, model.EntityCustomers, recs, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, w.batches)
	assert.Equal(t, 5, counts.Inserted)
}

type countingWriter struct {
	batches []int
}

func (w *countingWriter) Write(_ context.Context, _ model.EntityType, records []model.Record) (model.WriteCounts, error) {
	w.batches = append(w.batches, len(records))
	return model.WriteCounts{Inserted: len(records)}, nil
}
