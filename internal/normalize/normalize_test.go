package normalize

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-sync/internal/model"
	"commerce-sync/internal/syncerr"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewBufferString(raw))
	dec.UseNumber()
	var out map[string]any
	require.NoError(t, dec.Decode(&out))
	return out
}

func TestCustomer(t *testing.T) {
	raw := decode(t, `{
		"id": 207119551,
		"email": "bob@example.com",
		"first_name": "Bob",
		"orders_count": "3",
		"total_spent": "199.65",
		"verified_email": true,
		"tags": "vip, wholesale",
		"last_order_id": 450789469,
		"created_at": "2024-03-01T10:00:00-05:00",
		"updated_at": "2024-03-02T10:00:00Z",
		"default_address": {"country": "Canada", "province": "Ontario", "city": "Ottawa", "zip": "K2P 1L4"}
	}`)

	c, err := Customer("eu", raw)
	require.NoError(t, err)

	assert.Equal(t, "207119551", c.CustomerID)
	assert.Equal(t, "eu", c.StoreID)
	assert.Equal(t, int64(3), c.OrdersCount)
	assert.InDelta(t, 199.65, c.TotalSpent, 0.0001)
	assert.True(t, c.VerifiedEmail)
	assert.False(t, c.AcceptsMarketing)
	assert.Equal(t, "USD", c.Currency)
	assert.Equal(t, "enabled", c.State)
	assert.Equal(t, "450789469", c.LastOrderID)
	assert.Equal(t, "Ottawa", c.City)
	assert.Equal(t, "K2P 1L4", c.Zip)
	assert.Equal(t, time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC), c.CreatedAt)
	assert.Equal(t, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), c.OrderingTime())
	assert.NotEmpty(t, c.Attributes)
}

func TestCustomerWithoutAddress(t *testing.T) {
	c, err := Customer("eu", decode(t, `{"id": 1, "created_at": "2024-01-01T00:00:00Z"}`))
	require.NoError(t, err)

	cols := c.Columns()
	assert.Nil(t, cols["country"])
	assert.Nil(t, cols["email"])
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), c.OrderingTime(), "falls back to created_at")
}

func TestMissingIDIsSkip(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"customer", func() error { _, err := Customer("s", map[string]any{"email": "x"}); return err }},
		{"order", func() error { _, _, err := Order("s", map[string]any{"id": 0}); return err }},
		{"checkout", func() error { _, err := Checkout("s", map[string]any{"id": nil}); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			require.Error(t, err)
			var skip *syncerr.NormalizationSkip
			assert.ErrorAs(t, err, &skip)
			assert.Equal(t, syncerr.KindNormalization, syncerr.KindOf(err))
		})
	}
}

func TestOrderWithLineItems(t *testing.T) {
	raw := decode(t, `{
		"id": 820982911946154508,
		"order_number": 1001,
		"total_price": "12.50",
		"currency": "EUR",
		"financial_status": "paid",
		"created_at": "2024-05-01T08:00:00Z",
		"updated_at": "2024-05-03T08:00:00Z",
		"cancelled_at": null,
		"customer": {"id": 115310627314723954},
		"shipping_address": {"name": "Bob Norman", "address1": "Chestnut Street 92", "city": "Louisville", "country": "United States", "zip": "40202"},
		"line_items": [
			{"id": 466157049, "product_id": 632910392, "variant_id": 39072856, "title": "IPod Nano", "quantity": 1, "price": "199.00", "sku": "IPOD2008GREEN", "taxable": true},
			{"id": 518995019, "title": "Gift card", "quantity": 2, "price": "5"}
		]
	}`)

	o, items, err := Order("us", raw)
	require.NoError(t, err)

	assert.Equal(t, "820982911946154508", o.OrderID)
	assert.Equal(t, "115310627314723954", o.CustomerID)
	assert.Equal(t, int64(1001), o.OrderNumber)
	assert.InDelta(t, 12.5, o.TotalPrice, 0.0001)
	assert.Equal(t, "EUR", o.Currency)
	assert.Equal(t, int64(2), o.TotalItems)
	assert.Equal(t, "Louisville", o.ShippingCity)
	assert.Nil(t, o.CancelledAt)

	require.Len(t, items, 2)
	assert.Equal(t, "466157049", items[0].OrderItemID)
	assert.Equal(t, o.OrderID, items[0].OrderID)
	assert.Equal(t, "632910392", items[0].ProductID)
	assert.True(t, items[0].Taxable)
	assert.Equal(t, "", items[1].ProductID)
	assert.Equal(t, int64(2), items[1].Quantity)
	for _, item := range items {
		assert.Equal(t, o.CreatedAt, item.CreatedAt)
		assert.Equal(t, o.OrderingTime(), item.OrderingTime())
	}
}

func TestCheckoutAbandonedAtIsCreatedAt(t *testing.T) {
	raw := decode(t, `{
		"id": 450789469,
		"email": "carol@example.com",
		"total_price": "398.00",
		"abandoned_checkout_url": "https://shop.example.com/recover/abc",
		"created_at": "2024-02-10T12:00:00Z",
		"updated_at": "2024-02-11T12:00:00Z"
	}`)

	a, err := Checkout("us", raw)
	require.NoError(t, err)
	assert.Equal(t, a.CreatedAt, a.AbandonedAt)
	assert.Equal(t, "https://shop.example.com/recover/abc", a.RecoveryURL)
	assert.Equal(t, "USD", a.Currency)
	assert.Empty(t, a.CustomerID)
}

func TestBatch(t *testing.T) {
	raws := []map[string]any{
		decode(t, `{"id": 1, "updated_at": "2024-01-01T00:00:00Z", "line_items": [{"id": 11}, {"title": "no id"}]}`),
		decode(t, `{"total_price": "1.00"}`),
		decode(t, `{"id": 2, "updated_at": "2024-01-02T00:00:00Z", "line_items": []}`),
	}

	res, err := Batch(model.EntityOrders, "us", raws)
	require.NoError(t, err)

	assert.Len(t, res.Records[model.EntityOrders], 2)
	assert.Len(t, res.Records[model.EntityOrderItems], 1)
	assert.Equal(t, 1, res.Skipped[model.EntityOrders])
	assert.Equal(t, 1, res.Skipped[model.EntityOrderItems])
	assert.Len(t, res.Skips, 2)
	assert.Equal(t, 3, res.Len())
}

func TestBatchUnknownEntity(t *testing.T) {
	_, err := Batch(model.EntityOrderItems, "us", nil)
	assert.Error(t, err)
}

func TestGetTimeLayouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-02T03:04:05Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02T03:04:05.123456Z", time.Date(2024, 1, 2, 3, 4, 5, 123456000, time.UTC)},
		{"2024-01-02T03:04:05+02:00", time.Date(2024, 1, 2, 1, 4, 5, 0, time.UTC)},
		{"2024-01-02 03:04:05", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"not a date", time.Time{}},
		{"", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, getTime(map[string]any{"t": tt.in}, "t"))
		})
	}
}
