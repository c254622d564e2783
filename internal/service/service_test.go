package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"commerce-sync/internal/cache"
	"commerce-sync/internal/model"
	"commerce-sync/internal/repository"
)

// fakeShop serves the upstream REST collections from memory.
type fakeShop struct {
	mu       sync.Mutex
	records  map[string][]map[string]any
	failing  map[string]int
	requests map[string]int
}

func newFakeShop() *fakeShop {
	return &fakeShop{
		records:  make(map[string][]map[string]any),
		failing:  make(map[string]int),
		requests: make(map[string]int),
	}
}

func (f *fakeShop) add(resource string, recs ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[resource] = append(f.records[resource], recs...)
	sort.Slice(f.records[resource], func(i, j int) bool {
		return f.records[resource][i]["id"].(int64) < f.records[resource][j]["id"].(int64)
	})
}

func (f *fakeShop) fail(resource string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[resource] = status
}

func (f *fakeShop) requestCount(resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[resource]
}

func (f *fakeShop) totalRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.requests {
		n += c
	}
	return n
}

func (f *fakeShop) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resource := strings.TrimSuffix(path.Base(r.URL.Path), ".json")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[resource]++

	if status := f.failing[resource]; status != 0 {
		http.Error(w, "upstream unavailable", status)
		return
	}

	since, _ := strconv.ParseInt(r.URL.Query().Get("since_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	out := []map[string]any{}
	for _, rec := range f.records[resource] {
		if rec["id"].(int64) <= since {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{resource: out})
}

func customer(id int64, updated string) map[string]any {
	return map[string]any{
		"id":         id,
		"email":      fmt.Sprintf("c%d@example.com", id),
		"created_at": "2024-01-01T00:00:00Z",
		"updated_at": updated,
	}
}

func shopOrder(id int64, price string, updated string, lineIDs ...int64) map[string]any {
	lines := make([]any, 0, len(lineIDs))
	for _, lid := range lineIDs {
		lines = append(lines, map[string]any{"id": lid, "title": "Widget", "quantity": 1, "price": "5.00"})
	}
	return map[string]any{
		"id":          id,
		"total_price": price,
		"currency":    "USD",
		"created_at":  "2024-01-01T00:00:00Z",
		"updated_at":  updated,
		"line_items":  lines,
	}
}

func checkout(id int64) map[string]any {
	return map[string]any{
		"id":                     id,
		"total_price":            "20.00",
		"abandoned_checkout_url": "https://shop.example/recover/1",
		"created_at":             "2024-01-02T00:00:00Z",
		"updated_at":             "2024-01-02T00:00:00Z",
	}
}

// seededShop returns a shop with two customers, one order with two line items and one checkout.
func seededShop() *fakeShop {
	shop := newFakeShop()
	shop.add("customers", customer(1, "2024-01-01T00:00:00Z"), customer(2, "2024-01-01T00:00:00Z"))
	shop.add("orders", shopOrder(100, "10.00", "2024-01-01T00:00:00Z", 1000, 1001))
	shop.add("checkouts", checkout(500))
	return shop
}

func startShop(t *testing.T, shop *fakeShop) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(shop)
	t.Cleanup(srv.Close)
	return srv
}

func testSessionOptions(t *testing.T) SessionOptions {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "warehouse.db")
	return SessionOptions{
		Warehouse: repository.Options{
			Dialect: repository.SQLite,
			DSN:     "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate",
		},
		AutoMigrate: true,
	}
}

func profile(id, endpoint string) model.StoreProfile {
	return model.StoreProfile{
		ID:   id,
		Name: id,
		API: model.APIProfile{
			Endpoint:    endpoint,
			APIVersion:  "2024-01",
			AccessToken: "shpat_" + id,
		},
		Warehouse: model.WarehouseProfile{Schema: "store_" + id},
	}
}

func newTestOrchestrator(t *testing.T, stores []model.StoreProfile, opts OrchestratorOptions) (*Orchestrator, cache.Store) {
	t.Helper()
	store := cache.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	o, err := NewOrchestrator(stores, store, opts, nil)
	require.NoError(t, err)
	return o, store
}
