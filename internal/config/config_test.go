package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-sync/internal/model"
	"commerce-sync/internal/syncerr"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Warehouse.Driver)
	assert.Equal(t, 5, cfg.Sync.Concurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.MinInterval)
	assert.Equal(t, 1, cfg.Sync.RetryAttempts)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SYNC_CONCURRENCY", "2")
	t.Setenv("SYNC_INTERVAL", "15m")
	t.Setenv("WAREHOUSE_DRIVER", "postgres")
	t.Setenv("WAREHOUSE_USER", "sync")
	t.Setenv("WAREHOUSE_PASS", "pw")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Sync.Concurrency)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "postgres://sync:pw@localhost:5432/analytics?sslmode=disable", cfg.Warehouse.ConnString())
}

func TestLoadFromDotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "SYNC_CONCURRENCY=3\n")
	t.Setenv("SYNC_CONCURRENCY", "")
	os.Unsetenv("SYNC_CONCURRENCY")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Sync.Concurrency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"driver", func(c *Config) { c.Warehouse.Driver = "snowflake" }},
		{"cache", func(c *Config) { c.Cache.Type = "memcached" }},
		{"concurrency", func(c *Config) { c.Sync.Concurrency = 0 }},
		{"retry", func(c *Config) { c.Sync.RetryAttempts = 0 }},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, validConfig().Validate())
}

func validConfig() *Config {
	return &Config{
		Warehouse: WarehouseConfig{Driver: "sqlite", Path: "x.db"},
		Cache:     CacheConfig{Type: "memory"},
		Sync:      SyncConfig{Concurrency: 5, RetryAttempts: 1},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

func TestConnString(t *testing.T) {
	w := WarehouseConfig{Driver: "mysql", User: "u", Password: "p", Host: "db", Name: "wh"}
	assert.Equal(t, "u:p@tcp(db:3306)/wh?parseTime=true", w.ConnString())

	w = WarehouseConfig{Driver: "sqlite", Path: "/tmp/w.db"}
	assert.Contains(t, w.ConnString(), "file:/tmp/w.db?")

	w.DSN = "file::memory:"
	assert.Equal(t, "file::memory:", w.ConnString())
}

func TestExpandEnv(t *testing.T) {
	lookup := lookupFrom(map[string]string{"TOKEN": "shpat_1", "SHOP": "acme"})

	out, missing := ExpandEnv("${TOKEN}", lookup)
	assert.Equal(t, "shpat_1", out)
	assert.Empty(t, missing)

	out, missing = ExpandEnv("https://$SHOP.myshopify.com/${NOPE}", lookup)
	assert.Equal(t, "https://acme.myshopify.com/${NOPE}", out)
	assert.Equal(t, []string{"NOPE"}, missing)
}

const storesYAML = `
stores:
  eu:
    name: EU store
    api:
      endpoint: https://eu-shop.myshopify.com
      api_version: "2024-01"
      access_token: ${EU_TOKEN}
    warehouse:
      database: analytics
      schema: store_eu
      batch_size: 500
    page_size: 100
  us:
    api:
      endpoint: us-shop
      access_token: ${US_TOKEN}
`

func TestLoadStoresYAML(t *testing.T) {
	path := writeFile(t, "stores.yaml", storesYAML)
	cfg := validConfig()

	stores, err := cfg.LoadStores(path, lookupFrom(map[string]string{"EU_TOKEN": "shpat_eu"}), nil)
	require.NoError(t, err)
	require.Len(t, stores, 2)

	eu := stores[0]
	assert.Equal(t, "eu", eu.ID)
	assert.Equal(t, "EU store", eu.Name)
	assert.Equal(t, "shpat_eu", eu.API.AccessToken)
	assert.Equal(t, "store_eu", eu.Warehouse.Schema)
	assert.Equal(t, 500, eu.Warehouse.BatchSize)
	assert.Equal(t, 100, eu.EffectivePageSize())
	assert.NoError(t, ValidateStore(eu))

	us := stores[1]
	assert.Equal(t, "us", us.Name)
	assert.Equal(t, "${US_TOKEN}", us.API.AccessToken)
	assert.Equal(t, model.DefaultPageSize, us.EffectivePageSize())

	err = ValidateStore(us)
	var cfgErr *syncerr.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "api.access_token", cfgErr.Field)
}

func TestLoadStoresTOML(t *testing.T) {
	path := writeFile(t, "stores.toml", `
[stores.ca]
name = "Canada"
page_size = 50

[stores.ca.api]
endpoint = "ca-shop"
access_token = "$CA_TOKEN"

[stores.ca.warehouse]
schema = "store_ca"
`)
	cfg := validConfig()

	stores, err := cfg.LoadStores(path, lookupFrom(map[string]string{"CA_TOKEN": "shpat_ca"}), nil)
	require.NoError(t, err)
	require.Len(t, stores, 1)
	assert.Equal(t, "shpat_ca", stores[0].API.AccessToken)
	assert.Equal(t, "store_ca", stores[0].Warehouse.Schema)
	assert.Equal(t, 50, stores[0].PageSize)
}

func TestLoadStoresDefaultStore(t *testing.T) {
	cfg := validConfig()
	cfg.Warehouse.Name = "analytics"
	cfg.DefaultStore = DefaultStoreConfig{ShopName: "acme", AccessToken: "shpat_default", APIVersion: "2024-01", Schema: "STORE_DEFAULT"}

	stores, err := cfg.LoadStores(filepath.Join(t.TempDir(), "absent.yaml"), lookupFrom(nil), nil)
	require.NoError(t, err)
	require.Len(t, stores, 1)

	s := stores[0]
	assert.Equal(t, DefaultStoreID, s.ID)
	assert.Equal(t, "acme", s.API.Endpoint)
	assert.Equal(t, "STORE_DEFAULT", s.Warehouse.Schema)
	assert.NoError(t, ValidateStore(s))
}

func TestLoadStoresMalformed(t *testing.T) {
	path := writeFile(t, "stores.yaml", "stores: [not, a, map]")
	cfg := validConfig()

	_, err := cfg.LoadStores(path, lookupFrom(nil), nil)
	assert.Error(t, err)
}

func TestValidateStore(t *testing.T) {
	base := model.StoreProfile{
		ID:  "s",
		API: model.APIProfile{Endpoint: "shop", AccessToken: "tok"},
	}
	assert.NoError(t, ValidateStore(base))

	noEndpoint := base
	noEndpoint.API.Endpoint = " "
	assert.Equal(t, syncerr.KindConfiguration, syncerr.KindOf(ValidateStore(noEndpoint)))

	bigPage := base
	bigPage.PageSize = 500
	assert.Error(t, ValidateStore(bigPage))
}
