package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all process configuration loaded from environment variables.
// Store profiles come from the stores file; see LoadStores.
type Config struct {
	Server       ServerConfig
	App          AppConfig
	Log          LogConfig
	Cache        CacheConfig
	Warehouse    WarehouseConfig
	Sync         SyncConfig
	DefaultStore DefaultStoreConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30m"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"commerce-sync"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	AdminKey    string `envconfig:"ADMIN_API_KEY" default:""` // Required to trigger passes over HTTP
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"` // json or text
}

// CacheConfig holds result ledger and store lock settings.
type CacheConfig struct {
	Type    string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	LockTTL time.Duration `envconfig:"CACHE_LOCK_TTL" default:"1h"`

	RedisHost      string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort      int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"commerce-sync"`
}

// WarehouseConfig locates the analytical warehouse. DSN wins over the discrete fields.
type WarehouseConfig struct {
	Driver      string `envconfig:"WAREHOUSE_DRIVER" default:"sqlite"` // sqlite, postgres, or mysql
	DSN         string `envconfig:"WAREHOUSE_DSN" default:""`
	Path        string `envconfig:"WAREHOUSE_PATH" default:"./data/warehouse.db"`
	Host        string `envconfig:"WAREHOUSE_HOST" default:"localhost"`
	Port        int    `envconfig:"WAREHOUSE_PORT" default:"0"`
	Name        string `envconfig:"WAREHOUSE_NAME" default:"analytics"`
	User        string `envconfig:"WAREHOUSE_USER" default:""`
	Password    string `envconfig:"WAREHOUSE_PASS" default:""`
	SSLMode     string `envconfig:"WAREHOUSE_SSLMODE" default:"disable"`
	AutoMigrate bool   `envconfig:"WAREHOUSE_AUTO_MIGRATE" default:"true"`
}

// SyncConfig holds orchestration settings.
type SyncConfig struct {
	StoresFile     string        `envconfig:"STORES_FILE" default:"config/stores.yaml"`
	Concurrency    int           `envconfig:"SYNC_CONCURRENCY" default:"5"`
	MinInterval    time.Duration `envconfig:"SYNC_MIN_INTERVAL" default:"500ms"`
	Interval       time.Duration `envconfig:"SYNC_INTERVAL" default:"0s"` // 0 disables scheduled passes
	RequestTimeout time.Duration `envconfig:"SYNC_REQUEST_TIMEOUT" default:"30s"`
	RetryAttempts  int           `envconfig:"SYNC_RETRY_ATTEMPTS" default:"1"` // 1 means no retry
}

// DefaultStoreConfig describes an optional store configured purely from the environment.
type DefaultStoreConfig struct {
	ShopName    string `envconfig:"SHOPIFY_SHOP_NAME" default:""`
	AccessToken string `envconfig:"SHOPIFY_ACCESS_TOKEN" default:""`
	APIVersion  string `envconfig:"SHOPIFY_API_VERSION" default:"2024-01"`
	Schema      string `envconfig:"SHOPIFY_WAREHOUSE_SCHEMA" default:"STORE_DEFAULT"`
}

// Enabled reports whether both the shop name and the token are set.
func (d *DefaultStoreConfig) Enabled() bool {
	return d.ShopName != "" && d.AccessToken != ""
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// ConnString returns the data source name for the configured driver.
func (w *WarehouseConfig) ConnString() string {
	if w.DSN != "" {
		return w.DSN
	}

	switch w.Driver {
	case "postgres", "postgresql":
		port := w.Port
		if port == 0 {
			port = 5432
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			w.User, w.Password, w.Host, port, w.Name, w.SSLMode)
	case "mysql":
		port := w.Port
		if port == 0 {
			port = 3306
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			w.User, w.Password, w.Host, port, w.Name)
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", w.Path)
}

// Validate checks settings that envconfig cannot.
func (c *Config) Validate() error {
	switch c.Warehouse.Driver {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("unsupported warehouse driver: %s (must be sqlite, postgres, or mysql)", c.Warehouse.Driver)
	}

	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache type: %s (must be memory or redis)", c.Cache.Type)
	}

	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("SYNC_CONCURRENCY must be positive")
	}
	if c.Sync.MinInterval < 0 {
		return fmt.Errorf("SYNC_MIN_INTERVAL must not be negative")
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("SYNC_INTERVAL must not be negative")
	}
	if c.Sync.RetryAttempts < 1 {
		return fmt.Errorf("SYNC_RETRY_ATTEMPTS must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Log.Format)
	}

	return nil
}

// Load reads a .env file if present, then configuration from environment variables.
func Load(envFiles ...string) (*Config, error) {
	// Silent fail if no .env file exists
	_ = godotenv.Load(envFiles...)

	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
