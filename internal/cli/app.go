package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"commerce-sync/internal/cache"
	"commerce-sync/internal/config"
	"commerce-sync/internal/repository"
	"commerce-sync/internal/retry"
	"commerce-sync/internal/service"
	"commerce-sync/internal/upstream"
)

// App holds what every command needs: configuration, logger, the result
// ledger and the orchestrator over the configured stores.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Cache        cache.Store
	Orchestrator *service.Orchestrator
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg config.LogConfig, verbose bool, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

// newApp loads configuration and builds the orchestrator. Logs go to logOut.
func newApp(opts *RootOptions, logOut io.Writer) (*App, error) {
	var envFiles []string
	if opts.EnvFile != "" {
		envFiles = append(envFiles, opts.EnvFile)
	}

	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if opts.StoresFile != "" {
		cfg.Sync.StoresFile = opts.StoresFile
	}

	logger := NewLogger(cfg.Log, opts.Verbose, logOut)
	logger = logger.With("app", cfg.App.Name, "env", cfg.App.Environment)

	stores, err := cfg.LoadStores(cfg.Sync.StoresFile, os.LookupEnv, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid stores file", err)
	}
	if len(stores) == 0 {
		logger.Warn("no stores configured", "stores_file", cfg.Sync.StoresFile)
	}

	dialect, err := repository.ParseDialect(cfg.Warehouse.Driver)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if dialect == repository.SQLite && cfg.Warehouse.DSN == "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Warehouse.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create warehouse directory: %w", err)
		}
	}

	store, err := newCache(cfg, logger)
	if err != nil {
		return nil, err
	}

	orch, err := service.NewOrchestrator(stores, store, service.OrchestratorOptions{
		Concurrency: cfg.Sync.Concurrency,
		LockTTL:     cfg.Cache.LockTTL,
		Session: service.SessionOptions{
			Warehouse: repository.Options{
				Dialect: dialect,
				DSN:     cfg.Warehouse.ConnString(),
			},
			AutoMigrate: cfg.Warehouse.AutoMigrate,
			Upstream: upstream.Options{
				Timeout: cfg.Sync.RequestTimeout,
				Retry:   retry.Exponential(cfg.Sync.RetryAttempts),
			},
			MinInterval: cfg.Sync.MinInterval,
		},
	}, logger)
	if err != nil {
		store.Close()
		return nil, WrapExitError(ExitCommandError, "invalid stores", err)
	}

	logger.Debug("app ready",
		"stores", len(stores),
		"warehouse", cfg.Warehouse.Driver,
		"cache", cfg.Cache.Type,
		"concurrency", cfg.Sync.Concurrency,
	)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Cache:        store,
		Orchestrator: orch,
	}, nil
}

func newCache(cfg *config.Config, logger *slog.Logger) (cache.Store, error) {
	if cfg.Cache.Type != "redis" {
		return cache.NewMemoryStore(), nil
	}

	store, err := cache.NewRedisStore(cache.RedisConfig{
		Addr:      cfg.Cache.RedisAddress(),
		Password:  cfg.Cache.RedisPassword,
		DB:        cfg.Cache.RedisDB,
		KeyPrefix: cfg.Cache.RedisKeyPrefix,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return store, nil
}

// Close releases the cache backend.
func (a *App) Close() error {
	return a.Cache.Close()
}

// cacheCheck reports whether the ledger backend answers.
func (a *App) cacheCheck(ctx context.Context) error {
	_, err := a.Cache.All(ctx)
	return err
}
