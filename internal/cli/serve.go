package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"commerce-sync/internal/handler"
	"commerce-sync/internal/router"
	"commerce-sync/internal/service"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled passes",
		Long: `Serve the HTTP API. When SYNC_INTERVAL is set, a pass over every
store also runs on that interval until the process is stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			if addr == "" {
				addr = app.Config.Server.Address()
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, app, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default SERVER_HOST:SERVER_PORT)")
	return cmd
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down.
func serve(ctx context.Context, app *App, addr string) error {
	cfg := app.Config
	logger := app.Logger

	r := router.New(router.Config{
		Handler: handler.New(cfg.App.Name, cfg.App.Version, map[string]handler.CheckFunc{
			"cache": app.cacheCheck,
		}),
		SyncHandler:  handler.NewSyncHandler(app.Orchestrator, logger),
		StoreHandler: handler.NewStoreHandler(app.Orchestrator, logger),
		AdminKey:     cfg.App.AdminKey,
		Logger:       logger,
	})
	if cfg.App.AdminKey == "" {
		logger.Warn("ADMIN_API_KEY is not set; sync triggers over HTTP are disabled")
	}

	var scheduler *service.Scheduler
	if cfg.Sync.Interval > 0 {
		scheduler = service.NewScheduler(app.Orchestrator, service.SchedulerConfig{
			Interval: cfg.Sync.Interval,
		}, logger)
		scheduler.Start()
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			if scheduler != nil {
				scheduler.Stop()
			}
			return WrapExitError(ExitFailure, "server error", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
