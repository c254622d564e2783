package router

import (
	"log/slog"
	"net/http"

	"commerce-sync/internal/handler"
	"commerce-sync/internal/middleware"
	"commerce-sync/pkg/apierror"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler      *handler.Handler
	SyncHandler  *handler.SyncHandler
	StoreHandler *handler.StoreHandler
	AdminKey     string
	Logger       *slog.Logger
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.NewRecovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.NewLogging(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", middleware.AdminKeyHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if cfg.StoreHandler != nil {
			r.Get("/stores", cfg.StoreHandler.List)
			r.Get("/stores/{id}/status", cfg.StoreHandler.Status)
		}

		if cfg.SyncHandler != nil {
			r.Get("/sync/results", cfg.SyncHandler.Results)

			// Passes write to the warehouse and need the admin key.
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewAdminAuth(cfg.AdminKey))
				r.Post("/sync", cfg.SyncHandler.Trigger)
				r.Get("/sync/stream", cfg.SyncHandler.Stream)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierror.NotFound("route not found").Write(w)
	})

	return r
}
