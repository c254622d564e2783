package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"commerce-sync/internal/syncerr"
	"commerce-sync/pkg/apierror"
	"commerce-sync/pkg/response"
)

// StoreHandler handles store-related HTTP requests.
type StoreHandler struct {
	syncer Syncer
	logger *slog.Logger
}

// NewStoreHandler creates a new store handler.
func NewStoreHandler(syncer Syncer, logger *slog.Logger) *StoreHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreHandler{
		syncer: syncer,
		logger: logger.With("component", "handler"),
	}
}

// StoreView is the public description of a configured store. Credentials are never shown.
type StoreView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Endpoint   string `json:"endpoint"`
	APIVersion string `json:"api_version,omitempty"`
	Database   string `json:"database,omitempty"`
	Schema     string `json:"schema,omitempty"`
	PageSize   int    `json:"page_size"`
}

// List handles GET /api/v1/stores
func (h *StoreHandler) List(w http.ResponseWriter, r *http.Request) {
	stores := h.syncer.Stores()

	views := make([]StoreView, 0, len(stores))
	for _, s := range stores {
		views = append(views, StoreView{
			ID:         s.ID,
			Name:       s.Name,
			Endpoint:   s.API.Endpoint,
			APIVersion: s.API.APIVersion,
			Database:   s.Warehouse.Database,
			Schema:     s.Warehouse.Schema,
			PageSize:   s.EffectivePageSize(),
		})
	}
	response.List(w, views, len(views))
}

// Status handles GET /api/v1/stores/{id}/status
func (h *StoreHandler) Status(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")
	if storeID == "" {
		response.Error(w, apierror.BadRequest("store id is required"))
		return
	}

	status, err := h.syncer.Status(r.Context(), storeID)
	if err != nil {
		var cfgErr *syncerr.ConfigurationError
		if !errors.As(err, &cfgErr) {
			h.logger.Error("failed to read store status", "store_id", storeID, "error", err)
		}
		response.Error(w, toAPIError(err))
		return
	}

	response.OK(w, status)
}
