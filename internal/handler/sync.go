package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"commerce-sync/internal/model"
	"commerce-sync/internal/repository"
	"commerce-sync/internal/syncerr"
	"commerce-sync/pkg/apierror"
	"commerce-sync/pkg/response"
)

// Syncer is the part of the orchestrator the HTTP API drives.
type Syncer interface {
	Ingest(ctx context.Context, storeIDs ...string) (map[string]model.SyncResult, error)
	IngestStream(ctx context.Context, storeIDs ...string) (<-chan model.SyncResult, error)
	FailedStores(ctx context.Context) ([]string, error)
	Results(ctx context.Context) ([]model.SyncResult, error)
	Stores() []model.StoreProfile
	Status(ctx context.Context, storeID string) (*repository.StoreStatus, error)
}

const streamWriteTimeout = 10 * time.Second

// SyncHandler handles pass-related HTTP requests.
type SyncHandler struct {
	syncer   Syncer
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(syncer Syncer, logger *slog.Logger) *SyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{
		syncer: syncer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "handler"),
	}
}

// SyncRequest selects the stores of a pass. No stores means every store.
type SyncRequest struct {
	Stores     []string `json:"stores"`
	FailedOnly bool     `json:"failed_only"`
}

// SyncResponse summarizes a finished pass.
type SyncResponse struct {
	PassID    string             `json:"pass_id,omitempty"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []model.SyncResult `json:"results"`
}

// Trigger handles POST /api/v1/sync. The pass runs to completion even if
// the client goes away.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.Error(w, apierror.BadRequest("failed to read request body"))
		return
	}
	defer r.Body.Close()

	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			response.Error(w, apierror.BadRequest("invalid JSON"))
			return
		}
	}

	ctx := context.WithoutCancel(r.Context())

	ids, ok := h.selection(ctx, w, req)
	if !ok {
		return
	}

	results, err := h.syncer.Ingest(ctx, ids...)
	if err != nil {
		response.Error(w, toAPIError(err))
		return
	}

	resp := SyncResponse{Results: make([]model.SyncResult, 0, len(results))}
	for _, result := range results {
		resp.Results = append(resp.Results, result)
		resp.PassID = result.PassID
		if result.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	sort.Slice(resp.Results, func(i, j int) bool { return resp.Results[i].StoreID < resp.Results[j].StoreID })

	response.OK(w, resp)
}

// selection resolves the stores a request asks for. It writes the error
// response itself and returns false when the request cannot proceed.
func (h *SyncHandler) selection(ctx context.Context, w http.ResponseWriter, req SyncRequest) ([]string, bool) {
	if !req.FailedOnly {
		return req.Stores, true
	}

	failed, err := h.syncer.FailedStores(ctx)
	if err != nil {
		h.logger.Error("failed to read failed stores", "error", err)
		response.Error(w, apierror.InternalError("failed to read previous results"))
		return nil, false
	}
	if len(failed) == 0 {
		response.OK(w, SyncResponse{Results: []model.SyncResult{}})
		return nil, false
	}
	return failed, true
}

// Results handles GET /api/v1/sync/results
func (h *SyncHandler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.syncer.Results(r.Context())
	if err != nil {
		h.logger.Error("failed to read results", "error", err)
		response.Error(w, apierror.InternalError("failed to read results"))
		return
	}
	response.List(w, results, len(results))
}

// Stream handles GET /api/v1/sync/stream. It upgrades to a websocket, runs
// a pass over the stores named by repeated ?store= parameters and sends one
// JSON frame per finished store in completion order.
func (h *SyncHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())

	req := SyncRequest{
		Stores:     r.URL.Query()["store"],
		FailedOnly: r.URL.Query().Get("failed") == "true",
	}
	ids, ok := h.selection(ctx, w, req)
	if !ok {
		return
	}

	results, err := h.syncer.IngestStream(ctx, ids...)
	if err != nil {
		response.Error(w, toAPIError(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied; the pass still runs to completion.
		h.logger.Warn("websocket upgrade failed", "error", err)
		for range results {
		}
		return
	}
	defer conn.Close()

	sent := 0
	broken := false
	for result := range results {
		if broken {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(result); err != nil {
			h.logger.Warn("stream client went away", "error", err, "sent", sent)
			broken = true
			continue
		}
		sent++
	}
	if broken {
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "pass finished")
	if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		h.logger.Debug("failed to send close frame", "error", err)
	}
}

// toAPIError maps sync errors onto HTTP errors.
func toAPIError(err error) *apierror.Error {
	var cfgErr *syncerr.ConfigurationError
	if errors.As(err, &cfgErr) {
		if cfgErr.Field == "store" {
			return apierror.NotFound(cfgErr.Error())
		}
		return apierror.BadRequest(cfgErr.Error())
	}
	return apierror.InternalError("")
}
