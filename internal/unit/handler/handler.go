// Package handler wires unit registration and custody endpoints to the unit
// service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"meditrace/internal/ledger"
	"meditrace/internal/unit/models"
	"meditrace/internal/unit/service"
	"meditrace/pkg/platform/httputil"
	"meditrace/pkg/requestcontext"
)

// Service defines the interface for unit operations.
type Service interface {
	RegisterBatch(ctx context.Context, reg service.Registration, quantity int) (*service.BatchResult, error)
	RegisterUnit(ctx context.Context, reg service.Registration) (*service.RegisteredUnit, error)
	AppendCustodyEvent(ctx context.Context, unitID, location string, lat, lon float64, eventType models.EventType) (*ledger.Block, error)
	BatchUnits(ctx context.Context, batchToken string) ([]models.Unit, error)
	GetUnit(ctx context.Context, uniqueID string) (*models.Unit, error)
}

// Handler wires unit endpoints to the unit service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a unit handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts the write endpoints; the router guards them with the
// admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/batches", h.HandleRegisterBatch)
	r.Get("/batches/{batchToken}/units", h.HandleBatchUnits)
	r.Post("/units", h.HandleRegisterUnit)
	r.Post("/units/{uniqueID}/events", h.HandleAppendEvent)
}

// Register mounts the public read endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/units/{uniqueID}", h.HandleGetUnit)
}

// HandleRegisterBatch handles POST /admin/batches requests.
func (h *Handler) HandleRegisterBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[RegisterBatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.RegisterBatch(ctx, req.Registration(), req.Quantity)
	if err != nil {
		h.logger.ErrorContext(ctx, "batch registration failed",
			"request_id", requestID,
			"drug_name", req.Name,
			"quantity", req.Quantity,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "batch registered",
		"request_id", requestID,
		"batch_token", result.BatchToken,
		"quantity", len(result.Units),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, result)
}

// HandleRegisterUnit handles POST /admin/units requests.
func (h *Handler) HandleRegisterUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterUnitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	registered, err := h.service.RegisterUnit(ctx, req.Registration())
	if err != nil {
		h.logger.ErrorContext(ctx, "unit registration failed",
			"request_id", requestID,
			"drug_name", req.Name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "unit registered",
		"request_id", requestID,
		"unit_id", registered.UniqueID,
	)
	httputil.WriteJSON(w, http.StatusCreated, registered)
}

// HandleBatchUnits handles GET /admin/batches/{batchToken}/units requests.
func (h *Handler) HandleBatchUnits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchToken := chi.URLParam(r, "batchToken")

	units, err := h.service.BatchUnits(ctx, batchToken)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, units)
}

// HandleAppendEvent handles POST /admin/units/{uniqueID}/events requests.
func (h *Handler) HandleAppendEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	uniqueID := chi.URLParam(r, "uniqueID")

	req, ok := httputil.DecodeAndPrepare[AppendEventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	block, err := h.service.AppendCustodyEvent(ctx, uniqueID, req.Location, req.Latitude, req.Longitude, models.EventType(req.EventType))
	if err != nil {
		h.logger.ErrorContext(ctx, "custody event append failed",
			"request_id", requestID,
			"unit_id", uniqueID,
			"location", req.Location,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "custody event appended",
		"request_id", requestID,
		"unit_id", uniqueID,
		"block_index", block.Index,
	)
	httputil.WriteJSON(w, http.StatusCreated, block)
}

// HandleGetUnit handles GET /units/{uniqueID} requests.
func (h *Handler) HandleGetUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uniqueID := chi.URLParam(r, "uniqueID")

	unit, err := h.service.GetUnit(ctx, uniqueID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, unit)
}
