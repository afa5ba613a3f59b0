// Package handler wires the public verification endpoints to the orchestrator.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"meditrace/internal/anomaly"
	"meditrace/internal/ledger"
	"meditrace/internal/verification/models"
	dErrors "meditrace/pkg/domain-errors"
	"meditrace/pkg/platform/httputil"
	"meditrace/pkg/requestcontext"
)

// Service defines the interface for verification operations.
type Service interface {
	Verify(ctx context.Context, scannedID string) (*models.Verdict, error)
	AnalyzeAnomalies(ctx context.Context, uniqueID string) (*anomaly.RiskReport, error)
	ChainStatus(ctx context.Context) (ledger.IntegrityReport, error)
}

// Handler wires verification endpoints to the orchestrator.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a verification handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts verification endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/verify", h.HandleVerify)
	r.Get("/units/{uniqueID}/anomalies", h.HandleAnomalies)
	r.Get("/chain/status", h.HandleChainStatus)
}

// VerifyRequest is the wire shape of a scan.
type VerifyRequest struct {
	ScannedID string `json:"scanned_id"`
}

// Validate requires the field to be present; whether the value resolves to a
// unit is the orchestrator's verdict, not a transport error.
func (r VerifyRequest) Validate() error {
	if r.ScannedID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "scanned_id is required")
	}
	return nil
}

// HandleVerify handles POST /verify requests.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	verdict, err := h.service.Verify(ctx, req.ScannedID)
	if err != nil {
		h.logger.ErrorContext(ctx, "verification failed",
			"request_id", requestID,
			"scanned_id", req.ScannedID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "scan verified",
		"request_id", requestID,
		"scanned_id", req.ScannedID,
		"status", verdict.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, verdict)
}

// HandleAnomalies handles GET /units/{uniqueID}/anomalies requests.
func (h *Handler) HandleAnomalies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uniqueID := chi.URLParam(r, "uniqueID")

	report, err := h.service.AnalyzeAnomalies(ctx, uniqueID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleChainStatus handles GET /chain/status requests.
func (h *Handler) HandleChainStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := h.service.ChainStatus(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}
