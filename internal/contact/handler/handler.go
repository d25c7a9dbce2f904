package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"reconcile/internal/contact/models"
	"reconcile/pkg/platform/httputil"
	"reconcile/pkg/requestcontext"
)

// Service defines the interface for contact reconciliation.
type Service interface {
	Identify(ctx context.Context, hint models.Hint) (*models.Summary, error)
}

// Handler wires contact endpoints to the contact service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a contact handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts contact endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Post("/identify", h.HandleIdentify)
}

// HandleIdentify handles POST /identify requests.
func (h *Handler) HandleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[IdentifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	summary, err := h.service.Identify(ctx, req.Hint())
	if err != nil {
		h.logger.ErrorContext(ctx, "identify failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "contact identified",
		"request_id", requestID,
		"primary_id", summary.PrimaryID,
		"secondary_count", len(summary.SecondaryIDs),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromSummary(summary))
}

// HandleHealth handles GET /health requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "OK",
		Message: "Identity reconciliation service is running",
	})
}
