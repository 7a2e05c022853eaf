// Package handler exposes reconciliation runs over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"recon/internal/datahive/models"
	"recon/internal/datahive/service"
	"recon/internal/platform/metrics"
	"recon/internal/platform/middleware"
	dErrors "recon/pkg/domain-errors"
	"recon/pkg/platform/httputil"
	"recon/pkg/platform/sentinel"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,Runs

const maxBodyBytes = 4 << 20

// Service runs one reconciliation batch.
type Service interface {
	Run(ctx context.Context, class models.IdentifierClass, notices []models.Notice) (*models.RunSummary, error)
}

// Runs looks up stored run summaries.
type Runs interface {
	Get(ctx context.Context, runID string) (*models.RunSummary, error)
}

// Handler serves the reconcile trigger and run lookup routes.
type Handler struct {
	service Service
	runs    Runs
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithRuns enables GET /v1/reconcile/runs/{id}.
func WithRuns(r Runs) Option {
	return func(h *Handler) {
		h.runs = r
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithTimeout bounds a single trigger request. Defaults to 10 minutes.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func New(svc Service, opts ...Option) *Handler {
	h := &Handler{
		service: svc,
		logger:  slog.Default(),
		timeout: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	rr := chi.NewRouter()
	rr.Use(middleware.Recovery(h.logger))
	rr.Use(middleware.RequestID)
	rr.Use(middleware.Logger(h.logger))
	rr.Use(middleware.Timeout(h.timeout))
	rr.Use(middleware.Latency(h.metrics))
	rr.Post("/v1/reconcile/{class}", h.handleReconcile)
	if h.runs != nil {
		rr.Get("/v1/reconcile/runs/{id}", h.handleGetRun)
	}
	r.Mount("/", rr)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	class, ok := models.ParseClass(chi.URLParam(r, "class"))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown identifier class"))
		return
	}

	var req ReconcileRequest
	if err := httputil.DecodeJSON(r, &req, maxBodyBytes); err != nil {
		h.logger.WarnContext(ctx, "invalid reconcile request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	notices, err := req.ToNotices()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	summary, err := h.service.Run(ctx, class, notices)
	if err != nil {
		h.writeRunError(ctx, w, requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRunResponse(summary))
}

func (h *Handler) writeRunError(ctx context.Context, w http.ResponseWriter, requestID string, err error) {
	switch {
	case errors.Is(err, service.ErrUnsupportedClass):
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "unsupported identifier class"))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, sentinel.ErrUnavailable):
		h.logger.ErrorContext(ctx, "reconcile run unavailable", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "reconciliation unavailable"))
	default:
		h.logger.ErrorContext(ctx, "reconcile run failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "reconcile failed"))
	}
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	summary, err := h.runs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "run not found"))
			return
		}
		h.logger.ErrorContext(ctx, "run lookup failed",
			"request_id", middleware.GetRequestID(ctx),
			"run_id", id,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "run lookup failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRunResponse(summary))
}
