package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/maltedev/marketplace-analyzer/internal/analysis"
	"github.com/maltedev/marketplace-analyzer/internal/models"
)

const (
	maxBodyBytes = 64 << 10

	outboxPendingWarn = 1000
	outboxDeadError   = 100
)

// Analyzer is the analysis surface the handlers need.
type Analyzer interface {
	Analyze(ctx context.Context, rawURL string) *models.AnalysisResult
	CompareSingle(ctx context.Context, rawURL string) (*models.NormalizedProduct, error)
}

// BacklogReporter reports outbox queue depth for the health check.
type BacklogReporter interface {
	Backlog(ctx context.Context) (pending, dead int64, err error)
}

// HealthCheck probes one dependency; a non-nil error marks it down.
type HealthCheck func(ctx context.Context) error

type Handlers struct {
	analyzer Analyzer
	outbox   BacklogReporter
	checks   map[string]HealthCheck
	logger   *slog.Logger
}

type HandlerOption func(*Handlers)

func WithOutbox(outbox BacklogReporter) HandlerOption {
	return func(h *Handlers) {
		h.outbox = outbox
	}
}

func WithHealthCheck(name string, check HealthCheck) HandlerOption {
	return func(h *Handlers) {
		h.checks[name] = check
	}
}

func NewHandlers(analyzer Analyzer, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		analyzer: analyzer,
		checks:   make(map[string]HealthCheck),
		logger:   logger.With("component", "api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// URLRequest is the body of both analysis endpoints.
type URLRequest struct {
	URL string `json:"url"`
}

// CompareResponse is the compare endpoint payload.
type CompareResponse struct {
	Success bool                      `json:"success"`
	Product *models.NormalizedProduct `json:"product,omitempty"`
	Warning string                    `json:"warning"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Analyze handles POST /api/v1/analyze. Failed analyses are returned with
// status 400 and the same envelope.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	rawURL := h.readURL(r)
	if rawURL == "" {
		h.respondError(w, http.StatusBadRequest, "URL is required")
		return
	}

	result := h.analyzer.Analyze(r.Context(), rawURL)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	h.respondJSON(w, status, result)
}

// CompareProduct handles POST /api/v1/compare/product.
func (h *Handlers) CompareProduct(w http.ResponseWriter, r *http.Request) {
	rawURL := h.readURL(r)
	if rawURL == "" {
		h.respondError(w, http.StatusBadRequest, "URL is required")
		return
	}

	product, err := h.analyzer.CompareSingle(r.Context(), rawURL)
	if err != nil {
		var analysisErr *analysis.AnalysisError
		if errors.As(err, &analysisErr) {
			h.respondError(w, http.StatusBadRequest, analysisErr.Reason)
			return
		}
		h.logger.Error("compare failed", "url", rawURL, "error", err)
		h.respondError(w, http.StatusInternalServerError, "Compare fetch failed: "+err.Error())
		return
	}

	resp := CompareResponse{Success: true, Product: product}
	if product.Price == nil {
		resp.Warning = models.AvailabilityUnverified
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// Health reports dependency status and the outbox backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if len(h.checks) > 0 {
		deps := make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				h.logger.Warn("health check failed", "dependency", name, "error", err)
				deps[name] = "down"
				health["status"] = "degraded"
				continue
			}
			deps[name] = "up"
		}
		health["dependencies"] = deps
	}

	if h.outbox != nil {
		pending, dead, err := h.outbox.Backlog(ctx)
		if err != nil {
			h.logger.Warn("failed to read outbox backlog", "error", err)
		} else {
			health["outbox"] = map[string]int64{
				"pending":     pending,
				"dead_letter": dead,
			}
			if pending > outboxPendingWarn {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if dead > outboxDeadError {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

// readURL returns the trimmed url field; malformed bodies read as empty.
func (h *Handlers) readURL(r *http.Request) string {
	var req URLRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		if !errors.Is(err, io.EOF) {
			h.logger.Debug("unreadable request body", "error", err)
		}
		return ""
	}
	return strings.TrimSpace(req.URL)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Error: message})
}
