package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"visit-recorder/internal/domain"
	"visit-recorder/internal/metrics"
	"visit-recorder/pkg/logger"
)

// VisitService interface defines the service methods needed by the handler
type VisitService interface {
	RecordVisit(ctx context.Context, payload domain.Payload, remoteAddr string) (*domain.Visit, error)
	ExportVisits(ctx context.Context, limit, offset int) ([]*domain.Visit, error)
	CountVisits(ctx context.Context) (int64, error)
	Ready(ctx context.Context) error
}

const totalCountHeader = "X-Total-Count"

// Options tunes the recorder endpoints
type Options struct {
	MaxBodyBytes  int64
	ExportEnabled bool
	// CollectorEndpoint is where /collector.js posts by default
	CollectorEndpoint string
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	visitService VisitService
	logger       *slog.Logger
	opts         Options
	collectorJS  []byte
	now          func() time.Time
}

// NewHandler creates a new HTTP handler
func NewHandler(visitService VisitService, logger *slog.Logger, opts Options) *Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 16 << 10
	}
	return &Handler{
		visitService: visitService,
		logger:       logger,
		opts:         opts,
		collectorJS:  collectorScript(opts.CollectorEndpoint),
		now:          time.Now,
	}
}

// SaveVisit handles POST /save and POST /save.php
func (h *Handler) SaveVisit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	log := logger.FromContext(r.Context(), h.logger)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	defer r.Body.Close()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		log.Warn("Failed to read visit body", "error", err)
		respondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	// A body that is not JSON is still recorded, with every field unknown
	payload, err := domain.ParsePayload(body, h.now())
	if err != nil {
		metrics.RecordMalformedPayload()
		log.Debug("Malformed visit payload", "error", err)
	}

	visit, err := h.visitService.RecordVisit(r.Context(), payload, r.RemoteAddr)
	if err != nil {
		log.Error("Failed to record visit", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Debug("Visit recorded", "visit_id", visit.ID)
	respondOK(w)
}

// ExportVisits handles GET /export-json
func (h *Handler) ExportVisits(w http.ResponseWriter, r *http.Request) {
	if !h.opts.ExportEnabled {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	log := logger.FromContext(r.Context(), h.logger)

	visits, err := h.visitService.ExportVisits(r.Context(), limit, offset)
	if err != nil {
		log.Error("Failed to export visits", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if visits == nil {
		visits = []*domain.Visit{}
	}

	// the total lets clients page; the listing is still served without it
	if total, err := h.visitService.CountVisits(r.Context()); err != nil {
		log.Warn("Failed to count visits", "error", err)
	} else {
		w.Header().Set(totalCountHeader, strconv.FormatInt(total, 10))
	}

	respondJSON(w, http.StatusOK, visits)
}

// HealthCheck handles GET /health/live
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   h.now().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.visitService.Ready(r.Context()); err != nil {
		h.logger.Warn("Storage not ready", "error", err)
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	respondOK(w)
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
