// Package api provides HTTP handlers for cloudkit health and metrics. Callers mount the
// handler on their own server.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/objectfs/cloudkit/internal/metrics"
	"github.com/objectfs/cloudkit/pkg/health"
	"github.com/objectfs/cloudkit/pkg/utils"
)

// Handler serves health and metrics endpoints
type Handler struct {
	mux     *http.ServeMux
	health  *health.Tracker
	metrics *metrics.Collector
	logger  *slog.Logger
	started time.Time
}

// NewHandler creates a handler over the given trackers. Either may be nil.
func NewHandler(tracker *health.Tracker, collector *metrics.Collector, logger *slog.Logger) *Handler {
	h := &Handler{
		mux:     http.NewServeMux(),
		health:  tracker,
		metrics: collector,
		logger:  utils.OrDiscard(logger).With("component", "api"),
		started: time.Now(),
	}

	// Health endpoints
	h.mux.HandleFunc("/health", h.get(h.handleHealth))
	h.mux.HandleFunc("/health/components", h.get(h.handleHealthComponents))
	h.mux.HandleFunc("/health/live", h.get(h.handleLiveness))
	h.mux.HandleFunc("/health/ready", h.get(h.handleReadiness))

	// Metrics endpoint
	h.mux.Handle("/metrics", collector.Handler())

	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	h.mux.ServeHTTP(w, r)
	h.logger.Debug("request served", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	overall := h.health.GetOverallHealth()

	statusCode := http.StatusOK
	switch overall {
	case health.StateUnavailable:
		statusCode = http.StatusServiceUnavailable
	case health.StateDegraded:
		statusCode = http.StatusPartialContent
	}

	h.respondJSON(w, statusCode, map[string]interface{}{
		"status":     overall.String(),
		"timestamp":  time.Now(),
		"components": len(h.health.GetAllComponents()),
	})
}

func (h *Handler) handleHealthComponents(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, h.health.GetAllComponents())
}

func (h *Handler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alive":     true,
		"uptime":    time.Since(h.started).String(),
		"timestamp": time.Now(),
	})
}

func (h *Handler) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	overall := h.health.GetOverallHealth()
	ready := overall != health.StateUnavailable

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	h.respondJSON(w, statusCode, map[string]interface{}{
		"ready":     ready,
		"status":    overall.String(),
		"timestamp": time.Now(),
	})
}

// Helper methods

func (h *Handler) get(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		next(w, r)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now(),
	})
}
