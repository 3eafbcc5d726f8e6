package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-recorder/internal/lifecycle"
	"github.com/kjstillabower/weather-recorder/internal/models"
	"github.com/kjstillabower/weather-recorder/internal/observability"
	"github.com/kjstillabower/weather-recorder/internal/traffic"
)

// ReadingStore is the read-only view of the store the status surface needs.
type ReadingStore interface {
	Latest(ctx context.Context) (models.WeatherRecord, bool, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	StartTime        time.Time
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store            ReadingStore
	healthConfig     *HealthConfig
	logger           *zap.Logger
	phase            func() lifecycle.Phase
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(store ReadingStore, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:        store,
		healthConfig: healthConfig,
		logger:       logger,
		phase:        lifecycle.CurrentPhase,
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	storeOK    bool
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"store": "healthy", "weatherApi": "healthy"}
	if !result.storeOK {
		checks["store"] = "unhealthy"
	}
	if result.reason == "error_rate_breach" {
		checks["weatherApi"] = "unhealthy"
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-recorder",
		"version":   "dev",
		"phase":     h.phase().String(),
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if last := traffic.LastSuccess(); !last.IsZero() {
		resp["lastSuccessfulFetch"] = last.UTC().Format(time.RFC3339)
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptimeSeconds"] = int64(time.Since(h.healthConfig.StartTime).Seconds())
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 {
		window := h.healthConfig.DegradedWindow
		errors, _ := traffic.ErrorRate(window)
		resp["ticks"] = map[string]interface{}{
			"window": window.String(),
			"total":  traffic.OutcomeCount(window),
			"errors": errors,
		}
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates, in order: shutting-down > store unreachable > tick error rate > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if h.phase() == lifecycle.PhaseShuttingDown {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "shutdown", true}
	}
	if err := h.store.Ping(ctx); err != nil {
		observability.LoggerFromContext(ctx, h.logger).Debug("store ping failed", zap.Error(err))
		return healthResult{"degraded", http.StatusServiceUnavailable, "store_unreachable", false}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errors, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errors) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", true}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, "", true}
}

// GetLatestReading handles GET /readings/latest.
func (h *Handler) GetLatestReading(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := h.store.Latest(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, "NO_READINGS", "No readings recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetReadingCount handles GET /readings/count.
func (h *Handler) GetReadingCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Count(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response with code, message and the request's correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": CorrelationID(r.Context()),
		},
	})
}

// writeStoreError writes a 503 for store failures and logs the cause at DEBUG.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Unable to read weather data")
	observability.LoggerFromContext(r.Context(), nil).Debug("store error",
		zap.String("category", string(models.CategorizeError(err))),
		zap.Error(err))
}
