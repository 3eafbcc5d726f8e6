package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-recorder/internal/lifecycle"
	"github.com/kjstillabower/weather-recorder/internal/models"
	"github.com/kjstillabower/weather-recorder/internal/traffic"
)

type mockStore struct {
	latest  models.WeatherRecord
	hasAny  bool
	count   int
	err     error
	pingErr error
}

func (m *mockStore) Latest(ctx context.Context) (models.WeatherRecord, bool, error) {
	return m.latest, m.hasAny, m.err
}

func (m *mockStore) Count(ctx context.Context) (int, error) {
	return m.count, m.err
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.pingErr
}

var errStoreClosed = fmt.Errorf("%w: sql: database is closed", models.ErrPersistence)

func newTestHandler(store ReadingStore, cfg *HealthConfig, logger *zap.Logger) *Handler {
	h := NewHandler(store, cfg, logger)
	h.phase = func() lifecycle.Phase { return lifecycle.PhaseRunning }
	return h
}

func getHealth(t *testing.T, h *Handler) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h.GetHealth(w, req)

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	return w.Code, body
}

func checksOf(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	checks, ok := body["checks"].(map[string]interface{})
	if !ok {
		t.Fatalf("checks missing from %v", body)
	}
	return checks
}

var degradedConfig = &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50}

func TestHandler_GetHealth(t *testing.T) {
	traffic.Reset()
	h := newTestHandler(&mockStore{}, degradedConfig, nil)

	code, body := getHealth(t, h)
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["service"] != "weather-recorder" {
		t.Errorf("service = %v, want weather-recorder", body["service"])
	}
	if body["phase"] != "running" {
		t.Errorf("phase = %v, want running", body["phase"])
	}
	if checksOf(t, body)["store"] != "healthy" {
		t.Errorf("checks.store = %v, want healthy", checksOf(t, body)["store"])
	}
	if _, ok := body["lastSuccessfulFetch"]; ok {
		t.Error("lastSuccessfulFetch present before any successful tick")
	}
}

func TestHandler_GetHealth_ShuttingDown(t *testing.T) {
	traffic.Reset()
	h := newTestHandler(&mockStore{}, degradedConfig, nil)
	h.phase = func() lifecycle.Phase { return lifecycle.PhaseShuttingDown }

	code, body := getHealth(t, h)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	if body["status"] != "shutting-down" {
		t.Errorf("status = %v, want shutting-down", body["status"])
	}
}

func TestHandler_GetHealth_StoreUnreachable(t *testing.T) {
	traffic.Reset()
	h := newTestHandler(&mockStore{pingErr: errStoreClosed}, degradedConfig, nil)

	code, body := getHealth(t, h)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
	if checksOf(t, body)["store"] != "unhealthy" {
		t.Errorf("checks.store = %v, want unhealthy", checksOf(t, body)["store"])
	}
}

func TestHandler_GetHealth_ErrorRate(t *testing.T) {
	tests := []struct {
		name       string
		errors     int
		successes  int
		wantCode   int
		wantStatus string
	}{
		{"no ticks yet", 0, 0, http.StatusOK, "healthy"},
		{"below threshold", 1, 3, http.StatusOK, "healthy"},
		{"at threshold", 2, 2, http.StatusServiceUnavailable, "degraded"},
		{"all failing", 4, 0, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traffic.Reset()
			defer traffic.Reset()
			for i := 0; i < tt.errors; i++ {
				traffic.RecordError()
			}
			for i := 0; i < tt.successes; i++ {
				traffic.RecordSuccess()
			}

			h := newTestHandler(&mockStore{}, degradedConfig, nil)
			code, body := getHealth(t, h)
			if code != tt.wantCode {
				t.Errorf("status code = %d, want %d", code, tt.wantCode)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", body["status"], tt.wantStatus)
			}
			if tt.wantStatus == "degraded" && checksOf(t, body)["weatherApi"] != "unhealthy" {
				t.Errorf("checks.weatherApi = %v, want unhealthy", checksOf(t, body)["weatherApi"])
			}
		})
	}
}

func TestHandler_GetHealth_NilConfigIgnoresErrorRate(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()
	traffic.RecordError()

	code, body := getHealth(t, newTestHandler(&mockStore{}, nil, nil))
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = (%d, %v), want (200, healthy)", code, body["status"])
	}
}

func TestHandler_GetHealth_ReportsTicksInWindow(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()
	traffic.RecordSuccess()
	traffic.RecordSuccess()
	traffic.RecordError()

	_, body := getHealth(t, newTestHandler(&mockStore{}, degradedConfig, nil))
	ticks, ok := body["ticks"].(map[string]interface{})
	if !ok {
		t.Fatalf("ticks missing from %v", body)
	}
	if ticks["total"] != float64(3) {
		t.Errorf("ticks.total = %v, want 3", ticks["total"])
	}
	if ticks["errors"] != float64(1) {
		t.Errorf("ticks.errors = %v, want 1", ticks["errors"])
	}
	if ticks["window"] != "1m0s" {
		t.Errorf("ticks.window = %v, want 1m0s", ticks["window"])
	}

	_, body = getHealth(t, newTestHandler(&mockStore{}, nil, nil))
	if _, ok := body["ticks"]; ok {
		t.Error("ticks present without a health config")
	}
}

func TestHandler_GetHealth_LastSuccessfulFetch(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()
	traffic.RecordSuccess()

	_, body := getHealth(t, newTestHandler(&mockStore{}, degradedConfig, nil))
	if _, ok := body["lastSuccessfulFetch"]; !ok {
		t.Error("lastSuccessfulFetch missing after a successful tick")
	}
}

func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	traffic.Reset()
	core, logs := observer.New(zap.DebugLevel)
	store := &mockStore{}
	h := newTestHandler(store, degradedConfig, zap.New(core))

	getHealth(t, h)
	store.pingErr = errStoreClosed
	getHealth(t, h)
	getHealth(t, h)

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("got %d transition logs, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "healthy" || fields["current_status"] != "degraded" {
		t.Errorf("transition fields = %v, want healthy -> degraded", fields)
	}
	if fields["reason"] != "store_unreachable" {
		t.Errorf("reason = %v, want store_unreachable", fields["reason"])
	}
}

func TestHandler_GetLatestReading(t *testing.T) {
	captured := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rec := models.WeatherRecord{
		ID:                 7,
		Temperature:        -1.5,
		WindSpeed:          4.2,
		PrecipitationType:  models.PrecipitationNone,
		SurfacePressure:    750.6,
		WindDirectionLabel: "ЮЮЗ",
		CapturedAt:         captured,
	}
	h := newTestHandler(&mockStore{latest: rec, hasAny: true}, nil, nil)

	req := httptest.NewRequest("GET", "/readings/latest", nil)
	w := httptest.NewRecorder()
	h.GetLatestReading(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var got models.WeatherRecord
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != rec {
		t.Errorf("body = %+v, want %+v", got, rec)
	}
}

func TestHandler_ReadingErrors(t *testing.T) {
	tests := []struct {
		name     string
		store    *mockStore
		call     func(h *Handler) http.HandlerFunc
		wantCode int
		wantErr  string
	}{
		{"latest on empty store", &mockStore{}, func(h *Handler) http.HandlerFunc { return h.GetLatestReading }, http.StatusNotFound, "NO_READINGS"},
		{"latest store error", &mockStore{err: errStoreClosed}, func(h *Handler) http.HandlerFunc { return h.GetLatestReading }, http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{"count store error", &mockStore{err: errStoreClosed}, func(h *Handler) http.HandlerFunc { return h.GetReadingCount }, http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(tt.store, nil, nil)
			req := httptest.NewRequest("GET", "/readings", nil)
			w := httptest.NewRecorder()
			tt.call(h)(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tt.wantErr {
				t.Errorf("error.code = %q, want %q", body.Error.Code, tt.wantErr)
			}
		})
	}
}

func TestHandler_GetReadingCount(t *testing.T) {
	h := newTestHandler(&mockStore{count: 5}, nil, nil)
	req := httptest.NewRequest("GET", "/readings/count", nil)
	w := httptest.NewRecorder()
	h.GetReadingCount(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]int
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["count"] != 5 {
		t.Errorf("count = %d, want 5", body["count"])
	}
}

func TestNewHandler_DefaultsToProcessPhase(t *testing.T) {
	h := NewHandler(&mockStore{}, nil, nil)
	if h.phase == nil || h.logger == nil {
		t.Fatal("NewHandler left phase or logger nil")
	}
	if got, want := h.phase(), lifecycle.CurrentPhase(); got != want {
		t.Errorf("phase() = %v, want %v", got, want)
	}
}
