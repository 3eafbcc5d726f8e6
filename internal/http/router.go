package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-recorder/internal/observability"
)

// NewRouter wires the status routes. limiter applies to /readings only; nil disables it.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")

	readings := router.PathPrefix("/readings").Subrouter()
	readings.Use(RateLimitMiddleware(limiter))
	readings.HandleFunc("/latest", h.GetLatestReading).Methods("GET")
	readings.HandleFunc("/count", h.GetReadingCount).Methods("GET")
	return router
}

// NewServer returns the status server. It binds addr only when started.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
