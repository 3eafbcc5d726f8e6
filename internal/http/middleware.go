package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-recorder/internal/observability"
)

const correlationHeader = "X-Correlation-ID"

type correlationIDKey struct{}

// CorrelationID returns the request's correlation ID, or "" outside CorrelationIDMiddleware.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// CorrelationIDMiddleware echoes the caller's correlation header, or a fresh UUID, and puts
// the ID plus a logger tagged with it on the request context.
func CorrelationIDMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(correlationHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(correlationHeader, id)

			ctx := observability.WithLogger(
				context.WithValue(r.Context(), correlationIDKey{}, id),
				logger.With(zap.String("correlation_id", id)),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MetricsMiddleware records count, latency and in-flight gauges per route template.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observability.HTTPRequestsInFlight.Inc()
		sw := &statusWriter{ResponseWriter: w}
		began := time.Now()
		defer func() {
			observability.HTTPRequestsInFlight.Dec()
			route := getRoute(r)
			observability.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(began).Seconds())
			observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, statusClass(sw.code())).Inc()
		}()
		next.ServeHTTP(sw, r)
	})
}

// getRoute returns the matched route template, or "unmatched", keeping label cardinality bounded.
func getRoute(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tpl
}

// statusWriter remembers the status code written through it. No explicit WriteHeader means 200.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// statusClass collapses a status code to its class label, e.g. 404 → "4xx".
func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// RateLimitMiddleware answers 429 once the token bucket is empty. A nil limiter admits everything.
func RateLimitMiddleware(limiter *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}
			observability.RateLimitDeniedTotal.Inc()
			observability.LoggerFromContext(r.Context(), nil).Debug("rate limit denied", zap.String("path", r.URL.Path))
			writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
		})
	}
}
