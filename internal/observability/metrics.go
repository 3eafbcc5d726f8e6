package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Status surface request rate and latency.
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitDeniedTotal prometheus.Counter

	// Open-Meteo call rate by status. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Open-Meteo latency. Watch for: p95 approaching the client timeout.
	WeatherAPIDuration *prometheus.HistogramVec

	// Scheduler ticks by outcome (success or error category). A failed tick is skipped, never retried.
	FetchTicksTotal *prometheus.CounterVec

	// Unix time of the last tick that stored a record. Watch for: staleness > 2 intervals.
	LastSuccessfulFetch prometheus.Gauge

	RecordsInsertedTotal prometheus.Counter

	// Store latency by operation (insert, read_all, count, latest) and status.
	StoreOperationDuration *prometheus.HistogramVec

	ExportsTotal          *prometheus.CounterVec
	ExportDurationSeconds prometheus.Histogram
	ExportRowsLast        prometheus.Gauge

	ConsoleCommandsTotal *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests to the status surface",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "Status surface request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of status surface requests currently being served",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of status surface requests denied by the rate limiter (429)",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of Open-Meteo API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Open-Meteo API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	FetchTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchTicksTotal",
			Help: "Scheduler ticks by result (success or error category)",
		},
		[]string{"result"},
	)
	LastSuccessfulFetch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lastSuccessfulFetchTimestampSeconds",
			Help: "Unix time of the last tick that stored a record",
		},
	)
	RecordsInsertedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recordsInsertedTotal",
			Help: "Total number of weather records appended to the store",
		},
	)
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storeOperationDurationSeconds",
			Help:    "SQLite store operation latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"operation", "status"},
	)
	ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exportsTotal",
			Help: "Spreadsheet exports by status",
		},
		[]string{"status"},
	)
	ExportDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exportDurationSeconds",
			Help:    "Duration of spreadsheet exports in seconds",
			Buckets: []float64{.05, .1, .5, 1, 5, 10, 30},
		},
	)
	ExportRowsLast = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exportRowsLast",
			Help: "Number of data rows written by the last successful export",
		},
	)
	ConsoleCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consoleCommandsTotal",
			Help: "Operator console commands by command (export, exit, unknown)",
		},
		[]string{"command"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight, RateLimitDeniedTotal,
		WeatherAPICallsTotal, WeatherAPIDuration,
		FetchTicksTotal, LastSuccessfulFetch, RecordsInsertedTotal, StoreOperationDuration,
		ExportsTotal, ExportDurationSeconds, ExportRowsLast,
		ConsoleCommandsTotal,
	)
}

// StatusLabel returns "success" or "error" for an operation outcome.
func StatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
