// Package metrics provides Prometheus metrics for a busfinder run.
//
// The process is short-lived, so nothing is served over HTTP: the registry is
// written once at exit in the node_exporter textfile format when requested.
package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch outcome labels.
const (
	OutcomeOK             = "ok"
	OutcomeCaptureTimeout = "capture_timeout"
	OutcomeNavigation     = "navigation_failed"
	OutcomeLaunch         = "launch_failed"
	OutcomeCanceled       = "canceled"
	OutcomeError          = "error"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	FetchesTotal       *prometheus.CounterVec
	FetchDuration      prometheus.Histogram
	TripsNormalized    prometheus.Counter
	MalformedPayloads  prometheus.Counter
	BrowserCloseErrors prometheus.Counter

	logger *slog.Logger
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	fetchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "busfinder_fetches_total",
			Help: "Browser fetches by outcome",
		},
		[]string{"outcome"},
	)

	fetchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "busfinder_fetch_duration_seconds",
		Help:    "Wall time of one fetch, browser launch to session close",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 45, 60},
	})

	tripsNormalized := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "busfinder_trips_normalized_total",
		Help: "Conventional-service trips produced by the normalizer",
	})

	malformedPayloads := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "busfinder_malformed_payloads_total",
		Help: "Captured payloads the normalizer could not read",
	})

	browserCloseErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "busfinder_browser_close_errors_total",
		Help: "Browser sessions that failed to shut down cleanly",
	})

	registry.MustRegister(
		fetchesTotal,
		fetchDuration,
		tripsNormalized,
		malformedPayloads,
		browserCloseErrors,
	)

	return &Metrics{
		Registry:           registry,
		FetchesTotal:       fetchesTotal,
		FetchDuration:      fetchDuration,
		TripsNormalized:    tripsNormalized,
		MalformedPayloads:  malformedPayloads,
		BrowserCloseErrors: browserCloseErrors,
		logger:             logger,
	}
}

// ObserveFetch records one finished fetch.
func (m *Metrics) ObserveFetch(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(outcome).Inc()
	m.FetchDuration.Observe(elapsed.Seconds())
}

// AddTrips counts normalized trips.
func (m *Metrics) AddTrips(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TripsNormalized.Add(float64(n))
}

// IncMalformed counts a payload that could not be normalized.
func (m *Metrics) IncMalformed() {
	if m == nil {
		return
	}
	m.MalformedPayloads.Inc()
}

// IncCloseError counts a browser session that failed to close.
func (m *Metrics) IncCloseError() {
	if m == nil {
		return
	}
	m.BrowserCloseErrors.Inc()
}

// WriteTextfile writes the registry to path in the Prometheus text format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		if m.logger != nil {
			m.logger.Error("failed to write metrics textfile", "path", path, "error", err)
		}
		return err
	}
	return nil
}
