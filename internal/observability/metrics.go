package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cell_locator"

// Metrics holds the Prometheus collectors for positioning, resolution and import.
type Metrics struct {
	LocateRequests *prometheus.CounterVec // labels: strategy={single,composite,trilateration,fallback_centroid}
	LocateFailures *prometheus.CounterVec // labels: reason={invalid_input,unable_to_compute}
	LocateDuration prometheus.Histogram
	CellsRejected  prometheus.Counter

	// Resolution metrics.
	Resolutions      *prometheus.CounterVec   // labels: source={LOCAL_DB,LOCAL_DB_SIGNATURE,<provider>,NOT_FOUND}
	ResolverCache    *prometheus.CounterVec   // labels: result={hit,miss}
	ProviderRequests *prometheus.CounterVec   // labels: provider, outcome={success,empty,error}
	ProviderDuration *prometheus.HistogramVec // labels: provider
	StoreErrors      *prometheus.CounterVec   // labels: op
	AuditFailures    prometheus.Counter

	// Import metrics.
	ImportRows    *prometheus.CounterVec // labels: action={created,updated_samples,verified,skipped,invalid}
	ImportRunning prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.LocateRequests,
		m.LocateFailures,
		m.LocateDuration,
		m.CellsRejected,
		m.Resolutions,
		m.ResolverCache,
		m.ProviderRequests,
		m.ProviderDuration,
		m.StoreErrors,
		m.AuditFailures,
		m.ImportRows,
		m.ImportRunning,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		LocateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locate_requests_total",
			Help:      "Successful locate computations by strategy.",
		}, []string{"strategy"}),
		LocateFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locate_failures_total",
			Help:      "Rejected or failed locate computations by reason.",
		}, []string{"reason"}),
		LocateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "locate_duration_seconds",
			Help:      "Duration of a locate call including tower resolution.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		CellsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_rejected_total",
			Help:      "Cell observations dropped by validation.",
		}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tower_resolutions_total",
			Help:      "Tower resolutions by provenance.",
		}, []string{"source"}),
		ResolverCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_cache_total",
			Help:      "Per-request resolver cache lookups by result.",
		}, []string{"result"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "External geolocation provider requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "External geolocation provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Tower store errors absorbed during resolution, by operation.",
		}, []string{"op"}),
		AuditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Lookup audit records that could not be written.",
		}),
		ImportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Imported CSV rows by action.",
		}, []string{"action"}),
		ImportRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "import_jobs_running",
			Help:      "Number of import jobs currently running.",
		}),
	}
}
