// Package metrics provides Prometheus metrics for the auction snapshotter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch attempt outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeTimeout     = "timeout"
	OutcomeRemoteError = "remote_error"
)

// Pass outcomes.
const (
	PassSucceeded = "success"
	PassFailed    = "failed"
	PassCancelled = "cancelled"
)

// Metrics holds all Prometheus metrics for the snapshotter.
type Metrics struct {
	// Pass metrics
	PassesTotal       *prometheus.CounterVec
	PassDuration      prometheus.Histogram
	LastPassTimestamp prometheus.Gauge

	// Realm metrics
	RealmsListed      *prometheus.CounterVec
	FetchAttempts     *prometheus.CounterVec
	FetchDuration     *prometheus.HistogramVec
	DatasetsCommitted *prometheus.CounterVec
	RecordsWritten    *prometheus.CounterVec
	DatasetRecords    *prometheus.HistogramVec
	InFlightRealms    prometheus.Gauge

	// Error metrics
	StorageErrors *prometheus.CounterVec
	CatalogErrors prometheus.Counter
	EventErrors   prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init registers metrics with the default registry and installs them as the
// global instance. Call this once at startup.
func Init(namespace string) *Metrics {
	m := New(namespace, prometheus.DefaultRegisterer)
	defaultMetrics = m
	return m
}

// New creates metrics registered with reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "auction_snapshotter"
	}
	factory := promauto.With(reg)

	return &Metrics{
		PassesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "passes_total",
				Help:      "Total number of snapshot passes by outcome",
			},
			[]string{"outcome"},
		),
		PassDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pass_duration_seconds",
				Help:      "Time to complete a snapshot pass",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
			},
		),
		LastPassTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_pass_timestamp_seconds",
				Help:      "Unix time of the last successful pass",
			},
		),
		RealmsListed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realms_listed_total",
				Help:      "Total number of realms enumerated",
			},
			[]string{"region"},
		),
		FetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Total number of listing fetch attempts by outcome",
			},
			[]string{"region", "outcome"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Time of a single listing fetch attempt",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"region"},
		),
		DatasetsCommitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "datasets_committed_total",
				Help:      "Total number of datasets written to the store",
			},
			[]string{"region"},
		),
		RecordsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_written_total",
				Help:      "Total number of listing records written",
			},
			[]string{"region"},
		),
		DatasetRecords: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dataset_records",
				Help:      "Number of records per dataset",
				Buckets:   prometheus.ExponentialBuckets(100, 2, 14), // 100 to ~800k
			},
			[]string{"region"},
		),
		InFlightRealms: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_realms",
				Help:      "Number of realms currently being fetched",
			},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Total number of snapshot store errors",
			},
			[]string{"backend", "operation"},
		),
		CatalogErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_errors_total",
				Help:      "Total number of catalog write errors",
			},
		),
		EventErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_errors_total",
				Help:      "Total number of event emission errors",
			},
		),
	}
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// Handler returns the HTTP handler serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	return http.ListenAndServe(address, Handler())
}

// IncPasses counts a finished pass.
func (m *Metrics) IncPasses(outcome string) {
	m.PassesTotal.WithLabelValues(outcome).Inc()
}

// ObservePassDuration records the pass time.
func (m *Metrics) ObservePassDuration(seconds float64) {
	m.PassDuration.Observe(seconds)
}

// SetLastPassTimestamp records when the last successful pass finished.
func (m *Metrics) SetLastPassTimestamp(unix float64) {
	m.LastPassTimestamp.Set(unix)
}

// AddRealmsListed adds to the enumerated realms counter.
func (m *Metrics) AddRealmsListed(region string, count float64) {
	m.RealmsListed.WithLabelValues(region).Add(count)
}

// IncFetchAttempts counts one fetch attempt.
func (m *Metrics) IncFetchAttempts(region, outcome string) {
	m.FetchAttempts.WithLabelValues(region, outcome).Inc()
}

// ObserveFetchDuration records a single attempt's latency.
func (m *Metrics) ObserveFetchDuration(region string, seconds float64) {
	m.FetchDuration.WithLabelValues(region).Observe(seconds)
}

// RecordDataset counts a committed dataset and its records.
func (m *Metrics) RecordDataset(region string, records int) {
	m.DatasetsCommitted.WithLabelValues(region).Inc()
	m.RecordsWritten.WithLabelValues(region).Add(float64(records))
	m.DatasetRecords.WithLabelValues(region).Observe(float64(records))
}

// IncInFlightRealms and DecInFlightRealms track realms being fetched.
func (m *Metrics) IncInFlightRealms() { m.InFlightRealms.Inc() }
func (m *Metrics) DecInFlightRealms() { m.InFlightRealms.Dec() }

// IncStorageErrors increments the storage errors counter.
func (m *Metrics) IncStorageErrors(backend, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// IncCatalogErrors increments the catalog errors counter.
func (m *Metrics) IncCatalogErrors() {
	m.CatalogErrors.Inc()
}

// IncEventErrors increments the event errors counter.
func (m *Metrics) IncEventErrors() {
	m.EventErrors.Inc()
}
