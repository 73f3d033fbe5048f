// Package metrics provides Prometheus metrics for the shortlist service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Analysis calls take seconds, not milliseconds.
var analysisBuckets = []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000} //nolint:gochecknoglobals // bucket layout

// Manager manages all Prometheus metrics for the shortlist service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Intake pipeline
	submissions      *prometheus.CounterVec
	analysisLatency  prometheus.Histogram
	analysisFailures *prometheus.CounterVec
	intakeState      *prometheus.GaugeVec

	// Replicated store
	storeWrites        *prometheus.CounterVec
	storeWriteLatency  *prometheus.HistogramVec
	snapshotsDelivered *prometheus.CounterVec
	subscribers        *prometheus.GaugeVec
	recordsTotal       *prometheus.GaugeVec
	feedReconnects     prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	streamClients       prometheus.Gauge

	// Errors
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "shortlist",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one block per metric
	auto := promauto.With(m.registry)

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submissions_total",
		Help:      "CV submissions by outcome (created, validation, busy, analysis, store)",
	}, []string{"outcome"})

	m.analysisLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "analysis_latency_milliseconds",
		Help:      "Round-trip latency of the external analysis service in milliseconds",
		Buckets:   analysisBuckets,
	})

	m.analysisFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "analysis_failures_total",
		Help:      "Analysis failures by kind (transport, malformed)",
	}, []string{"kind"})

	m.intakeState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "intake_state",
		Help:      "1 for the current intake coordinator state, 0 otherwise",
	}, []string{"state"})

	m.storeWrites = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_writes_total",
		Help:      "Store appends by collection and outcome",
	}, []string{"collection", "outcome"})

	m.storeWriteLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_write_latency_milliseconds",
		Help:      "Store append latency in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"collection"})

	m.snapshotsDelivered = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshots_delivered_total",
		Help:      "Snapshots handed to subscribers by collection",
	}, []string{"collection"})

	m.subscribers = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "subscribers",
		Help:      "Active subscriptions by collection",
	}, []string{"collection"})

	m.recordsTotal = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_total",
		Help:      "Records in the latest snapshot by collection",
	}, []string{"collection"})

	m.feedReconnects = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feed_reconnects_total",
		Help:      "Reconnect attempts of the change-notification listener",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.streamClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stream_clients",
		Help:      "Connected server-sent event clients",
	})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_component_total",
		Help:      "Errors by component and type",
	}, []string{"component", "error_type"})
}

// RecordSubmission counts a finished submission attempt.
func RecordSubmission(outcome string) {
	globalManager.submissions.WithLabelValues(outcome).Inc()
}

// RecordAnalysisLatency records analysis latency in milliseconds.
func RecordAnalysisLatency(latencyMs float64) {
	globalManager.analysisLatency.Observe(latencyMs)
}

// RecordAnalysisFailure counts an analysis failure of the given kind.
func RecordAnalysisFailure(kind string) {
	globalManager.analysisFailures.WithLabelValues(kind).Inc()
}

// UpdateIntakeState marks state as current and clears the others.
func UpdateIntakeState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		globalManager.intakeState.WithLabelValues(s).Set(v)
	}
}

// RecordStoreWrite counts a store append.
func RecordStoreWrite(collection, outcome string, latencyMs float64) {
	globalManager.storeWrites.WithLabelValues(collection, outcome).Inc()
	globalManager.storeWriteLatency.WithLabelValues(collection).Observe(latencyMs)
}

// RecordSnapshotDelivered counts a snapshot handed to a subscriber.
func RecordSnapshotDelivered(collection string) {
	globalManager.snapshotsDelivered.WithLabelValues(collection).Inc()
}

// AddSubscribers adjusts the active subscription gauge.
func AddSubscribers(collection string, delta int) {
	globalManager.subscribers.WithLabelValues(collection).Add(float64(delta))
}

// UpdateRecordsTotal sets the record count of the latest snapshot.
func UpdateRecordsTotal(collection string, count int) {
	globalManager.recordsTotal.WithLabelValues(collection).Set(float64(count))
}

// RecordFeedReconnect counts a listener reconnect attempt.
func RecordFeedReconnect() {
	globalManager.feedReconnects.Inc()
}

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// AddStreamClients adjusts the connected SSE client gauge.
func AddStreamClients(delta int) {
	globalManager.streamClients.Add(float64(delta))
}

// RecordErrorByComponent increments error rate by component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// Configure rebuilds the global manager from opts on a fresh registry. Call it
// once at startup, before anything is recorded.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
