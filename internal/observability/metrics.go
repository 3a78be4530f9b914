package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the attendance service.
type Metrics struct {
	MarksTotal               *prometheus.CounterVec
	FanOutFailureTotal       *prometheus.CounterVec
	ConsistencyMismatchTotal *prometheus.CounterVec
	TierFetchTotal           *prometheus.CounterVec
	RequestsTotal            *prometheus.CounterVec
	RequestLatencySeconds    *prometheus.HistogramVec
	LogEntriesSent           prometheus.Counter
	LogEntriesDropped        prometheus.Counter
	LogBatchesSent           prometheus.Counter
	LogBatchesFailed         prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		MarksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "marks_total",
				Help:      "Total number of attendance mark registrations by population and outcome",
			},
			[]string{"population", "outcome"},
		),
		FanOutFailureTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fanout_failure_total",
				Help:      "Total number of per-instance failures during fan-out writes",
			},
			[]string{"group", "operation"},
		),
		ConsistencyMismatchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consistency_mismatch_total",
				Help:      "Total number of cross-instance consistency check mismatches",
			},
			[]string{"group"},
		),
		TierFetchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tier_fetch_total",
				Help:      "Total number of dataset fetches by dataset and serving tier",
			},
			[]string{"dataset", "source"},
		),
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestLatencySeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "endpoint"},
		),
		LogEntriesSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_entries_sent_total",
				Help:      "Total number of log entries sent to logging-service",
			},
		),
		LogEntriesDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_entries_dropped_total",
				Help:      "Total number of log entries dropped due to buffer overflow",
			},
		),
		LogBatchesSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_batches_sent_total",
				Help:      "Total number of log batches sent to logging-service",
			},
		),
		LogBatchesFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_batches_failed_total",
				Help:      "Total number of log batches that failed to send",
			},
		),
	}
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(method, endpoint, status string) {
	m.RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}

// RecordLatency records HTTP request latency.
func (m *Metrics) RecordLatency(method, endpoint string, seconds float64) {
	m.RequestLatencySeconds.WithLabelValues(method, endpoint).Observe(seconds)
}
