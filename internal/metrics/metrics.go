// Package metrics registers the process's Prometheus instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	IngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalkeep",
			Name:      "ingest_requests_total",
			Help:      "Total number of ingest HTTP requests, by pipeline and outcome.",
		},
		[]string{"pipeline", "outcome"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "signalkeep",
			Name:      "queue_depth",
			Help:      "Current number of buffered items in a pipeline's bounded queue.",
		},
		[]string{"pipeline"},
	)

	QueueDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalkeep",
			Name:      "queue_drops_total",
			Help:      "Total number of events dropped because a pipeline's queue was full.",
		},
		[]string{"pipeline"},
	)

	FlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signalkeep",
			Name:      "flush_duration_seconds",
			Help:      "Duration of pipeline batch-flush transactions.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"pipeline"},
	)

	FlushBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signalkeep",
			Name:      "flush_batch_size",
			Help:      "Number of items committed per pipeline flush.",
			Buckets:   []float64{1, 10, 50, 100, 200, 500, 1000},
		},
		[]string{"pipeline"},
	)

	FlushErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalkeep",
			Name:      "flush_errors_total",
			Help:      "Total number of pipeline flush transactions that failed and were dropped.",
		},
		[]string{"pipeline"},
	)

	AlertsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalkeep",
			Name:      "alerts_dispatched_total",
			Help:      "Total number of alert notifications dispatched by rule name.",
		},
		[]string{"rule"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signalkeep",
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"route", "method", "status"},
	)
)

// Register installs every collector in the default Prometheus registry.
// Safe to call once at startup.
func Register() {
	prometheus.MustRegister(
		IngestTotal,
		QueueDepth,
		QueueDropsTotal,
		FlushDuration,
		FlushBatchSize,
		FlushErrorsTotal,
		AlertsDispatchedTotal,
		HTTPRequestDuration,
	)
}
