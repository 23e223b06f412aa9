// Package observability provides Prometheus metrics, tracing helpers and
// HTTP middleware for findit.
package observability

import "github.com/prometheus/client_golang/prometheus"

// ModelBuckets spans model server latencies from 50ms to 2 minutes.
var ModelBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Turn outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	// StageDuration records pipeline stage latency in seconds.
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "findit_stage_duration_seconds",
			Help:    "Pipeline stage duration",
			Buckets: ModelBuckets,
		},
		[]string{"stage"},
	)

	// TurnsTotal counts query turns by input origin and outcome.
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findit_turns_total",
			Help: "Query turns",
		},
		[]string{"origin", "outcome"},
	)

	// ImagesIndexedTotal counts images written to the index.
	ImagesIndexedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "findit_images_indexed_total",
			Help: "Images indexed",
		},
	)

	// ImagesSkippedTotal counts unreadable images skipped during index builds.
	ImagesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "findit_images_skipped_total",
			Help: "Images skipped",
		},
	)

	// HTTPRequestsTotal counts API requests by method, route and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "findit_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration records API request duration in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "findit_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: ModelBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		StageDuration,
		TurnsTotal,
		ImagesIndexedTotal,
		ImagesSkippedTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
