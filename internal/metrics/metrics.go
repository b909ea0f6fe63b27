// Package metrics exposes Prometheus instrumentation for the pipeline and
// HTTP surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	SessionsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "therapybridge_sessions_processed_total",
			Help: "Sessions that reached the processed state",
		},
	)

	SessionsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "therapybridge_sessions_failed_total",
			Help: "Sessions that reached the failed state, by error category",
		},
		[]string{"category"},
	)

	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "therapybridge_pipeline_step_seconds",
			Help:    "Duration of pipeline steps",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"step"},
	)

	JobRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "therapybridge_job_retries_total",
			Help: "Processing jobs rescheduled after a transient error",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "therapybridge_queue_depth",
			Help: "Pending processing jobs",
		},
	)

	// Cleanup metrics
	CleanupFilesDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "therapybridge_cleanup_files_deleted_total",
			Help: "Files removed by the cleanup service",
		},
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "therapybridge_http_requests_total",
			Help: "HTTP requests by method and status class",
		},
		[]string{"method", "status"},
	)
)

// Register adds all collectors to the default registry. Call once at startup.
func Register() {
	prometheus.MustRegister(
		SessionsProcessed,
		SessionsFailed,
		StepDuration,
		JobRetries,
		QueueDepth,
		CleanupFilesDeleted,
		HTTPRequests,
	)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
