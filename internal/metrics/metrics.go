package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subvision_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subvision_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Preview pipeline metrics, labelled by pipeline ("effect" or "frame")
	PreviewCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subvision_preview_cache_hits_total",
			Help: "Preview requests served from the LRU cache",
		},
		[]string{"pipeline"},
	)

	PreviewCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subvision_preview_cache_misses_total",
			Help: "Preview requests that scheduled a debounced fetch",
		},
		[]string{"pipeline"},
	)

	PreviewCacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subvision_preview_cache_evictions_total",
			Help: "Preview cache entries evicted or invalidated",
		},
		[]string{"pipeline"},
	)

	PreviewStaleDiscards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subvision_preview_stale_discards_total",
			Help: "Fetch completions discarded because a newer request superseded them",
		},
		[]string{"pipeline"},
	)

	PreviewFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subvision_preview_fetch_duration_seconds",
			Help:    "Backend preview fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline"},
	)

	PreviewFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subvision_preview_fetch_errors_total",
			Help: "Backend preview fetches that failed",
		},
		[]string{"pipeline"},
	)

	// Upload metrics
	UploadsInitiated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subvision_uploads_initiated_total",
			Help: "Resumable upload sessions initiated",
		},
	)

	UploadChunksReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subvision_upload_chunks_received_total",
			Help: "Upload chunks received",
		},
	)

	UploadsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subvision_uploads_completed_total",
			Help: "Resumable uploads assembled and stored",
		},
	)

	// Editor metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subvision_sessions_active",
			Help: "Editor sessions currently open",
		},
	)

	HistoryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subvision_history_operations_total",
			Help: "Undo/redo operations applied",
		},
		[]string{"op"},
	)

	JobEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subvision_job_events_received_total",
			Help: "Extraction job events received from the broker",
		},
		[]string{"type"},
	)
)

// RecordCacheAccess records a preview cache hit or miss.
func RecordCacheAccess(pipeline string, hit bool) {
	if hit {
		PreviewCacheHits.WithLabelValues(pipeline).Inc()
	} else {
		PreviewCacheMisses.WithLabelValues(pipeline).Inc()
	}
}

// RecordFetch records a completed backend fetch.
func RecordFetch(pipeline string, seconds float64, err error) {
	PreviewFetchDuration.WithLabelValues(pipeline).Observe(seconds)
	if err != nil {
		PreviewFetchErrors.WithLabelValues(pipeline).Inc()
	}
}
