package metrics

import (
	"regexp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var uuidRegex = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
		[]string{"method"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path", "status"},
	)

	VideoUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_video_uploads_total",
			Help: "Total number of video uploads",
		},
		[]string{"tier", "status"},
	)

	VideoUploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clearframe_video_upload_bytes",
			Help:    "Size of uploaded videos in bytes",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 10),
		},
	)

	FileDeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_file_deletions_total",
			Help: "Total number of stored file deletions",
		},
		[]string{"status"},
	)

	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_storage_operations_total",
			Help: "Object storage operations by backend and outcome",
		},
		[]string{"backend", "operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clearframe_storage_operation_duration_seconds",
			Help:    "Object storage operation latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 120},
		},
		[]string{"backend", "operation"},
	)

	StorageBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_storage_bytes_total",
			Help: "Bytes moved to and from object storage",
		},
		[]string{"backend", "direction"},
	)

	JobTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_job_transitions_total",
			Help: "Job state transitions by source and target status",
		},
		[]string{"from", "to"},
	)

	JobTransitionConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_job_transition_conflicts_total",
			Help: "Conditional transitions that lost against the current status",
		},
		[]string{"to"},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of jobs processed",
		},
		[]string{"type", "status"},
	)

	JobsProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobs_processing_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900, 1800},
		},
		[]string{"type", "stage"},
	)

	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs handed to a dispatcher",
		},
		[]string{"dispatcher"},
	)

	DispatchRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_dispatch_rejected_total",
			Help: "Processing triggers rejected for lack of capacity",
		},
		[]string{"dispatcher"},
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clearframe_dispatch_queue_depth",
			Help: "Reserved dispatch slots, running or waiting",
		},
	)

	WorkerPoolActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_pool_active_jobs",
			Help: "Number of jobs currently being processed by workers",
		},
	)

	QueueHandlerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_queue_handler_runs_total",
			Help: "Queue handler invocations by outcome",
		},
		[]string{"queue", "outcome"},
	)

	QueueHandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clearframe_queue_handler_duration_seconds",
			Help:    "Wall time of queue handler invocations",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800, 3600},
		},
		[]string{"queue"},
	)

	WorkerPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_pool_size",
			Help: "Size of the worker pool",
		},
	)

	StaleJobsFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clearframe_stale_jobs_failed_total",
			Help: "PROCESSING jobs force-failed by the stale sweep",
		},
	)

	ResolverHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_resolver_hits_total",
			Help: "Input resolutions by the strategy that answered",
		},
		[]string{"strategy"},
	)

	ResolverMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clearframe_resolver_misses_total",
			Help: "Resolutions where every strategy failed",
		},
	)

	PreviewGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_preview_generations_total",
			Help: "Preview renders by outcome",
		},
		[]string{"status"},
	)

	StreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_stream_requests_total",
			Help: "Stream responses by kind",
		},
		[]string{"kind"},
	)

	StreamBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clearframe_stream_bytes_total",
			Help: "Bytes written by the stream endpoint",
		},
	)

	CreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_credits_total",
			Help: "Credit ledger movements by operation",
		},
		[]string{"operation"},
	)

	QuotaExceededTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_quota_exceeded_total",
			Help: "Uploads refused for lack of entitlement",
		},
		[]string{"tier"},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_events_published_total",
			Help: "Job lifecycle events by publisher and outcome",
		},
		[]string{"publisher", "status"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearframe_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application information",
		},
		[]string{"version", "environment", "service"},
	)

	AppUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_up",
			Help: "Application is up and running",
		},
	)
)

func NormalizePath(path string) string {
	return uuidRegex.ReplaceAllString(path, ":id")
}

func RecordVideoUpload(tier, status string, sizeBytes int64) {
	VideoUploadsTotal.WithLabelValues(tier, status).Inc()
	if status == "success" {
		VideoUploadBytes.Observe(float64(sizeBytes))
	}
}

func RecordFileDeletion(status string) {
	FileDeletionsTotal.WithLabelValues(status).Inc()
}

func RecordTransition(from, to string) {
	JobTransitionsTotal.WithLabelValues(from, to).Inc()
}

func RecordTransitionConflict(to string) {
	JobTransitionConflictsTotal.WithLabelValues(to).Inc()
}

func RecordJobEnqueued(dispatcher string) {
	JobsEnqueuedTotal.WithLabelValues(dispatcher).Inc()
}

func RecordDispatchRejected(dispatcher string) {
	DispatchRejectedTotal.WithLabelValues(dispatcher).Inc()
}

func RecordJobProcessed(jobType, status string, durationSeconds float64) {
	JobsProcessedTotal.WithLabelValues(jobType, status).Inc()
	JobsProcessingDuration.WithLabelValues(jobType, "total").Observe(durationSeconds)
}

func RecordJobStage(jobType, stage string, durationSeconds float64) {
	JobsProcessingDuration.WithLabelValues(jobType, stage).Observe(durationSeconds)
}

func RecordStaleJobsFailed(n int64) {
	StaleJobsFailedTotal.Add(float64(n))
}

func RecordResolverHit(strategy string) {
	ResolverHitsTotal.WithLabelValues(strategy).Inc()
}

func RecordResolverMiss() {
	ResolverMissesTotal.Inc()
}

func RecordPreview(status string) {
	PreviewGenerationsTotal.WithLabelValues(status).Inc()
}

func RecordStream(kind string, bytes int64) {
	StreamRequestsTotal.WithLabelValues(kind).Inc()
	StreamBytesTotal.Add(float64(bytes))
}

func RecordCredits(operation string, n int64) {
	CreditsTotal.WithLabelValues(operation).Add(float64(n))
}

func RecordQuotaExceeded(tier string) {
	QuotaExceededTotal.WithLabelValues(tier).Inc()
}

func RecordEventPublished(publisher, status string) {
	EventsPublishedTotal.WithLabelValues(publisher, status).Inc()
}

func RecordRateLimitHit(route string) {
	RateLimitHits.WithLabelValues(route).Inc()
}

func SetAppInfo(version, environment, service string) {
	AppInfo.WithLabelValues(version, environment, service).Set(1)
	AppUp.Set(1)
}

func SetWorkerPoolSize(size int) {
	WorkerPoolSize.Set(float64(size))
}
