package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_grabber_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_grabber_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_grabber_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_grabber_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		},
		[]string{"path"},
	)
)

// Pipeline metrics
var (
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_grabber_pipeline_runs_total",
			Help: "Completed pipeline runs by output kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: success, canceled, or a failure kind
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_grabber_pipeline_stage_duration_seconds",
			Help:    "Time spent in each pipeline state",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"stage"},
	)

	PipelineTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_grabber_pipeline_transitions_total",
			Help: "Pipeline state transitions by target state",
		},
		[]string{"state"},
	)

	PipelinesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_grabber_pipelines_active",
			Help: "Number of pipeline runs in progress",
		},
	)
)

// Resolver metrics
var (
	MetadataCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_grabber_metadata_cache_hits_total",
			Help: "Metadata lookups served from the cache",
		},
	)

	MetadataCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_grabber_metadata_cache_misses_total",
			Help: "Metadata lookups that required a remote resolution",
		},
	)

	MetadataCacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_grabber_metadata_cache_entries",
			Help: "Number of entries in the metadata cache",
		},
		[]string{"backend"},
	)

	ResolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_grabber_resolve_total",
			Help: "Remote metadata resolutions by status",
		},
		[]string{"status"}, // success, error
	)

	ResolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_grabber_resolve_duration_seconds",
			Help:    "Remote metadata resolution duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	ResolveShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_grabber_resolve_shared_total",
			Help: "Resolutions answered by an identical in-flight resolution",
		},
	)
)

// Acquisition and delivery metrics
var (
	AcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_grabber_acquire_total",
			Help: "Rendition fetches by status",
		},
		[]string{"status"}, // success, http_error, network_error, canceled
	)

	AcquiredBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_grabber_acquired_bytes_total",
			Help: "Bytes read from remote renditions",
		},
	)

	DeliveredBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_grabber_delivered_bytes_total",
			Help: "Bytes written to callers by output kind",
		},
		[]string{"kind"},
	)

	DeliveryAbortsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_grabber_delivery_aborts_total",
			Help: "Deliveries cut short after headers were sent",
		},
		[]string{"reason"}, // client_gone, write_timeout, upstream
	)
)

// Transcoder metrics
var (
	TranscoderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_grabber_transcoder_jobs_total",
			Help: "Total number of transcoder jobs",
		},
		[]string{"variant", "status"}, // status: success, error, timeout, canceled
	)

	TranscoderJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_grabber_transcoder_job_duration_seconds",
			Help:    "Transcoder job duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"variant"},
	)

	TranscoderProcessesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_grabber_transcoder_processes_active",
			Help: "Number of running ffmpeg processes",
		},
	)

	TranscoderSlots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_grabber_transcoder_slots",
			Help: "Number of ffmpeg processes allowed to run at once",
		},
	)

	TranscoderSlotWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_grabber_transcoder_slot_wait_seconds",
			Help:    "Time spent waiting for a free transcoder slot",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		},
	)
)

// Artifact and filesystem metrics
var (
	ArtifactEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_grabber_artifact_events_total",
			Help: "Temporary artifact lifecycle events",
		},
		[]string{"event"}, // created, removed, swept
	)

	TempDirFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_grabber_temp_dir_files",
			Help: "Number of files in the temp directory",
		},
	)

	TempDirBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_grabber_temp_dir_bytes",
			Help: "Total size of files in the temp directory",
		},
	)

	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_grabber_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_grabber_filesystem_operation_errors_total",
			Help: "Filesystem operations that returned an error",
		},
		[]string{"operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_grabber_filesystem_retry_attempts_total",
			Help: "Retries of filesystem operations after a stale handle",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_grabber_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_grabber_filesystem_stale_errors_total",
			Help: "ESTALE errors seen by filesystem operations",
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_grabber_memory_usage_ratio",
			Help: "Heap usage as a ratio of the configured memory limit",
		},
	)

	MemoryHeapBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_grabber_memory_heap_bytes",
			Help: "Last heap sample taken by the memory monitor",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_grabber_memory_paused",
			Help: "1 while new transforms are held back by memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_grabber_memory_gc_pauses_total",
			Help: "Times processing was paused for memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_grabber_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
