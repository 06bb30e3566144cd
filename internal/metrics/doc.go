// Package metrics provides Prometheus instrumentation for media-grabber.
//
// All metrics are prefixed with "media_grabber_" and registered through
// promauto on the default registry, which the metrics server exposes at
// /metrics.
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//   - RateLimitedTotal: requests rejected by the per-client limiter
//
// ## Pipeline Metrics
//   - PipelineRunsTotal: finished runs by output kind and outcome
//   - PipelineStageDuration: time spent per state
//   - PipelineTransitionsTotal, PipelinesActive
//
// ## Resolver Metrics
//   - MetadataCacheHits / MetadataCacheMisses / MetadataCacheEntries
//   - ResolveTotal, ResolveDuration, ResolveShared (singleflight dedupe)
//
// ## Acquisition, Transcoder and Delivery Metrics
//   - AcquireTotal, AcquiredBytesTotal
//   - TranscoderJobsTotal, TranscoderJobDuration, TranscoderProcessesActive,
//     TranscoderSlots, TranscoderSlotWait
//   - DeliveredBytesTotal, DeliveryAbortsTotal
//
// ## Artifact and Filesystem Metrics
//   - ArtifactEventsTotal, TempDirFiles, TempDirBytes
//   - Filesystem* metrics fed through the filesystem.Observer returned by
//     NewFilesystemObserver
//
// ## Memory Metrics
//   - MemoryUsageRatio, MemoryHeapBytes, MemoryPaused, MemoryGCPauses
//
// TempDir*, TranscoderSlots, MemoryHeapBytes and MetadataCacheEntries are
// sampled by Collector; everything else is updated where it happens.
//
// # Example Queries
//
// Failure rate by kind over five minutes:
//
//	sum by (outcome) (rate(media_grabber_pipeline_runs_total{outcome!="success"}[5m]))
//
// 95th percentile transcode time per variant:
//
//	histogram_quantile(0.95, sum by (variant, le) (rate(media_grabber_transcoder_job_duration_seconds_bucket[5m])))
package metrics
