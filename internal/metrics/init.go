package metrics

// Label values pre-populated by InitializeMetrics. They mirror the values the
// pipeline emits.
var (
	outputKinds    = []string{"audio", "video", "clip", "frame"}
	pipelineStates = []string{"validating", "resolving", "acquiring", "transforming", "delivering", "done", "failed"}
	outcomes       = []string{"success", "canceled", "InvalidSource", "RenditionUnavailable",
		"ResolutionFailed", "NetworkError", "TransformFailed", "DeliveryFailed", "Unexpected"}
	variants = []string{"passthrough", "audio", "clip", "frame"}
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, kind := range outputKinds {
		for _, outcome := range outcomes {
			PipelineRunsTotal.WithLabelValues(kind, outcome)
		}
		DeliveredBytesTotal.WithLabelValues(kind)
	}

	for _, state := range pipelineStates {
		PipelineTransitionsTotal.WithLabelValues(state)
		PipelineStageDuration.WithLabelValues(state)
	}

	for _, status := range []string{"success", "error"} {
		ResolveTotal.WithLabelValues(status)
	}

	for _, status := range []string{"success", "http_error", "network_error", "canceled"} {
		AcquireTotal.WithLabelValues(status)
	}

	for _, reason := range []string{"client_gone", "write_timeout", "upstream"} {
		DeliveryAbortsTotal.WithLabelValues(reason)
	}

	for _, v := range variants {
		for _, status := range []string{"success", "error", "timeout", "canceled"} {
			TranscoderJobsTotal.WithLabelValues(v, status)
		}
		TranscoderJobDuration.WithLabelValues(v)
	}

	for _, event := range []string{"created", "removed", "swept"} {
		ArtifactEventsTotal.WithLabelValues(event)
	}

	for _, op := range []string{"stat", "open", "remove", "sweep"} {
		FilesystemOperationDuration.WithLabelValues(op)
		FilesystemOperationErrors.WithLabelValues(op)
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
	}

	for _, backend := range []string{"memory", "redis"} {
		MetadataCacheEntries.WithLabelValues(backend)
	}
}
