// Package memory sizes the Go heap for containerized deployments and provides
// backpressure when it runs hot.
//
// # Configuration
//
// [Configure] sets the runtime soft memory limit to MEMORY_LIMIT*MEMORY_RATIO
// (default ratio 0.75), leaving headroom for ffmpeg child processes. An
// explicit GOMEMLIMIT environment variable always wins.
//
// # Backpressure
//
// [Monitor] samples heap usage at a fixed interval. Once usage crosses the
// critical water mark, [Monitor.WaitIfPaused] blocks callers until usage drops
// below the high water mark, the caller's context ends, or the monitor is
// stopped. The pipeline calls it before starting a transform.
package memory
