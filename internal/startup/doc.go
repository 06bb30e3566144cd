// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is built in three layers by [Load]: built-in defaults, then
// the optional TOML file named by CONFIG_FILE, then environment variables.
// Every TOML key has an environment variable of the same name in upper case:
//
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable the metrics server (default: true)
//   - TEMP_DIR: Directory for clip and frame artifacts (default: $TMPDIR/media-grabber)
//   - FFMPEG_PATH: ffmpeg binary (default: ffmpeg)
//   - CACHE_TTL: Metadata cache lifetime, Go duration or seconds (default: 1h)
//   - CACHE_SWEEP_INTERVAL: In-memory cache sweep period (default: 2m)
//   - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB: Shared Redis cache; in-memory when unset
//   - RESOLVE_TIMEOUT, ACQUIRE_TIMEOUT, TRANSFORM_TIMEOUT: Stage time limits
//   - MAX_TRANSCODES: Concurrent ffmpeg processes (default: derived from CPUs)
//   - AUDIO_BITRATE: MP3 bitrate in kbit/s (default: 128)
//   - AUDIO_STREAMING: Stream MP3 while encoding instead of buffering (default: true)
//   - CLIP_DURATION, CLIP_WIDTH, CLIP_HEIGHT, CLIP_FPS: GIF defaults (5s, 320x240, 10fps)
//   - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW: Per-IP limit (default: 100 per 15m, 0 disables)
//   - CORS_ORIGINS: Comma-separated allowed origins (default: *)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - MEMORY_LIMIT: Container memory limit for automatic GOMEMLIMIT configuration
//   - MEMORY_RATIO: Fraction of MEMORY_LIMIT for the Go heap (default: 0.75)
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// [LoadConfig] prints the banner and the effective configuration. The Log*
// functions print the remaining startup and shutdown sections so that every
// run of the server produces the same, greppable layout.
package startup
