// Package main provides the entry point for the media-grabber service.
//
// media-grabber turns an online video link into a downloadable file: the
// source container as-is, MP3 audio, a short animated GIF, or a PNG frame.
//
// # Commands
//
//	media-grabber [serve]        start the HTTP server (default)
//	media-grabber get <url>      download one item to a file or stdout
//	media-grabber info <url>     print metadata and renditions as JSON
//	media-grabber version        print build information
//
// # Server Lifecycle
//
//  1. Configuration: defaults, then CONFIG_FILE (TOML), then environment
//  2. Memory: GOMEMLIMIT derived from MEMORY_LIMIT and MEMORY_RATIO
//  3. Temp directory: created, checked for write access, orphans removed
//  4. Metadata cache: Redis when REDIS_ADDR is reachable, memory otherwise
//  5. Transcoder: ffmpeg probed; readiness depends on the result
//  6. HTTP servers: the API on PORT and Prometheus metrics on METRICS_PORT
//  7. Graceful shutdown on SIGINT/SIGTERM: servers drain, running ffmpeg
//     processes are killed, the cache is closed
//
// # HTTP API
//
//	GET  /ping                       "pong"
//	GET  /health, /healthz           health summary (503 until ffmpeg is usable)
//	GET  /livez, /readyz             probes
//	GET  /version                    build information and ffmpeg version
//	GET  /api/info?url=              metadata and renditions
//	GET  /api/download?url=&kind=    download; also offset, width, mode, quality
//	POST /api/download/{kind}        JSON {"query": url, "offset": "...", "width": n}
//	GET  /download?url=&type=        legacy form; type is a kind or quality class
//
// Errors are answered as {"error": "<Kind>", "message": "..."}.
//
// # Environment Variables
//
// See package startup for the full list. The most common are PORT, TEMP_DIR,
// FFMPEG_PATH, REDIS_ADDR, AUDIO_BITRATE, RATE_LIMIT_REQUESTS and LOG_LEVEL.
package main
