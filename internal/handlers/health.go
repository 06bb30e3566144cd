package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"media-grabber/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Transcoder info
	FFmpeg           string `json:"ffmpeg,omitempty"`
	FFmpegError      string `json:"ffmpegError,omitempty"`
	ActiveTranscodes int    `json:"activeTranscodes"`
	TranscodeSlots   int    `json:"transcodeSlots"`

	// Metadata cache
	CacheBackend string `json:"cacheBackend,omitempty"`
	CacheEntries int    `json:"cacheEntries"`
	CacheHits    int64  `json:"cacheHits"`
	CacheMisses  int64  `json:"cacheMisses"`
	CacheError   string `json:"cacheError,omitempty"`

	// Memory pressure
	MemoryUsage  float64 `json:"memoryUsage,omitempty"`
	MemoryPaused bool    `json:"memoryPaused"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// ready reports whether downloads can be served.
func (h *Handlers) ready() bool {
	_, known, err := h.ffmpegStatus()
	return known && err == nil
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	version, known, ffmpegErr := h.ffmpegStatus()

	response := HealthResponse{
		Ready:        known && ffmpegErr == nil,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		FFmpeg:       version,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	switch {
	case !known:
		response.Status = statusStarting
	case ffmpegErr != nil:
		response.Status = statusDegraded
		response.FFmpegError = ffmpegErr.Error()
	default:
		response.Status = statusHealthy
	}

	if h.transcodes != nil {
		response.ActiveTranscodes = h.transcodes.Active()
		response.TranscodeSlots = h.transcodes.Slots()
	}

	if h.cache != nil {
		stats := h.cache.Stats()
		response.CacheBackend = stats.Backend
		response.CacheEntries = stats.CurrentSize
		response.CacheHits = stats.Hits
		response.CacheMisses = stats.Misses

		// A shared cache that is down only costs extra resolutions.
		if checker, ok := h.cache.(interface{ HealthCheck(context.Context) error }); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			if err := checker.HealthCheck(ctx); err != nil {
				response.CacheError = err.Error()
				if response.Status == statusHealthy {
					response.Status = statusDegraded
				}
			}
			cancel()
		}
	}

	if h.memory != nil {
		_, _, response.MemoryUsage = h.memory.GetStats()
		response.MemoryPaused = h.memory.IsPaused()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	// Return 503 only if not ready at all
	if response.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.ready() {
		writeJSONStatus(w, http.StatusOK, "ready")
	} else {
		writeJSONStatus(w, http.StatusServiceUnavailable, "not_ready")
	}
}

// Ping answers "pong" as plain text.
func (h *Handlers) Ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong"))
}
