package handlers

import (
	"net/http"

	"media-grabber/internal/startup"
)

// VersionResponse is the build information plus the ffmpeg build found by the
// startup probe, which decides which transforms behave as documented.
type VersionResponse struct {
	startup.BuildInfo
	FFmpeg string `json:"ffmpeg,omitempty"`
}

// GetVersion handles GET /version.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	ffmpeg, _, _ := h.ffmpegStatus()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, VersionResponse{BuildInfo: startup.GetBuildInfo(), FFmpeg: ffmpeg})
}
