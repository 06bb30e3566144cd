package handlers

import (
	"net/http"
	"strings"

	"media-grabber/internal/media"
)

// RenditionInfo is the public view of a rendition. Stream URLs are signed and
// short-lived, so they are not exposed.
type RenditionInfo struct {
	Itag          int    `json:"itag"`
	Quality       string `json:"quality,omitempty"`
	MimeType      string `json:"mimeType"`
	Container     string `json:"container"`
	Bitrate       int    `json:"bitrate"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	AudioChannels int    `json:"audioChannels,omitempty"`
	ContentLength int64  `json:"contentLength,omitempty"`
	HasAudio      bool   `json:"hasAudio"`
	HasVideo      bool   `json:"hasVideo"`
}

// InfoResponse is the body of GET /api/info.
type InfoResponse struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Author     string          `json:"author,omitempty"`
	Duration   float64         `json:"durationSeconds"`
	Renditions []RenditionInfo `json:"renditions"`
}

// NewInfoResponse builds the public view of meta.
func NewInfoResponse(meta *media.Metadata) InfoResponse {
	resp := InfoResponse{
		ID:         string(meta.ID),
		Title:      meta.Title,
		Author:     meta.Author,
		Duration:   meta.Duration.Seconds(),
		Renditions: make([]RenditionInfo, 0, len(meta.Renditions)),
	}
	for _, r := range meta.Renditions {
		resp.Renditions = append(resp.Renditions, RenditionInfo{
			Itag:          r.Itag,
			Quality:       r.QualityLabel,
			MimeType:      r.MimeType,
			Container:     r.Container(),
			Bitrate:       r.Bitrate,
			Width:         r.Width,
			Height:        r.Height,
			AudioChannels: r.AudioChannels,
			ContentLength: r.ContentLength,
			HasAudio:      r.HasAudio(),
			HasVideo:      r.HasVideo(),
		})
	}
	return resp
}

// GetInfo handles GET /api/info?url= and returns the media metadata.
func (h *Handlers) GetInfo(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		writeJSONError(w, errInvalidRequest, "url is required", http.StatusBadRequest)
		return
	}

	meta, err := h.resolver.Resolve(r.Context(), rawURL)
	if err != nil {
		writeFault(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, NewInfoResponse(meta))
}
