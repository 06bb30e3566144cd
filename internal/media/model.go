package media

import (
	"strings"
	"time"

	"media-grabber/internal/mediatypes"
)

// SourceID is the canonical identifier of a remote video. It is the metadata
// cache key and is stable for a given input URL.
type SourceID string

// Rendition is one encoded version of a source.
type Rendition struct {
	Itag          int    `json:"itag"`
	QualityLabel  string `json:"qualityLabel,omitempty"`
	MimeType      string `json:"mimeType"`
	Bitrate       int    `json:"bitrate"`
	AudioChannels int    `json:"audioChannels,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	ContentLength int64  `json:"contentLength,omitempty"`
	URL           string `json:"url"`
}

// HasVideo reports whether the rendition carries a video track.
func (r Rendition) HasVideo() bool {
	return strings.HasPrefix(mediatypes.BaseType(r.MimeType), "video/")
}

// HasAudio reports whether the rendition carries an audio track.
func (r Rendition) HasAudio() bool {
	return r.AudioChannels > 0 || strings.HasPrefix(mediatypes.BaseType(r.MimeType), "audio/")
}

// Container returns the container tag, e.g. "mp4" for "video/mp4; codecs=...".
func (r Rendition) Container() string {
	base := mediatypes.BaseType(r.MimeType)
	if i := strings.IndexByte(base, '/'); i >= 0 {
		return base[i+1:]
	}
	return base
}

// Metadata is the resolved description of a source. It is never mutated after
// resolution; a fresh resolution replaces it wholesale.
type Metadata struct {
	ID         SourceID      `json:"id"`
	Title      string        `json:"title"`
	Author     string        `json:"author,omitempty"`
	Duration   time.Duration `json:"duration"`
	Renditions []Rendition   `json:"renditions"`
	ResolvedAt time.Time     `json:"resolvedAt"`
}
