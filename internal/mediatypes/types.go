package mediatypes

import (
	"mime"
	"regexp"
	"strings"
)

// OutputKind is the representation a caller asks for.
type OutputKind string

const (
	// KindAudio extracts the audio track as MP3.
	KindAudio OutputKind = "audio"
	// KindVideo forwards the source container unchanged.
	KindVideo OutputKind = "video"
	// KindClip renders a short animated GIF.
	KindClip OutputKind = "clip"
	// KindFrame captures a single still image.
	KindFrame OutputKind = "frame"
)

// kindAliases maps the names accepted on the wire to an OutputKind.
var kindAliases = map[string]OutputKind{
	"audio":      KindAudio,
	"mp3":        KindAudio,
	"video":      KindVideo,
	"mp4":        KindVideo,
	"clip":       KindClip,
	"gif":        KindClip,
	"frame":      KindFrame,
	"png":        KindFrame,
	"screenshot": KindFrame,
	"pscreen":    KindFrame,
}

// ParseOutputKind resolves a kind name or alias, case-insensitively.
func ParseOutputKind(s string) (OutputKind, bool) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	return k, ok
}

// AllKinds lists the supported output kinds.
func AllKinds() []OutputKind {
	return []OutputKind{KindAudio, KindVideo, KindClip, KindFrame}
}

// Extensions maps MIME types to the file extension used in suggested names.
var Extensions = map[string]string{
	"audio/mpeg":       ".mp3",
	"audio/mp4":        ".m4a",
	"audio/webm":       ".weba",
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/3gpp":       ".3gp",
	"video/x-matroska": ".mkv",
	"image/gif":        ".gif",
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
}

// MimeTypes maps the extensions this service produces to their MIME types.
var MimeTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".weba": "audio/webm",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".3gp":  "video/3gpp",
	".mkv":  "video/x-matroska",
	".gif":  "image/gif",
	".png":  "image/png",
	".jpg":  "image/jpeg",
}

// BaseType strips parameters such as codecs from a MIME type.
func BaseType(mimeType string) string {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
}

// GetExtension returns the extension for a MIME type, ".bin" when unknown.
func GetExtension(mimeType string) string {
	if ext, ok := Extensions[BaseType(mimeType)]; ok {
		return ext
	}
	return ".bin"
}

// GetMimeType returns the MIME type for an extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if m, ok := MimeTypes[strings.ToLower(ext)]; ok {
		return m
	}
	return "application/octet-stream"
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

// SanitizeTitle turns a media title into a filename stem: punctuation is
// dropped, whitespace runs collapse, and an empty result becomes "download".
func SanitizeTitle(title string) string {
	stem := strings.Join(strings.Fields(nonWord.ReplaceAllString(title, "")), " ")
	if len(stem) > 120 {
		stem = strings.TrimSpace(stem[:120])
	}
	if stem == "" {
		return "download"
	}
	return stem
}

// Filename builds the suggested download name for a title and extension.
func Filename(title, ext string) string {
	return SanitizeTitle(title) + ext
}
