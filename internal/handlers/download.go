package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-grabber/internal/media"
	"media-grabber/internal/mediatypes"
	"media-grabber/internal/pipeline"
)

// maxBodyBytes bounds the JSON body of a POST download.
const maxBodyBytes = 16 << 10

// DownloadParams are the caller-supplied knobs of a download.
type DownloadParams struct {
	Offset  string `json:"offset,omitempty"`
	Width   int    `json:"width,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// downloadBody is the JSON body of POST /api/download/{kind}.
type downloadBody struct {
	Query string `json:"query"`
	DownloadParams
}

// BuildRequest turns a kind and its parameters into a pipeline request.
func (o Options) BuildRequest(rawURL string, kind mediatypes.OutputKind, p DownloadParams) (pipeline.Request, error) {
	req := pipeline.Request{URL: strings.TrimSpace(rawURL), Kind: kind}
	if req.URL == "" {
		return req, errors.New("url is required")
	}

	switch p.Mode {
	case "", "stream":
	case "file":
		req.PreferFile = true
	default:
		return req, fmt.Errorf("unknown mode %q (want stream or file)", p.Mode)
	}

	switch kind {
	case mediatypes.KindAudio:
		req.Spec = media.AudioSpec(o.AudioBitrate)
		req.Selector = media.SelectHighestAudio
		if !o.AudioStreaming {
			req.PreferFile = true
		}
	case mediatypes.KindVideo:
		req.Spec = media.PassThroughSpec()
		req.Selector = media.SelectHighest
	case mediatypes.KindClip:
		req.Spec = media.ClipSpec(o.ClipDuration, o.ClipWidth, o.ClipHeight, o.ClipFPS)
		req.Selector = media.SelectHighest
	case mediatypes.KindFrame:
		offset, err := ParseOffset(p.Offset)
		if err != nil {
			return req, err
		}
		if p.Width < 0 {
			return req, fmt.Errorf("width must not be negative, got %d", p.Width)
		}
		req.Spec = media.FrameSpec(offset, p.Width)
		req.Selector = media.SelectHighest
	default:
		return req, fmt.Errorf("unknown kind %q", kind)
	}

	if p.Quality != "" {
		sel, ok := media.ParseSelector(p.Quality)
		if !ok {
			return req, fmt.Errorf("unknown quality %q", p.Quality)
		}
		req.Selector = sel
	}

	if err := req.Spec.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// ParseOffset parses a frame offset. Accepted forms are plain seconds ("5",
// "1.5"), clock notation ("1:30", "00:01:30.5") and Go durations ("90s").
func ParseOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	var d time.Duration
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
		var total float64
		for _, part := range parts {
			v, err := strconv.ParseFloat(part, 64)
			if err != nil || v < 0 {
				return 0, fmt.Errorf("invalid offset %q", s)
			}
			total = total*60 + v
		}
		d = time.Duration(total * float64(time.Second))
	} else if secs, err := strconv.ParseFloat(s, 64); err == nil {
		d = time.Duration(secs * float64(time.Second))
	} else if parsed, err := time.ParseDuration(s); err == nil {
		d = parsed
	} else {
		return 0, fmt.Errorf("invalid offset %q", s)
	}

	if d < 0 {
		return 0, fmt.Errorf("offset must not be negative, got %q", s)
	}
	return d, nil
}

// Download handles GET /api/download?url=&kind=.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	kind, ok := mediatypes.ParseOutputKind(q.Get("kind"))
	if !ok {
		writeJSONError(w, errInvalidRequest, "kind must be one of audio, video, clip or frame", http.StatusBadRequest)
		return
	}

	params := DownloadParams{
		Offset:  q.Get("offset"),
		Mode:    q.Get("mode"),
		Quality: q.Get("quality"),
	}
	if width := q.Get("width"); width != "" {
		n, err := strconv.Atoi(width)
		if err != nil {
			writeJSONError(w, errInvalidRequest, "width must be an integer", http.StatusBadRequest)
			return
		}
		params.Width = n
	}

	h.download(w, r, q.Get("url"), kind, params)
}

// DownloadKind handles POST /api/download/{kind} with a JSON body.
func (h *Handlers) DownloadKind(w http.ResponseWriter, r *http.Request) {
	kind, ok := mediatypes.ParseOutputKind(mux.Vars(r)["kind"])
	if !ok {
		writeJSONError(w, errInvalidRequest, "unknown output kind", http.StatusNotFound)
		return
	}

	var body downloadBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, errInvalidRequest, "request body must be JSON", http.StatusBadRequest)
		return
	}

	h.download(w, r, body.Query, kind, body.DownloadParams)
}

// LegacyDownload handles GET /download?url=&type=, where type is either an
// output kind or a quality class for a pass-through video download.
func (h *Handlers) LegacyDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawURL, typ := q.Get("url"), q.Get("type")
	if rawURL == "" || typ == "" {
		writeJSONError(w, errInvalidRequest, "URL and type are required", http.StatusBadRequest)
		return
	}

	if kind, ok := mediatypes.ParseOutputKind(typ); ok {
		h.download(w, r, rawURL, kind, DownloadParams{})
		return
	}
	if _, ok := media.ParseSelector(typ); ok {
		h.download(w, r, rawURL, mediatypes.KindVideo, DownloadParams{Quality: typ})
		return
	}
	writeJSONError(w, errInvalidRequest, fmt.Sprintf("unknown type %q", typ), http.StatusBadRequest)
}

func (h *Handlers) download(w http.ResponseWriter, r *http.Request, rawURL string, kind mediatypes.OutputKind, params DownloadParams) {
	req, err := h.opts.BuildRequest(rawURL, kind, params)
	if err != nil {
		writeJSONError(w, errInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.downloader.Run(r.Context(), w, req); err != nil {
		writeFault(w, err)
	}
}
