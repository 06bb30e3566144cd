package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"media-grabber/internal/fault"
	"media-grabber/internal/media"
	"media-grabber/internal/mediatypes"
	"media-grabber/internal/pipeline"
	"media-grabber/internal/startup"
	"media-grabber/internal/streaming"
)

var testOptions = Options{
	AudioBitrate:   128,
	AudioStreaming: true,
	ClipDuration:   5 * time.Second,
	ClipWidth:      320,
	ClipHeight:     240,
	ClipFPS:        10,
}

// fakeDownloader records requests and answers with run, or with a small body.
type fakeDownloader struct {
	mu   sync.Mutex
	reqs []pipeline.Request
	run  func(w http.ResponseWriter, req pipeline.Request) (pipeline.Result, error)
}

func (f *fakeDownloader) Run(_ context.Context, w http.ResponseWriter, req pipeline.Request) (pipeline.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	if f.run != nil {
		return f.run(w, req)
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	n, _ := w.Write([]byte("media-bytes"))
	return pipeline.Result{Bytes: int64(n)}, nil
}

func (f *fakeDownloader) requests() []pipeline.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Request(nil), f.reqs...)
}

type fakeResolver struct {
	meta *media.Metadata
	err  error
}

func (f fakeResolver) Resolve(context.Context, string) (*media.Metadata, error) {
	return f.meta, f.err
}

func newTestRouter(d Downloader, res MetadataResolver) http.Handler {
	h := New(d, res, stubTranscodes{}, nil, testOptions)
	return NewRouter(h)
}

func serve(handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body %q: %v", w.Body.String(), err)
	}
	return body
}

// =============================================================================
// Request building
// =============================================================================

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	noStreaming := testOptions
	noStreaming.AudioStreaming = false

	tests := []struct {
		name       string
		opts       Options
		kind       mediatypes.OutputKind
		params     DownloadParams
		spec       media.TransformSpec
		selector   media.Selector
		preferFile bool
	}{
		{
			name:     "Audio streams by default",
			opts:     testOptions,
			kind:     mediatypes.KindAudio,
			spec:     media.AudioSpec(128),
			selector: media.SelectHighestAudio,
		},
		{
			name:       "Audio materialized when streaming is off",
			opts:       noStreaming,
			kind:       mediatypes.KindAudio,
			spec:       media.AudioSpec(128),
			selector:   media.SelectHighestAudio,
			preferFile: true,
		},
		{
			name:     "Video pass-through",
			opts:     testOptions,
			kind:     mediatypes.KindVideo,
			spec:     media.PassThroughSpec(),
			selector: media.SelectHighest,
		},
		{
			name:       "Video to file with quality",
			opts:       testOptions,
			kind:       mediatypes.KindVideo,
			params:     DownloadParams{Mode: "file", Quality: "lowest"},
			spec:       media.PassThroughSpec(),
			selector:   media.SelectLowest,
			preferFile: true,
		},
		{
			name:     "Clip uses configured defaults",
			opts:     testOptions,
			kind:     mediatypes.KindClip,
			spec:     media.ClipSpec(5*time.Second, 320, 240, 10),
			selector: media.SelectHighest,
		},
		{
			name:     "Frame with offset and width",
			opts:     testOptions,
			kind:     mediatypes.KindFrame,
			params:   DownloadParams{Offset: "1:30", Width: 640},
			spec:     media.FrameSpec(90*time.Second, 640),
			selector: media.SelectHighest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.opts.BuildRequest(" https://youtu.be/abc ", tt.kind, tt.params)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if req.URL != "https://youtu.be/abc" {
				t.Errorf("Expected trimmed URL, got %q", req.URL)
			}
			if req.Kind != tt.kind {
				t.Errorf("Expected kind %q, got %q", tt.kind, req.Kind)
			}
			if req.Spec != tt.spec {
				t.Errorf("Expected spec %+v, got %+v", tt.spec, req.Spec)
			}
			if req.Selector != tt.selector {
				t.Errorf("Expected selector %q, got %q", tt.selector, req.Selector)
			}
			if req.PreferFile != tt.preferFile {
				t.Errorf("Expected PreferFile=%v, got %v", tt.preferFile, req.PreferFile)
			}
		})
	}
}

func TestBuildRequestRejects(t *testing.T) {
	t.Parallel()

	badClip := testOptions
	badClip.ClipFPS = 0

	tests := []struct {
		name   string
		opts   Options
		url    string
		kind   mediatypes.OutputKind
		params DownloadParams
	}{
		{"Missing URL", testOptions, "  ", mediatypes.KindAudio, DownloadParams{}},
		{"Unknown mode", testOptions, "u", mediatypes.KindVideo, DownloadParams{Mode: "torrent"}},
		{"Unknown quality", testOptions, "u", mediatypes.KindVideo, DownloadParams{Quality: "4k"}},
		{"Bad offset", testOptions, "u", mediatypes.KindFrame, DownloadParams{Offset: "soon"}},
		{"Negative offset", testOptions, "u", mediatypes.KindFrame, DownloadParams{Offset: "-5"}},
		{"Negative width", testOptions, "u", mediatypes.KindFrame, DownloadParams{Width: -1}},
		{"Unknown kind", testOptions, "u", mediatypes.OutputKind("hologram"), DownloadParams{}},
		{"Invalid clip defaults", badClip, "u", mediatypes.KindClip, DownloadParams{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.BuildRequest(tt.url, tt.kind, tt.params); err == nil {
				t.Error("Expected an error, got nil")
			}
		})
	}
}

func TestParseOffset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"", 0, false},
		{"5", 5 * time.Second, false},
		{"1.5", 1500 * time.Millisecond, false},
		{"1:30", 90 * time.Second, false},
		{"00:01:30.5", 90*time.Second + 500*time.Millisecond, false},
		{"1h2m", time.Hour + 2*time.Minute, false},
		{"90s", 90 * time.Second, false},
		{"1:2:3:4", 0, true},
		{"a:10", 0, true},
		{"-1s", 0, true},
		{"later", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOffset(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

// =============================================================================
// Download endpoints
// =============================================================================

func TestDownloadStreamsResponse(t *testing.T) {
	t.Parallel()

	d := &fakeDownloader{}
	w := serve(newTestRouter(d, nil), http.MethodGet, "/api/download?url=https://youtu.be/abc&kind=mp3", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "media-bytes" {
		t.Errorf("Expected media body, got %q", w.Body.String())
	}

	reqs := d.requests()
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 pipeline run, got %d", len(reqs))
	}
	if reqs[0].Kind != mediatypes.KindAudio || reqs[0].URL != "https://youtu.be/abc" {
		t.Errorf("Expected audio request for the URL, got %+v", reqs[0])
	}
}

func TestDownloadQueryParameters(t *testing.T) {
	t.Parallel()

	d := &fakeDownloader{}
	w := serve(newTestRouter(d, nil), http.MethodGet,
		"/api/download?url=https://youtu.be/abc&kind=frame&offset=12&width=200&mode=file", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	req := d.requests()[0]
	if req.Spec != media.FrameSpec(12*time.Second, 200) {
		t.Errorf("Expected frame at 12s width 200, got %+v", req.Spec)
	}
	if !req.PreferFile {
		t.Error("Expected mode=file to set PreferFile")
	}
}

func TestDownloadRejectsBadParameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
	}{
		{"Missing kind", "/api/download?url=https://youtu.be/abc"},
		{"Unknown kind", "/api/download?url=https://youtu.be/abc&kind=hologram"},
		{"Bad width", "/api/download?url=https://youtu.be/abc&kind=frame&width=wide"},
		{"Missing URL", "/api/download?kind=audio"},
		{"Bad mode", "/api/download?url=https://youtu.be/abc&kind=audio&mode=fax"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDownloader{}
			w := serve(newTestRouter(d, nil), http.MethodGet, tt.target, "")

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
			if body := decodeError(t, w); body.Error != errInvalidRequest {
				t.Errorf("Expected error %q, got %q", errInvalidRequest, body.Error)
			}
			if n := len(d.requests()); n != 0 {
				t.Errorf("Expected no pipeline run, got %d", n)
			}
		})
	}
}

func TestDownloadFaultResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{"Invalid source", fault.Errorf(fault.InvalidSource, "resolve", "not a url"), http.StatusBadRequest, "InvalidSource"},
		{"Rendition unavailable", fault.Errorf(fault.RenditionUnavailable, "acquire", "none"), http.StatusBadRequest, "RenditionUnavailable"},
		{"Remote rate limit", fault.Errorf(fault.ResolutionFailed, "resolve", "slow down").WithStatus(http.StatusTooManyRequests), http.StatusTooManyRequests, "ResolutionFailed"},
		{"Remote forbidden", fault.Errorf(fault.NetworkError, "acquire", "denied").WithStatus(http.StatusForbidden), http.StatusForbidden, "NetworkError"},
		{"Transform failed", fault.Errorf(fault.TransformFailed, "transform", "exit 1").WithDiagnostic("stderr"), http.StatusInternalServerError, "TransformFailed"},
		{"Unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, "Unexpected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDownloader{run: func(http.ResponseWriter, pipeline.Request) (pipeline.Result, error) {
				return pipeline.Result{}, tt.err
			}}
			w := serve(newTestRouter(d, nil), http.MethodGet, "/api/download?url=u&kind=video", "")

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			body := decodeError(t, w)
			if body.Error != tt.expectedError {
				t.Errorf("Expected error %q, got %q", tt.expectedError, body.Error)
			}
			if body.Message != fault.Message(tt.err) {
				t.Errorf("Expected message %q, got %q", fault.Message(tt.err), body.Message)
			}
			if strings.Contains(body.Message, "stderr") {
				t.Error("Expected diagnostics to stay out of the response")
			}
		})
	}
}

func TestDownloadClientGoneWritesNothing(t *testing.T) {
	t.Parallel()

	d := &fakeDownloader{run: func(http.ResponseWriter, pipeline.Request) (pipeline.Result, error) {
		return pipeline.Result{}, fault.E(fault.DeliveryFailed, "deliver", streaming.ErrClientGone)
	}}
	w := serve(newTestRouter(d, nil), http.MethodGet, "/api/download?url=u&kind=video", "")

	if w.Body.Len() != 0 {
		t.Errorf("Expected no response body for a departed client, got %q", w.Body.String())
	}
}

func TestDownloadCommittedFailureAborts(t *testing.T) {
	t.Parallel()

	d := &fakeDownloader{run: func(w http.ResponseWriter, _ pipeline.Request) (pipeline.Result, error) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		fe := fault.Errorf(fault.NetworkError, "deliver", "connection reset")
		fe.Committed = true
		return pipeline.Result{}, fe
	}}
	h := New(d, nil, nil, nil, testOptions)

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("Expected panic with http.ErrAbortHandler, got %v", r)
		}
	}()

	req := httptest.NewRequest(http.MethodGet, "/api/download?url=u&kind=video", http.NoBody)
	h.Download(httptest.NewRecorder(), req)
	t.Error("Expected the handler to abort")
}

func TestDownloadKind(t *testing.T) {
	t.Parallel()

	d := &fakeDownloader{}
	w := serve(newTestRouter(d, nil), http.MethodPost, "/api/download/png",
		`{"query":"https://youtu.be/abc","offset":"5","width":320}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	req := d.requests()[0]
	if req.Kind != mediatypes.KindFrame {
		t.Errorf("Expected frame kind, got %q", req.Kind)
	}
	if req.URL != "https://youtu.be/abc" {
		t.Errorf("Expected query URL, got %q", req.URL)
	}
	if req.Spec != media.FrameSpec(5*time.Second, 320) {
		t.Errorf("Expected frame at 5s width 320, got %+v", req.Spec)
	}
}

func TestDownloadKindErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		target         string
		body           string
		expectedStatus int
	}{
		{"Unknown kind", "/api/download/hologram", `{"query":"u"}`, http.StatusNotFound},
		{"Malformed JSON", "/api/download/mp3", `{"query":`, http.StatusBadRequest},
		{"Missing query", "/api/download/gif", `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDownloader{}
			w := serve(newTestRouter(d, nil), http.MethodPost, tt.target, tt.body)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if n := len(d.requests()); n != 0 {
				t.Errorf("Expected no pipeline run, got %d", n)
			}
		})
	}
}

func TestLegacyDownload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		typ      string
		kind     mediatypes.OutputKind
		selector media.Selector
	}{
		{"Kind alias", "mp3", mediatypes.KindAudio, media.SelectHighestAudio},
		{"Quality class", "lowest", mediatypes.KindVideo, media.SelectLowest},
		{"Audio quality class", "highestaudio", mediatypes.KindVideo, media.SelectHighestAudio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDownloader{}
			w := serve(newTestRouter(d, nil), http.MethodGet, "/download?url=https://youtu.be/abc&type="+tt.typ, "")

			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			req := d.requests()[0]
			if req.Kind != tt.kind || req.Selector != tt.selector {
				t.Errorf("Expected %s/%s, got %s/%s", tt.kind, tt.selector, req.Kind, req.Selector)
			}
		})
	}
}

func TestLegacyDownloadErrors(t *testing.T) {
	t.Parallel()

	for _, target := range []string{
		"/download?url=https://youtu.be/abc",
		"/download?type=mp3",
		"/download?url=https://youtu.be/abc&type=bogus",
	} {
		t.Run(target, func(t *testing.T) {
			d := &fakeDownloader{}
			w := serve(newTestRouter(d, nil), http.MethodGet, target, "")

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
			if n := len(d.requests()); n != 0 {
				t.Errorf("Expected no pipeline run, got %d", n)
			}
		})
	}
}

// =============================================================================
// Info endpoint
// =============================================================================

func TestGetInfo(t *testing.T) {
	t.Parallel()

	meta := &media.Metadata{
		ID:       "abc",
		Title:    "Song",
		Author:   "Band",
		Duration: 212 * time.Second,
		Renditions: []media.Rendition{
			{Itag: 18, QualityLabel: "360p", MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, AudioChannels: 2, Height: 360, URL: "https://signed.example/18"},
			{Itag: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, Bitrate: 128000, URL: "https://signed.example/140"},
		},
	}
	w := serve(newTestRouter(nil, fakeResolver{meta: meta}), http.MethodGet, "/api/info?url=https://youtu.be/abc", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "signed.example") {
		t.Error("Expected stream URLs to stay private")
	}

	var resp InfoResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ID != "abc" || resp.Title != "Song" || resp.Duration != 212 {
		t.Errorf("Unexpected info %+v", resp)
	}
	if len(resp.Renditions) != 2 {
		t.Fatalf("Expected 2 renditions, got %d", len(resp.Renditions))
	}
	if r := resp.Renditions[0]; !r.HasAudio || !r.HasVideo || r.Container != "mp4" {
		t.Errorf("Expected muxed mp4 rendition, got %+v", r)
	}
	if r := resp.Renditions[1]; !r.HasAudio || r.HasVideo {
		t.Errorf("Expected audio-only rendition, got %+v", r)
	}
}

func TestGetInfoErrors(t *testing.T) {
	t.Parallel()

	w := serve(newTestRouter(nil, fakeResolver{}), http.MethodGet, "/api/info", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without url, got %d", w.Code)
	}

	res := fakeResolver{err: fault.Errorf(fault.InvalidSource, "resolve", "not a video link")}
	w = serve(newTestRouter(nil, res), http.MethodGet, "/api/info?url=not-a-url", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if body := decodeError(t, w); body.Error != "InvalidSource" {
		t.Errorf("Expected InvalidSource, got %q", body.Error)
	}
}

// =============================================================================
// Routing and middleware chain
// =============================================================================

func TestRouterFallbacks(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&fakeDownloader{}, nil)

	w := serve(router, http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w = serve(router, http.MethodGet, "/api/download/mp3", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}

	w = serve(router, http.MethodGet, "/ping", "")
	if w.Code != http.StatusOK || w.Body.String() != "pong" {
		t.Errorf("Expected pong, got %d %q", w.Code, w.Body.String())
	}
}

func TestWrapAppliesRateLimit(t *testing.T) {
	t.Parallel()

	cfg := startup.Default()
	cfg.RateLimitRequests = 1
	cfg.RateLimitWindow = time.Minute
	cfg.LogHealthChecks = false

	handler := Wrap(newTestRouter(&fakeDownloader{}, nil), cfg)

	if w := serve(handler, http.MethodGet, "/version", ""); w.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", w.Code)
	}
	if w := serve(handler, http.MethodGet, "/version", ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", w.Code)
	}
	if w := serve(handler, http.MethodGet, "/ping", ""); w.Code != http.StatusOK {
		t.Errorf("Expected /ping to be exempt, got %d", w.Code)
	}
}

func TestWrapAnswersPreflight(t *testing.T) {
	t.Parallel()

	cfg := startup.Default()
	handler := Wrap(newTestRouter(&fakeDownloader{}, nil), cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/download/mp3", http.NoBody)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code >= 300 {
		t.Errorf("Expected successful preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("Expected Access-Control-Allow-Origin to be set")
	}
}

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	writeJSONError(w, "InvalidSource", "Invalid source URL", http.StatusBadRequest)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", ct)
	}
	expected := `{"error":"InvalidSource","message":"Invalid source URL"}` + "\n"
	if w.Body.String() != expected {
		t.Errorf("Expected %q, got %q", expected, w.Body.String())
	}
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	h := &Handlers{}
	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	h.MetricsHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "# HELP") {
		t.Error("Expected Prometheus metrics format with HELP comments")
	}
	if !strings.Contains(w.Body.String(), "promhttp_metric_handler_requests_in_flight") {
		t.Error("Expected scrapes of the metrics endpoint to be instrumented")
	}
}
