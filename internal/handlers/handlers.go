package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"media-grabber/internal/cache"
	"media-grabber/internal/media"
	"media-grabber/internal/pipeline"
	"media-grabber/internal/startup"
)

// Downloader runs a download request to completion.
type Downloader interface {
	Run(ctx context.Context, w http.ResponseWriter, req pipeline.Request) (pipeline.Result, error)
}

// MetadataResolver resolves a source URL to metadata.
type MetadataResolver interface {
	Resolve(ctx context.Context, rawURL string) (*media.Metadata, error)
}

// Transcodes reports the state of the transcoder.
type Transcodes interface {
	Active() int
	Slots() int
}

// MemoryStats reports memory pressure.
type MemoryStats interface {
	IsPaused() bool
	GetStats() (current, limit int64, usage float64)
}

// Options are the request defaults taken from the configuration.
type Options struct {
	AudioBitrate   int
	AudioStreaming bool
	ClipDuration   time.Duration
	ClipWidth      int
	ClipHeight     int
	ClipFPS        int
}

// OptionsFromConfig extracts request defaults from config.
func OptionsFromConfig(config *startup.Config) Options {
	return Options{
		AudioBitrate:   config.AudioBitrate,
		AudioStreaming: config.AudioStreaming,
		ClipDuration:   config.ClipDuration,
		ClipWidth:      config.ClipWidth,
		ClipHeight:     config.ClipHeight,
		ClipFPS:        config.ClipFPS,
	}
}

type Handlers struct {
	downloader Downloader
	resolver   MetadataResolver
	transcodes Transcodes
	cache      cache.Store
	memory     MemoryStats
	opts       Options
	startTime  time.Time

	toolMu     sync.RWMutex
	ffmpeg     string
	ffmpegErr  error
	toolsKnown bool
}

func New(d Downloader, res MetadataResolver, tc Transcodes, store cache.Store, opts Options) *Handlers {
	return &Handlers{
		downloader: d,
		resolver:   res,
		transcodes: tc,
		cache:      store,
		opts:       opts,
		startTime:  time.Now(),
	}
}

// SetMemory adds memory pressure to the health report.
func (h *Handlers) SetMemory(m MemoryStats) {
	h.memory = m
}

// SetFFmpegStatus records the result of the startup ffmpeg probe. The service
// reports ready only once ffmpeg is known to be usable.
func (h *Handlers) SetFFmpegStatus(version string, err error) {
	h.toolMu.Lock()
	defer h.toolMu.Unlock()
	h.ffmpeg, h.ffmpegErr, h.toolsKnown = version, err, true
}

func (h *Handlers) ffmpegStatus() (version string, known bool, err error) {
	h.toolMu.RLock()
	defer h.toolMu.RUnlock()
	return h.ffmpeg, h.toolsKnown, h.ffmpegErr
}
