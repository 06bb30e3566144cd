package main

import (
	"context"
	"time"

	"media-grabber/internal/acquire"
	"media-grabber/internal/cache"
	"media-grabber/internal/delivery"
	"media-grabber/internal/filesystem"
	"media-grabber/internal/logging"
	"media-grabber/internal/memory"
	"media-grabber/internal/metrics"
	"media-grabber/internal/netutil"
	"media-grabber/internal/pipeline"
	"media-grabber/internal/resolver"
	"media-grabber/internal/source"
	"media-grabber/internal/startup"
	"media-grabber/internal/transcoder"
)

// app holds the components shared by the server and the one-shot commands.
type app struct {
	config     *startup.Config
	store      *filesystem.TempStore
	cache      cache.Store
	resolver   *resolver.Resolver
	transcoder *transcoder.Transcoder
	monitor    *memory.Monitor
	pipeline   *pipeline.Pipeline
}

// newApp wires the pipeline from config. With sweep set, temp files left by
// a previous run are removed first; only the server does this, since a
// one-shot command may share the directory with a running server.
func newApp(config *startup.Config, sweep bool) (*app, error) {
	store, err := filesystem.NewTempStore(config.TempDir)
	if err != nil {
		return nil, err
	}
	if sweep {
		removed, sweepErr := store.Sweep(0)
		startup.LogSweep(removed, sweepErr)
	}

	metaCache := cache.New(cache.RedisConfig{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	}, config.CacheSweepInterval)
	startup.LogCacheInit(metaCache.Stats().Backend, config.CacheTTL)

	client := netutil.NewClient(config.ResolveTimeout)
	res := resolver.New(source.NewYouTube(client), metaCache, resolver.Config{
		TTL:     config.CacheTTL,
		Timeout: config.ResolveTimeout,
	})
	acq := acquire.New(client, config.AcquireTimeout)

	trans := transcoder.New(transcoder.Config{
		FFmpegPath:   config.FFmpegPath,
		Timeout:      config.TransformTimeout,
		MaxProcesses: config.MaxTranscodes,
	}, store)

	monitor := memory.NewMonitor(memory.DefaultConfig())
	deliverer := delivery.New(store, delivery.DefaultConfig())

	return &app{
		config:     config,
		store:      store,
		cache:      metaCache,
		resolver:   res,
		transcoder: trans,
		monitor:    monitor,
		pipeline:   pipeline.New(res, acq, trans, deliverer, monitor),
	}, nil
}

// probeFFmpeg checks that ffmpeg runs and logs the result.
func (a *app) probeFFmpeg(ctx context.Context) (string, error) {
	version, err := a.transcoder.Version(ctx)
	startup.LogTranscoderInit(version, a.transcoder.Slots(), err)
	return version, err
}

// close stops running ffmpeg processes and releases the cache.
func (a *app) close() {
	a.transcoder.Cleanup()
	a.monitor.Stop()
	if err := a.cache.Close(); err != nil {
		logging.Warn("Failed to close metadata cache: %v", err)
	}
}

// GetStats implements metrics.StatsProvider.
func (a *app) GetStats() metrics.Stats {
	stats := metrics.Stats{}
	if files, bytes, err := a.store.Usage(); err == nil {
		stats.TempFiles, stats.TempBytes = files, bytes
	}
	cs := a.cache.Stats()
	stats.CacheBackend, stats.CacheEntries = cs.Backend, cs.CurrentSize
	stats.TranscodeSlots = a.transcoder.Slots()
	stats.HeapBytes, _, _ = a.monitor.GetStats()
	return stats
}

// statsInterval is how often the metrics collector samples usage.
const statsInterval = 30 * time.Second
