package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"media-grabber/internal/filesystem"
	"media-grabber/internal/handlers"
	"media-grabber/internal/logging"
	"media-grabber/internal/memory"
	"media-grabber/internal/metrics"
	"media-grabber/internal/startup"
)

func runServe(ctx context.Context) error {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	memory.Configure(config.MemoryLimit, config.MemoryRatio)
	info := startup.GetBuildInfo()
	metrics.SetAppInfo(info.Version, info.Commit, info.GoVersion)
	metrics.InitializeMetrics()
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	a, err := newApp(config, true)
	if err != nil {
		startup.LogFatal("Failed to initialize: %v", err)
	}
	a.monitor.Start()

	h := handlers.New(a.pipeline, a.resolver, a.transcoder, a.cache, handlers.OptionsFromConfig(config))
	h.SetMemory(a.monitor)
	h.SetFFmpegStatus(a.probeFFmpeg(ctx))

	collector := metrics.NewCollector(a, statsInterval)
	collector.Start()

	router := handlers.NewRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handlers.Wrap(router, config),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Downloads are long-lived; per-write deadlines are set by delivery.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", h.MetricsHandler())
		mux.HandleFunc("/health", h.HealthCheck)
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			startup.LogFatal("Server error: %v", err)
		}
		return nil
	case <-ctx.Done():
		startup.LogShutdownInitiated("interrupt")
	}

	shutdown(srv, metricsSrv, collector, a)
	return nil
}

func shutdown(srv, metricsSrv *http.Server, collector *metrics.Collector, a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Stopping metrics collector")
	collector.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")

	startup.LogShutdownStep("Cleaning up transcoder")
	a.close()
	startup.LogShutdownStepComplete("Transcoder and cache released")

	startup.LogShutdownComplete()
}
