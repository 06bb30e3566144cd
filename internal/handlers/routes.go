package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"media-grabber/internal/middleware"
	"media-grabber/internal/startup"
)

// NewRouter registers every route of the public server. Request metrics are
// recorded inside the router so they can be labelled by route template.
func NewRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Probes
	r.HandleFunc("/ping", h.Ping).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	info := api.Path("/info").Subrouter()
	info.Use(middleware.Compression(middleware.DefaultCompressionConfig()))
	info.Methods(http.MethodGet).HandlerFunc(h.GetInfo)

	api.HandleFunc("/download", h.Download).Methods(http.MethodGet)
	api.HandleFunc("/download/{kind}", h.DownloadKind).Methods(http.MethodPost)

	r.HandleFunc("/download", h.LegacyDownload).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "NotFound", "no such endpoint", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "MethodNotAllowed", "method not allowed", http.StatusMethodNotAllowed)
	})

	return r
}

// Wrap applies the server-wide middleware around the router: access logging
// outermost, then CORS so preflight requests are answered before routing,
// then the per-client rate limit.
func Wrap(router http.Handler, config *startup.Config) http.Handler {
	limit := middleware.DefaultRateLimitConfig()
	limit.RequestLimit = config.RateLimitRequests
	limit.WindowSize = config.RateLimitWindow

	logCfg := middleware.DefaultLoggingConfig()
	logCfg.LogHealthChecks = config.LogHealthChecks

	var handler http.Handler = router
	handler = middleware.RateLimit(limit)(handler)
	handler = middleware.CORS(config.CORSOrigins)(handler)
	handler = middleware.Logger(logCfg)(handler)
	return handler
}
