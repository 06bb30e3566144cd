package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gorilla/mux"

	"media-grabber/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration. Every field can be set in the
// TOML file named by CONFIG_FILE and overridden by the environment variable
// of the same name in upper case.
type Config struct {
	Port           string `toml:"port"`
	MetricsPort    string `toml:"metrics_port"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
	TempDir        string `toml:"temp_dir"`
	FFmpegPath     string `toml:"ffmpeg_path"`

	CacheTTL           time.Duration `toml:"cache_ttl"`
	CacheSweepInterval time.Duration `toml:"cache_sweep_interval"`
	RedisAddr          string        `toml:"redis_addr"`
	RedisPassword      string        `toml:"redis_password"`
	RedisDB            int           `toml:"redis_db"`

	ResolveTimeout   time.Duration `toml:"resolve_timeout"`
	AcquireTimeout   time.Duration `toml:"acquire_timeout"`
	TransformTimeout time.Duration `toml:"transform_timeout"`
	MaxTranscodes    int           `toml:"max_transcodes"`

	AudioBitrate   int           `toml:"audio_bitrate"`
	AudioStreaming bool          `toml:"audio_streaming"`
	ClipDuration   time.Duration `toml:"clip_duration"`
	ClipWidth      int           `toml:"clip_width"`
	ClipHeight     int           `toml:"clip_height"`
	ClipFPS        int           `toml:"clip_fps"`

	RateLimitRequests int           `toml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `toml:"rate_limit_window"`
	CORSOrigins       []string      `toml:"cors_origins"`

	LogLevel        string  `toml:"log_level"`
	LogHealthChecks bool    `toml:"log_health_checks"`
	MemoryLimit     int64   `toml:"memory_limit"`
	MemoryRatio     float64 `toml:"memory_ratio"`

	// ConfigFile is the file the configuration was read from, if any.
	ConfigFile string `toml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:               "8080",
		MetricsPort:        "9090",
		MetricsEnabled:     true,
		TempDir:            filepath.Join(os.TempDir(), "media-grabber"),
		FFmpegPath:         "ffmpeg",
		CacheTTL:           time.Hour,
		CacheSweepInterval: 2 * time.Minute,
		ResolveTimeout:     30 * time.Second,
		AcquireTimeout:     10 * time.Minute,
		TransformTimeout:   10 * time.Minute,
		AudioBitrate:       128,
		AudioStreaming:     true,
		ClipDuration:       5 * time.Second,
		ClipWidth:          320,
		ClipHeight:         240,
		ClipFPS:            10,
		RateLimitRequests:  100,
		RateLimitWindow:    15 * time.Minute,
		CORSOrigins:        []string{"*"},
		LogHealthChecks:    true,
		MemoryRatio:        0.75,
	}
}

// Load builds the configuration from defaults, the optional TOML file named by
// CONFIG_FILE, and the environment, in that order. lookup is os.LookupEnv
// outside tests.
func Load(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
		for _, key := range md.Undecoded() {
			logging.Warn("Unknown key %q in %s", key.String(), path)
		}
		cfg.ConfigFile = path
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides cfg with any variables present in the environment.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
				return
			}
			*dst = parsed
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
				return
			}
			*dst = parsed
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			parsed, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}

	str("PORT", &cfg.Port)
	str("METRICS_PORT", &cfg.MetricsPort)
	boolean("METRICS_ENABLED", &cfg.MetricsEnabled)
	str("TEMP_DIR", &cfg.TempDir)
	str("FFMPEG_PATH", &cfg.FFmpegPath)

	duration("CACHE_TTL", &cfg.CacheTTL)
	duration("CACHE_SWEEP_INTERVAL", &cfg.CacheSweepInterval)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	integer("REDIS_DB", &cfg.RedisDB)

	duration("RESOLVE_TIMEOUT", &cfg.ResolveTimeout)
	duration("ACQUIRE_TIMEOUT", &cfg.AcquireTimeout)
	duration("TRANSFORM_TIMEOUT", &cfg.TransformTimeout)
	integer("MAX_TRANSCODES", &cfg.MaxTranscodes)

	integer("AUDIO_BITRATE", &cfg.AudioBitrate)
	boolean("AUDIO_STREAMING", &cfg.AudioStreaming)
	duration("CLIP_DURATION", &cfg.ClipDuration)
	integer("CLIP_WIDTH", &cfg.ClipWidth)
	integer("CLIP_HEIGHT", &cfg.ClipHeight)
	integer("CLIP_FPS", &cfg.ClipFPS)

	integer("RATE_LIMIT_REQUESTS", &cfg.RateLimitRequests)
	duration("RATE_LIMIT_WINDOW", &cfg.RateLimitWindow)
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	str("LOG_LEVEL", &cfg.LogLevel)
	boolean("LOG_HEALTH_CHECKS", &cfg.LogHealthChecks)
	if v, ok := lookup("MEMORY_LIMIT"); ok && v != "" {
		parsed, err := parseBytes(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MEMORY_LIMIT: %w", err))
		} else {
			cfg.MemoryLimit = parsed
		}
	}
	if v, ok := lookup("MEMORY_RATIO"); ok && v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MEMORY_RATIO: invalid number %q", v))
		} else {
			cfg.MemoryRatio = parsed
		}
	}

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("90s") and bare seconds ("3600").
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// parseBytes accepts plain byte counts and K/M/G/Ki/Mi/Gi suffixes.
func parseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	units := []struct {
		suffix string
		mult   int64
	}{
		{"Gi", 1 << 30}, {"Mi", 1 << 20}, {"Ki", 1 << 10},
		{"G", 1000 * 1000 * 1000}, {"M", 1000 * 1000}, {"K", 1000},
	}
	mult := int64(1)
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			s, mult = strings.TrimSuffix(s, u.suffix), u.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port cannot be empty"))
	}
	if c.TempDir == "" {
		errs = append(errs, errors.New("temp_dir cannot be empty"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache_ttl must be positive, got %v", c.CacheTTL))
	}
	if c.AudioBitrate <= 0 || c.AudioBitrate > 320 {
		errs = append(errs, fmt.Errorf("audio_bitrate %d out of range (1-320)", c.AudioBitrate))
	}
	if c.ClipDuration <= 0 || c.ClipDuration > time.Minute {
		errs = append(errs, fmt.Errorf("clip_duration %v out of range (0-60s]", c.ClipDuration))
	}
	if c.ClipWidth <= 0 || c.ClipHeight <= 0 || c.ClipFPS <= 0 {
		errs = append(errs, fmt.Errorf("clip size %dx%d@%d must be positive", c.ClipWidth, c.ClipHeight, c.ClipFPS))
	}
	if c.RateLimitRequests < 0 || (c.RateLimitRequests > 0 && c.RateLimitWindow <= 0) {
		errs = append(errs, fmt.Errorf("rate limit %d per %v is invalid", c.RateLimitRequests, c.RateLimitWindow))
	}
	if c.MaxTranscodes < 0 {
		errs = append(errs, fmt.Errorf("max_transcodes must not be negative, got %d", c.MaxTranscodes))
	}
	if c.LogLevel != "" {
		if _, ok := logging.ParseLevel(c.LogLevel); !ok {
			errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
		}
	}
	return errors.Join(errs...)
}

// LoadConfig prints the banner, loads the configuration from the environment
// and prepares the temp directory.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	cfg, err := Load(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" {
		level, _ := logging.ParseLevel(cfg.LogLevel)
		logging.SetLevel(level)
	}

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	if cfg.ConfigFile != "" {
		logging.Info("  CONFIG_FILE:         %s", cfg.ConfigFile)
	}
	logging.Info("  PORT:                %s", cfg.Port)
	logging.Info("  METRICS_PORT:        %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", cfg.MetricsEnabled)
	logging.Info("  TEMP_DIR:            %s", cfg.TempDir)
	logging.Info("  FFMPEG_PATH:         %s", cfg.FFmpegPath)
	logging.Info("  CACHE_TTL:           %v", cfg.CacheTTL)
	logging.Info("  REDIS_ADDR:          %s", orNone(cfg.RedisAddr))
	logging.Info("  RESOLVE_TIMEOUT:     %v", cfg.ResolveTimeout)
	logging.Info("  ACQUIRE_TIMEOUT:     %v", cfg.AcquireTimeout)
	logging.Info("  TRANSFORM_TIMEOUT:   %v", cfg.TransformTimeout)
	logging.Info("  MAX_TRANSCODES:      %s", orAuto(cfg.MaxTranscodes))
	logging.Info("  AUDIO:               %dk, streaming=%v", cfg.AudioBitrate, cfg.AudioStreaming)
	logging.Info("  CLIP:                %v %dx%d@%dfps", cfg.ClipDuration, cfg.ClipWidth, cfg.ClipHeight, cfg.ClipFPS)
	if cfg.RateLimitRequests > 0 {
		logging.Info("  RATE_LIMIT:          %d per %v", cfg.RateLimitRequests, cfg.RateLimitWindow)
	} else {
		logging.Info("  RATE_LIMIT:          disabled")
	}
	logging.Info("  CORS_ORIGINS:        %s", strings.Join(cfg.CORSOrigins, ", "))
	logging.Info("  LOG_HEALTH_CHECKS:   %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	cfg.TempDir, err = filepath.Abs(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve temp directory path: %w", err)
	}
	logging.Info("  Temp directory (absolute): %s", cfg.TempDir)

	if err := ensureDirectory(cfg.TempDir, "temp"); err != nil {
		return nil, fmt.Errorf("temp directory error: %w", err)
	}
	logging.Debug("  Testing temp directory write access...")
	if err := testWriteAccess(cfg.TempDir); err != nil {
		return nil, fmt.Errorf("temp directory is not writable (required for clips and frames): %w", err)
	}
	logging.Info("  [OK] Temp directory is writable")

	return cfg, nil
}

func orNone(s string) string {
	if s == "" {
		return "(none, in-memory cache)"
	}
	return s
}

func orAuto(n int) string {
	if n <= 0 {
		return "auto"
	}
	return strconv.Itoa(n)
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogCacheInit logs which metadata cache backend is in use
func LogCacheInit(backend string, ttl time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("METADATA CACHE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Backend: %s (ttl %v)", backend, ttl)
}

// LogTranscoderInit logs the result of probing the ffmpeg binary
func LogTranscoderInit(version string, slots int, err error) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	if err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  Audio, clip and frame requests will fail until ffmpeg is available")
	} else {
		logging.Info("  [OK] %s", version)
	}
	logging.Info("  Concurrent ffmpeg processes: %d", slots)
}

// LogSweep logs the startup removal of orphaned temp files
func LogSweep(removed int, err error) {
	if err != nil {
		logging.Warn("  Orphan sweep failed: %v", err)
		return
	}
	logging.Info("  [OK] Removed %d orphaned temp files", removed)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       %s", enabledString(false))
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
                    _ _                             _     _
  _ __ ___   ___  __| (_) __ _    __ _ _ __ __ _| |__ | |__   ___ _ __
 | '_ ' _ \ / _ \/ _' | |/ _' |  / _' | '__/ _' | '_ \| '_ \ / _ \ '__|
 | | | | | |  __/ (_| | | (_| | | (_| | | | (_| | |_) | |_) |  __/ |
 |_| |_| |_|\___|\__,_|_|\__,_|  \__, |_|  \__,_|_.__/|_.__/ \___|_|
                                 |___/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
