package startup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(env(nil))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" || cfg.MetricsPort != "9090" {
		t.Errorf("Unexpected ports %s/%s", cfg.Port, cfg.MetricsPort)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("Expected 1h cache ttl, got %v", cfg.CacheTTL)
	}
	if cfg.AudioBitrate != 128 {
		t.Errorf("Expected 128k audio, got %d", cfg.AudioBitrate)
	}
	if cfg.ClipDuration != 5*time.Second || cfg.ClipWidth != 320 || cfg.ClipHeight != 240 || cfg.ClipFPS != 10 {
		t.Errorf("Unexpected clip defaults %v %dx%d@%d", cfg.ClipDuration, cfg.ClipWidth, cfg.ClipHeight, cfg.ClipFPS)
	}
	if cfg.RateLimitRequests != 100 || cfg.RateLimitWindow != 15*time.Minute {
		t.Errorf("Expected 100 per 15m, got %d per %v", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if cfg.ConfigFile != "" {
		t.Errorf("Expected no config file, got %q", cfg.ConfigFile)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := Load(env(map[string]string{
		"PORT":              "3000",
		"CACHE_TTL":         "3600",
		"ACQUIRE_TIMEOUT":   "90s",
		"AUDIO_BITRATE":     "192",
		"AUDIO_STREAMING":   "false",
		"CORS_ORIGINS":      "https://a.example, https://b.example,",
		"REDIS_ADDR":        "redis:6379",
		"REDIS_DB":          "2",
		"MEMORY_LIMIT":      "512Mi",
		"MEMORY_RATIO":      "0.5",
		"LOG_HEALTH_CHECKS": "0",
	}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "3000" {
		t.Errorf("Expected port 3000, got %s", cfg.Port)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("Expected bare seconds to parse as 1h, got %v", cfg.CacheTTL)
	}
	if cfg.AcquireTimeout != 90*time.Second {
		t.Errorf("Expected 90s, got %v", cfg.AcquireTimeout)
	}
	if cfg.AudioBitrate != 192 || cfg.AudioStreaming {
		t.Errorf("Expected 192k buffered audio, got %dk streaming=%v", cfg.AudioBitrate, cfg.AudioStreaming)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected CORS origins %q", cfg.CORSOrigins)
	}
	if cfg.RedisAddr != "redis:6379" || cfg.RedisDB != 2 {
		t.Errorf("Unexpected redis config %s/%d", cfg.RedisAddr, cfg.RedisDB)
	}
	if cfg.MemoryLimit != 512<<20 || cfg.MemoryRatio != 0.5 {
		t.Errorf("Unexpected memory config %d/%v", cfg.MemoryLimit, cfg.MemoryRatio)
	}
	if cfg.LogHealthChecks {
		t.Error("Expected health check logging off")
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	_, err := Load(env(map[string]string{
		"REDIS_DB":        "primary",
		"ACQUIRE_TIMEOUT": "soon",
		"METRICS_ENABLED": "maybe",
	}))
	if err == nil {
		t.Fatal("Expected invalid values to fail")
	}
	for _, key := range []string{"REDIS_DB", "ACQUIRE_TIMEOUT", "METRICS_ENABLED"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("Expected error to mention %s, got %v", key, err)
		}
	}
}

func TestLoadTOMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media-grabber.toml")
	content := `
port = "9000"
cache_ttl = "30m"
clip_width = 480
clip_height = 360
cors_origins = ["https://app.example"]
log_level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(env(map[string]string{
		"CONFIG_FILE": path,
		"PORT":        "9001",
	}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9001" {
		t.Errorf("Expected env to win over file, got port %s", cfg.Port)
	}
	if cfg.CacheTTL != 30*time.Minute {
		t.Errorf("Expected 30m from file, got %v", cfg.CacheTTL)
	}
	if cfg.ClipWidth != 480 || cfg.ClipHeight != 360 {
		t.Errorf("Expected 480x360 from file, got %dx%d", cfg.ClipWidth, cfg.ClipHeight)
	}
	if cfg.ClipFPS != 10 {
		t.Errorf("Expected default fps to survive, got %d", cfg.ClipFPS)
	}
	if cfg.LogLevel != "debug" || cfg.ConfigFile != path {
		t.Errorf("Unexpected log level %q / file %q", cfg.LogLevel, cfg.ConfigFile)
	}
}

func TestLoadBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("port = \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(env(map[string]string{"CONFIG_FILE": path})); err == nil {
		t.Error("Expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero ttl", func(c *Config) { c.CacheTTL = 0 }},
		{"bitrate", func(c *Config) { c.AudioBitrate = 1000 }},
		{"clip too long", func(c *Config) { c.ClipDuration = 2 * time.Minute }},
		{"clip size", func(c *Config) { c.ClipWidth = 0 }},
		{"rate window", func(c *Config) { c.RateLimitWindow = 0 }},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"negative transcodes", func(c *Config) { c.MaxTranscodes = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Expected defaults to be valid, got %v", err)
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"1024", 1024, true},
		{"2Ki", 2048, true},
		{"1Gi", 1 << 30, true},
		{"5M", 5_000_000, true},
		{"lots", 0, false},
		{"-1", 0, false},
	}
	for _, tt := range tests {
		got, err := parseBytes(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("parseBytes(%q) = %d, %v", tt.in, got, err)
		}
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := map[string]string{
		"/api/download/{kind}": "api/download",
		"/api/info":            "api/info",
		"/ping":                "ping",
		"/":                    "",
	}
	for path, want := range tests {
		if got := getRouteGroup(path); got != want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/ping", nil).Methods("GET").Name("ping")
	r.HandleFunc("/api/download/{kind}", nil).Methods("POST")

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 2 {
		t.Fatalf("Expected 2 routes, got %d", len(routes))
	}
	if routes[0].Name != "ping" || routes[1].Method != "POST" {
		t.Errorf("Unexpected routes %+v", routes)
	}
}

func TestEnsureDirectoryAndWriteAccess(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := ensureDirectory(dir, "temp"); err != nil {
		t.Fatalf("ensureDirectory failed: %v", err)
	}
	if err := testWriteAccess(dir); err != nil {
		t.Errorf("Expected writable dir, got %v", err)
	}

	file := filepath.Join(t.TempDir(), "file")
	os.WriteFile(file, nil, 0o600)
	if err := ensureDirectory(file, "temp"); err == nil {
		t.Error("Expected error for a regular file")
	}
}
