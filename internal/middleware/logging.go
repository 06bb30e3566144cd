package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"media-grabber/internal/logging"
)

// RequestIDHeader carries the request id in both directions. The same id tags
// the access line and every pipeline log line of the request.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 64

// accessRecorder remembers what was sent so the access line can report it
type accessRecorder struct {
	http.ResponseWriter
	status    int
	size      int64
	committed bool
}

func newAccessRecorder(w http.ResponseWriter) *accessRecorder {
	return &accessRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rec *accessRecorder) WriteHeader(code int) {
	if rec.committed {
		return
	}
	rec.status = code
	rec.committed = true
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *accessRecorder) Write(b []byte) (int, error) {
	rec.committed = true
	n, err := rec.ResponseWriter.Write(b)
	rec.size += int64(n)
	return n, err
}

func (rec *accessRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the connection for write deadlines
func (rec *accessRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	SkipPaths       []string
	LogHealthChecks bool
}

// DefaultLoggingConfig logs everything, probes included.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{LogHealthChecks: true}
}

var probePaths = map[string]bool{
	"/ping":    true,
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// Logger assigns every request an id and writes one access line per request
// in W3C Extended Log Format with the id appended. Downloads aborted after
// the response was committed are logged with status "aborted" before the
// abort propagates to net/http.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := requestID(r)
			w.Header().Set(RequestIDHeader, id)
			r = r.WithContext(logging.WithRequestID(r.Context(), id))

			if skipAccessLog(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := newAccessRecorder(w)

			defer func() {
				if p := recover(); p != nil {
					writeAccessLine(r, rec, id, time.Since(start), "aborted")
					panic(p)
				}
			}()

			next.ServeHTTP(rec, r)

			writeAccessLine(r, rec, id, time.Since(start), fmt.Sprint(rec.status))
		})
	}
}

// requestID reuses a well-formed id set by a proxy and makes one up otherwise.
func requestID(r *http.Request) string {
	id := r.Header.Get(RequestIDHeader)
	if id == "" || len(id) > maxRequestIDLen {
		return uuid.NewString()
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return uuid.NewString()
		}
	}
	return id
}

// writeAccessLine logs:
// date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes time-taken cs(User-Agent) cs(Referer) x-request-id
func writeAccessLine(r *http.Request, rec *accessRecorder, id string, took time.Duration, status string) {
	now := time.Now().UTC()

	//nolint:gosec // G706: every user-controlled field goes through field().
	log.Printf("%s %s %s %s %s %s %s %d %d %s %s %s",
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		field(clientIP(r)),
		field(r.Method),
		field(r.URL.Path),
		field(r.URL.RawQuery),
		status,
		rec.size,
		took.Milliseconds(),
		quoted(field(r.Header.Get("User-Agent"))),
		field(r.Header.Get("Referer")),
		id,
	)
}

func skipAccessLog(path string, config LoggingConfig) bool {
	for _, prefix := range config.SkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return !config.LogHealthChecks && probePaths[path]
}

// field strips control characters that could forge log lines and uses "-"
// for empty values.
func field(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		switch {
		case c == '\n' || c == '\r':
			b.WriteByte(' ')
		case c == '\t':
			b.WriteRune(c)
		case c < 0x20 || c == 0x7f:
		default:
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// quoted wraps a field containing whitespace or quotes, doubling the quotes
func quoted(s string) string {
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
