// Package delivery writes transform output to an HTTP response.
//
// Nothing is written to the response until the first byte of output exists,
// so a producer that fails early can still be answered with a structured
// error. Once headers are out, failures are reported as committed and the
// caller must abort the connection instead of writing an error body.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"media-grabber/internal/fault"
	"media-grabber/internal/filesystem"
	"media-grabber/internal/logging"
	"media-grabber/internal/metrics"
	"media-grabber/internal/streaming"
	"media-grabber/internal/transcoder"
)

// Config holds the timeouts applied to response writes.
type Config struct {
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	ChunkSize    int
}

// DefaultConfig returns the writer defaults from the streaming package.
func DefaultConfig() Config {
	d := streaming.DefaultTimeoutWriterConfig()
	return Config{WriteTimeout: d.WriteTimeout, IdleTimeout: d.IdleTimeout, ChunkSize: d.ChunkSize}
}

// Deliverer sends transcoder output to clients.
type Deliverer struct {
	store *filesystem.TempStore
	cfg   Config
}

// New creates a Deliverer. Artifacts are removed through store.
func New(store *filesystem.TempStore, cfg Config) *Deliverer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 64 * 1024
	}
	return &Deliverer{store: store, cfg: cfg}
}

// Deliver writes out to w under filename and returns the number of body bytes
// sent. Deliver owns out: the stream is closed and any artifact is removed
// before it returns.
func (d *Deliverer) Deliver(ctx context.Context, w http.ResponseWriter, out *transcoder.Output, filename string) (int64, error) {
	if out.Artifact != nil {
		return d.deliverFile(ctx, w, out, filename)
	}
	return d.deliverStream(ctx, w, out, filename)
}

func (d *Deliverer) deliverStream(ctx context.Context, w http.ResponseWriter, out *transcoder.Output, filename string) (int64, error) {
	defer out.Stream.Close()

	first := make([]byte, d.cfg.ChunkSize)
	n, err := readFirst(out.Stream, first)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return 0, fault.Errorf(fault.TransformFailed, "deliver", "output is empty")
		}
		return 0, producerError(err)
	}

	SetHeaders(w, out.ContentType, filename, -1)
	w.WriteHeader(http.StatusOK)

	var src io.Reader = bytes.NewReader(first[:n])
	if err == nil {
		src = io.MultiReader(src, out.Stream)
	} else if !errors.Is(err, io.EOF) {
		src = io.MultiReader(src, errReader{err})
	}

	return d.copy(ctx, w, src, out.Stream)
}

func (d *Deliverer) deliverFile(ctx context.Context, w http.ResponseWriter, out *transcoder.Output, filename string) (int64, error) {
	path := out.Artifact.Path
	defer func() {
		if err := d.store.Remove(path); err != nil {
			logging.Warn("Failed to remove artifact %s: %v", path, err)
		}
	}()

	f, err := d.store.Open(path)
	if err != nil {
		return 0, fault.E(fault.DeliveryFailed, "deliver", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fault.E(fault.DeliveryFailed, "deliver", err)
	}

	SetHeaders(w, out.Artifact.ContentType, filename, info.Size())
	w.WriteHeader(http.StatusOK)

	return d.copy(ctx, w, f, f)
}

// copy streams src to w after headers have been sent. producer is closed if
// the client stops accepting data, which unblocks a pending Read.
func (d *Deliverer) copy(ctx context.Context, w http.ResponseWriter, src io.Reader, producer io.Closer) (int64, error) {
	var idle atomic.Bool
	cfg := streaming.TimeoutWriterConfig{
		WriteTimeout: d.cfg.WriteTimeout,
		IdleTimeout:  d.cfg.IdleTimeout,
		ChunkSize:    d.cfg.ChunkSize,
		OnIdle: func() {
			idle.Store(true)
			producer.Close()
		},
		OnProgress: func(written int64, elapsed time.Duration) {
			logging.Debug("Delivered %d bytes in %v", written, elapsed.Round(time.Millisecond))
		},
	}

	written, err := streaming.StreamWithTimeout(ctx, w, src, cfg)
	if err == nil {
		return written, nil
	}

	reason := "upstream"
	switch {
	case idle.Load() || errors.Is(err, streaming.ErrWriteTimeout):
		reason = "write_timeout"
		err = fmt.Errorf("%w after %d bytes", streaming.ErrWriteTimeout, written)
	case errors.Is(err, streaming.ErrClientGone), ctx.Err() != nil:
		reason = "client_gone"
		if !errors.Is(err, streaming.ErrClientGone) {
			err = fmt.Errorf("%w: %v", streaming.ErrClientGone, err)
		}
	}
	metrics.DeliveryAbortsTotal.WithLabelValues(reason).Inc()

	var fe *fault.Error
	if reason == "upstream" {
		fe = producerError(err)
	} else {
		fe = fault.E(fault.DeliveryFailed, "deliver", err)
	}
	fe.Committed = true
	return written, fe
}

// readFirst reads until buf holds at least one byte or the producer fails.
func readFirst(r io.Reader, buf []byte) (int, error) {
	for {
		n, err := r.Read(buf)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

// producerError keeps a stage fault as is and classifies anything else.
func producerError(err error) *fault.Error {
	if fe, ok := fault.As(err); ok {
		return fe
	}
	if errors.Is(err, context.Canceled) {
		return fault.E(fault.DeliveryFailed, "deliver", fmt.Errorf("%w: %v", streaming.ErrClientGone, err))
	}
	return fault.E(fault.Unexpected, "deliver", err)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// SetHeaders sets the download headers. size < 0 omits Content-Length.
func SetHeaders(w http.ResponseWriter, contentType, filename string, size int64) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", ContentDisposition(filename))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
	if size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
	}
}

// ContentDisposition builds an attachment header with an ASCII fallback name.
// Names that are not plain ASCII also get the RFC 5987 filename* form.
func ContentDisposition(filename string) string {
	fallback := strings.Map(func(r rune) rune {
		switch {
		case r == '"' || r == '\\' || r < 0x20 || r == 0x7f:
			return -1
		case r > 0x7e:
			return '_'
		}
		return r
	}, filename)
	if fallback == "" {
		fallback = "download"
	}

	disp := fmt.Sprintf(`attachment; filename="%s"`, fallback)
	if fallback == filename {
		return disp
	}
	// mime only switches to the extended form when the value needs it.
	ext := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if _, param, ok := strings.Cut(ext, "; "); ok && strings.HasPrefix(param, "filename*=") {
		disp += "; " + param
	}
	return disp
}
