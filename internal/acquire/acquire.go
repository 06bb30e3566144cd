// Package acquire opens a byte stream for the rendition chosen from resolved
// metadata.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"media-grabber/internal/fault"
	"media-grabber/internal/logging"
	"media-grabber/internal/media"
	"media-grabber/internal/metrics"
	"media-grabber/internal/netutil"
)

// Acquirer fetches rendition bodies over HTTP.
type Acquirer struct {
	client  *http.Client
	timeout time.Duration
}

// New returns an Acquirer. timeout bounds the whole transfer, 0 for none.
func New(client *http.Client, timeout time.Duration) *Acquirer {
	return &Acquirer{client: client, timeout: timeout}
}

// Acquire selects a rendition of meta by sel and starts streaming it. The
// caller owns the returned body and must close it. Read errors from the body
// are *fault.Error values of kind NetworkError.
func (a *Acquirer) Acquire(ctx context.Context, meta *media.Metadata, sel media.Selector) (io.ReadCloser, media.Rendition, error) {
	rendition, ok := meta.Select(sel)
	if !ok {
		return nil, media.Rendition{}, fault.Errorf(fault.RenditionUnavailable, "acquire",
			"no %s rendition for %s", sel, meta.ID)
	}

	var cancel context.CancelFunc
	if a.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	req, err := netutil.NewGet(ctx, rendition.URL)
	if err != nil {
		cancel()
		return nil, rendition, fault.E(fault.NetworkError, "acquire", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		cancel()
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			metrics.AcquireTotal.WithLabelValues("canceled").Inc()
			return nil, rendition, err
		}
		metrics.AcquireTotal.WithLabelValues("network_error").Inc()
		return nil, rendition, fault.E(fault.NetworkError, "acquire", timeoutCause(ctx, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		metrics.AcquireTotal.WithLabelValues("http_error").Inc()
		return nil, rendition, fault.Errorf(fault.NetworkError, "acquire",
			"rendition %d returned %s", rendition.Itag, resp.Status).WithStatus(resp.StatusCode)
	}

	metrics.AcquireTotal.WithLabelValues("success").Inc()
	logging.Debug("Acquiring itag %d of %s (%s, %d bytes)", rendition.Itag, meta.ID, rendition.MimeType, resp.ContentLength)

	return &body{rc: resp.Body, ctx: ctx, cancel: cancel}, rendition, nil
}

func timeoutCause(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out: %w", err)
	}
	return err
}

// body wraps a response body so that read failures surface as NetworkError
// and closing it releases the request context.
type body struct {
	rc     io.ReadCloser
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (b *body) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		metrics.AcquiredBytesTotal.Add(float64(n))
	}
	if err == nil || err == io.EOF {
		return n, err
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return n, err
	}
	if errors.Is(b.ctx.Err(), context.Canceled) {
		return n, context.Canceled
	}
	return n, fault.E(fault.NetworkError, "acquire", timeoutCause(b.ctx, err))
}

func (b *body) Close() error {
	var err error
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		err = b.rc.Close()
		b.cancel()
	})
	return err
}
