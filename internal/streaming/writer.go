package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"media-grabber/internal/logging"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates that a write exceeded the configured timeout,
	// or that nothing was written for longer than the idle timeout.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates that the client disconnected before the stream completed.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled indicates that the writer was closed before the write.
	ErrStreamCanceled = errors.New("stream canceled")
)

// TimeoutWriterConfig configures the timeout writer behavior
type TimeoutWriterConfig struct {
	// WriteTimeout is the maximum time to wait for a single write operation
	WriteTimeout time.Duration
	// IdleTimeout is the maximum time between successful writes
	IdleTimeout time.Duration
	// MaxDuration is the absolute maximum streaming duration (0 = unlimited)
	MaxDuration time.Duration
	// ChunkSize is the size of chunks to write (0 = write as received)
	ChunkSize int
	// OnProgress is called roughly every MiB with bytes written
	OnProgress func(bytesWritten int64, duration time.Duration)
	// OnIdle is called once when the idle timeout fires. Delivery uses it to
	// tear down a producer that has stopped sending data.
	OnIdle func()
}

// DefaultTimeoutWriterConfig returns sensible defaults
func DefaultTimeoutWriterConfig() TimeoutWriterConfig {
	return TimeoutWriterConfig{
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		MaxDuration:  0,         // Unlimited by default
		ChunkSize:    64 * 1024, // 64KB chunks
	}
}

// TimeoutWriter wraps an http.ResponseWriter with timeout protection. Write
// deadlines are applied through http.ResponseController when the underlying
// writer supports them.
type TimeoutWriter struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	parent       context.Context
	ctx          context.Context
	cancel       context.CancelFunc
	config       TimeoutWriterConfig
	startTime    time.Time
	lastWrite    time.Time
	bytesWritten int64
	mu           sync.Mutex
	closed       bool
	idleFired    bool
	wg           sync.WaitGroup
}

// NewTimeoutWriter creates a new timeout-protected writer
func NewTimeoutWriter(ctx context.Context, w http.ResponseWriter, config TimeoutWriterConfig) *TimeoutWriter {
	writerCtx, cancel := context.WithCancel(ctx)

	now := time.Now()
	tw := &TimeoutWriter{
		w:         w,
		rc:        http.NewResponseController(w),
		parent:    ctx,
		ctx:       writerCtx,
		cancel:    cancel,
		config:    config,
		startTime: now,
		lastWrite: now,
	}

	if config.IdleTimeout > 0 {
		tw.wg.Add(1)
		go tw.idleChecker()
	}

	return tw
}

// Write implements io.Writer with timeout protection
func (tw *TimeoutWriter) Write(p []byte) (n int, err error) {
	tw.mu.Lock()
	closed := tw.closed
	tw.mu.Unlock()
	if closed {
		return 0, ErrStreamCanceled
	}

	if tw.ctx.Err() != nil {
		return 0, tw.contextError()
	}

	if tw.config.MaxDuration > 0 && time.Since(tw.startTime) > tw.config.MaxDuration {
		return 0, ErrWriteTimeout
	}

	if tw.config.ChunkSize > 0 && len(p) > tw.config.ChunkSize {
		return tw.writeChunked(p)
	}

	n, err = tw.writeWithTimeout(p)
	if err == nil {
		_ = tw.rc.Flush()
	}
	return n, err
}

// writeChunked writes data in smaller chunks, flushing after each one
func (tw *TimeoutWriter) writeChunked(p []byte) (int, error) {
	totalWritten := 0

	for len(p) > 0 {
		if tw.ctx.Err() != nil {
			return totalWritten, tw.contextError()
		}

		chunkSize := min(tw.config.ChunkSize, len(p))

		n, err := tw.writeWithTimeout(p[:chunkSize])
		totalWritten += n
		if err != nil {
			return totalWritten, err
		}

		p = p[chunkSize:]
		_ = tw.rc.Flush()
	}

	return totalWritten, nil
}

// writeWithTimeout performs a single write under a write deadline
func (tw *TimeoutWriter) writeWithTimeout(p []byte) (int, error) {
	if tw.config.WriteTimeout > 0 {
		if err := tw.rc.SetWriteDeadline(time.Now().Add(tw.config.WriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return 0, fmt.Errorf("%w: %v", ErrClientGone, err)
		}
	}

	n, err := tw.w.Write(p)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			tw.cancel()
			return n, ErrWriteTimeout
		}
		if tw.ctx.Err() != nil {
			return n, tw.contextError()
		}
		return n, fmt.Errorf("%w: %v", ErrClientGone, err)
	}

	tw.mu.Lock()
	tw.lastWrite = time.Now()
	tw.bytesWritten += int64(n)
	bytesWritten := tw.bytesWritten
	tw.mu.Unlock()

	if tw.config.OnProgress != nil && bytesWritten%(1024*1024) < int64(len(p)) {
		tw.config.OnProgress(bytesWritten, time.Since(tw.startTime))
	}
	return n, nil
}

// idleChecker cancels the stream when nothing has been written for IdleTimeout
func (tw *TimeoutWriter) idleChecker() {
	defer tw.wg.Done()

	ticker := time.NewTicker(tw.config.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tw.mu.Lock()
			idle := time.Since(tw.lastWrite)
			closed := tw.closed
			fire := !closed && idle > tw.config.IdleTimeout
			if fire {
				tw.idleFired = true
			}
			tw.mu.Unlock()

			if closed {
				return
			}

			if fire {
				logging.Warn("Stream idle timeout exceeded: %v", idle.Round(time.Millisecond))
				tw.cancel()
				if tw.config.OnIdle != nil {
					tw.config.OnIdle()
				}
				return
			}

		case <-tw.ctx.Done():
			return
		}
	}
}

// contextError returns an appropriate error based on context state
func (tw *TimeoutWriter) contextError() error {
	if tw.parent.Err() != nil {
		return ErrClientGone
	}
	tw.mu.Lock()
	idle := tw.idleFired
	tw.mu.Unlock()
	if idle {
		return ErrWriteTimeout
	}
	return ErrStreamCanceled
}

// Close marks the writer as closed and stops the idle checker
func (tw *TimeoutWriter) Close() error {
	tw.mu.Lock()
	if tw.closed {
		tw.mu.Unlock()
		return nil
	}
	tw.closed = true
	tw.mu.Unlock()

	tw.cancel()
	tw.wg.Wait()
	_ = tw.rc.SetWriteDeadline(time.Time{})
	return nil
}

// Stats returns streaming statistics
func (tw *TimeoutWriter) Stats() (bytesWritten int64, duration time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten, time.Since(tw.startTime)
}

// StreamWithTimeout copies r to w through a TimeoutWriter and returns the
// number of bytes written. Headers must already be set by the caller.
func StreamWithTimeout(ctx context.Context, w http.ResponseWriter, r io.Reader, config TimeoutWriterConfig) (int64, error) {
	tw := NewTimeoutWriter(ctx, w, config)
	defer func() {
		if err := tw.Close(); err != nil {
			logging.Warn("Failed to close timeout writer: %v", err)
		}
	}()

	_, err := io.Copy(tw, r)

	bytesWritten, duration := tw.Stats()
	logging.Debug("Stream completed: %d bytes in %v", bytesWritten, duration.Round(time.Millisecond))

	return bytesWritten, err
}
