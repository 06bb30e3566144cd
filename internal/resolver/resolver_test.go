package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-grabber/internal/cache"
	"media-grabber/internal/fault"
	"media-grabber/internal/media"
	"media-grabber/internal/source"
)

// fakeSource accepts "https://videos.test/<id>" URLs.
type fakeSource struct {
	calls   atomic.Int32
	err     error
	delay   time.Duration
	release chan struct{}
}

func (f *fakeSource) ExtractID(rawURL string) (media.SourceID, error) {
	id, ok := strings.CutPrefix(rawURL, "https://videos.test/")
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %q", source.ErrInvalidURL, rawURL)
	}
	return media.SourceID(id), nil
}

func (f *fakeSource) Resolve(ctx context.Context, id media.SourceID) (*media.Metadata, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &media.Metadata{ID: id, Title: "Video " + string(id)}, nil
}

func newTestResolver(t *testing.T, src *fakeSource, cfg Config) *Resolver {
	t.Helper()
	store := cache.NewMemoryStore(0)
	t.Cleanup(func() { store.Close() })
	return New(src, store, cfg)
}

func TestResolve_CacheHitSkipsRemote(t *testing.T) {
	src := &fakeSource{}
	r := newTestResolver(t, src, Config{})
	ctx := context.Background()

	first, err := r.Resolve(ctx, "https://videos.test/abc")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "https://videos.test/abc")
	require.NoError(t, err)

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Same(t, first, second)
	assert.False(t, first.ResolvedAt.IsZero())
}

func TestResolve_ExpiredEntryRefetched(t *testing.T) {
	src := &fakeSource{}
	r := newTestResolver(t, src, Config{TTL: time.Millisecond})
	ctx := context.Background()

	_, err := r.Resolve(ctx, "https://videos.test/abc")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = r.Resolve(ctx, "https://videos.test/abc")
	require.NoError(t, err)

	assert.Equal(t, int32(2), src.calls.Load())
}

func TestResolve_InvalidURLNeverReachesRemote(t *testing.T) {
	src := &fakeSource{}
	r := newTestResolver(t, src, Config{})

	_, err := r.Resolve(context.Background(), "not-a-url")
	require.Error(t, err)

	assert.True(t, fault.Is(err, fault.InvalidSource))
	assert.ErrorIs(t, err, source.ErrInvalidURL)
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestResolve_RemoteFailure(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("player: %w", &source.HTTPStatusError{Code: http.StatusTooManyRequests})}
	r := newTestResolver(t, src, Config{})

	_, err := r.Resolve(context.Background(), "https://videos.test/abc")
	require.Error(t, err)

	fe, ok := fault.As(err)
	require.True(t, ok)
	assert.Equal(t, fault.ResolutionFailed, fe.Kind)
	assert.Equal(t, http.StatusTooManyRequests, fe.Status)
	assert.Equal(t, http.StatusTooManyRequests, fault.HTTPStatus(err))

	// Failures are not cached.
	_, _ = r.Resolve(context.Background(), "https://videos.test/abc")
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestResolve_Timeout(t *testing.T) {
	src := &fakeSource{delay: time.Second}
	r := newTestResolver(t, src, Config{Timeout: 10 * time.Millisecond})

	_, err := r.Resolve(context.Background(), "https://videos.test/abc")
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.ResolutionFailed))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolve_ConcurrentMissesShareOneResolution(t *testing.T) {
	src := &fakeSource{release: make(chan struct{})}
	r := newTestResolver(t, src, Config{})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*media.Metadata, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), "https://videos.test/shared")
		}(i)
	}

	// Let the callers pile up behind the first resolution.
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "Video shared", results[i].Title)
	}
	assert.LessOrEqual(t, src.calls.Load(), int32(2))
}

func TestResolve_CallerCancellation(t *testing.T) {
	src := &fakeSource{release: make(chan struct{})}
	r := newTestResolver(t, src, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, "https://videos.test/slow")
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Resolve did not return after cancellation")
	}

	// The detached resolution still completes and populates the cache.
	close(src.release)
	assert.Eventually(t, func() bool {
		_, ok := r.cache.Get(context.Background(), "slow")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestInvalidate(t *testing.T) {
	src := &fakeSource{}
	r := newTestResolver(t, src, Config{})
	ctx := context.Background()

	_, err := r.Resolve(ctx, "https://videos.test/abc")
	require.NoError(t, err)
	r.Invalidate(ctx, "https://videos.test/abc")
	r.Invalidate(ctx, "garbage")
	_, err = r.Resolve(ctx, "https://videos.test/abc")
	require.NoError(t, err)

	assert.Equal(t, int32(2), src.calls.Load())
}
