// Package resolver turns a caller-supplied URL into media metadata, serving
// repeat lookups from the metadata cache.
package resolver

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"media-grabber/internal/cache"
	"media-grabber/internal/fault"
	"media-grabber/internal/logging"
	"media-grabber/internal/media"
	"media-grabber/internal/metrics"
	"media-grabber/internal/source"
)

const (
	// DefaultTTL matches how long resolved stream URLs stay usable.
	DefaultTTL = time.Hour
	// DefaultTimeout bounds a single remote resolution.
	DefaultTimeout = 30 * time.Second
)

// Config tunes a Resolver. Zero values select the defaults.
type Config struct {
	TTL     time.Duration
	Timeout time.Duration
}

// Resolver resolves metadata through a source.Client and a cache.Store.
// Concurrent misses for the same id share one remote resolution.
type Resolver struct {
	source  source.Client
	cache   cache.Store
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
}

// New creates a Resolver.
func New(src source.Client, store cache.Store, cfg Config) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Resolver{
		source:  src,
		cache:   store,
		ttl:     cfg.TTL,
		timeout: cfg.Timeout,
	}
}

// ExtractID validates rawURL without touching the network.
func (r *Resolver) ExtractID(rawURL string) (media.SourceID, error) {
	id, err := r.source.ExtractID(rawURL)
	if err != nil {
		return "", fault.E(fault.InvalidSource, "resolve", err)
	}
	return id, nil
}

// Resolve returns metadata for rawURL. An unexpired cache entry is returned
// without contacting the remote host.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*media.Metadata, error) {
	id, err := r.ExtractID(rawURL)
	if err != nil {
		return nil, err
	}

	if meta, ok := r.cache.Get(ctx, id); ok {
		metrics.MetadataCacheHits.Inc()
		logging.Debug("Metadata cache hit for %s", id)
		return meta, nil
	}
	metrics.MetadataCacheMisses.Inc()

	// The shared resolution outlives any single caller so that one caller
	// going away does not fail the others waiting on it.
	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(string(id), func() (any, error) {
		return r.fetch(detached, id)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.ResolveShared.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*media.Metadata), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) fetch(ctx context.Context, id media.SourceID) (*media.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	meta, err := r.source.Resolve(ctx, id)
	metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ResolveTotal.WithLabelValues("error").Inc()
		logging.Warn("Resolution of %s failed after %v: %v", id, time.Since(start).Round(time.Millisecond), err)
		return nil, fault.E(fault.ResolutionFailed, "resolve", err).WithStatus(source.StatusCode(err))
	}
	metrics.ResolveTotal.WithLabelValues("success").Inc()

	if meta.ResolvedAt.IsZero() {
		meta.ResolvedAt = time.Now()
	}
	r.cache.Set(ctx, id, meta, r.ttl)
	logging.Debug("Resolved %s (%q, %d renditions) in %v", id, meta.Title, len(meta.Renditions), time.Since(start).Round(time.Millisecond))
	return meta, nil
}

// Invalidate drops the cached metadata for rawURL, e.g. after its stream
// URLs were rejected by the remote host.
func (r *Resolver) Invalidate(ctx context.Context, rawURL string) {
	id, err := r.source.ExtractID(rawURL)
	if err != nil {
		return
	}
	r.cache.Delete(ctx, id)
}
