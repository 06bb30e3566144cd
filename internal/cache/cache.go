// Package cache stores resolved media metadata keyed by source id, with a TTL.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"media-grabber/internal/logging"
	"media-grabber/internal/media"
)

// Store is a concurrency-safe metadata cache. Expired entries are never
// returned, whether or not the sweeper has removed them yet.
type Store interface {
	// Get returns the cached metadata for id, if present and unexpired.
	Get(ctx context.Context, id media.SourceID) (*media.Metadata, bool)
	// Set stores meta under id for ttl.
	Set(ctx context.Context, id media.SourceID, meta *media.Metadata, ttl time.Duration)
	// Delete removes id from the cache.
	Delete(ctx context.Context, id media.SourceID)
	// Stats returns cache statistics.
	Stats() Stats
	// Close releases background resources.
	Close() error
}

// Stats holds cache performance counters.
type Stats struct {
	Backend     string
	Hits        int64 // Number of successful Get operations
	Misses      int64 // Number of failed Get operations (not found or expired)
	Sets        int64 // Number of Set operations
	Evictions   int64 // Number of expired entries cleaned up
	CurrentSize int   // Current number of cached entries
}

// counters are shared by both backends.
type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

func (c *counters) snapshot(backend string, size int) Stats {
	return Stats{
		Backend:     backend,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Evictions:   c.evictions.Load(),
		CurrentSize: size,
	}
}

// entry represents a cached value with expiration time.
type entry struct {
	meta       *media.Metadata
	expiration time.Time
}

func (e *entry) isExpired(now time.Time) bool {
	return now.After(e.expiration)
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[media.SourceID]*entry
	stats   counters
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryStore creates an in-memory store. When sweepInterval is positive a
// background janitor removes expired entries at that period.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	c := &MemoryStore{
		entries: make(map[media.SourceID]*entry),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if sweepInterval > 0 {
		go c.janitor(sweepInterval)
	} else {
		close(c.done)
	}

	return c
}

// Get retrieves metadata from the cache.
func (c *MemoryStore) Get(_ context.Context, id media.SourceID) (*media.Metadata, bool) {
	c.mu.RLock()
	e, found := c.entries[id]
	c.mu.RUnlock()

	if !found || e.isExpired(c.now()) {
		c.stats.misses.Add(1)
		return nil, false
	}

	c.stats.hits.Add(1)
	return e.meta, true
}

// Set stores metadata in the cache.
func (c *MemoryStore) Set(_ context.Context, id media.SourceID, meta *media.Metadata, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = &entry{meta: meta, expiration: c.now().Add(ttl)}
	c.stats.sets.Add(1)
}

// Delete removes an entry.
func (c *MemoryStore) Delete(_ context.Context, id media.SourceID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Stats returns cache statistics.
func (c *MemoryStore) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()
	return c.stats.snapshot("memory", size)
}

// DeleteExpired removes all expired entries and returns how many were removed.
func (c *MemoryStore) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for id, e := range c.entries {
		if e.isExpired(now) {
			delete(c.entries, id)
			count++
		}
	}

	c.stats.evictions.Add(int64(count))
	return count
}

// Close stops the janitor and waits for it to exit.
func (c *MemoryStore) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
	return nil
}

func (c *MemoryStore) janitor(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.DeleteExpired(); n > 0 {
				logging.Debug("Metadata cache swept %d expired entries", n)
			}
		case <-c.stop:
			return
		}
	}
}
