package metrics

import (
	"sync"
	"time"

	"media-grabber/internal/logging"
)

// StatsProvider supplies the gauges that are sampled rather than updated
// inline.
type StatsProvider interface {
	GetStats() Stats
}

// Stats is one sample of the service's resource usage.
type Stats struct {
	TempFiles      int
	TempBytes      int64
	CacheBackend   string
	CacheEntries   int
	TranscodeSlots int
	HeapBytes      int64
}

// Collector samples a StatsProvider on a fixed interval.
type Collector struct {
	provider StatsProvider
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		provider: provider,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start samples once right away, then every interval until Stop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.collect()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.done:
				return
			}
		}
	}()
}

// Stop ends sampling and waits for the loop to exit. It is safe to call twice.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Collector) collect() {
	if c.provider == nil {
		return
	}

	s := c.provider.GetStats()

	TempDirFiles.Set(float64(s.TempFiles))
	TempDirBytes.Set(float64(s.TempBytes))
	TranscoderSlots.Set(float64(s.TranscodeSlots))
	MemoryHeapBytes.Set(float64(s.HeapBytes))
	if s.CacheBackend != "" {
		MetadataCacheEntries.WithLabelValues(s.CacheBackend).Set(float64(s.CacheEntries))
	}

	logging.Debug("Metrics collected: temp=%d files/%d bytes, cache=%d (%s), heap=%d bytes",
		s.TempFiles, s.TempBytes, s.CacheEntries, s.CacheBackend, s.HeapBytes)
}
