package memory

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"media-grabber/internal/logging"
	"media-grabber/internal/metrics"
)

// ErrStopped is returned by WaitIfPaused when the monitor is stopped while
// the caller waits.
var ErrStopped = errors.New("memory monitor stopped")

// Config holds memory management configuration
type Config struct {
	// MemoryLimitBytes is the soft memory limit (0 = use GOMEMLIMIT or no limit)
	MemoryLimitBytes int64

	// HighWaterMark is the fraction of limit below which held transforms resume (0.0-1.0)
	HighWaterMark float64

	// CriticalWaterMark is the fraction at which new transforms are held back (0.0-1.0)
	CriticalWaterMark float64

	// CheckInterval is how often heap usage is sampled
	CheckInterval time.Duration
}

// DefaultConfig returns the water marks used in production.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor samples the heap and gates new transforms while usage is critical.
// Transforms already running are never interrupted; only the start of new
// ffmpeg processes waits.
type Monitor struct {
	config    Config
	limit     int64
	readAlloc func() uint64

	mu     sync.RWMutex
	alloc  uint64
	held   bool
	resume chan struct{} // closed when a hold is lifted

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor. Without an explicit limit it falls back to
// GOMEMLIMIT; with neither, the gate never closes.
func NewMonitor(config Config) *Monitor {
	limit := config.MemoryLimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
			logging.Info("Memory monitor using GOMEMLIMIT: %s", FormatBytes(limit))
		}
	}
	if limit == 0 {
		logging.Info("Memory monitor: no memory limit configured, backpressure disabled")
	}

	return &Monitor{
		config:    config,
		limit:     limit,
		readAlloc: heapAlloc,
		resume:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Start samples the heap every CheckInterval until Stop. It does nothing when
// no limit is known.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.checkMemory()
			case <-m.done:
				return
			}
		}
	}()
}

// Stop ends sampling and releases any waiters. It is safe to call twice.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}

// checkMemory takes one sample and moves the gate. Between the two water
// marks the gate keeps its state so it does not flap.
func (m *Monitor) checkMemory() {
	alloc := m.readAlloc()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.alloc = alloc
	if m.limit <= 0 {
		return
	}

	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case !m.held && usage >= m.config.CriticalWaterMark:
		logging.Warn("Memory critical (%.1f%% of limit, %s), holding back new transforms", usage*100, FormatBytes(int64(alloc)))
		m.held = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()

	case m.held && usage < m.config.HighWaterMark:
		logging.Info("Memory recovered (%.1f%% of limit), resuming transforms", usage*100)
		m.held = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// WaitIfPaused blocks while memory usage is critical. It returns nil once it
// is safe to proceed, ctx.Err() if ctx ends first, or ErrStopped. A nil
// Monitor never blocks.
func (m *Monitor) WaitIfPaused(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.RLock()
	held, resume := m.held, m.resume
	m.mu.RUnlock()

	if !held {
		return nil
	}

	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
}

// IsPaused reports whether new transforms are being held back.
func (m *Monitor) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.held
}

// GetStats returns the last heap sample, the limit and their ratio.
func (m *Monitor) GetStats() (current, limit int64, usage float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	current = int64(min(m.alloc, uint64(1<<63-1)))
	if m.limit > 0 {
		usage = float64(m.alloc) / float64(m.limit)
	}
	return current, m.limit, usage
}
