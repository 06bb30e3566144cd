package workers

import (
	"runtime"
)

const (
	// DefaultTranscodeLimit caps the automatic transcode slot count on large hosts.
	DefaultTranscodeLimit = 16

	// DefaultConnLimit caps the automatic idle connection pool per remote host.
	DefaultConnLimit = 32
)

// Count scales the CPUs available to the process by multiplier, with a floor
// of one and an optional ceiling (limit 0 means none). GOMAXPROCS is used
// rather than NumCPU so container CPU quotas are respected.
func Count(multiplier float64, limit int) int {
	n := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	n = max(n, 1)
	if limit > 0 {
		n = min(n, limit)
	}
	return n
}

// ForIO sizes work that mostly waits on the network (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed sizes work that both computes and waits (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// TranscodeSlots returns how many ffmpeg processes may run at once. A positive
// MAX_TRANSCODES is used as is. Otherwise ffmpeg counts as mixed work, since
// most of its time goes to reading the remote stream.
func TranscodeSlots(configured int) int {
	if configured > 0 {
		return configured
	}
	return ForMixed(DefaultTranscodeLimit)
}

// ConnsPerHost sizes the idle connection pool kept for one media host.
// Concurrent downloads of one source all hit the same CDN host.
func ConnsPerHost() int {
	return ForIO(DefaultConnLimit)
}
