package filesystem

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

type recordingObserver struct {
	mu        sync.Mutex
	ops       []string
	stale     int
	attempts  int
	failures  int
	artifacts map[string]int
}

func newRecordingObserver(t *testing.T) *recordingObserver {
	t.Helper()
	o := &recordingObserver{artifacts: map[string]int{}}
	SetObserver(o)
	t.Cleanup(func() { SetObserver(nil) })
	return o
}

func (o *recordingObserver) ObserveOperation(op string, _ float64, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
}

func (o *recordingObserver) ObserveRetryAttempt(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
}

func (o *recordingObserver) ObserveRetryFailure(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures++
}

func (o *recordingObserver) ObserveStaleError(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stale++
}

func (o *recordingObserver) ObserveArtifact(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.artifacts[event]++
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "ESTALE error", err: syscall.ESTALE, want: true},
		{name: "wrapped ESTALE", err: &os.PathError{Op: "open", Path: "/x", Err: syscall.ESTALE}, want: true},
		{name: "ENOENT error", err: syscall.ENOENT, want: false},
		{name: "generic error", err: os.ErrNotExist, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithRetryRetriesStaleHandles(t *testing.T) {
	obs := newRecordingObserver(t)
	config := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	calls := 0
	err := withRetry("stat", "/tmp/x", config, func() error {
		calls++
		if calls < 3 {
			return syscall.ESTALE
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if obs.stale != 2 || obs.attempts != 2 {
		t.Errorf("Expected 2 stale errors and 2 attempts, got %d and %d", obs.stale, obs.attempts)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	obs := newRecordingObserver(t)
	config := RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	calls := 0
	err := withRetry("open", "/tmp/x", config, func() error {
		calls++
		return syscall.ESTALE
	})

	if err != syscall.ESTALE {
		t.Errorf("Expected ESTALE, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if obs.failures != 1 {
		t.Errorf("Expected 1 retry failure, got %d", obs.failures)
	}
}

func TestWithRetryNoRetryOnOtherErrors(t *testing.T) {
	calls := 0
	err := withRetry("stat", "/tmp/x", DefaultRetryConfig(), func() error {
		calls++
		return os.ErrPermission
	})
	if err != os.ErrPermission {
		t.Errorf("Expected ErrPermission, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestStatAndOpenWithRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("StatWithRetry failed: %v", err)
	}
	if info.Size() != 5 {
		t.Errorf("Expected size 5, got %d", info.Size())
	}

	f, err := OpenWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry failed: %v", err)
	}
	f.Close()

	if _, err := StatWithRetry(filepath.Join(dir, "missing"), DefaultRetryConfig()); !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestRemoveWithRetryMissingFile(t *testing.T) {
	if err := RemoveWithRetry(filepath.Join(t.TempDir(), "gone"), DefaultRetryConfig()); err != nil {
		t.Errorf("Expected removing a missing file to succeed, got %v", err)
	}
}
