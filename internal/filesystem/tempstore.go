package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"media-grabber/internal/logging"
)

// ErrOutsideStore is returned when asked to remove a path the store does not own.
var ErrOutsideStore = errors.New("path is outside the temp store")

// TempStore hands out collision-free artifact paths inside one directory and
// removes them again. Paths are never reused.
type TempStore struct {
	dir   string
	retry RetryConfig
}

// NewTempStore creates dir if needed and returns a store rooted there.
func NewTempStore(dir string) (*TempStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve temp dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &TempStore{dir: abs, retry: DefaultRetryConfig()}, nil
}

// Dir returns the absolute store directory.
func (s *TempStore) Dir() string {
	return s.dir
}

// NewPath returns a fresh "<uuid><ext>" path inside the store. The file is not
// created; ext carries its leading dot.
func (s *TempStore) NewPath(ext string) string {
	observe().ObserveArtifact("created")
	return filepath.Join(s.dir, uuid.NewString()+ext)
}

// Owns reports whether path lies directly inside the store directory.
func (s *TempStore) Owns(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return filepath.Dir(abs) == s.dir && !strings.HasPrefix(filepath.Base(abs), ".")
}

// Remove deletes an artifact. Removing a path that no longer exists succeeds.
func (s *TempStore) Remove(path string) error {
	if !s.Owns(path) {
		return fmt.Errorf("%w: %s", ErrOutsideStore, path)
	}
	if err := RemoveWithRetry(path, s.retry); err != nil {
		return err
	}
	observe().ObserveArtifact("removed")
	logging.Debug("Removed artifact %s", filepath.Base(path))
	return nil
}

// Open opens an artifact for reading.
func (s *TempStore) Open(path string) (*os.File, error) {
	if !s.Owns(path) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideStore, path)
	}
	return OpenWithRetry(path, s.retry)
}

// Stat returns file info for an artifact.
func (s *TempStore) Stat(path string) (os.FileInfo, error) {
	return StatWithRetry(path, s.retry)
}

// Sweep removes regular files last modified more than olderThan ago. It is
// run at startup to clear artifacts orphaned by a crash.
func (s *TempStore) Sweep(olderThan time.Duration) (int, error) {
	start := time.Now()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		observe().ObserveOperation("sweep", time.Since(start).Seconds(), err)
		return 0, fmt.Errorf("read temp dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := RemoveWithRetry(path, s.retry); err != nil {
			logging.Warn("Failed to sweep %s: %v", path, err)
			continue
		}
		observe().ObserveArtifact("swept")
		removed++
	}

	observe().ObserveOperation("sweep", time.Since(start).Seconds(), nil)
	if removed > 0 {
		logging.Info("Swept %d orphaned artifacts from %s", removed, s.dir)
	}
	return removed, nil
}

// Usage reports the number of files and total bytes in the store.
func (s *TempStore) Usage() (files int, bytes int64, err error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, 0, err
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files++
		bytes += info.Size()
	}
	return files, bytes, nil
}
