/*
Package filesystem owns the temporary artifact directory and wraps the few
filesystem calls media-grabber makes with retry logic for stale NFS handles.

# Temp store

Transforms that cannot stream (GIF clips, still frames) write to a file first.
TempStore hands out "<uuid><ext>" paths inside TEMP_DIR, refuses to touch
anything outside it, and sweeps orphans left behind by a crash:

	store, err := filesystem.NewTempStore("/tmp/media-grabber")
	path := store.NewPath(".gif")
	defer store.Remove(path)

# Retry Behavior

Stat, Open and Remove retry on ESTALE (errno 116) with exponential backoff:
  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

All other errors fail immediately. Metrics are reported through the Observer
installed with SetObserver; without one, nothing is recorded.
*/
package filesystem
