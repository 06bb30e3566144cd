package filesystem

// Observer records filesystem operation metrics. Implementations are provided
// by the metrics package to break the import cycle between filesystem and metrics.
type Observer interface {
	// ObserveOperation records duration and error status for a filesystem operation.
	// operation is the fs operation type: "stat", "open", "remove", "sweep".
	ObserveOperation(operation string, durationSeconds float64, err error)

	// ObserveRetryAttempt and friends record retry behaviour for stale handles
	// on network-mounted temp directories.
	ObserveRetryAttempt(retryOp string)
	ObserveRetryFailure(retryOp string)
	ObserveStaleError(retryOp string)

	// ObserveArtifact counts artifact lifecycle events: "created", "removed", "swept".
	ObserveArtifact(event string)
}

// defaultObserver is the package-level observer set at startup.
// If nil, metric recording is silently skipped (safe for tests).
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
// Call this once at startup after creating the observer implementation.
func SetObserver(o Observer) {
	defaultObserver = o
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, float64, error) {}
func (nopObserver) ObserveRetryAttempt(string)              {}
func (nopObserver) ObserveRetryFailure(string)              {}
func (nopObserver) ObserveStaleError(string)                {}
func (nopObserver) ObserveArtifact(string)                  {}

// observe is a nil-safe helper for the package-level observer.
func observe() Observer {
	if defaultObserver == nil {
		return nopObserver{}
	}
	return defaultObserver
}
