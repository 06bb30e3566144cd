// Package source resolves remote video URLs into media metadata.
package source

import (
	"context"
	"errors"
	"fmt"

	"media-grabber/internal/media"
)

// ErrInvalidURL is returned by ExtractID when the input does not identify a
// supported remote video.
var ErrInvalidURL = errors.New("invalid source url")

// Client talks to a remote video host.
type Client interface {
	// ExtractID validates rawURL and returns the canonical source id. It
	// performs no network I/O.
	ExtractID(rawURL string) (media.SourceID, error)
	// Resolve fetches metadata and playable renditions for id.
	Resolve(ctx context.Context, id media.SourceID) (*media.Metadata, error)
}

// HTTPStatusError reports an unexpected status from the remote host.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("remote host returned status %d", e.Code)
}

// StatusCode extracts the remote HTTP status from err, 0 when there is none.
func StatusCode(err error) int {
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
