package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"

	"media-grabber/internal/logging"
	"media-grabber/internal/media"
	"media-grabber/internal/netutil"
)

// allowedHosts lists the hostnames accepted as video URLs.
var allowedHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// YouTube resolves videos through github.com/kkdai/youtube.
type YouTube struct {
	client *youtube.Client
}

// NewYouTube returns a client that issues its requests through httpClient.
func NewYouTube(httpClient *http.Client) *YouTube {
	return &YouTube{client: &youtube.Client{HTTPClient: httpClient}}
}

// ExtractID implements Client.
func (y *YouTube) ExtractID(rawURL string) (media.SourceID, error) {
	u, err := netutil.ValidateURL(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !allowedHosts[strings.ToLower(u.Hostname())] {
		return "", fmt.Errorf("%w: unsupported host %q", ErrInvalidURL, u.Hostname())
	}

	id := videoID(u)
	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: no video id in %q", ErrInvalidURL, u.Path)
	}
	return media.SourceID(id), nil
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// videoID picks the id out of the URL forms that address a single video.
// Anything else, such as channel or feed pages, yields "".
func videoID(u *url.URL) string {
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	if strings.EqualFold(u.Hostname(), "youtu.be") {
		return segments[0]
	}

	switch segments[0] {
	case "watch":
		if len(segments) == 1 {
			return u.Query().Get("v")
		}
	case "shorts", "embed", "live", "v":
		if len(segments) == 2 {
			return segments[1]
		}
	}
	return ""
}

// Resolve implements Client. Renditions whose stream URL cannot be
// deciphered are skipped.
func (y *YouTube) Resolve(ctx context.Context, id media.SourceID) (*media.Metadata, error) {
	video, err := y.client.GetVideoContext(ctx, string(id))
	if err != nil {
		return nil, wrapStatus(err)
	}

	meta := &media.Metadata{
		ID:         id,
		Title:      video.Title,
		Author:     video.Author,
		Duration:   video.Duration,
		ResolvedAt: time.Now(),
	}

	for i := range video.Formats {
		f := &video.Formats[i]
		streamURL, err := y.client.GetStreamURLContext(ctx, video, f)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.Debug("Skipping itag %d of %s: %v", f.ItagNo, id, err)
			continue
		}
		meta.Renditions = append(meta.Renditions, media.Rendition{
			Itag:          f.ItagNo,
			QualityLabel:  f.QualityLabel,
			MimeType:      f.MimeType,
			Bitrate:       f.Bitrate,
			AudioChannels: f.AudioChannels,
			Width:         f.Width,
			Height:        f.Height,
			ContentLength: f.ContentLength,
			URL:           streamURL,
		})
	}

	if len(meta.Renditions) == 0 {
		return nil, fmt.Errorf("no playable renditions for %s", id)
	}
	return meta, nil
}

func wrapStatus(err error) error {
	var status youtube.ErrUnexpectedStatusCode
	if errors.As(err, &status) {
		return fmt.Errorf("%w: %w", &HTTPStatusError{Code: int(status)}, err)
	}
	return err
}
