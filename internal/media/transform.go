package media

import (
	"errors"
	"fmt"
	"time"
)

// TransformKind selects the transform stage variant.
type TransformKind int

const (
	// PassThrough forwards the source bytes unchanged.
	PassThrough TransformKind = iota
	// AudioExtract re-encodes the audio track at a constant bitrate.
	AudioExtract
	// ClipResize renders a bounded window from the start as a resized animation.
	ClipResize
	// FrameCapture grabs a single still at an offset.
	FrameCapture
)

func (k TransformKind) String() string {
	switch k {
	case PassThrough:
		return "passthrough"
	case AudioExtract:
		return "audio"
	case ClipResize:
		return "clip"
	case FrameCapture:
		return "frame"
	}
	return fmt.Sprintf("transform(%d)", int(k))
}

// TransformSpec describes the conversion a request needs. Only the fields of
// the selected Kind are meaningful.
type TransformSpec struct {
	Kind TransformKind

	// AudioExtract
	AudioBitrate int // kbit/s

	// ClipResize
	Duration time.Duration
	Width    int
	Height   int
	FPS      int

	// FrameCapture; Width above optionally rescales the still.
	Offset time.Duration
}

// PassThroughSpec returns the identity transform.
func PassThroughSpec() TransformSpec {
	return TransformSpec{Kind: PassThrough}
}

// AudioSpec returns an audio extraction at bitrateKbps.
func AudioSpec(bitrateKbps int) TransformSpec {
	return TransformSpec{Kind: AudioExtract, AudioBitrate: bitrateKbps}
}

// ClipSpec returns a clip of duration d at w×h and fps frames per second.
func ClipSpec(d time.Duration, w, h, fps int) TransformSpec {
	return TransformSpec{Kind: ClipResize, Duration: d, Width: w, Height: h, FPS: fps}
}

// FrameSpec returns a single-frame capture at offset, rescaled to width when
// width is positive.
func FrameSpec(offset time.Duration, width int) TransformSpec {
	return TransformSpec{Kind: FrameCapture, Offset: offset, Width: width}
}

// Materializes reports whether the variant must be written to a file: GIF
// needs a finalized trailer and a still is a single file by nature.
func (s TransformSpec) Materializes() bool {
	return s.Kind == ClipResize || s.Kind == FrameCapture
}

// Validate checks the parameters of the selected variant.
func (s TransformSpec) Validate() error {
	switch s.Kind {
	case PassThrough:
		return nil
	case AudioExtract:
		if s.AudioBitrate <= 0 || s.AudioBitrate > 320 {
			return fmt.Errorf("audio bitrate %dk out of range (1-320)", s.AudioBitrate)
		}
	case ClipResize:
		if s.Duration <= 0 || s.Duration > 60*time.Second {
			return fmt.Errorf("clip duration %v out of range (0-60s]", s.Duration)
		}
		if s.Width <= 0 || s.Height <= 0 || s.Width > 1920 || s.Height > 1080 {
			return fmt.Errorf("clip size %dx%d out of range", s.Width, s.Height)
		}
		if s.FPS <= 0 || s.FPS > 60 {
			return fmt.Errorf("clip frame rate %d out of range (1-60)", s.FPS)
		}
	case FrameCapture:
		if s.Offset < 0 {
			return errors.New("frame offset must not be negative")
		}
		if s.Width < 0 || s.Width > 3840 {
			return fmt.Errorf("frame width %d out of range", s.Width)
		}
	default:
		return fmt.Errorf("unknown transform %v", s.Kind)
	}
	return nil
}

// Artifact is a temporary file produced for one request. The request that
// created it removes it once delivery finishes, whatever the outcome.
type Artifact struct {
	Path        string
	ContentType string
	Extension   string
}
