package media

import (
	"fmt"
	"image"
	"os"

	// Still decoders
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"

	"media-grabber/internal/logging"
)

// MaxStillPixels is the largest frame FitStill will decode. A 4K frame is
// ~8.3MP; anything far larger is not a video frame.
const MaxStillPixels = 40_000_000

// ImageDimensions holds image width and height
type ImageDimensions struct {
	Width  int
	Height int
}

// GetImageDimensions returns image dimensions without fully decoding the image
func GetImageDimensions(path string) (*ImageDimensions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}

	return &ImageDimensions{
		Width:  config.Width,
		Height: config.Height,
	}, nil
}

// FitStill checks that the still at path decodes and, when width is positive
// and smaller than the still, rescales it in place to that width keeping the
// aspect ratio. Stills are never enlarged.
func FitStill(path string, width int) error {
	dims, err := GetImageDimensions(path)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	if dims.Width*dims.Height > MaxStillPixels {
		return fmt.Errorf("frame of %dx%d exceeds %d pixels", dims.Width, dims.Height, MaxStillPixels)
	}

	if width <= 0 || width >= dims.Width {
		return nil
	}

	img, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	resized := imaging.Resize(img, width, 0, imaging.Lanczos)
	logging.Debug("Resized frame %s from %dx%d to %dx%d", path, dims.Width, dims.Height,
		resized.Bounds().Dx(), resized.Bounds().Dy())

	if err := imaging.Save(resized, path); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return nil
}
