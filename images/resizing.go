package images

import (
	"fmt"

	"github.com/cshum/vipsgen/vips"
)

// Shrink downsizes an encoded photo so that neither edge exceeds maxEdge,
// returning a JPEG. Images that already fit are returned untouched.
//
// Calibration is derived from the same frame as the leaves, so a uniform
// downscale leaves the physical areas unchanged; it only bounds the memory
// needed for full-resolution masks.
//
// Arguments:
//   - data: The encoded image (JPEG, PNG or WebP).
//   - maxEdge: The largest allowed width or height. Zero disables shrinking.
//
// Returns:
//   - []byte: The (possibly re-encoded) image.
//   - bool: True when the image was resized.
//   - error: An error if the image fails to load or resize.
func Shrink(data []byte, maxEdge int) ([]byte, bool, error) {
	if len(data) == 0 {
		return nil, false, ErrEmptyImage
	}
	if maxEdge <= 0 {
		return data, false, nil
	}

	cfg, _, err := DecodeConfig(data)
	if err != nil {
		return nil, false, err
	}
	if cfg.Width <= maxEdge && cfg.Height <= maxEdge {
		return data, false, nil
	}

	img, err := vips.NewImageFromBuffer(data, &vips.LoadOptions{
		Access: vips.AccessSequential,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to load image: %w", err)
	}
	defer img.Close()

	// Thumbnailing fits the image inside a maxEdge box, keeping aspect ratio.
	err = img.ThumbnailImage(maxEdge, &vips.ThumbnailImageOptions{
		Height: maxEdge,
		FailOn: vips.FailOnError,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to resize image: %w", err)
	}

	resized, err := encoded(img.JpegsaveBuffer(&vips.JpegsaveBufferOptions{}))
	if err != nil {
		return nil, false, err
	}
	return resized, true, nil
}

// encoded checks the output of a libvips save call.
func encoded(data []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to encode resized image: empty output")
	}
	return data, nil
}
