package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
)

var (
	// ErrEmptyImage is returned when an image payload carries no bytes.
	ErrEmptyImage = errors.New("empty image data")
	// ErrUnsupportedFormat is returned for payloads that are not JPEG, PNG or WebP.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrTooLarge is returned for raw dimensions above MaxRawPixels.
	ErrTooLarge = errors.New("image dimensions too large")
)

// Image represents an image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image. Required for FormatRaw, informational otherwise.
	Width int `json:"width" yaml:"width"`
	// The height of the image. Required for FormatRaw, informational otherwise.
	Height int `json:"height" yaml:"height"`
}

// Decode converts the payload into an image.Image.
//
// Encoded payloads are sniffed when Format is empty. Raw payloads must carry
// either 3 (RGB) or 4 (RGBA) bytes per pixel.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: ErrEmptyImage, ErrUnsupportedFormat or a decoder error.
func (i Image) Decode() (image.Image, error) {
	if len(i.Data) == 0 {
		return nil, ErrEmptyImage
	}

	format := i.Format
	if format == FormatUnknown {
		format = DetectFormat(i.Data)
	}

	switch format {
	case FormatRaw:
		return FromRaw(i.Data, i.Width, i.Height)
	case FormatJPEG:
		img, err := jpeg.Decode(bytes.NewReader(i.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode JPEG: %w", err)
		}
		return img, nil
	case FormatPNG:
		img, err := png.Decode(bytes.NewReader(i.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode PNG: %w", err)
		}
		return img, nil
	case FormatWebP:
		img, err := webp.Decode(bytes.NewReader(i.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode WebP: %w", err)
		}
		return img, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// DecodeConfig returns the dimensions of an encoded payload without decoding
// the pixel data.
func DecodeConfig(data []byte) (image.Config, ImageFormat, error) {
	format := DetectFormat(data)
	r := bytes.NewReader(data)

	var (
		cfg image.Config
		err error
	)
	switch format {
	case FormatJPEG:
		cfg, err = jpeg.DecodeConfig(r)
	case FormatPNG:
		cfg, err = png.DecodeConfig(r)
	case FormatWebP:
		cfg, err = webp.DecodeConfig(r)
	default:
		return image.Config{}, format, ErrUnsupportedFormat
	}
	if err != nil {
		return image.Config{}, format, fmt.Errorf("failed to read %s header: %w", format, err)
	}
	return cfg, format, nil
}

// MaxRawPixels bounds width*height for raw pixel buffers.
const MaxRawPixels = 1 << 28

// FromRaw wraps an unencoded pixel buffer.
//
// Arguments:
//   - pix: Row-major pixels, 3 (RGB) or 4 (RGBA) bytes each.
//   - width: The image width.
//   - height: The image height.
//
// Returns:
//   - image.Image: An *image.RGBA view of the pixels.
//   - error: ErrTooLarge, or an error if the buffer length does not match
//     the dimensions.
func FromRaw(pix []byte, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}
	if width > MaxRawPixels/height {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, width, height)
	}
	n := width * height

	switch len(pix) {
	case n * 4:
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		copy(img.Pix, pix)
		return img, nil
	case n * 3:
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		for i := 0; i < n; i++ {
			img.Set(i%width, i/width, color.RGBA{R: pix[i*3], G: pix[i*3+1], B: pix[i*3+2], A: 0xff})
		}
		return img, nil
	default:
		return nil, fmt.Errorf("raw buffer holds %d bytes, expected %d (RGB) or %d (RGBA) for %dx%d",
			len(pix), n*3, n*4, width, height)
	}
}

// ToRGBA returns a copy of img as RGBA pixels with its origin at (0, 0).
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Encode packs img into a payload of the given format.
//
// Arguments:
//   - img: The image to encode.
//   - format: FormatJPEG, FormatPNG, FormatWebP or FormatRaw.
//
// Returns:
//   - Image: The payload with its dimensions filled in.
//   - error: ErrUnsupportedFormat or an encoder error.
func Encode(img image.Image, format ImageFormat) (Image, error) {
	b := img.Bounds()
	out := Image{Format: format, Width: b.Dx(), Height: b.Dy()}

	var buf bytes.Buffer
	var err error
	switch format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	case FormatPNG:
		err = png.Encode(&buf, img)
	case FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Lossless: true})
	case FormatRaw:
		out.Data = ToRGBA(img).Pix
		return out, nil
	default:
		return Image{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return Image{}, fmt.Errorf("failed to encode %s: %w", format, err)
	}
	out.Data = buf.Bytes()
	return out, nil
}
