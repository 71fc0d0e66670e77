package images

import "bytes"

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatUnknown is returned when the payload matches no supported signature.
	FormatUnknown ImageFormat = ""
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatRaw is an unencoded RGB or RGBA pixel buffer.
	FormatRaw ImageFormat = "raw"
)

var (
	jpegMagic = []byte{0xff, 0xd8, 0xff}
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
)

// DetectFormat sniffs the encoded format from the leading bytes.
func DetectFormat(data []byte) ImageFormat {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return FormatJPEG
	case bytes.HasPrefix(data, pngMagic):
		return FormatPNG
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWebP
	default:
		return FormatUnknown
	}
}
