package images

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestImage() image.Image {
	// Create a simple 100x80 red image.
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}
	return img
}

func encode(t *testing.T, format ImageFormat) []byte {
	t.Helper()
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, getTestImage(), nil)
	case FormatPNG:
		err = png.Encode(&buf, getTestImage())
	case FormatWebP:
		err = webp.Encode(&buf, getTestImage(), &webp.Options{Lossless: true})
	}
	require.NoError(t, err)
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	for _, format := range []ImageFormat{FormatJPEG, FormatPNG, FormatWebP} {
		t.Run(string(format), func(t *testing.T) {
			data := encode(t, format)
			assert.Equal(t, format, DetectFormat(data))

			img, err := Image{Data: data}.Decode()
			require.NoError(t, err)
			assert.Equal(t, 100, img.Bounds().Dx())
			assert.Equal(t, 80, img.Bounds().Dy())

			cfg, got, err := DecodeConfig(data)
			require.NoError(t, err)
			assert.Equal(t, format, got)
			assert.Equal(t, 100, cfg.Width)
			assert.Equal(t, 80, cfg.Height)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Image{}.Decode()
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = Image{Data: []byte("GIF89a....")}.Decode()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, _, err = DecodeConfig([]byte("not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Image{Format: FormatJPEG, Data: []byte{0xff, 0xd8, 0xff, 0x00}}.Decode()
	assert.Error(t, err)
}

func TestFromRaw(t *testing.T) {
	t.Run("rgba", func(t *testing.T) {
		pix := make([]byte, 4*3*2)
		pix[4] = 200
		img, err := FromRaw(pix, 3, 2)
		require.NoError(t, err)
		r, _, _, _ := img.At(1, 0).RGBA()
		assert.Equal(t, uint32(200)<<8|200, r)
	})

	t.Run("rgb", func(t *testing.T) {
		pix := make([]byte, 3*3*2)
		pix[3*4+2] = 90 // blue at (1,1)
		img, err := Image{Format: FormatRaw, Data: pix, Width: 3, Height: 2}.Decode()
		require.NoError(t, err)
		_, _, b, a := img.At(1, 1).RGBA()
		assert.Equal(t, uint32(90)<<8|90, b)
		assert.Equal(t, uint32(0xffff), a)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := FromRaw(make([]byte, 10), 3, 2)
		assert.Error(t, err)
	})

	t.Run("bad dimensions", func(t *testing.T) {
		_, err := FromRaw(nil, 0, 2)
		assert.Error(t, err)
	})

	t.Run("too large", func(t *testing.T) {
		// width*height*4 wraps to 4, so the length check alone would pass.
		_, err := FromRaw([]byte{1, 2, 3, 4}, 4611686018427387905, 1)
		assert.ErrorIs(t, err, ErrTooLarge)

		_, err = FromRaw(make([]byte, 4), MaxRawPixels+1, 1)
		assert.ErrorIs(t, err, ErrTooLarge)
	})
}

func TestToRGBA(t *testing.T) {
	src := image.NewNRGBA(image.Rect(10, 20, 14, 23))
	src.Set(10, 20, color.NRGBA{R: 1, G: 2, B: 3, A: 255})

	dst := ToRGBA(src)
	assert.Equal(t, image.Rect(0, 0, 4, 3), dst.Bounds())
	assert.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 255}, dst.RGBAAt(0, 0))

	// The result is a copy.
	dst.SetRGBA(0, 0, color.RGBA{})
	assert.Equal(t, color.NRGBA{R: 1, G: 2, B: 3, A: 255}, src.NRGBAAt(10, 20))
}

func TestEncode(t *testing.T) {
	src := getTestImage()
	for _, format := range []ImageFormat{FormatJPEG, FormatPNG, FormatWebP, FormatRaw} {
		t.Run(string(format), func(t *testing.T) {
			payload, err := Encode(src, format)
			require.NoError(t, err)
			assert.Equal(t, 100, payload.Width)
			assert.Equal(t, 80, payload.Height)

			img, err := payload.Decode()
			require.NoError(t, err)
			assert.Equal(t, src.Bounds(), img.Bounds())
		})
	}

	_, err := Encode(src, ImageFormat("tiff"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
