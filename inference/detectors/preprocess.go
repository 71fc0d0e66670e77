package detectors

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

// PrepareInput fills a planar RGB tensor ([3, size, size], values in [0,1])
// from an image stretched to size x size.
//
// Arguments:
//   - img: The image to prepare.
//   - dst: The destination tensor data to populate.
//   - size: The square network input edge.
//
// Returns:
//   - error: An error if the destination is too small.
func PrepareInput(img image.Image, dst []float32, size int) error {
	channelSize := size * size
	if len(dst) < channelSize*3 {
		return fmt.Errorf("destination tensor only holds %d floats, needs %d", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	// Resize the image using Lanczos3 algorithm.
	img = resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
	b := img.Bounds()

	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(bl>>8) / 255.0
			i++
		}
	}
	return nil
}
