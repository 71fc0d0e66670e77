package images

import (
	"fmt"
	"image"
)

// Mask is a binary pixel-occupancy grid. Masks produced by a detector match
// the dimensions of the image they were computed from.
//
// A Mask is built once (via NewMask and Set, or one of the constructors) and
// treated as read-only afterwards; none of the query methods mutate it.
type Mask struct {
	width  int
	height int
	bits   []bool
}

// NewMask creates an empty mask of the given dimensions.
//
// Arguments:
//   - width: The mask width in pixels.
//   - height: The mask height in pixels.
//
// Returns:
//   - *Mask: A mask with every pixel unset.
func NewMask(width, height int) *Mask {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Mask{
		width:  width,
		height: height,
		bits:   make([]bool, width*height),
	}
}

// MaskFromBits wraps a row-major occupancy slice. The slice is copied.
//
// Arguments:
//   - width: The mask width in pixels.
//   - height: The mask height in pixels.
//   - bits: Row-major occupancy values, len(bits) must equal width*height.
//
// Returns:
//   - *Mask: The mask.
//   - error: An error if the slice length does not match the dimensions.
func MaskFromBits(width, height int, bits []bool) (*Mask, error) {
	if width < 0 || height < 0 || len(bits) != width*height {
		return nil, fmt.Errorf("mask bits length %d does not match %dx%d", len(bits), width, height)
	}
	m := NewMask(width, height)
	copy(m.bits, bits)
	return m, nil
}

// MaskFromProbabilities thresholds a row-major probability plane. Pixels with
// a probability strictly greater than threshold are set.
func MaskFromProbabilities(width, height int, prob []float32, threshold float32) (*Mask, error) {
	if width < 0 || height < 0 || len(prob) != width*height {
		return nil, fmt.Errorf("probability plane length %d does not match %dx%d", len(prob), width, height)
	}
	m := NewMask(width, height)
	for i, p := range prob {
		m.bits[i] = p > threshold
	}
	return m, nil
}

// Width returns the mask width.
func (m *Mask) Width() int {
	return m.width
}

// Height returns the mask height.
func (m *Mask) Height() int {
	return m.height
}

// Set marks or clears a single pixel. Out-of-range coordinates are ignored.
func (m *Mask) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return
	}
	m.bits[y*m.width+x] = v
}

// At reports whether a pixel is set. Out-of-range coordinates are unset.
func (m *Mask) At(x, y int) bool {
	if m == nil || x < 0 || y < 0 || x >= m.width || y >= m.height {
		return false
	}
	return m.bits[y*m.width+x]
}

// FillRect sets every pixel inside r (clamped to the mask).
func (m *Mask) FillRect(r Rect) {
	r = r.Clamp(m.width, m.height)
	for y := r.Y1; y < r.Y2; y++ {
		row := m.bits[y*m.width : (y+1)*m.width]
		for x := r.X1; x < r.X2; x++ {
			row[x] = true
		}
	}
}

// Area returns the number of set pixels. A nil mask has zero area.
func (m *Mask) Area() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// Bounds returns the tightest rectangle containing every set pixel, or the
// zero Rect for an empty mask.
func (m *Mask) Bounds() Rect {
	if m == nil {
		return Rect{}
	}
	minX, minY := m.width, m.height
	maxX, maxY := -1, -1
	for y := 0; y < m.height; y++ {
		row := m.bits[y*m.width : (y+1)*m.width]
		for x, b := range row {
			if !b {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}
	if maxX < 0 {
		return Rect{}
	}
	return Rect{X1: minX, Y1: minY, X2: maxX + 1, Y2: maxY + 1}
}

// Intersection counts pixels set in both masks. Masks of different sizes are
// compared over their common top-left region.
func (m *Mask) Intersection(o *Mask) int {
	if m == nil || o == nil {
		return 0
	}
	w := min(m.width, o.width)
	h := min(m.height, o.height)
	n := 0
	for y := 0; y < h; y++ {
		a := m.bits[y*m.width : y*m.width+w]
		b := o.bits[y*o.width : y*o.width+w]
		for x := range a {
			if a[x] && b[x] {
				n++
			}
		}
	}
	return n
}

// OverlapFraction returns the share of m's pixels that are also set in o:
// |m ∩ o| / |m|. An empty m yields 0.
func (m *Mask) OverlapFraction(o *Mask) float64 {
	area := m.Area()
	if area == 0 {
		return 0
	}
	return float64(m.Intersection(o)) / float64(area)
}

// Bytes returns the mask as a row-major 8-bit plane (0 or 255), suitable for
// building single-channel matrices.
func (m *Mask) Bytes() []byte {
	out := make([]byte, len(m.bits))
	for i, b := range m.bits {
		if b {
			out[i] = 0xff
		}
	}
	return out
}

// Gray renders the mask as an 8-bit grayscale image.
func (m *Mask) Gray() *image.Gray {
	return &image.Gray{
		Pix:    m.Bytes(),
		Stride: m.width,
		Rect:   image.Rect(0, 0, m.width, m.height),
	}
}
