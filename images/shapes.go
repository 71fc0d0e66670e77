// Package images - Image geometry, masks and decoding utilities.
package images

import "image"

// Rect is a lightweight bounding box.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 int
}

// Dx returns the width of the rectangle.
func (r Rect) Dx() int {
	return r.X2 - r.X1
}

// Dy returns the height of the rectangle.
func (r Rect) Dy() int {
	return r.Y2 - r.Y1
}

// Empty reports whether the rectangle contains no pixels.
func (r Rect) Empty() bool {
	return r.X1 >= r.X2 || r.Y1 >= r.Y2
}

// Area returns the number of pixels covered by the rectangle, or 0 when empty.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Dx() * r.Dy()
}

// Intersect returns the largest rectangle contained by both r and o. The
// result is the zero Rect when they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	i := Rect{
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
		X2: min(r.X2, o.X2),
		Y2: min(r.Y2, o.Y2),
	}
	if i.Empty() {
		return Rect{}
	}
	return i
}

// Clamp restricts the rectangle to [0,w)x[0,h).
func (r Rect) Clamp(w, h int) Rect {
	return r.Intersect(Rect{X1: 0, Y1: 0, X2: w, Y2: h})
}

// Rectangle converts the rect to an image.Rectangle.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU returns the Intersection over Union of two rectangles, a value
// between 0.0 (disjoint) and 1.0 (identical).
//
//	IoU = Area of Intersection / Area of Union
//
// The union uses inclusion-exclusion: Area(A) + Area(B) - Area(A ∩ B).
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	rect1 := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	rect2 := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iouScore := CalculateIoU(rect1, rect2) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := max(r.X1, o.X1)
	iy1 := max(r.Y1, o.Y1)
	ix2 := min(r.X2, o.X2)
	iy2 := min(r.Y2, o.Y2)

	// Non-overlapping rectangles yield a zero or negative width or height.
	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	areaR := (r.X2 - r.X1) * (r.Y2 - r.Y1)
	areaO := (o.X2 - o.X1) * (o.Y2 - o.Y1)
	unionArea := areaR + areaO - interArea

	return float32(interArea) / float32(unionArea)
}
