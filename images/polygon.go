package images

import (
	"math"
	"sort"
)

// Point is a sub-pixel image coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PolygonArea returns the area enclosed by a simple polygon using the
// shoelace formula. Polygons with fewer than three vertices have zero area.
//
// Arguments:
//   - points: The polygon vertices in order (either winding).
//
// Returns:
//   - float64: The enclosed area in square pixels.
//
// @example
// PolygonArea([]Point{{0, 0}, {4, 0}, {4, 3}, {0, 3}}) // 12
func PolygonArea(points []Point) float64 {
	n := len(points)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += points[i].X*points[j].Y - points[j].X*points[i].Y
	}
	return math.Abs(sum) / 2
}

// MaskFromPolygon rasterizes a polygon into a width x height mask. A pixel is
// set when its centre lies inside the polygon (even-odd rule).
func MaskFromPolygon(points []Point, width, height int) *Mask {
	m := NewMask(width, height)
	n := len(points)
	if n < 3 {
		return m
	}

	xs := make([]float64, 0, n)
	for y := 0; y < height; y++ {
		cy := float64(y) + 0.5
		xs = xs[:0]
		for i := 0; i < n; i++ {
			a, b := points[i], points[(i+1)%n]
			if (a.Y <= cy && b.Y > cy) || (b.Y <= cy && a.Y > cy) {
				xs = append(xs, a.X+(cy-a.Y)*(b.X-a.X)/(b.Y-a.Y))
			}
		}
		sort.Float64s(xs)
		for k := 0; k+1 < len(xs); k += 2 {
			// Pixel centres x+0.5 within [xs[k], xs[k+1]).
			start := int(math.Ceil(xs[k] - 0.5))
			end := int(math.Ceil(xs[k+1] - 0.5))
			for x := max(start, 0); x < min(end, width); x++ {
				m.bits[y*width+x] = true
			}
		}
	}
	return m
}
