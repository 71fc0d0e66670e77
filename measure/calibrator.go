package measure

import (
	"math"

	"github.com/nvr-ai/leafscan/inference"
)

// ScaleCalibration converts pixels to physical units for one scan.
type ScaleCalibration struct {
	// PixelsPerUnit is the linear factor: pixels per physical length unit.
	PixelsPerUnit float64
	// Reference is the coin the factor was derived from.
	Reference inference.Instance
	// ReferenceDiameter is the configured physical coin diameter.
	ReferenceDiameter float64
	// PixelDiameter is the coin diameter in pixels, derived from its area.
	PixelDiameter float64
	// ReferencePixelArea is the coin mask area in pixels.
	ReferencePixelArea int
}

// Calibrate derives the pixels-per-unit factor from the reference mask.
//
// The coin is treated as a disc and its diameter is recovered from the mask
// area, 2*sqrt(area/pi), which tolerates ragged mask edges and partial
// occlusion better than the bounding box extents.
//
// Arguments:
//   - reference: The resolved reference instance.
//   - diameter: The physical diameter of the reference coin.
//
// Returns:
//   - ScaleCalibration: The calibration, valid only when the status is StatusOK.
//   - Status: StatusOK, or StatusInvalidReferenceGeometry for an empty mask,
//     a non-positive diameter or a non-finite factor.
//
// @example
// cal, status := Calibrate(coin, 2.5) // 2000 px coin: PixelsPerUnit ~ 20.19
func Calibrate(reference inference.Instance, diameter float64) (ScaleCalibration, Status) {
	area := reference.PixelArea()
	if area <= 0 || !(diameter > 0) || math.IsInf(diameter, 0) {
		return ScaleCalibration{}, StatusInvalidReferenceGeometry
	}

	pixelDiameter := 2 * math.Sqrt(float64(area)/math.Pi)
	ppu := pixelDiameter / diameter
	if math.IsNaN(ppu) || math.IsInf(ppu, 0) || ppu <= 0 {
		return ScaleCalibration{}, StatusInvalidReferenceGeometry
	}

	return ScaleCalibration{
		PixelsPerUnit:      ppu,
		Reference:          reference,
		ReferenceDiameter:  diameter,
		PixelDiameter:      pixelDiameter,
		ReferencePixelArea: area,
	}, StatusOK
}

// PhysicalArea converts a pixel area to physical units:
// pixelArea * (1/pixelsPerUnit)^2. Area scales with the square of the
// linear factor.
func PhysicalArea(pixelArea int, pixelsPerUnit float64) float64 {
	unitsPerPixel := 1 / pixelsPerUnit
	return float64(pixelArea) * unitsPerPixel * unitsPerPixel
}

// Area converts a pixel area with this calibration.
func (c ScaleCalibration) Area(pixelArea int) float64 {
	return PhysicalArea(pixelArea, c.PixelsPerUnit)
}

// Length converts a pixel length with this calibration.
func (c ScaleCalibration) Length(pixels float64) float64 {
	return pixels / c.PixelsPerUnit
}
