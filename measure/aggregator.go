package measure

import (
	"fmt"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/inference"
)

// LeafMeasurement is the calibrated area of one detected leaf.
type LeafMeasurement struct {
	// Area is the physical area in the square of the reference unit.
	Area float64
	// PixelArea is the leaf mask area in pixels.
	PixelArea int
	// Confidence is the detector confidence for the leaf.
	Confidence float64
	// ShapeFactor is area / (height * width) of the leaf's bounding box,
	// within (0, 1]. A rectangle scores 1 and an ellipse about 0.785.
	ShapeFactor float64
	// PolygonArea is the physical area enclosed by the reported outline, or
	// zero when the detector gave no polygon. It is a diagnostic only.
	PolygonArea float64
	// Leaf is the detected instance the measurement was taken from.
	Leaf inference.Instance
}

// Aggregation is the outcome of measuring every detected leaf.
type Aggregation struct {
	Status       Status
	Measurements []LeafMeasurement
	Warnings     []string
}

// AggregateLeaves measures each leaf instance independently.
//
// A leaf is excluded, with a warning naming it by its 1-based detection
// position, when its confidence is below the leaf threshold, when its mask is
// empty, or when more than the configured fraction of its pixels lies on the
// reference coin. Excluded leaves never reach the measurements.
//
// Arguments:
//   - leaves: The instances labelled as leaf, in detection order.
//   - cal: The scan calibration.
//   - cfg: The measurement configuration.
//
// Returns:
//   - Aggregation: StatusOK with one measurement per accepted leaf, or
//     StatusNoLeafDetected when no leaf was accepted.
func AggregateLeaves(leaves []inference.Instance, cal ScaleCalibration, cfg Config) Aggregation {
	agg := Aggregation{Measurements: make([]LeafMeasurement, 0, len(leaves))}

	for i, leaf := range leaves {
		n := i + 1
		if leaf.Confidence < cfg.LeafConfidenceThreshold {
			agg.Warnings = append(agg.Warnings, fmt.Sprintf("leaf %d excluded: confidence %.2f below %.2f",
				n, leaf.Confidence, cfg.LeafConfidenceThreshold))
			continue
		}

		pixels := leaf.PixelArea()
		if pixels == 0 {
			agg.Warnings = append(agg.Warnings, fmt.Sprintf("leaf %d excluded: empty mask", n))
			continue
		}

		if overlap := leaf.Mask.OverlapFraction(cal.Reference.Mask); overlap > cfg.OverlapConflictFraction {
			agg.Warnings = append(agg.Warnings, fmt.Sprintf("leaf %d excluded: %.0f%% of its pixels overlap the reference (limit %.0f%%)",
				n, overlap*100, cfg.OverlapConflictFraction*100))
			continue
		}

		area := cal.Area(pixels)
		agg.Measurements = append(agg.Measurements, LeafMeasurement{
			Area:        area,
			PixelArea:   pixels,
			Confidence:  leaf.Confidence,
			ShapeFactor: shapeFactor(leaf, area, cal),
			PolygonArea: polygonArea(leaf, cal),
			Leaf:        leaf,
		})
	}

	if len(agg.Measurements) == 0 {
		agg.Status = StatusNoLeafDetected
		agg.Measurements = nil
		if len(leaves) == 0 {
			agg.Warnings = append(agg.Warnings, "no leaf detected")
		}
		return agg
	}
	agg.Status = StatusOK
	return agg
}

// shapeFactor relates the leaf area to its tight bounding box in physical
// units.
func shapeFactor(leaf inference.Instance, area float64, cal ScaleCalibration) float64 {
	box := leaf.Mask.Bounds()
	height := cal.Length(float64(box.Dy()))
	width := cal.Length(float64(box.Dx()))
	if height <= 0 || width <= 0 {
		return 0
	}
	c := area / (height * width)
	return min(c, 1)
}

func polygonArea(leaf inference.Instance, cal ScaleCalibration) float64 {
	px := images.PolygonArea(leaf.Polygon)
	if px == 0 {
		return 0
	}
	return cal.Length(cal.Length(px))
}
