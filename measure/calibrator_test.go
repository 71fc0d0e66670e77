package measure

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/inference"
	"github.com/nvr-ai/leafscan/test"
)

func areaInstance(label inference.Label, confidence float64, area int) inference.Instance {
	mask := test.AreaMask(400, 300, images.Rect{X1: 0, Y1: 0, X2: 400, Y2: 300}, area)
	return test.MaskInstance(label, string(label), confidence, mask)
}

func TestCalibrateCoinScenario(t *testing.T) {
	ref := areaInstance(inference.LabelReference, 0.9, 2000)

	cal, status := Calibrate(ref, 2.5)
	require.Equal(t, StatusOK, status)
	assert.InDelta(t, 50.46, cal.PixelDiameter, 0.01)
	assert.InDelta(t, 20.19, cal.PixelsPerUnit, 0.01)
	assert.Equal(t, 2000, cal.ReferencePixelArea)
	assert.Equal(t, 2.5, cal.ReferenceDiameter)

	// Exact area: 50000 * pi * d^2 / (4 * 2000).
	assert.InDelta(t, 50000*math.Pi*2.5*2.5/(4*2000), cal.Area(50000), 1e-9)
	assert.InDelta(t, 122.72, cal.Area(50000), 0.01)
	assert.InDelta(t, 50.0/cal.PixelsPerUnit, cal.Length(50), 1e-12)
}

func TestCalibratePositiveForValidGeometry(t *testing.T) {
	for _, area := range []int{1, 7, 314, 2000, 100000} {
		for _, diameter := range []float64{0.01, 1, 2.5, 2.72, 1000} {
			ref := areaInstance(inference.LabelReference, 0.9, area)
			cal, status := Calibrate(ref, diameter)
			require.Equal(t, StatusOK, status, "area=%d diameter=%v", area, diameter)
			assert.Greater(t, cal.PixelsPerUnit, 0.0)
			assert.False(t, math.IsInf(cal.PixelsPerUnit, 0))
		}
	}
}

func TestCalibrateInvalidGeometry(t *testing.T) {
	tests := []struct {
		name      string
		reference inference.Instance
		diameter  float64
	}{
		{name: "zero area", reference: areaInstance(inference.LabelReference, 0.9, 0), diameter: 2.5},
		{name: "nil mask", reference: inference.Instance{Label: inference.LabelReference, Confidence: 0.9}, diameter: 2.5},
		{name: "zero diameter", reference: areaInstance(inference.LabelReference, 0.9, 100), diameter: 0},
		{name: "negative diameter", reference: areaInstance(inference.LabelReference, 0.9, 100), diameter: -2},
		{name: "nan diameter", reference: areaInstance(inference.LabelReference, 0.9, 100), diameter: math.NaN()},
		{name: "infinite diameter", reference: areaInstance(inference.LabelReference, 0.9, 100), diameter: math.Inf(1)},
		{name: "denormal diameter", reference: areaInstance(inference.LabelReference, 0.9, 100), diameter: 5e-324},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal, status := Calibrate(tt.reference, tt.diameter)
			assert.Equal(t, StatusInvalidReferenceGeometry, status)
			assert.Zero(t, cal.PixelsPerUnit)
		})
	}
}

func TestCalibrateIgnoresBoundingBox(t *testing.T) {
	ref := areaInstance(inference.LabelReference, 0.9, 2000)
	wide := ref
	wide.Box = images.Rect{X1: 0, Y1: 0, X2: 400, Y2: 300}

	a, _ := Calibrate(ref, 2.5)
	b, _ := Calibrate(wide, 2.5)
	assert.Equal(t, a.PixelsPerUnit, b.PixelsPerUnit)
}

func TestPhysicalAreaScaling(t *testing.T) {
	for _, pixels := range []int{1, 999, 50000} {
		for _, ppu := range []float64{0.5, 1, 20.19, 333.3} {
			base := PhysicalArea(pixels, ppu)
			doubled := PhysicalArea(pixels, 2*ppu)
			assert.InEpsilon(t, base/4, doubled, 1e-12, "pixels=%d ppu=%v", pixels, ppu)
		}
	}
	assert.Zero(t, PhysicalArea(0, 20))
}
