package annotate

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/leafscan/measure"
	"github.com/nvr-ai/leafscan/test"
)

func TestAnnotateWritesImages(t *testing.T) {
	scene := test.NewScene(320, 240).
		Coin(50, 50, 20, 0.9).
		Leaf(200, 140, 80, 50, 0.9).
		Leaf(90, 180, 30, 40, 0.8)
	result := measure.Measure("scan/1", scene.Instances(), measure.DefaultConfig())
	require.Equal(t, measure.StatusOK, result.Status)

	a, err := New(t.TempDir(), "cm")
	require.NoError(t, err)
	paths, err := a.Annotate(result, scene.Image())
	require.NoError(t, err)

	original, segmented := a.Paths(result.ScanID)
	assert.Equal(t, measure.ImagePaths{Original: original, Segmented: segmented}, paths)
	assert.Contains(t, segmented, "scan_1_segmented.jpg")
	for _, path := range []string{original, segmented} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestAnnotateFailedScan(t *testing.T) {
	scene := test.NewScene(160, 120).Leaf(80, 60, 40, 30, 0.9)
	result := measure.Measure("no-coin", scene.Instances(), measure.DefaultConfig())

	a, err := New(t.TempDir(), "")
	require.NoError(t, err)
	_, err = a.Annotate(result, scene.Image())
	require.NoError(t, err)

	_, segmented := a.Paths("no-coin")
	assert.FileExists(t, segmented)
}

func TestSummaryLines(t *testing.T) {
	ok := measure.ScanResult{
		Status:       measure.StatusOK,
		Measurements: []measure.LeafMeasurement{{Area: 10.5}, {Area: 2.25}},
		Calibration:  &measure.ScaleCalibration{ReferenceDiameter: 2.72, PixelsPerUnit: 20.19},
	}

	tests := []struct {
		name   string
		result measure.ScanResult
		want   []string
	}{
		{
			name:   "ok",
			result: ok,
			want: []string{
				"Total Leaf Area: 12.75 cm^2",
				"Coin Ref: 2.72 cm (20.2 px/cm)",
				"Leaves Detected: 2",
			},
		},
		{
			name:   "no reference",
			result: measure.Failed("x", measure.StatusNoReferenceDetected),
			want:   []string{"Reference Coin Not Detected"},
		},
		{
			name:   "timeout",
			result: measure.Failed("x", measure.StatusDetectionTimeout),
			want:   []string{"Scan Failed: detection timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SummaryLines(tt.result, "cm"))
		})
	}
}

func TestPalette(t *testing.T) {
	p := Palette(6)
	require.Len(t, p, 6)
	assert.Equal(t, p, Palette(6))

	seen := make(map[[3]uint8]bool)
	for _, c := range p {
		assert.Equal(t, uint8(255), c.A)
		seen[[3]uint8{c.R, c.G, c.B}] = true
	}
	assert.Len(t, seen, 6)
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New("", "cm")
	assert.Error(t, err)
}

func TestFileSafe(t *testing.T) {
	assert.Equal(t, "scan", fileSafe(""))
	assert.Equal(t, "a_b_c-1.2", fileSafe("a/b c-1.2"))
}
