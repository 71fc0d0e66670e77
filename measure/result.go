package measure

import (
	"encoding/json"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ScanResult is the final outcome of one scan. Measurements is non-empty
// only when Status is StatusOK.
type ScanResult struct {
	ScanID       string
	Status       Status
	Measurements []LeafMeasurement
	// Calibration is set whenever a scale was derived, even if no leaf was
	// measured afterwards.
	Calibration *ScaleCalibration
	Warnings    []string
	// ImagePaths is set when the scan was rendered to disk.
	ImagePaths *ImagePaths
}

// ImagePaths locates the rendered copies of a scanned photograph.
type ImagePaths struct {
	Original  string `json:"original"`
	Segmented string `json:"segmented"`
}

// Summary aggregates the measured leaf areas of a scan.
type Summary struct {
	Count      int     `json:"count"`
	TotalArea  float64 `json:"total_area"`
	MeanArea   float64 `json:"mean_area"`
	StdDevArea float64 `json:"std_dev_area"`
}

// Areas returns the leaf areas in detection order.
func (r ScanResult) Areas() []float64 {
	areas := make([]float64, len(r.Measurements))
	for i, m := range r.Measurements {
		areas[i] = m.Area
	}
	return areas
}

// Summary computes the count, total, mean and sample standard deviation of
// the leaf areas. The deviation is zero for fewer than two leaves.
func (r ScanResult) Summary() Summary {
	areas := r.Areas()
	if len(areas) == 0 {
		return Summary{}
	}
	s := Summary{
		Count:     len(areas),
		TotalArea: floats.Sum(areas),
	}
	if len(areas) < 2 {
		s.MeanArea = areas[0]
		return s
	}
	s.MeanArea, s.StdDevArea = stat.MeanStdDev(areas, nil)
	return s
}

type measurementJSON struct {
	Area        float64 `json:"area"`
	Confidence  float64 `json:"confidence"`
	PixelArea   int     `json:"pixel_area"`
	ShapeFactor float64 `json:"shape_factor"`
	PolygonArea float64 `json:"polygon_area,omitempty"`
}

type calibrationJSON struct {
	PixelsPerUnit      float64 `json:"pixels_per_unit"`
	ReferenceDiameter  float64 `json:"reference_diameter"`
	PixelDiameter      float64 `json:"pixel_diameter"`
	ReferencePixelArea int     `json:"reference_pixel_area"`
}

type scanResultJSON struct {
	ScanID       string            `json:"scan_id"`
	Status       Status            `json:"status"`
	Measurements []measurementJSON `json:"measurements"`
	Warnings     []string          `json:"warnings"`
	Calibration  *calibrationJSON  `json:"calibration,omitempty"`
	Summary      Summary           `json:"summary"`
	ImagePaths   *ImagePaths       `json:"image_paths,omitempty"`
}

// MarshalJSON renders the result with empty arrays rather than null, so that
// equal results always serialise to identical bytes.
func (r ScanResult) MarshalJSON() ([]byte, error) {
	out := scanResultJSON{
		ScanID:       r.ScanID,
		Status:       r.Status,
		Measurements: make([]measurementJSON, len(r.Measurements)),
		Warnings:     append([]string{}, r.Warnings...),
		Summary:      r.Summary(),
		ImagePaths:   r.ImagePaths,
	}
	for i, m := range r.Measurements {
		out.Measurements[i] = measurementJSON{
			Area:        m.Area,
			Confidence:  m.Confidence,
			PixelArea:   m.PixelArea,
			ShapeFactor: m.ShapeFactor,
			PolygonArea: m.PolygonArea,
		}
	}
	if c := r.Calibration; c != nil {
		out.Calibration = &calibrationJSON{
			PixelsPerUnit:      c.PixelsPerUnit,
			ReferenceDiameter:  c.ReferenceDiameter,
			PixelDiameter:      c.PixelDiameter,
			ReferencePixelArea: c.ReferencePixelArea,
		}
	}
	return json.Marshal(out)
}

// warningSet keeps warnings unique in first-seen order.
type warningSet struct {
	seen map[string]struct{}
	list []string
}

func (w *warningSet) add(msgs ...string) {
	if w.seen == nil {
		w.seen = make(map[string]struct{})
	}
	for _, msg := range msgs {
		if msg == "" {
			continue
		}
		if _, ok := w.seen[msg]; ok {
			continue
		}
		w.seen[msg] = struct{}{}
		w.list = append(w.list, msg)
	}
}

func (w *warningSet) values() []string {
	return append([]string{}, w.list...)
}
