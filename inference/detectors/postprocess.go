package detectors

import (
	"fmt"
	"image"
	"math"

	"github.com/chewxy/math32"
	"github.com/disintegration/imaging"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/models"
	"github.com/nvr-ai/leafscan/models/postprocess"
)

// Layout describes the raw tensors of a YOLO segmentation export:
// detections [1, 4+classes+coefficients, anchors] and prototypes
// [1, coefficients, mask, mask].
type Layout struct {
	NumClasses       int
	Anchors          int
	MaskCoefficients int
	MaskSize         int
	InputSize        int
}

// LayoutFor derives the tensor layout of a registered model.
func LayoutFor(spec models.Spec, numClasses int) Layout {
	return Layout{
		NumClasses:       numClasses,
		Anchors:          spec.Anchors(),
		MaskCoefficients: spec.MaskCoefficients,
		MaskSize:         spec.MaskSize,
		InputSize:        spec.InputSize,
	}
}

// DetectionShape returns the shape of the detection tensor.
func (l Layout) DetectionShape() []int64 {
	return []int64{1, int64(4 + l.NumClasses + l.MaskCoefficients), int64(l.Anchors)}
}

// PrototypeShape returns the shape of the prototype mask tensor.
func (l Layout) PrototypeShape() []int64 {
	return []int64{1, int64(l.MaskCoefficients), int64(l.MaskSize), int64(l.MaskSize)}
}

// DecodeCandidates extracts scored boxes from the detection tensor, scales
// them to the source image, and applies class-aware NMS.
//
// Arguments:
//   - output: The flattened detection tensor.
//   - layout: The tensor layout.
//   - cfg: Decoding thresholds.
//   - srcW: The source image width.
//   - srcH: The source image height.
//
// Returns:
//   - []postprocess.Result: Surviving candidates by descending score, with mask coefficients.
//   - error: An error if the tensor is smaller than the layout requires.
func DecodeCandidates(output []float32, layout Layout, cfg Config, srcW, srcH int) ([]postprocess.Result, error) {
	rows := 4 + layout.NumClasses + layout.MaskCoefficients
	anchors := layout.Anchors
	if len(output) < rows*anchors {
		return nil, fmt.Errorf("detection tensor holds %d values, layout needs %d", len(output), rows*anchors)
	}
	at := func(row, a int) float32 {
		return output[row*anchors+a]
	}

	sx := float32(srcW) / float32(layout.InputSize)
	sy := float32(srcH) / float32(layout.InputSize)
	coeffBase := 4 + layout.NumClasses

	candidates := make([]postprocess.Result, 0, 64)
	for a := 0; a < anchors; a++ {
		classID := -1
		score := float32(-1)
		for c := 0; c < layout.NumClasses; c++ {
			if p := at(4+c, a); p > score {
				score = p
				classID = c
			}
		}
		if score <= cfg.ConfidenceThreshold {
			continue
		}

		xc, yc := at(0, a), at(1, a)
		w, h := at(2, a), at(3, a)
		box := images.Rect{
			X1: int(math32.Floor((xc - w/2) * sx)),
			Y1: int(math32.Floor((yc - h/2) * sy)),
			X2: int(math32.Ceil((xc + w/2) * sx)),
			Y2: int(math32.Ceil((yc + h/2) * sy)),
		}.Clamp(srcW, srcH)
		if box.Empty() {
			continue
		}

		coeffs := make([]float32, layout.MaskCoefficients)
		for k := range coeffs {
			coeffs[k] = at(coeffBase+k, a)
		}

		candidates = append(candidates, postprocess.Result{
			Box:          box,
			Score:        score,
			Class:        classID,
			Coefficients: coeffs,
		})
	}

	postprocess.SortByScore(candidates)
	kept := postprocess.ApplyGreedyNMS(candidates, &postprocess.NMSConfig{
		IoUThreshold: cfg.NMSThreshold,
		ClassAware:   true,
	})
	if cfg.MaxDetections > 0 && len(kept) > cfg.MaxDetections {
		kept = kept[:cfg.MaxDetections]
	}
	return kept, nil
}

// MaskProbabilities combines the prototype masks for every candidate:
// sigmoid(coefficients x prototypes). Row i of the result is the
// mask x mask probability plane of candidates[i].
func MaskProbabilities(candidates []postprocess.Result, protos []float32, layout Layout) ([][]float32, error) {
	n := len(candidates)
	if n == 0 {
		return nil, nil
	}
	nm := layout.MaskCoefficients
	plane := layout.MaskSize * layout.MaskSize
	if len(protos) < nm*plane {
		return nil, fmt.Errorf("prototype tensor holds %d values, layout needs %d", len(protos), nm*plane)
	}

	coeffs := make([]float32, 0, n*nm)
	for _, c := range candidates {
		if len(c.Coefficients) != nm {
			return nil, fmt.Errorf("candidate has %d mask coefficients, expected %d", len(c.Coefficients), nm)
		}
		coeffs = append(coeffs, c.Coefficients...)
	}

	a := tensor.New(tensor.WithShape(n, nm), tensor.Of(tensor.Float32), tensor.WithBacking(coeffs))
	// The prototype slice is copied so that the session's output buffer is
	// never aliased by the tensor.
	b := tensor.New(tensor.WithShape(nm, plane), tensor.Of(tensor.Float32),
		tensor.WithBacking(append([]float32(nil), protos[:nm*plane]...)))

	product, err := tensor.MatMul(a, b)
	if err != nil {
		return nil, fmt.Errorf("mask matmul: %w", err)
	}
	data, ok := product.Data().([]float32)
	if !ok || len(data) != n*plane {
		return nil, fmt.Errorf("unexpected mask matmul result %T", product.Data())
	}

	out := make([][]float32, n)
	for i := range out {
		row := data[i*plane : (i+1)*plane]
		for j, v := range row {
			row[j] = 1 / (1 + math32.Exp(-v))
		}
		out[i] = row
	}
	return out, nil
}

// ProbabilityMask upsamples one prototype-resolution probability plane to the
// source image and thresholds it inside the detection box.
//
// Only the part of the plane under the box (plus a one-cell margin for
// interpolation) is resampled.
func ProbabilityMask(prob []float32, maskSize int, box images.Rect, srcW, srcH int, threshold float32) *images.Mask {
	m := images.NewMask(srcW, srcH)
	box = box.Clamp(srcW, srcH)
	if box.Empty() || len(prob) < maskSize*maskSize {
		return m
	}

	gray := image.NewGray(image.Rect(0, 0, maskSize, maskSize))
	for i, p := range prob[:maskSize*maskSize] {
		gray.Pix[i] = uint8(math32.Floor(p*255 + 0.5))
	}

	// Box in prototype coordinates, widened by one cell and clamped.
	kx := float64(maskSize) / float64(srcW)
	ky := float64(maskSize) / float64(srcH)
	crop := images.Rect{
		X1: int(math.Floor(float64(box.X1)*kx)) - 1,
		Y1: int(math.Floor(float64(box.Y1)*ky)) - 1,
		X2: int(math.Ceil(float64(box.X2)*kx)) + 1,
		Y2: int(math.Ceil(float64(box.Y2)*ky)) + 1,
	}.Clamp(maskSize, maskSize)

	// The same region in source coordinates.
	tx1 := int(math.Round(float64(crop.X1) / kx))
	ty1 := int(math.Round(float64(crop.Y1) / ky))
	tx2 := min(int(math.Round(float64(crop.X2)/kx)), srcW)
	ty2 := min(int(math.Round(float64(crop.Y2)/ky)), srcH)
	if tx2 <= tx1 || ty2 <= ty1 {
		return m
	}

	region := imaging.Crop(gray, crop.Rectangle())
	up := imaging.Resize(region, tx2-tx1, ty2-ty1, imaging.Linear)

	cut := uint8(math32.Floor(threshold*255 + 0.5))
	for y := max(box.Y1, ty1); y < min(box.Y2, ty2); y++ {
		row := (y - ty1) * up.Stride
		for x := max(box.X1, tx1); x < min(box.X2, tx2); x++ {
			if up.Pix[row+(x-tx1)*4] > cut {
				m.Set(x, y, true)
			}
		}
	}
	return m
}

// Postprocess turns raw segmentation outputs into instances.
//
// Arguments:
//   - detections: The flattened detection tensor.
//   - protos: The flattened prototype tensor.
//   - layout: The tensor layout.
//   - cfg: Decoding thresholds.
//   - classes: Maps class indices to names and labels.
//   - srcW: The source image width.
//   - srcH: The source image height.
//
// Returns:
//   - []models.Instance: The decoded instances by descending confidence.
//   - error: An error if the tensors do not match the layout.
func Postprocess(
	detections, protos []float32,
	layout Layout,
	cfg Config,
	classes *models.OutputClassSet,
	srcW, srcH int,
) ([]models.Instance, error) {
	candidates, err := DecodeCandidates(detections, layout, cfg, srcW, srcH)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []models.Instance{}, nil
	}

	planes, err := MaskProbabilities(candidates, protos, layout)
	if err != nil {
		return nil, err
	}

	instances := make([]models.Instance, 0, len(candidates))
	for i, c := range candidates {
		name, err := classes.Name(c.Class)
		if err != nil {
			name = fmt.Sprintf("class_%d", c.Class)
		}
		instances = append(instances, models.Instance{
			Label:      classes.Label(c.Class),
			ClassName:  name,
			Confidence: float64(c.Score),
			Mask:       ProbabilityMask(planes[i], layout.MaskSize, c.Box, srcW, srcH, cfg.MaskThreshold),
			Box:        c.Box,
		})
	}
	return instances, nil
}
