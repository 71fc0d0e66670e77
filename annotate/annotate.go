// Package annotate - Renders scan results onto the photograph.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/measure"
)

var (
	referenceColor = color.RGBA{R: 255, G: 200, B: 0, A: 255}
	textColor      = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	shadowColor    = color.RGBA{A: 255}
)

// overlayAlpha is the opacity of the mask fill.
const overlayAlpha = 0.4

// Annotator writes "<scan_id>_original.jpg" and "<scan_id>_segmented.jpg"
// for every scan into a directory.
type Annotator struct {
	dir  string
	unit string
}

// New creates an annotator writing into dir, creating it when missing.
//
// Arguments:
//   - dir: The output directory.
//   - unit: The physical length unit printed next to areas, e.g. "cm".
//
// Returns:
//   - *Annotator: The annotator.
//   - error: An error if the directory cannot be created.
func New(dir, unit string) (*Annotator, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if unit == "" {
		unit = "cm"
	}
	return &Annotator{dir: dir, unit: unit}, nil
}

// Paths returns the original and segmented image paths for a scan.
func (a *Annotator) Paths(scanID string) (original, segmented string) {
	base := fileSafe(scanID)
	return filepath.Join(a.dir, base+"_original.jpg"), filepath.Join(a.dir, base+"_segmented.jpg")
}

// Annotate writes the original photograph and a copy with the measured
// leaves filled, the reference outlined and a summary printed on top, and
// returns where both files went.
func (a *Annotator) Annotate(result measure.ScanResult, img image.Image) (measure.ImagePaths, error) {
	originalPath, segmentedPath := a.Paths(result.ScanID)

	original, err := toMat(images.ToRGBA(img))
	if err != nil {
		return measure.ImagePaths{}, err
	}
	defer original.Close()
	if !gocv.IMWrite(originalPath, original) {
		return measure.ImagePaths{}, fmt.Errorf("failed to write %s", originalPath)
	}

	overlay := images.ToRGBA(img)
	palette := Palette(len(result.Measurements))
	for i, m := range result.Measurements {
		fill(overlay, m.Leaf.Mask, palette[i])
	}

	segmented, err := toMat(overlay)
	if err != nil {
		return measure.ImagePaths{}, err
	}
	defer segmented.Close()

	scale := fontScale(overlay.Bounds().Dx())
	for i, m := range result.Measurements {
		if err := outline(&segmented, m.Leaf.Mask, palette[i]); err != nil {
			return measure.ImagePaths{}, err
		}
		box := m.Leaf.Mask.Bounds()
		label := fmt.Sprintf("#%d %.2f %s^2", i+1, m.Area, a.unit)
		putText(&segmented, label, image.Pt(box.X1, max(box.Y1-6, 12)), scale*0.8)
	}
	if cal := result.Calibration; cal != nil {
		if err := outline(&segmented, cal.Reference.Mask, referenceColor); err != nil {
			return measure.ImagePaths{}, err
		}
	}

	for i, line := range SummaryLines(result, a.unit) {
		y := int(math.Round(30 * scale * float64(i+1)))
		putText(&segmented, line, image.Pt(10, y), scale)
	}

	if !gocv.IMWrite(segmentedPath, segmented) {
		return measure.ImagePaths{}, fmt.Errorf("failed to write %s", segmentedPath)
	}
	return measure.ImagePaths{Original: originalPath, Segmented: segmentedPath}, nil
}

// SummaryLines returns the text printed on the segmented image.
func SummaryLines(result measure.ScanResult, unit string) []string {
	switch result.Status {
	case measure.StatusOK:
		lines := []string{fmt.Sprintf("Total Leaf Area: %.2f %s^2", result.Summary().TotalArea, unit)}
		if cal := result.Calibration; cal != nil {
			lines = append(lines, fmt.Sprintf("Coin Ref: %.2f %s (%.1f px/%s)", cal.ReferenceDiameter, unit, cal.PixelsPerUnit, unit))
		}
		return append(lines, fmt.Sprintf("Leaves Detected: %d", len(result.Measurements)))
	case measure.StatusNoReferenceDetected:
		return []string{"Reference Coin Not Detected"}
	default:
		return []string{"Scan Failed: " + strings.ReplaceAll(result.Status.String(), "_", " ")}
	}
}

// Palette returns n well separated, deterministic colours.
func Palette(n int) []color.RGBA {
	out := make([]color.RGBA, n)
	for i := range out {
		// Golden-angle hue steps keep neighbouring leaves distinct.
		hue := math.Mod(120+float64(i)*137.508, 360)
		r, g, b := colorful.Hsv(hue, 0.75, 0.95).Clamped().RGB255()
		out[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return out
}

func fill(dst *image.RGBA, mask *images.Mask, c color.RGBA) {
	if mask == nil {
		return
	}
	b := dst.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if !mask.At(x, y) {
				continue
			}
			i := dst.PixOffset(b.Min.X+x, b.Min.Y+y)
			dst.Pix[i+0] = blend(dst.Pix[i+0], c.R)
			dst.Pix[i+1] = blend(dst.Pix[i+1], c.G)
			dst.Pix[i+2] = blend(dst.Pix[i+2], c.B)
		}
	}
}

func blend(base, over uint8) uint8 {
	return uint8(math.Round(float64(base)*(1-overlayAlpha) + float64(over)*overlayAlpha))
}

// toMat converts RGBA pixels into a BGR matrix.
func toMat(img *image.RGBA) (gocv.Mat, error) {
	b := img.Bounds()
	rgba, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, img.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to wrap image: %w", err)
	}
	defer rgba.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}

func outline(dst *gocv.Mat, mask *images.Mask, c color.RGBA) error {
	if mask.Area() == 0 {
		return nil
	}
	m, err := gocv.NewMatFromBytes(mask.Height(), mask.Width(), gocv.MatTypeCV8UC1, mask.Bytes())
	if err != nil {
		return fmt.Errorf("failed to wrap mask: %w", err)
	}
	defer m.Close()

	contours := gocv.FindContours(m, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	gocv.DrawContours(dst, contours, -1, c, 2)
	return nil
}

func putText(dst *gocv.Mat, text string, at image.Point, scale float64) {
	gocv.PutText(dst, text, at.Add(image.Pt(1, 1)), gocv.FontHersheySimplex, scale, shadowColor, 3)
	gocv.PutText(dst, text, at, gocv.FontHersheySimplex, scale, textColor, 1)
}

func fontScale(width int) float64 {
	return max(0.5, float64(width)/1200)
}

func fileSafe(id string) string {
	if id == "" {
		return "scan"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}
