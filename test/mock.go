package test

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/inference"
)

// Scene builds a deterministic synthetic photograph together with the
// instances a perfect detector would report for it.
//
// Arguments:
// - None.
//
// Returns:
// - A scene that can be rendered to an image or served by a fake detector.
//
// @example
// scene := NewScene(640, 480).Coin(100, 100, 25, 0.9).Leaf(320, 240, 120, 80, 0.95)
// det := scene.Detector()
type Scene struct {
	width     int
	height    int
	instances []inference.Instance
}

// NewScene creates an empty scene with the given dimensions.
//
// Arguments:
// - width: Frame width in pixels.
// - height: Frame height in pixels.
//
// Returns:
// - A scene with no instances.
//
// @example
// scene := NewScene(1920, 1080)
func NewScene(width, height int) *Scene {
	return &Scene{width: width, height: height}
}

// Width returns the scene width.
func (s *Scene) Width() int { return s.width }

// Height returns the scene height.
func (s *Scene) Height() int { return s.height }

// Coin adds a disc-shaped reference instance.
func (s *Scene) Coin(cx, cy, r int, confidence float64) *Scene {
	return s.Add(MaskInstance(inference.LabelReference, "coin", confidence, DiscMask(s.width, s.height, cx, cy, r)))
}

// Leaf adds an ellipse-shaped leaf instance.
func (s *Scene) Leaf(cx, cy, rx, ry int, confidence float64) *Scene {
	return s.Add(MaskInstance(inference.LabelLeaf, "leaf", confidence, EllipseMask(s.width, s.height, cx, cy, rx, ry)))
}

// Other adds a rectangular instance of an unrelated class.
func (s *Scene) Other(r images.Rect, confidence float64) *Scene {
	m := images.NewMask(s.width, s.height)
	m.FillRect(r)
	return s.Add(MaskInstance(inference.LabelOther, "cup", confidence, m))
}

// Add appends an arbitrary instance.
func (s *Scene) Add(inst inference.Instance) *Scene {
	s.instances = append(s.instances, inst)
	return s
}

// Instances returns a copy of the scene instances in insertion order.
func (s *Scene) Instances() []inference.Instance {
	return append([]inference.Instance(nil), s.instances...)
}

// Image renders the scene: a white sheet, green leaves and a grey coin.
func (s *Scene) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 0xf4, 0xf4, 0xf0, 0xff
	}
	for _, inst := range s.instances {
		c := color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
		switch inst.Label {
		case inference.LabelLeaf:
			c = color.RGBA{R: 0x2e, G: 0x8b, B: 0x3a, A: 0xff}
		case inference.LabelReference:
			c = color.RGBA{R: 0xb8, G: 0xb8, B: 0xc0, A: 0xff}
		}
		for y := 0; y < s.height; y++ {
			for x := 0; x < s.width; x++ {
				if inst.Mask.At(x, y) {
					img.SetRGBA(x, y, c)
				}
			}
		}
	}
	return img
}

// Detector returns a detector that reports the scene instances for any image.
func (s *Scene) Detector() *StaticDetector {
	return &StaticDetector{Result: s.Instances()}
}

// MaskInstance wraps a mask as an instance whose box is the mask bounds.
func MaskInstance(label inference.Label, class string, confidence float64, mask *images.Mask) inference.Instance {
	return inference.Instance{
		Label:      label,
		ClassName:  class,
		Confidence: confidence,
		Mask:       mask,
		Box:        mask.Bounds(),
	}
}

// DiscMask sets every pixel whose centre lies within r of (cx, cy).
func DiscMask(width, height, cx, cy, r int) *images.Mask {
	return EllipseMask(width, height, cx, cy, r, r)
}

// EllipseMask sets every pixel whose centre lies inside the axis-aligned
// ellipse with radii rx, ry around (cx, cy).
func EllipseMask(width, height, cx, cy, rx, ry int) *images.Mask {
	m := images.NewMask(width, height)
	if rx <= 0 || ry <= 0 {
		return m
	}
	fx, fy := float64(rx), float64(ry)
	for y := max(cy-ry, 0); y <= min(cy+ry, height-1); y++ {
		for x := max(cx-rx, 0); x <= min(cx+rx, width-1); x++ {
			dx := (float64(x) + 0.5 - float64(cx)) / fx
			dy := (float64(y) + 0.5 - float64(cy)) / fy
			if dx*dx+dy*dy <= 1 {
				m.Set(x, y, true)
			}
		}
	}
	return m
}

// AreaMask sets exactly area pixels inside r, filling row by row from the
// top-left corner. It panics when r cannot hold area pixels.
func AreaMask(width, height int, r images.Rect, area int) *images.Mask {
	r = r.Clamp(width, height)
	if area > r.Area() {
		panic("test: area does not fit inside rect")
	}
	m := images.NewMask(width, height)
	for i := 0; i < area; i++ {
		m.Set(r.X1+i%r.Dx(), r.Y1+i/r.Dx(), true)
	}
	return m
}

// StaticDetector returns a fixed set of instances and counts its calls.
type StaticDetector struct {
	Result []inference.Instance
	Err    error
	calls  atomic.Int64
}

// Detect returns the configured result unless ctx is already done.
func (d *StaticDetector) Detect(ctx context.Context, _ image.Image) ([]inference.Instance, error) {
	d.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return append([]inference.Instance(nil), d.Result...), nil
}

// Calls returns how many times Detect ran.
func (d *StaticDetector) Calls() int64 {
	return d.calls.Load()
}

// BlockingDetector blocks until Release is closed. When HonorContext is set
// it also returns as soon as ctx is done, otherwise it ignores cancellation
// like a non-interruptible inference call.
type BlockingDetector struct {
	Release      chan struct{}
	Started      chan struct{}
	HonorContext bool
	Result       []inference.Instance
	finished     atomic.Int64
}

// NewBlockingDetector creates a detector that blocks until released.
func NewBlockingDetector(honorContext bool, result []inference.Instance) *BlockingDetector {
	return &BlockingDetector{
		Release:      make(chan struct{}),
		Started:      make(chan struct{}, 64),
		HonorContext: honorContext,
		Result:       result,
	}
}

// Detect blocks until released or, when honoring cancellation, until ctx ends.
func (d *BlockingDetector) Detect(ctx context.Context, _ image.Image) ([]inference.Instance, error) {
	defer d.finished.Add(1)
	select {
	case d.Started <- struct{}{}:
	default:
	}
	if d.HonorContext {
		select {
		case <-d.Release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		<-d.Release
	}
	return append([]inference.Instance(nil), d.Result...), nil
}

// Finished returns how many Detect calls have returned.
func (d *BlockingDetector) Finished() int64 {
	return d.finished.Load()
}
