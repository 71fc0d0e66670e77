// Package inference - Instance detection contract and the model-backed engine.
package inference

import (
	"context"
	"image"

	"github.com/nvr-ai/leafscan/inference/providers"
	"github.com/nvr-ai/leafscan/models"
)

// Instance is a detected object with its label, confidence and mask.
type Instance = models.Instance

// Label is the role a detected instance plays in a measurement.
type Label = models.Label

// Instance labels.
const (
	LabelLeaf      = models.LabelLeaf
	LabelReference = models.LabelReference
	LabelOther     = models.LabelOther
)

// ErrNotInitialized is returned when a model session is requested before the
// ONNX Runtime environment has been initialized.
var ErrNotInitialized = providers.ErrNotInitialized

// Detector finds leaf and reference instances in an image.
//
// Implementations must return masks sized like img, must be safe to call
// again with the same image (yielding the same instances for a deterministic
// model), and should stop early when ctx is done.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Instance, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) ([]Instance, error)

// Detect calls f(ctx, img).
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]Instance, error) {
	return f(ctx, img)
}

// Partition splits instances by label, keeping detection order.
func Partition(instances []Instance) (leaves, references, others []Instance) {
	for _, inst := range instances {
		switch inst.Label {
		case LabelLeaf:
			leaves = append(leaves, inst)
		case LabelReference:
			references = append(references, inst)
		default:
			others = append(others, inst)
		}
	}
	return leaves, references, others
}
