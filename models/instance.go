package models

import "github.com/nvr-ai/leafscan/images"

// Instance is one object found by a segmentation model. Instances are created
// by a detector, never modified afterwards, and live only as long as the scan
// that produced them.
type Instance struct {
	// Label is the measurement role of the instance.
	Label Label `json:"label"`
	// ClassName is the raw model class name.
	ClassName string `json:"class_name"`
	// Confidence is the detection score in [0,1].
	Confidence float64 `json:"confidence"`
	// Mask is the pixel occupancy grid, sized like the source image.
	Mask *images.Mask `json:"-"`
	// Box is the bounding region reported by the model.
	Box images.Rect `json:"box"`
	// Polygon is the mask outline when the backend reports one.
	Polygon []images.Point `json:"polygon,omitempty"`
}

// PixelArea returns the number of mask pixels.
func (i Instance) PixelArea() int {
	return i.Mask.Area()
}
