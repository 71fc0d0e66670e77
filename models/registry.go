package models

import (
	"fmt"
	"sort"
)

// Spec describes the tensor layout of a registered segmentation export.
type Spec struct {
	// Name is the registry key, e.g. "yolo11n-seg".
	Name string `json:"name" yaml:"name"`
	// Family is the postprocessing family.
	Family ModelFamily `json:"family" yaml:"family"`
	// InputName is the graph input name.
	InputName string `json:"input_name" yaml:"input_name"`
	// OutputNames are the graph outputs: detections first, then mask prototypes.
	OutputNames []string `json:"output_names" yaml:"output_names"`
	// InputSize is the square network input edge.
	InputSize int `json:"input_size" yaml:"input_size"`
	// MaskSize is the prototype mask edge.
	MaskSize int `json:"mask_size" yaml:"mask_size"`
	// MaskCoefficients is the number of prototype coefficients per detection.
	MaskCoefficients int `json:"mask_coefficients" yaml:"mask_coefficients"`
}

// Anchors returns the number of candidate detections the export emits for
// its input size (strides 8, 16 and 32).
func (s Spec) Anchors() int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		g := s.InputSize / stride
		n += g * g
	}
	return n
}

func yoloSeg(name string) Spec {
	return Spec{
		Name:             name,
		Family:           ModelFamilyYOLOSeg,
		InputName:        "images",
		OutputNames:      []string{"output0", "output1"},
		InputSize:        640,
		MaskSize:         160,
		MaskCoefficients: 32,
	}
}

var registry = map[string]Spec{
	"yolo11n-seg": yoloSeg("yolo11n-seg"),
	"yolo11s-seg": yoloSeg("yolo11s-seg"),
	"yolo11m-seg": yoloSeg("yolo11m-seg"),
	"yolov8n-seg": yoloSeg("yolov8n-seg"),
	"yolov8s-seg": yoloSeg("yolov8s-seg"),
}

// DefaultModel is the registry key used when no model name is configured.
const DefaultModel = "yolo11n-seg"

// NewModel returns the registered layout for a model name.
//
// Arguments:
//   - name: The registry key. Empty selects DefaultModel.
//
// Returns:
//   - Spec: The tensor layout.
//   - error: An error if the model name is unsupported.
func NewModel(name string) (Spec, error) {
	if name == "" {
		name = DefaultModel
	}
	spec, ok := registry[name]
	if !ok {
		return Spec{}, fmt.Errorf("unsupported model name: %s", name)
	}
	return spec, nil
}

// Names lists the registered model names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
