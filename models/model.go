// Package models - Definitions for segmentation model families, labels and class sets.
package models

// ModelFamily is the family of models.
type ModelFamily string

const (
	// ModelFamilyYOLOSeg is the Ultralytics YOLO segmentation family (v8/v11 exports).
	ModelFamilyYOLOSeg ModelFamily = "yolo-seg"
	// ModelFamilyRemote is an external inference service speaking the JSON instance protocol.
	ModelFamilyRemote ModelFamily = "remote"
)

// Label is the role a detected instance plays in a measurement.
type Label string

const (
	// LabelLeaf marks a leaf instance whose area is measured.
	LabelLeaf Label = "leaf"
	// LabelReference marks a reference object (coin) of known diameter.
	LabelReference Label = "reference"
	// LabelOther marks anything else the model can detect.
	LabelOther Label = "other"
)
