package models

import (
	"fmt"
	"strings"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
	// The measurement role of the class.
	Label Label
}

// OutputClassSet ties a style to its full list of labels.
type OutputClassSet struct {
	// Class set identifier.
	Style ModelFamily
	// Classes that are supported and mappable.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewOutputClassSet builds a class set from model class names in index order.
// Each name is mapped to a Label with LabelFor.
//
// Arguments:
//   - style: The model family the names belong to.
//   - names: The class names, where names[i] is class index i.
//
// Returns:
//   - *OutputClassSet: The indexed class set.
//
// @example
// set := NewOutputClassSet(ModelFamilyYOLOSeg, "coin", "leaf")
// set.Label(0) // LabelReference
func NewOutputClassSet(style ModelFamily, names ...string) *OutputClassSet {
	set := &OutputClassSet{Style: style, Classes: make([]OutputClass, len(names))}
	for i, name := range names {
		set.Classes[i] = OutputClass{Index: i, Name: name, Label: LabelFor(name)}
	}
	set.BuildNameIndexMap()
	return set
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		s.nameToIdx[c.Name] = c.Index
	}
}

// Len returns the number of classes.
func (s *OutputClassSet) Len() int {
	return len(s.Classes)
}

// Name returns the class name for an index.
func (s *OutputClassSet) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(s.Classes) {
		return "", fmt.Errorf("index %d out of range for style %q", idx, s.Style)
	}
	return s.Classes[idx].Name, nil
}

// Index returns the class index for a name.
func (s *OutputClassSet) Index(name string) (int, error) {
	if s.nameToIdx == nil {
		s.BuildNameIndexMap()
	}
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, fmt.Errorf("name %q not found in style %q", name, s.Style)
	}
	return idx, nil
}

// Label returns the measurement role of a class index. Unknown indices are
// LabelOther.
func (s *OutputClassSet) Label(idx int) Label {
	if idx < 0 || idx >= len(s.Classes) {
		return LabelOther
	}
	return s.Classes[idx].Label
}

// LabelFor maps a model class name to its measurement role. Matching is
// case-insensitive; the Indonesian names used by the original coin dataset
// ("koin", "daun") are recognised too.
func LabelFor(name string) Label {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "coin", "reference", "koin":
		return LabelReference
	case "leaf", "daun":
		return LabelLeaf
	default:
		return LabelOther
	}
}

// DefaultClassNames are the classes of the coin/leaf segmentation model, in
// training order.
var DefaultClassNames = []string{"coin", "leaf"}

// LeafScanClasses is the default class set for the coin/leaf segmentation model.
var LeafScanClasses = NewOutputClassSet(ModelFamilyYOLOSeg, DefaultClassNames...)
