package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelFor(t *testing.T) {
	tests := map[string]Label{
		"coin":      LabelReference,
		"Coin":      LabelReference,
		"reference": LabelReference,
		"koin":      LabelReference,
		"leaf":      LabelLeaf,
		" LEAF ":    LabelLeaf,
		"daun":      LabelLeaf,
		"stem":      LabelOther,
		"":          LabelOther,
	}
	for name, want := range tests {
		assert.Equal(t, want, LabelFor(name), name)
	}
}

func TestOutputClassSet(t *testing.T) {
	set := NewOutputClassSet(ModelFamilyYOLOSeg, "coin", "leaf", "pot")
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, LabelReference, set.Label(0))
	assert.Equal(t, LabelLeaf, set.Label(1))
	assert.Equal(t, LabelOther, set.Label(2))
	assert.Equal(t, LabelOther, set.Label(7))

	idx, err := set.Index("leaf")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = set.Index("stem")
	assert.Error(t, err)

	name, err := set.Name(2)
	require.NoError(t, err)
	assert.Equal(t, "pot", name)

	_, err = set.Name(-1)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	spec, err := NewModel("")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, spec.Name)
	assert.Equal(t, 8400, spec.Anchors())
	assert.Equal(t, []string{"output0", "output1"}, spec.OutputNames)

	_, err = NewModel("rfdetr")
	assert.Error(t, err)

	assert.Contains(t, Names(), "yolo11s-seg")
}
