package measure

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusNames(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusOK, "ok"},
		{StatusNoLeafDetected, "no_leaf_detected"},
		{StatusNoReferenceDetected, "no_reference_detected"},
		{StatusAmbiguousReference, "ambiguous_reference"},
		{StatusLowConfidence, "low_confidence"},
		{StatusInvalidReferenceGeometry, "invalid_reference_geometry"},
		{StatusDetectionTimeout, "detection_timeout"},
		{StatusDetectionFailed, "detection_failed"},
	}
	require.Len(t, Statuses(), len(tests))

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())

			data, err := json.Marshal(tt.status)
			require.NoError(t, err)
			assert.Equal(t, `"`+tt.want+`"`, string(data))

			var back Status
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.status, back)
		})
	}
}

func TestStatusUnknown(t *testing.T) {
	assert.Equal(t, "status(42)", Status(42).String())

	_, err := Status(42).MarshalText()
	assert.Error(t, err)

	var s Status
	assert.Error(t, s.UnmarshalText([]byte("maybe")))
	assert.True(t, StatusOK.OK())
	assert.False(t, StatusLowConfidence.OK())
}
