package measure

import "fmt"

// Status is the outcome of a scan.
type Status int

// Scan statuses. Everything other than StatusOK is terminal and carries no
// measurements.
const (
	// StatusOK means at least one leaf was measured.
	StatusOK Status = iota
	// StatusNoLeafDetected means no leaf survived detection and filtering.
	StatusNoLeafDetected
	// StatusNoReferenceDetected means the model found no reference coin.
	StatusNoReferenceDetected
	// StatusAmbiguousReference means several coins were confident enough to be the reference.
	StatusAmbiguousReference
	// StatusLowConfidence means coins were found but none was confident enough.
	StatusLowConfidence
	// StatusInvalidReferenceGeometry means the reference mask gave no usable scale.
	StatusInvalidReferenceGeometry
	// StatusDetectionTimeout means detection did not finish in time.
	StatusDetectionTimeout
	// StatusDetectionFailed means the detector could not run.
	StatusDetectionFailed
)

var statusNames = [...]string{
	StatusOK:                       "ok",
	StatusNoLeafDetected:           "no_leaf_detected",
	StatusNoReferenceDetected:      "no_reference_detected",
	StatusAmbiguousReference:       "ambiguous_reference",
	StatusLowConfidence:            "low_confidence",
	StatusInvalidReferenceGeometry: "invalid_reference_geometry",
	StatusDetectionTimeout:         "detection_timeout",
	StatusDetectionFailed:          "detection_failed",
}

// Statuses lists every status in declaration order.
func Statuses() []Status {
	out := make([]Status, len(statusNames))
	for i := range out {
		out[i] = Status(i)
	}
	return out
}

// String returns the snake_case wire name of the status.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// OK reports whether the status is StatusOK.
func (s Status) OK() bool {
	return s == StatusOK
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}
