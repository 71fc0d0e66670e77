package measure

import (
	"fmt"

	"github.com/nvr-ai/leafscan/inference"
)

// Resolution is the outcome of choosing the calibration reference.
type Resolution struct {
	// Status is StatusOK when Reference is set.
	Status Status
	// Reference is the single trusted coin; nil unless Status is StatusOK.
	Reference *inference.Instance
	// Candidate is the most confident coin when none was trusted. It is
	// reported for diagnostics and never used for calibration.
	Candidate *inference.Instance
	// Accepted is the number of coins above the threshold.
	Accepted int
	// Warnings explain a failed resolution.
	Warnings []string
}

// ResolveReference selects the reference coin among the reference instances.
//
// A coin is accepted when its confidence is strictly above threshold. Exactly
// one accepted coin is selected. Several accepted coins are ambiguous: picking
// the most confident one could silently corrupt every measurement.
//
// Arguments:
//   - references: The instances labelled as reference, in detection order.
//   - threshold: The acceptance threshold.
//
// Returns:
//   - Resolution: The selection, or the reason there is none.
func ResolveReference(references []inference.Instance, threshold float64) Resolution {
	if len(references) == 0 {
		return Resolution{
			Status:   StatusNoReferenceDetected,
			Warnings: []string{"reference coin not detected"},
		}
	}

	accepted := -1
	count := 0
	best := 0
	for i, ref := range references {
		if ref.Confidence > threshold {
			count++
			if accepted < 0 {
				accepted = i
			}
		}
		if ref.Confidence > references[best].Confidence {
			best = i
		}
	}

	switch {
	case count == 1:
		ref := references[accepted]
		return Resolution{Status: StatusOK, Reference: &ref, Accepted: 1}
	case count > 1:
		return Resolution{
			Status:   StatusAmbiguousReference,
			Accepted: count,
			Warnings: []string{fmt.Sprintf("%d reference coins above confidence %.2f; expected exactly one", count, threshold)},
		}
	default:
		candidate := references[best]
		return Resolution{
			Status:    StatusLowConfidence,
			Candidate: &candidate,
			Warnings: []string{fmt.Sprintf("best reference coin confidence %.2f is not above %.2f",
				candidate.Confidence, threshold)},
		}
	}
}
