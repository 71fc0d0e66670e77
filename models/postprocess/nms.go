// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/leafscan/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 // Overlap threshold for suppression.
	ClassAware   bool    // If true, suppress only within same class.
}

// SortByScore orders detections by descending score. Ties keep their input
// order so that the output is deterministic.
func SortByScore(detections []Result) {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Score > detections[j].Score
	})
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Arguments:
//   - detections: Slice of detections sorted by descending confidence.
//   - config: NMS configuration. With ClassAware set, a coin never suppresses an
//     overlapping leaf.
//
// Returns:
//   - Filtered slice of detections. If no detections are provided, returns nil.
func ApplyGreedyNMS(detections []Result, config *NMSConfig) []Result {
	n := len(detections)
	if n == 0 {
		return nil
	}

	filtered := make([]Result, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.Class != detections[j].Class {
				continue
			}

			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, detections[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
