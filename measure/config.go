// Package measure - Converts detected instances into calibrated leaf areas.
//
// The pipeline runs in four pure stages: the reference resolver picks the
// coin, the calibrator turns its mask into a pixels-per-unit factor, the
// aggregator converts each leaf mask into a physical area, and the assembler
// decides the final status. Every stage reports problems as a Status, never
// as an error, so that each known failure reaches the caller intact.
package measure

import (
	"fmt"
	"math"
)

// Config holds the measurement settings.
type Config struct {
	// ReferenceDiameter is the physical diameter of the reference coin. Areas
	// are reported in the square of this unit.
	ReferenceDiameter float64 `json:"reference_diameter_unit" yaml:"reference_diameter_unit"`
	// ReferenceConfidenceThreshold must be exceeded for a coin to be trusted.
	ReferenceConfidenceThreshold float64 `json:"reference_confidence_threshold" yaml:"reference_confidence_threshold"`
	// LeafConfidenceThreshold is the minimum confidence of a measured leaf.
	LeafConfidenceThreshold float64 `json:"leaf_confidence_threshold" yaml:"leaf_confidence_threshold"`
	// OverlapConflictFraction is the largest share of a leaf's pixels that may
	// lie on the reference before the leaf is treated as a conflict.
	OverlapConflictFraction float64 `json:"overlap_conflict_fraction" yaml:"overlap_conflict_fraction"`
}

// DefaultReferenceDiameter is the 500 IDR aluminium coin, 27.2 mm, in cm.
const DefaultReferenceDiameter = 2.72

// DefaultConfig returns the defaults for a 500 IDR coin measured in cm.
func DefaultConfig() Config {
	return Config{
		ReferenceDiameter:            DefaultReferenceDiameter,
		ReferenceConfidenceThreshold: 0.5,
		LeafConfidenceThreshold:      0.5,
		OverlapConflictFraction:      0.5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !(c.ReferenceDiameter > 0) || math.IsInf(c.ReferenceDiameter, 0) {
		return fmt.Errorf("reference_diameter_unit must be positive, got %v", c.ReferenceDiameter)
	}
	if !inUnitInterval(c.ReferenceConfidenceThreshold) {
		return fmt.Errorf("reference_confidence_threshold must be within [0,1], got %v", c.ReferenceConfidenceThreshold)
	}
	if !inUnitInterval(c.LeafConfidenceThreshold) {
		return fmt.Errorf("leaf_confidence_threshold must be within [0,1], got %v", c.LeafConfidenceThreshold)
	}
	if !(c.OverlapConflictFraction > 0 && c.OverlapConflictFraction <= 1) {
		return fmt.Errorf("overlap_conflict_fraction must be within (0,1], got %v", c.OverlapConflictFraction)
	}
	return nil
}

func inUnitInterval(v float64) bool {
	return v >= 0 && v <= 1
}
