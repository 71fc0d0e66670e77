package measure

import (
	"fmt"

	"github.com/nvr-ai/leafscan/inference"
)

// Outcome gathers what the pipeline stages produced for one scan. A stage
// that never ran is left nil.
type Outcome struct {
	// Warnings raised before resolution, such as ignored instances.
	Warnings []string
	// Resolution is always present.
	Resolution Resolution
	// Calibration is set when the calibrator ran. CalibrationStatus is its
	// outcome.
	Calibration       *ScaleCalibration
	CalibrationStatus Status
	// Aggregation is set when the aggregator ran.
	Aggregation *Aggregation
}

// Assemble combines stage outcomes into the scan result. It is the only
// place that decides the final status: the first failing stage in pipeline
// order wins, and measurements are only attached when every stage succeeded.
//
// Arguments:
//   - scanID: The scan identifier.
//   - o: The stage outcomes.
//
// Returns:
//   - ScanResult: The assembled result.
func Assemble(scanID string, o Outcome) ScanResult {
	var warnings warningSet
	warnings.add(o.Warnings...)
	warnings.add(o.Resolution.Warnings...)

	result := ScanResult{ScanID: scanID}

	switch {
	case !o.Resolution.Status.OK():
		result.Status = o.Resolution.Status
	case o.Calibration == nil:
		result.Status = StatusInvalidReferenceGeometry
	case !o.CalibrationStatus.OK():
		result.Status = o.CalibrationStatus
		warnings.add("reference mask gives no usable scale")
	case o.Aggregation == nil:
		result.Status = StatusNoLeafDetected
		result.Calibration = o.Calibration
	default:
		warnings.add(o.Aggregation.Warnings...)
		result.Status = o.Aggregation.Status
		result.Calibration = o.Calibration
		if result.Status.OK() {
			result.Measurements = append([]LeafMeasurement(nil), o.Aggregation.Measurements...)
		}
	}

	if result.Status.OK() && len(result.Measurements) == 0 {
		result.Status = StatusNoLeafDetected
	}
	result.Warnings = warnings.values()
	return result
}

// Measure runs resolution, calibration and aggregation over one detection
// set and assembles the result. It is pure: the same instances and
// configuration always yield the same result.
//
// Arguments:
//   - scanID: The scan identifier.
//   - instances: Every instance found by the detector.
//   - cfg: The measurement configuration.
//
// Returns:
//   - ScanResult: The assembled result.
//
// @example
// result := Measure("scan-1", instances, DefaultConfig())
func Measure(scanID string, instances []inference.Instance, cfg Config) ScanResult {
	leaves, references, others := inference.Partition(instances)

	var o Outcome
	if len(others) > 0 {
		o.Warnings = append(o.Warnings, fmt.Sprintf("%d unrelated instance(s) ignored", len(others)))
	}

	o.Resolution = ResolveReference(references, cfg.ReferenceConfidenceThreshold)
	if !o.Resolution.Status.OK() {
		return Assemble(scanID, o)
	}

	cal, status := Calibrate(*o.Resolution.Reference, cfg.ReferenceDiameter)
	o.Calibration, o.CalibrationStatus = &cal, status
	if !status.OK() {
		return Assemble(scanID, o)
	}

	agg := AggregateLeaves(leaves, cal, cfg)
	o.Aggregation = &agg
	return Assemble(scanID, o)
}

// Failed builds the result of a scan that never produced detections, such
// as a detector timeout or crash. StatusOK is not a failure and is reported
// as StatusDetectionFailed.
func Failed(scanID string, status Status, warnings ...string) ScanResult {
	if status.OK() {
		status = StatusDetectionFailed
	}
	var w warningSet
	w.add(warnings...)
	return ScanResult{ScanID: scanID, Status: status, Warnings: w.values()}
}
