// Package detectors - Segmentation backends that turn an image into leaf and reference instances.
package detectors

import (
	"fmt"
	"time"

	"github.com/nvr-ai/leafscan/models"
)

// Config represents the configuration for segmentation decoding.
//
// Thresholds here only discard model noise; the acceptance thresholds that
// decide whether a coin or leaf is trusted are applied later by the measuring
// pipeline so that rejected candidates can still be reported.
type Config struct {
	// ConfidenceThreshold filters candidates below this score.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// NMSThreshold controls Non-Maximum Suppression IoU threshold.
	NMSThreshold float32 `json:"nms_threshold" yaml:"nms_threshold"`

	// MaskThreshold is the probability above which a mask pixel is set.
	MaskThreshold float32 `json:"mask_threshold" yaml:"mask_threshold"`

	// Classes are the model class names in index order.
	Classes []string `json:"classes" yaml:"classes"`

	// MaxDetections caps the number of instances returned per image.
	MaxDetections int `json:"max_detections" yaml:"max_detections"`
}

// DefaultConfig returns the decoding defaults for the coin/leaf model.
//
// Returns:
//   - Config: Decoding configuration
//
// @example
// cfg := DefaultConfig()
// cfg.MaskThreshold = 0.6
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.25,
		NMSThreshold:        0.7,
		MaskThreshold:       0.5,
		Classes:             append([]string(nil), models.DefaultClassNames...),
		MaxDetections:       100,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be within [0,1], got %v", c.ConfidenceThreshold)
	}
	if c.NMSThreshold <= 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("nms_threshold must be within (0,1], got %v", c.NMSThreshold)
	}
	if c.MaskThreshold <= 0 || c.MaskThreshold >= 1 {
		return fmt.Errorf("mask_threshold must be within (0,1), got %v", c.MaskThreshold)
	}
	if len(c.Classes) == 0 {
		return fmt.Errorf("at least one class name is required")
	}
	if c.MaxDetections <= 0 {
		return fmt.Errorf("max_detections must be positive, got %d", c.MaxDetections)
	}
	return nil
}

// RemoteConfig configures the HTTP inference backend.
type RemoteConfig struct {
	// URL is the prediction endpoint accepting a multipart "file" upload.
	URL string `json:"url" yaml:"url"`
	// Timeout bounds a single request. The scan deadline still applies.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}
