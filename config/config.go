// Package config - Service configuration loaded from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/leafscan/inference/detectors"
	"github.com/nvr-ai/leafscan/inference/providers"
	"github.com/nvr-ai/leafscan/measure"
	"github.com/nvr-ai/leafscan/models"
	"github.com/nvr-ai/leafscan/scan"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete leafscan configuration.
type Config struct {
	// Measure holds the calibration and acceptance settings.
	Measure measure.Config `json:"measure" yaml:",inline"`
	// DetectionTimeout bounds the detection of a single scan.
	DetectionTimeout time.Duration `json:"detection_timeout" yaml:"detection_timeout"`
	// Workers is the number of concurrent detections.
	Workers int `json:"workers" yaml:"workers"`
	// OutputDir receives annotated images. Empty disables annotation.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `json:"log_level" yaml:"log_level"`
	// Server configures the HTTP interface.
	Server ServerConfig `json:"server" yaml:"server"`
	// Model configures the detector backend.
	Model ModelConfig `json:"model" yaml:"model"`
}

// ServerConfig configures the HTTP interface.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr" yaml:"addr"`
	// MaxUploadBytes caps request bodies.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// ModelConfig selects and tunes the instance detector.
type ModelConfig struct {
	// Name is the registered model family name.
	Name string `json:"name" yaml:"name"`
	// Path is the ONNX model file.
	Path string `json:"path" yaml:"path"`
	// InferenceURL selects the remote backend when set.
	InferenceURL string `json:"inference_url" yaml:"inference_url"`
	// RemoteTimeout bounds a single remote request.
	RemoteTimeout time.Duration `json:"remote_timeout" yaml:"remote_timeout"`
	// MaxEdge shrinks larger photos before detection. Zero disables it.
	MaxEdge int `json:"max_edge" yaml:"max_edge"`
	// Provider selects the ONNX Runtime execution provider.
	Provider providers.Config `json:"provider" yaml:"provider"`
	// Detector tunes segmentation decoding.
	Detector detectors.Config `json:"detector" yaml:"detector"`
}

// DefaultConfig returns the defaults for a local CPU model and a 500 IDR
// reference coin.
//
// Returns:
//   - Config: The default configuration.
//
// @example
// cfg := config.DefaultConfig()
// cfg.Workers = 4
func DefaultConfig() Config {
	return Config{
		Measure:          measure.DefaultConfig(),
		DetectionTimeout: 30 * time.Second,
		Workers:          2,
		LogLevel:         "info",
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 50 << 20,
		},
		Model: ModelConfig{
			Name:          models.DefaultModel,
			Path:          "models/leafscan-seg.onnx",
			RemoteTimeout: 20 * time.Second,
			Provider:      providers.DefaultConfig(),
			Detector:      detectors.DefaultConfig(),
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values.
//
// Arguments:
//   - path: The YAML file path.
//
// Returns:
//   - Config: The merged configuration, not yet validated.
//   - error: An error if the file cannot be read or parsed.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv() error {
	c.Server.Addr = listenAddr(getEnv("PORT", c.Server.Addr))
	c.Model.Path = getEnv("MODEL_PATH", c.Model.Path)
	c.Model.InferenceURL = getEnv("INFERENCE_URL", c.Model.InferenceURL)
	c.Model.Provider.LibraryPath = getEnv(providers.LibraryPathEnv, c.Model.Provider.LibraryPath)
	c.Model.Provider.Backend = providers.ProviderBackend(getEnv("LEAFSCAN_BACKEND", string(c.Model.Provider.Backend)))
	c.OutputDir = getEnv("LEAFSCAN_OUTPUT_DIR", c.OutputDir)
	c.LogLevel = getEnv("LEAFSCAN_LOG_LEVEL", c.LogLevel)

	var err error
	floats := []struct {
		key string
		dst *float64
	}{
		{"LEAFSCAN_REFERENCE_DIAMETER", &c.Measure.ReferenceDiameter},
		{"LEAFSCAN_REFERENCE_THRESHOLD", &c.Measure.ReferenceConfidenceThreshold},
		{"LEAFSCAN_LEAF_THRESHOLD", &c.Measure.LeafConfidenceThreshold},
		{"LEAFSCAN_OVERLAP_FRACTION", &c.Measure.OverlapConflictFraction},
	}
	for _, f := range floats {
		if v := os.Getenv(f.key); v != "" {
			if *f.dst, err = strconv.ParseFloat(v, 64); err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
		}
	}
	if v := os.Getenv("LEAFSCAN_DETECTION_TIMEOUT"); v != "" {
		if c.DetectionTimeout, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("LEAFSCAN_DETECTION_TIMEOUT: %w", err)
		}
	}
	if v := os.Getenv("LEAFSCAN_WORKERS"); v != "" {
		if c.Workers, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("LEAFSCAN_WORKERS: %w", err)
		}
	}
	return nil
}

// Validate checks every section. Errors wrap ErrInvalid.
func (c Config) Validate() error {
	if err := c.ScanOptions().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalid)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: server.max_upload_bytes must be positive", ErrInvalid)
	}
	if c.Model.InferenceURL == "" && c.Model.Path == "" {
		return fmt.Errorf("%w: model.path or model.inference_url is required", ErrInvalid)
	}
	if _, err := models.NewModel(c.Model.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Model.Provider.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Model.Detector.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ScanOptions returns the scan service options.
func (c Config) ScanOptions() scan.Options {
	return scan.Options{
		Measure:          c.Measure,
		DetectionTimeout: c.DetectionTimeout,
		Workers:          c.Workers,
		MaxEdge:          c.Model.MaxEdge,
	}
}

// Remote reports whether the remote inference backend is selected.
func (c Config) Remote() bool {
	return c.Model.InferenceURL != ""
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// listenAddr accepts either a bare port ("8080") or an address (":8080").
func listenAddr(v string) string {
	if _, err := strconv.Atoi(v); err == nil {
		return ":" + v
	}
	return v
}
