// Package providers - Execution providers and the process-wide ONNX Runtime environment.
package providers

import (
	"fmt"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers
type ProviderBackend string

// ProviderOptions is a marker interface for provider-specific config.
type ProviderOptions interface {
	isProviderOptions()
}

// ExecutionProvider represents the contract that all execution providers must implement.
type ExecutionProvider interface {
	// Backend returns the backend identifier.
	Backend() ProviderBackend
	// Options returns the provider-specific options.
	Options() ProviderOptions
	// Append registers the provider on a set of session options.
	Append(options *ort.SessionOptions) error
}

// NewProvider creates a new provider based on the configured backend.
//
// Arguments:
//   - cfg: The provider configuration. An empty backend selects the CPU.
//
// Returns:
//   - ExecutionProvider: The new provider.
//   - error: An error if the backend is unknown.
func NewProvider(cfg Config) (ExecutionProvider, error) {
	switch cfg.Backend {
	case "", CPUProviderBackend:
		return NewCPUProvider(), nil
	case CoreMLProviderBackend:
		return NewCoreMLProvider(cfg.CoreML), nil
	case CUDAProviderBackend:
		return NewCUDAProvider(cfg.CUDA), nil
	case OpenVINOProviderBackend:
		return NewOpenVINOProvider(cfg.OpenVINO), nil
	default:
		return nil, errors.Errorf("no matching provider backend registered: %s", cfg.Backend)
	}
}

// Config represents the execution provider and threading configuration for
// ONNX Runtime sessions.
type Config struct {
	// Backend specifies the backend to use.
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// LibraryPath overrides the ONNX Runtime shared library location.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// IntraOpThreads sets threads for parallelizing ops (0 lets ORT decide).
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads sets threads for parallelizing independent ops (0 lets ORT decide).
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
	// CoreML contains CoreML options, used when Backend is coreml.
	CoreML CoreMLOptions `json:"coreml" yaml:"coreml"`
	// CUDA contains CUDA options, used when Backend is cuda.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda"`
	// OpenVINO contains OpenVINO options, used when Backend is openvino.
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// DefaultConfig returns a CPU configuration that lets ONNX Runtime size its
// thread pools.
//
// @example
// cfg := DefaultConfig()
// cfg.Backend = CUDAProviderBackend
func DefaultConfig() Config {
	return Config{
		Backend: CPUProviderBackend,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.IntraOpThreads < 0 {
		return fmt.Errorf("intra_op_threads must be >= 0, got %d", c.IntraOpThreads)
	}
	if c.InterOpThreads < 0 {
		return fmt.Errorf("inter_op_threads must be >= 0, got %d", c.InterOpThreads)
	}
	_, err := NewProvider(c)
	return err
}
