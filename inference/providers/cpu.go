package providers

import ort "github.com/yalue/onnxruntime_go"

const (
	// CPUProviderBackend uses the default ONNX Runtime CPU kernels.
	CPUProviderBackend ProviderBackend = "cpu"
)

// CPUOptions is empty; the CPU provider has nothing to configure.
type CPUOptions struct{}

func (CPUOptions) isProviderOptions() {}

// CPUProvider implements the ExecutionProvider interface.
type CPUProvider struct{}

// NewCPUProvider creates a new CPU provider.
func NewCPUProvider() *CPUProvider {
	return &CPUProvider{}
}

// Backend returns the backend of the CPU provider.
func (p *CPUProvider) Backend() ProviderBackend {
	return CPUProviderBackend
}

// Options returns the options of the CPU provider.
func (p *CPUProvider) Options() ProviderOptions {
	return CPUOptions{}
}

// Append is a no-op: the CPU provider is always registered by ONNX Runtime.
func (p *CPUProvider) Append(*ort.SessionOptions) error {
	return nil
}
