package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
)

// CoreMLProvider implements the ExecutionProvider interface.
type CoreMLProvider struct {
	options CoreMLOptions
}

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// MLProgram: Create an MLProgram format model. Requires Core ML 5 or later (iOS 15+ or macOS 12+).
	// NeuralNetwork: Create a NeuralNetwork format model.
	// Default: NeuralNetwork
	ModelFormat string `json:"modelFormat"              yaml:"modelFormat"`
	// CPUOnly: Limit CoreML to running on CPU only.
	// CPUAndNeuralEngine: Only enable devices with a compatible Apple Neural Engine (ANE).
	// ALL: Enable CoreML EP for all compatible Apple devices.
	// Default: ALL
	MLComputeUnits string `json:"mlComputeUnits"           yaml:"mlComputeUnits"`
	// 1: Only allow the CoreML EP to take nodes with inputs that have static shapes.
	// Default: 0
	RequireStaticInputShapes int `json:"requireStaticInputShapes" yaml:"requireStaticInputShapes"`
	// 1: Enable CoreML EP to run on a subgraph in the body of a control flow operator.
	// Default: 0
	EnableOnSubgraphs int `json:"enableOnSubgraphs"        yaml:"enableOnSubgraphs"`
}

func (CoreMLOptions) isProviderOptions() {}

// Backend returns the backend of the CoreML provider.
func (p *CoreMLProvider) Backend() ProviderBackend {
	return CoreMLProviderBackend
}

// Options returns the options of the CoreML provider.
func (p *CoreMLProvider) Options() ProviderOptions {
	return p.options
}

// CoreML flags understood by the legacy AppendExecutionProviderCoreML entry point.
const (
	coreMLFlagUseCPUOnly                = 0x001
	coreMLFlagEnableOnSubgraph          = 0x002
	coreMLFlagOnlyEnableDeviceWithANE   = 0x004
	coreMLFlagOnlyAllowStaticInputShape = 0x008
	coreMLFlagCreateMLProgram           = 0x010
)

// Append enables CoreML on the session options.
func (p *CoreMLProvider) Append(options *ort.SessionOptions) error {
	if err := options.AppendExecutionProviderCoreML(p.options.flags()); err != nil {
		return errors.Wrap(err, "error enabling CoreML")
	}
	return nil
}

func (o CoreMLOptions) flags() uint32 {
	var flags uint32
	switch o.MLComputeUnits {
	case "CPUOnly":
		flags |= coreMLFlagUseCPUOnly
	case "CPUAndNeuralEngine":
		flags |= coreMLFlagOnlyEnableDeviceWithANE
	}
	if o.ModelFormat == "MLProgram" {
		flags |= coreMLFlagCreateMLProgram
	}
	if o.RequireStaticInputShapes != 0 {
		flags |= coreMLFlagOnlyAllowStaticInputShape
	}
	if o.EnableOnSubgraphs != 0 {
		flags |= coreMLFlagEnableOnSubgraph
	}
	return flags
}

// NewCoreMLProvider creates a new CoreML provider.
func NewCoreMLProvider(options CoreMLOptions) *CoreMLProvider {
	return &CoreMLProvider{
		options: options,
	}
}
