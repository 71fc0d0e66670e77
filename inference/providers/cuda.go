package providers

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CUDAProviderBackend uses NVIDIA CUDA for inference optimization.
	CUDAProviderBackend ProviderBackend = "cuda"
)

// CUDAProvider implements the ExecutionProvider interface.
type CUDAProvider struct {
	options CUDAOptions
}

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID"              yaml:"deviceID"`
	// The size limit of the device memory arena in bytes. This size limit is only for the execution
	// provider's arena. The total device memory usage may be higher. Zero keeps the default.
	GPUMemLimit int64 `json:"gpuMemLimit"           yaml:"gpuMemLimit"`
	// The strategy for extending the device memory arena.
	// kNextPowerOfTwo - subsequent extensions extend by larger amounts (multiplied by powers of two)
	// kSameAsRequested - extend by the requested amount
	ArenaExtendStrategy string `json:"arenaExtendStrategy"   yaml:"arenaExtendStrategy"`
	// The type of search done for cuDNN convolution algorithms: EXHAUSTIVE, HEURISTIC or DEFAULT.
	CudnnConvAlgoSearch string `json:"cudnnConvAlgoSearch"   yaml:"cudnnConvAlgoSearch"`
	// Whether to do copies in the default stream or use separate streams. The recommended setting is
	// true. If false, there are race conditions and possibly better performance.
	DoCopyInDefaultStream bool `json:"doCopyInDefaultStream" yaml:"doCopyInDefaultStream"`
	// TF32 is a math mode available on NVIDIA GPUs since Ampere. It allows certain float32 matrix
	// multiplications and convolutions to run much faster on tensor cores with TensorFloat-32
	// reduced precision.
	UseTF32 bool `json:"useTF32"               yaml:"useTF32"`
	// If this option is enabled, the execution provider prefers NHWC operators over NCHW.
	PreferNHWC bool `json:"preferNHWC"            yaml:"preferNHWC"`
}

// toMap renders the options using the ORT option keys. Zero values are
// omitted so ONNX Runtime applies its defaults.
func (o CUDAOptions) toMap() map[string]string {
	m := map[string]string{
		"device_id":                 strconv.Itoa(o.DeviceID),
		"do_copy_in_default_stream": boolFlag(o.DoCopyInDefaultStream),
		"use_tf32":                  boolFlag(o.UseTF32),
		"prefer_nhwc":               boolFlag(o.PreferNHWC),
	}
	if o.GPUMemLimit > 0 {
		m["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}
	if o.ArenaExtendStrategy != "" {
		m["arena_extend_strategy"] = o.ArenaExtendStrategy
	}
	if o.CudnnConvAlgoSearch != "" {
		m["cudnn_conv_algo_search"] = o.CudnnConvAlgoSearch
	}
	return m
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ToNativeProviderOptions converts the CUDA options to a CUDA provider options.
// The caller owns the returned options and must Destroy them.
func (o CUDAOptions) ToNativeProviderOptions() (*ort.CUDAProviderOptions, error) {
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating CUDA provider options")
	}

	if err := opts.Update(o.toMap()); err != nil {
		opts.Destroy()
		return nil, errors.Wrap(err, "error updating CUDA provider options")
	}

	return opts, nil
}

// isProviderOptions is a marker function to ensure the options are valid.
func (CUDAOptions) isProviderOptions() {}

// Backend returns the backend of the CUDA provider.
func (p *CUDAProvider) Backend() ProviderBackend {
	return CUDAProviderBackend
}

// Options returns the options of the CUDA provider.
func (p *CUDAProvider) Options() ProviderOptions {
	return p.options
}

// Append enables CUDA on the session options.
func (p *CUDAProvider) Append(options *ort.SessionOptions) error {
	cuda, err := p.options.ToNativeProviderOptions()
	if err != nil {
		return err
	}
	defer cuda.Destroy()

	if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
		return errors.Wrap(err, "error enabling CUDA")
	}
	return nil
}

// NewCUDAProvider creates a new CUDA provider.
func NewCUDAProvider(args CUDAOptions) *CUDAProvider {
	return &CUDAProvider{
		options: args,
	}
}
