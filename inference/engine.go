package inference

import (
	"context"
	"errors"
	"image"
	"io"

	"github.com/nvr-ai/leafscan/inference/detectors"
	"github.com/nvr-ai/leafscan/inference/providers"
	"github.com/nvr-ai/leafscan/models"
)

// ModelArgs selects a registered model and its weights.
type ModelArgs struct {
	// Name is a models registry key; empty selects models.DefaultModel.
	Name string `json:"name" yaml:"name"`
	// Path is the ONNX file.
	Path string `json:"path" yaml:"path"`
}

// Engine is a ready-to-use Detector backed by a model session or an external
// service. It is safe for concurrent use; scans never mutate it.
type Engine struct {
	name     string
	detector Detector
	closer   io.Closer
}

// Detect runs the backend on one image.
//
// Arguments:
//   - ctx: The context for the detection.
//   - img: The image to detect instances in.
//
// Returns:
//   - []Instance: The detected instances.
//   - error: The error if any.
func (e *Engine) Detect(ctx context.Context, img image.Image) ([]Instance, error) {
	return e.detector.Detect(ctx, img)
}

// Name describes the backend, e.g. "yolo11n-seg" or "remote".
func (e *Engine) Name() string {
	return e.name
}

// CheckHealth asks the backend whether it can serve requests. Local model
// sessions are healthy once built.
func (e *Engine) CheckHealth(ctx context.Context) error {
	if hc, ok := e.detector.(interface {
		CheckHealth(ctx context.Context) error
	}); ok {
		return hc.CheckHealth(ctx)
	}
	return nil
}

// Close releases the backend. The ONNX Runtime environment itself is left
// for providers.Shutdown.
func (e *Engine) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

// EngineBuilder assembles an Engine with a fluent API.
type EngineBuilder struct {
	providerCfg providers.Config
	provider    providers.ExecutionProvider
	spec        *models.Spec
	modelPath   string
	detectorCfg detectors.Config
	remote      *detectors.RemoteConfig
	err         error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{detectorCfg: detectors.DefaultConfig()}
}

// WithProvider sets the execution provider for the engine.
//
// Arguments:
//   - cfg: The provider configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithProvider(cfg providers.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if err := cfg.Validate(); err != nil {
		b.err = err
		return b
	}

	provider, err := providers.NewProvider(cfg)
	if err != nil {
		b.err = err
		return b
	}
	b.providerCfg = cfg
	b.provider = provider
	return b
}

// WithModel sets the model for the engine.
//
// Arguments:
//   - args: The model arguments.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(args ModelArgs) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if args.Path == "" {
		b.err = errors.New("model path is required")
		return b
	}
	spec, err := models.NewModel(args.Name)
	if err != nil {
		b.err = err
		return b
	}
	b.spec = &spec
	b.modelPath = args.Path
	return b
}

// WithDetector sets the decoding configuration.
//
// Arguments:
//   - cfg: The detector configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithDetector(cfg detectors.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if err := cfg.Validate(); err != nil {
		b.err = err
		return b
	}
	b.detectorCfg = cfg
	return b
}

// WithRemote makes the engine delegate to an external inference service
// instead of a local model.
func (b *EngineBuilder) WithRemote(cfg detectors.RemoteConfig) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.remote = &cfg
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the engine and panics if there is an error.
//
// Returns:
//   - *Engine: The engine.
func (b *EngineBuilder) MustBuild() *Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// Build builds the engine. A local model initializes the process-wide ONNX
// Runtime environment on first use.
//
// Returns:
//   - *Engine: The engine.
//   - error: The error if any.
func (b *EngineBuilder) Build() (*Engine, error) {
	if b.HasError() {
		return nil, b.err
	}

	if b.remote != nil {
		remote, err := detectors.NewRemote(*b.remote)
		if err != nil {
			return nil, err
		}
		return &Engine{name: string(models.ModelFamilyRemote), detector: remote, closer: remote}, nil
	}

	if b.provider == nil {
		return nil, errors.New("provider not configured")
	}
	if b.spec == nil {
		return nil, errors.New("model not configured")
	}

	if err := providers.Initialize(b.providerCfg); err != nil {
		return nil, err
	}
	seg, err := detectors.NewYOLOSeg(b.provider, *b.spec, b.modelPath, b.detectorCfg, b.providerCfg)
	if err != nil {
		return nil, err
	}
	return &Engine{name: b.spec.Name, detector: seg, closer: seg}, nil
}
