package detectors

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/leafscan/inference/providers"
	"github.com/nvr-ai/leafscan/models"
)

// YOLOSeg runs a YOLO segmentation export in-process through ONNX Runtime.
//
// The session and its tensors are created once and reused. Runs are
// serialized because the input and output tensors are shared; decoding
// happens on copies so that the next image can start inferring while the
// previous masks are assembled.
type YOLOSeg struct {
	mu      sync.Mutex
	session *providers.Session
	spec    models.Spec
	layout  Layout
	classes *models.OutputClassSet
	cfg     Config
}

// NewYOLOSeg loads a segmentation model.
//
// Arguments:
//   - provider: The execution provider for the session.
//   - spec: The registered tensor layout of the model.
//   - modelPath: The path to the ONNX model file.
//   - cfg: The decoding configuration; cfg.Classes sets the class order.
//   - threads: Threading configuration forwarded to the session.
//
// Returns:
//   - *YOLOSeg: The ready detector.
//   - error: providers.ErrNotInitialized if the runtime is not initialized, or a load error.
func NewYOLOSeg(provider providers.ExecutionProvider, spec models.Spec, modelPath string, cfg Config, threads providers.Config) (*YOLOSeg, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid detector config")
	}
	if spec.Family != models.ModelFamilyYOLOSeg {
		return nil, errors.Errorf("model %s is not a YOLO segmentation export", spec.Name)
	}

	classes := models.NewOutputClassSet(spec.Family, cfg.Classes...)
	layout := LayoutFor(spec, classes.Len())

	session, err := providers.NewSession(provider, providers.NewSessionArgs{
		ModelPath: modelPath,
		Inputs: []providers.TensorSpec{
			{Name: spec.InputName, Shape: []int64{1, 3, int64(spec.InputSize), int64(spec.InputSize)}},
		},
		Outputs: []providers.TensorSpec{
			{Name: spec.OutputNames[0], Shape: layout.DetectionShape()},
			{Name: spec.OutputNames[1], Shape: layout.PrototypeShape()},
		},
		IntraOpThreads: threads.IntraOpThreads,
		InterOpThreads: threads.InterOpThreads,
	})
	if err != nil {
		return nil, err
	}

	return &YOLOSeg{
		session: session,
		spec:    spec,
		layout:  layout,
		classes: classes,
		cfg:     cfg,
	}, nil
}

// Detect runs inference on the provided image.
//
// ONNX Runtime runs cannot be interrupted, so cancellation is honoured before
// the run and before decoding.
//
// Arguments:
//   - ctx: The context for the detection.
//   - img: The image to detect instances in.
//
// Returns:
//   - []models.Instance: Instances with masks sized like img.
//   - error: ctx.Err() when cancelled, or an inference error.
func (d *YOLOSeg) Detect(ctx context.Context, img image.Image) ([]models.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.New("image has no pixels")
	}

	detections, protos, err := d.infer(ctx, img)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Postprocess(detections, protos, d.layout, d.cfg, d.classes, b.Dx(), b.Dy())
}

func (d *YOLOSeg) infer(ctx context.Context, img image.Image) ([]float32, []float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, nil, errors.New("model not loaded")
	}
	// The wait for the lock may have outlived the caller.
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if err := PrepareInput(img, d.session.Inputs[0].GetData(), d.spec.InputSize); err != nil {
		return nil, nil, errors.Wrap(err, "failed to prepare input")
	}
	if err := d.session.Run(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run inference")
	}

	detections := append([]float32(nil), d.session.Outputs[0].GetData()...)
	protos := append([]float32(nil), d.session.Outputs[1].GetData()...)
	return detections, protos, nil
}

// Classes returns the class set used for labelling.
func (d *YOLOSeg) Classes() *models.OutputClassSet {
	return d.classes
}

// Close releases the session.
func (d *YOLOSeg) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	return err
}
