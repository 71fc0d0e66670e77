package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// TensorSpec names a graph input or output and fixes its shape.
type TensorSpec struct {
	Name  string
	Shape []int64
}

// Session represents a model session from the onnxruntime with preallocated
// float32 input and output tensors.
type Session struct {
	Session *ort.AdvancedSession
	Inputs  []*ort.Tensor[float32]
	Outputs []*ort.Tensor[float32]
}

// Run executes the model over the current contents of the input tensors.
func (s *Session) Run() error {
	if s.Session == nil {
		return errors.New("session is closed")
	}
	if err := s.Session.Run(); err != nil {
		return errors.Wrap(err, "error running ORT session")
	}
	return nil
}

// Close releases the resources associated with the Session.
//
// Returns:
//   - error: An error if the native session fails to be destroyed.
func (s *Session) Close() error {
	destroyTensors(s.Inputs)
	s.Inputs = nil
	destroyTensors(s.Outputs)
	s.Outputs = nil

	if s.Session != nil {
		err := s.Session.Destroy()
		s.Session = nil
		if err != nil {
			return errors.Wrap(err, "error destroying ORT session")
		}
	}

	return nil
}

func destroyTensors(tensors []*ort.Tensor[float32]) {
	for _, t := range tensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// NewSessionArgs represents the arguments for creating a new ONNX session.
type NewSessionArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// The inputs of the model.
	Inputs []TensorSpec
	// The outputs of the model.
	Outputs []TensorSpec
	// Threading configuration.
	IntraOpThreads int
	InterOpThreads int
}

// NewSession creates a new ONNX Runtime session.
//
// Order of operations:
//  1. Environment check: Initialize must have been called.
//  2. Tensor allocation: Prepares fixed-shape buffers for input/output data.
//  3. Session options: Threading, graph optimization level and execution provider.
//  4. Session creation: Loads model and binds resources.
//
// Arguments:
//   - provider: The execution provider for the session.
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: Wrapped Session struct that holds the native session and tensors for inference.
//   - error: ErrNotInitialized, or an error if the session creation fails.
func NewSession(provider ExecutionProvider, args NewSessionArgs) (*Session, error) {
	if !Initialized() {
		return nil, ErrNotInitialized
	}
	if len(args.Inputs) == 0 || len(args.Outputs) == 0 {
		return nil, errors.New("session requires at least one input and one output")
	}

	s := &Session{}
	inputNames := make([]string, 0, len(args.Inputs))
	inputValues := make([]ort.Value, 0, len(args.Inputs))
	for _, spec := range args.Inputs {
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.Shape...))
		if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "error creating input tensor %q", spec.Name)
		}
		s.Inputs = append(s.Inputs, t)
		inputNames = append(inputNames, spec.Name)
		inputValues = append(inputValues, t)
	}

	outputNames := make([]string, 0, len(args.Outputs))
	outputValues := make([]ort.Value, 0, len(args.Outputs))
	for _, spec := range args.Outputs {
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.Shape...))
		if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "error creating output tensor %q", spec.Name)
		}
		s.Outputs = append(s.Outputs, t)
		outputNames = append(outputNames, spec.Name)
		outputValues = append(outputValues, t)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(args.IntraOpThreads); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(args.InterOpThreads); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "error setting graph optimization level")
	}

	if provider != nil {
		if err := provider.Append(options); err != nil {
			s.Close()
			return nil, err
		}
	}

	session, err := ort.NewAdvancedSession(
		args.ModelPath,
		inputNames,
		outputNames,
		inputValues,
		outputValues,
		options,
	)
	if err != nil {
		s.Close()
		return nil, errors.Wrapf(err, "error creating ORT session for %s", args.ModelPath)
	}
	s.Session = session

	return s, nil
}
