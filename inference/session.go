// Package inference - Inference sessions.
package inference

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Session represents a model session from the onnxruntime with its bound tensors.
type Session struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

// Close releases the resources associated with the Session.
//
// Returns:
//   - error: Every destroy failure, aggregated.
func (s *Session) Close() error {
	var result *multierror.Error
	if s.Input != nil {
		result = multierror.Append(result, s.Input.Destroy())
		s.Input = nil
	}
	if s.Output != nil {
		result = multierror.Append(result, s.Output.Destroy())
		s.Output = nil
	}
	if s.Session != nil {
		result = multierror.Append(result, s.Session.Destroy())
		s.Session = nil
	}
	return result.ErrorOrNil()
}

// NewSessionArgs represents the arguments for creating a classifier session.
type NewSessionArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// The input and output names, discovered from the model when empty.
	InputName  string
	OutputName string
	// The square input edge.
	Size int
	// The number of input channels.
	Channels int
	// The number of output classes.
	Classes int
}

// NewSession creates a new ONNX classifier session.
//
// Order of operations:
//  1. Name discovery: Reads the first input and output names from the model
//     unless both are given.
//  2. Tensor allocation: (1, Size, Size, Channels) input and (1, Classes) output.
//  3. Session creation: Loads the model and binds the tensors.
//
// The runtime must already be initialized.
//
// Arguments:
//   - options: Session options with the execution provider applied.
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: The session holding the native session and tensors.
//   - error: An error if the session creation fails.
func NewSession(options *ort.SessionOptions, args NewSessionArgs) (*Session, error) {
	inputName, outputName, err := resolveNames(args)
	if err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](
		ort.NewShape(1, int64(args.Size), int64(args.Size), int64(args.Channels)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(args.Classes)))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	session, err := ort.NewAdvancedSession(
		args.ModelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	return &Session{
		Session: session,
		Input:   input,
		Output:  output,
	}, nil
}

func resolveNames(args NewSessionArgs) (string, string, error) {
	if args.InputName != "" && args.OutputName != "" {
		return args.InputName, args.OutputName, nil
	}

	inputs, outputs, err := ort.GetInputOutputInfo(args.ModelPath)
	if err != nil {
		return "", "", errors.Wrapf(err, "error reading model info from %s", args.ModelPath)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return "", "", errors.Errorf("model %s has no inputs or outputs", args.ModelPath)
	}

	inputName, outputName := args.InputName, args.OutputName
	if inputName == "" {
		inputName = inputs[0].Name
	}
	if outputName == "" {
		outputName = outputs[0].Name
	}
	return inputName, outputName, nil
}
