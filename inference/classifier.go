package inference

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/tumorclassifier/images"
	"github.com/nvr-ai/tumorclassifier/models"
)

// Classifier produces a probability vector over the tumor classes for one input.
type Classifier interface {
	// Name returns the model the classifier serves.
	Name() models.Name
	// Classify runs one forward pass.
	Classify(ctx context.Context, input *images.Tensor) ([]float32, error)
	// Close releases native resources.
	Close() error
}

// ONNXClassifier serves one model from an ONNX Runtime session.
//
// The session binds a single pair of tensors, so calls are serialized.
type ONNXClassifier struct {
	name    models.Name
	mu      sync.Mutex
	session *Session
}

// NewONNXClassifier loads a model artifact into a session.
//
// Arguments:
//   - desc: The model descriptor.
//   - options: Session options with the execution provider applied.
//   - args: Session arguments (model path and shapes).
//
// Returns:
//   - *ONNXClassifier: The classifier.
//   - error: An error if the model cannot be loaded.
func NewONNXClassifier(
	desc models.Descriptor,
	options *ort.SessionOptions,
	args NewSessionArgs,
) (*ONNXClassifier, error) {
	session, err := NewSession(options, args)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", desc.Name)
	}
	return &ONNXClassifier{name: desc.Name, session: session}, nil
}

// Name returns the model the classifier serves.
func (c *ONNXClassifier) Name() models.Name {
	return c.name
}

// Classify runs the model on a (1, size, size, 3) tensor.
func (c *ONNXClassifier) Classify(ctx context.Context, input *images.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, errors.Errorf("classifier %s is closed", c.name)
	}
	if err := PrepareInput(input, c.session.Input); err != nil {
		return nil, err
	}
	if err := c.session.Session.Run(); err != nil {
		return nil, errors.Wrapf(err, "run %s", c.name)
	}

	out := c.session.Output.GetData()
	probs := make([]float32, len(out))
	copy(probs, out)
	return probs, nil
}

// Close destroys the session.
func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}
