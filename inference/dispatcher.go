// Package inference - Model dispatch in live and demo modes.
package inference

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/nvr-ai/tumorclassifier/images"
	"github.com/nvr-ai/tumorclassifier/models"
)

// Mode is the inference mode fixed at startup.
type Mode string

const (
	// ModeLive runs every loaded classifier.
	ModeLive Mode = "live"
	// ModeDemo returns fixed results without touching the image.
	ModeDemo Mode = "demo"
)

// ErrNoModelSucceeded is returned when every model failed on an input.
var ErrNoModelSucceeded = errors.New("all models failed")

// Observer receives per-model inference timings.
type Observer interface {
	ObserveInference(model models.Name, elapsed time.Duration, err error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLatencyRange sets the simulated demo latency.
func WithLatencyRange(l LatencyRange) Option {
	return func(d *Dispatcher) { d.latency = l }
}

// WithRand sets the random source used for demo latency.
func WithRand(rng *rand.Rand) Option {
	return func(d *Dispatcher) { d.rng = rng }
}

// WithFailFast aborts a request on the first model error instead of reporting it per model.
func WithFailFast(failFast bool) Option {
	return func(d *Dispatcher) { d.failFast = failFast }
}

// WithObserver reports per-model timings to o.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithPreprocessConfig overrides the preprocessing used by ClassifyFile.
func WithPreprocessConfig(cfg images.PreprocessConfig) Option {
	return func(d *Dispatcher) { d.preprocess = cfg }
}

// withRuntime marks the dispatcher as owner of the runtime environment.
func withRuntime(release func() error) Option {
	return func(d *Dispatcher) { d.releaseRuntime = release }
}

// Dispatcher runs every registered model on an input. Its mode and model set
// do not change after construction.
type Dispatcher struct {
	registry    *models.Registry
	classifiers []Classifier
	mode        Mode

	preprocess     images.PreprocessConfig
	latency        LatencyRange
	failFast       bool
	observer       Observer
	releaseRuntime func() error

	rngMu sync.Mutex
	rng   *rand.Rand
}

func newDispatcher(registry *models.Registry, mode Mode, opts []Option) *Dispatcher {
	d := &Dispatcher{
		registry:   registry,
		mode:       mode,
		preprocess: images.DefaultPreprocessConfig(),
		latency:    DefaultLatencyRange(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.rng == nil {
		d.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	return d
}

// NewDemoDispatcher creates a dispatcher that serves fixed results.
//
// Arguments:
//   - registry: The model registry.
//   - opts: Dispatcher options.
//
// Returns:
//   - *Dispatcher: The demo dispatcher.
func NewDemoDispatcher(registry *models.Registry, opts ...Option) *Dispatcher {
	return newDispatcher(registry, ModeDemo, opts)
}

// NewLiveDispatcher creates a dispatcher over loaded classifiers.
//
// Arguments:
//   - registry: The model registry.
//   - classifiers: One classifier per registered model, in registry order.
//   - opts: Dispatcher options.
//
// Returns:
//   - *Dispatcher: The live dispatcher.
//   - error: An error if the classifiers do not match the registry.
func NewLiveDispatcher(registry *models.Registry, classifiers []Classifier, opts ...Option) (*Dispatcher, error) {
	names := registry.Names()
	if len(classifiers) != len(names) {
		return nil, errors.Errorf("expected %d classifiers, got %d", len(names), len(classifiers))
	}
	for i, c := range classifiers {
		if c == nil || c.Name() != names[i] {
			return nil, errors.Errorf("classifier %d does not serve %s", i, names[i])
		}
	}

	d := newDispatcher(registry, ModeLive, opts)
	d.classifiers = classifiers
	return d, nil
}

// Mode returns the inference mode.
func (d *Dispatcher) Mode() Mode {
	return d.mode
}

// DemoMode reports whether fixed results are served.
func (d *Dispatcher) DemoMode() bool {
	return d.mode == ModeDemo
}

// Registry returns the model registry.
func (d *Dispatcher) Registry() *models.Registry {
	return d.registry
}

// PreprocessConfig returns the pipeline applied by ClassifyFile.
func (d *Dispatcher) PreprocessConfig() images.PreprocessConfig {
	return d.preprocess
}

// ClassifyFile classifies an uploaded image with every model.
// In demo mode the file is not read.
//
// Arguments:
//   - ctx: Cancelled when the client goes away.
//   - path: The saved upload.
//
// Returns:
//   - []Outcome: One outcome per model, in registry order.
//   - error: A preprocessing error, a context error, or ErrNoModelSucceeded.
func (d *Dispatcher) ClassifyFile(ctx context.Context, path string) ([]Outcome, error) {
	if d.DemoMode() {
		return d.Demo(), nil
	}

	input, err := images.Preprocess(path, d.preprocess)
	if err != nil {
		return nil, err
	}
	return d.Dispatch(ctx, input)
}

// Demo returns the fixed demo outcomes.
func (d *Dispatcher) Demo() []Outcome {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return DemoPredictions(d.registry, d.rng, d.latency)
}

// Dispatch runs every classifier on one input, in registry order.
//
// A failing model is reported in its outcome and the remaining models still
// run, unless fail-fast is set. The context is checked between models.
//
// Arguments:
//   - ctx: The request context.
//   - input: The preprocessed image.
//
// Returns:
//   - []Outcome: One outcome per model.
//   - error: A context error, the first model error under fail-fast, or
//     ErrNoModelSucceeded.
func (d *Dispatcher) Dispatch(ctx context.Context, input *images.Tensor) ([]Outcome, error) {
	if d.DemoMode() {
		return d.Demo(), nil
	}

	descs := d.registry.Descriptors()
	outcomes := make([]Outcome, len(descs))
	for i, desc := range descs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pred, err := d.classifyOne(ctx, desc, d.classifiers[i], input)
		if err != nil && d.failFast {
			return nil, errors.Wrapf(err, "model %s", desc.Name)
		}
		outcomes[i] = Outcome{Prediction: pred, Err: err}
	}

	if Succeeded(outcomes) == 0 {
		return outcomes, ErrNoModelSucceeded
	}
	return outcomes, nil
}

func (d *Dispatcher) classifyOne(
	ctx context.Context,
	desc models.Descriptor,
	c Classifier,
	input *images.Tensor,
) (Prediction, error) {
	pred := descriptorPrediction(desc)

	start := time.Now()
	probs, err := c.Classify(ctx, input)
	elapsed := time.Since(start)
	if err == nil {
		err = d.label(&pred, probs)
	}
	if d.observer != nil {
		d.observer.ObserveInference(desc.Name, elapsed, err)
	}
	if err != nil {
		return pred, err
	}

	pred.ProcessingTime = FormatProcessingTime(elapsed)
	return pred, nil
}

func (d *Dispatcher) label(pred *Prediction, probs []float32) error {
	classes := d.registry.Classes()
	if len(probs) != classes.Len() {
		return errors.Errorf("expected %d probabilities, got %d", classes.Len(), len(probs))
	}

	idx, p := Argmax(probs)
	name, err := classes.GetName(idx)
	if err != nil {
		return err
	}

	pred.Prediction = name
	pred.Confidence = FormatConfidence(float64(p) * 100)
	return nil
}

// Close releases every classifier and the runtime if this dispatcher initialized it.
func (d *Dispatcher) Close() error {
	var result *multierror.Error
	for _, c := range d.classifiers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "close %s", c.Name()))
		}
	}
	if d.releaseRuntime != nil {
		result = multierror.Append(result, d.releaseRuntime())
		d.releaseRuntime = nil
	}
	return result.ErrorOrNil()
}
