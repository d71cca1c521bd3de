// Package inference - Dispatcher construction and model loading.
package inference

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/tumorclassifier/images"
	"github.com/nvr-ai/tumorclassifier/inference/providers"
	"github.com/nvr-ai/tumorclassifier/models"
)

// Config controls how models are loaded and served.
type Config struct {
	// ModelsDir holds one ONNX artifact per registered model.
	ModelsDir string `json:"models_dir" yaml:"models_dir" mapstructure:"models_dir" validate:"required"`
	// SharedLibraryPath overrides the ONNX Runtime library location.
	SharedLibraryPath string `json:"shared_library_path" yaml:"shared_library_path" mapstructure:"shared_library_path"`
	// LibraryDirs are searched for the ONNX Runtime library when no path is set.
	LibraryDirs []string `json:"library_dirs" yaml:"library_dirs" mapstructure:"library_dirs"`
	// Demo forces demo mode without trying to load models.
	Demo bool `json:"demo" yaml:"demo" mapstructure:"demo"`
	// FailFast fails the whole request on the first model error.
	FailFast bool `json:"fail_fast" yaml:"fail_fast" mapstructure:"fail_fast"`
	// DemoLatency bounds the simulated processing time.
	DemoLatency LatencyRange `json:"demo_latency" yaml:"demo_latency" mapstructure:"demo_latency"`
	// Provider selects the execution provider.
	Provider providers.Config `json:"provider" yaml:"provider" mapstructure:"provider"`
	// Preprocess configures the shared image pipeline.
	Preprocess images.PreprocessConfig `json:"preprocess" yaml:"preprocess" mapstructure:"preprocess"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		ModelsDir:   "models",
		LibraryDirs: []string{"third_party", "/usr/local/lib", "/usr/lib"},
		DemoLatency: DefaultLatencyRange(),
		Provider:    providers.DefaultConfig(),
		Preprocess:  images.DefaultPreprocessConfig(),
	}
}

// Options returns the dispatcher options implied by the configuration.
func (c Config) Options() []Option {
	return []Option{
		WithLatencyRange(c.DemoLatency),
		WithFailFast(c.FailFast),
		WithPreprocessConfig(c.Preprocess),
	}
}

// Builder assembles a live Dispatcher with a fluent API.
type Builder struct {
	registry    *models.Registry
	provider    providers.ExecutionProvider
	providerCfg providers.Config
	ownsRuntime bool
	classifiers []Classifier
	err         error
}

// NewBuilder creates a new dispatcher builder.
//
// Arguments:
//   - registry: The models to load.
//
// Returns:
//   - *Builder: The builder.
func NewBuilder(registry *models.Registry) *Builder {
	return &Builder{registry: registry}
}

// WithRuntime initializes the ONNX Runtime environment.
//
// Arguments:
//   - libPath: Explicit library path, empty to search dirs.
//   - dirs: Directories searched for the platform library.
//
// Returns:
//   - *Builder: The builder.
func (b *Builder) WithRuntime(libPath string, dirs ...string) *Builder {
	if b.HasError() {
		return b
	}

	owns, err := providers.InitializeRuntime(libPath, dirs...)
	if err != nil {
		b.err = err
		return b
	}
	b.ownsRuntime = owns
	return b
}

// WithProvider sets the execution provider for every session.
//
// Arguments:
//   - cfg: The provider configuration.
//
// Returns:
//   - *Builder: The builder.
func (b *Builder) WithProvider(cfg providers.Config) *Builder {
	if b.HasError() {
		return b
	}

	provider, err := providers.NewProvider(cfg)
	if err != nil {
		b.err = err
		return b
	}
	b.provider = provider
	b.providerCfg = cfg
	return b
}

// WithModels loads one classifier per registered model from dir.
// Every model is attempted so that all failures are reported together.
//
// Arguments:
//   - dir: The directory holding the model artifacts.
//   - pre: The preprocessing configuration, which fixes the input shape.
//
// Returns:
//   - *Builder: The builder.
func (b *Builder) WithModels(dir string, pre images.PreprocessConfig) *Builder {
	if b.HasError() {
		return b
	}
	if b.provider == nil {
		b.err = errors.New("provider not configured")
		return b
	}

	var result *multierror.Error
	for _, d := range b.registry.Descriptors() {
		path := filepath.Join(dir, d.Filename)
		if _, err := os.Stat(path); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "model %s", d.Name))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		b.err = err
		return b
	}

	options, err := providers.NewSessionOptions(b.provider, b.providerCfg)
	if err != nil {
		b.err = err
		return b
	}
	defer options.Destroy()

	classes := b.registry.Classes().Len()
	for _, d := range b.registry.Descriptors() {
		c, err := NewONNXClassifier(d, options, NewSessionArgs{
			ModelPath:  filepath.Join(dir, d.Filename),
			InputName:  d.Input,
			OutputName: d.Output,
			Size:       pre.Size,
			Channels:   images.Channels,
			Classes:    classes,
		})
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		b.classifiers = append(b.classifiers, c)
	}
	b.err = result.ErrorOrNil()
	return b
}

// HasError checks if the builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *Builder) HasError() bool {
	return b.err != nil
}

// Build builds the live dispatcher. On failure every loaded classifier and an
// owned runtime are released.
//
// Arguments:
//   - opts: Dispatcher options.
//
// Returns:
//   - *Dispatcher: The live dispatcher.
//   - error: The first builder error.
func (b *Builder) Build(opts ...Option) (*Dispatcher, error) {
	if !b.HasError() && len(b.classifiers) == 0 {
		b.err = errors.New("models not configured")
	}

	var d *Dispatcher
	if !b.HasError() {
		if b.ownsRuntime {
			opts = append(opts, withRuntime(providers.DestroyRuntime))
		}
		d, b.err = NewLiveDispatcher(b.registry, b.classifiers, opts...)
	}
	if b.HasError() {
		b.cleanup()
		return nil, b.err
	}
	return d, nil
}

func (b *Builder) cleanup() {
	for _, c := range b.classifiers {
		c.Close()
	}
	b.classifiers = nil
	if b.ownsRuntime {
		providers.DestroyRuntime()
		b.ownsRuntime = false
	}
}

// Load builds a live dispatcher, falling back to demo mode when any model
// cannot be loaded.
//
// Arguments:
//   - registry: The models to serve.
//   - cfg: The inference configuration.
//   - log: The logger.
//   - opts: Extra dispatcher options, applied after those from cfg.
//
// Returns:
//   - *Dispatcher: A live or demo dispatcher, never nil.
func Load(registry *models.Registry, cfg Config, log *zap.SugaredLogger, opts ...Option) *Dispatcher {
	opts = append(cfg.Options(), opts...)

	if cfg.Demo {
		log.Infow("Demo mode forced by configuration")
		return NewDemoDispatcher(registry, opts...)
	}

	d, err := NewBuilder(registry).
		WithRuntime(cfg.SharedLibraryPath, cfg.LibraryDirs...).
		WithProvider(cfg.Provider).
		WithModels(cfg.ModelsDir, cfg.Preprocess).
		Build(opts...)
	if err != nil {
		log.Warnw("Models not available, running in demo mode",
			"models_dir", cfg.ModelsDir,
			"error", err,
		)
		return NewDemoDispatcher(registry, opts...)
	}

	log.Infow("Models loaded",
		"models", registry.Names(),
		"provider", cfg.Provider.Backend,
	)
	return d
}
