// Package providers - Runtime and session options.
package providers

import (
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var runtimeMu sync.Mutex

// InitializeRuntime loads the native ONNX Runtime library and prepares the environment.
//
// Order of operations:
//  1. Library path check: Ensures native runtime is accessible.
//  2. Shared library path: Overrides the default search of the binding.
//  3. Environment setup: Required once per process.
//
// Arguments:
//   - libPath: Explicit library path, empty to search dirs.
//   - dirs: Directories searched for a platform library.
//
// Returns:
//   - bool: True if this call initialized the environment, false if it was already initialized.
//   - error: An error if the library is missing or fails to load.
func InitializeRuntime(libPath string, dirs ...string) (bool, error) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		return false, nil
	}

	path, err := GetSharedLibPath(libPath, dirs...)
	if err != nil {
		return false, err
	}

	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return false, errors.Wrapf(err, "error initializing ORT environment from %s", path)
	}
	return true, nil
}

// DestroyRuntime releases the ONNX Runtime environment.
func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// NewSessionOptions builds the session options shared by every model session.
// The caller must Destroy the returned options once all sessions are created.
//
// Arguments:
//   - provider: The execution provider to append.
//   - cfg: Thread settings.
//
// Returns:
//   - *ort.SessionOptions: The session options.
//   - error: An error if the options or the provider cannot be applied.
func NewSessionOptions(provider ExecutionProvider, cfg Config) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := applyThreads(options, cfg); err != nil {
		options.Destroy()
		return nil, err
	}

	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting graph optimization level")
	}

	if err := provider.Apply(options); err != nil {
		options.Destroy()
		return nil, err
	}

	return options, nil
}

func applyThreads(options *ort.SessionOptions, cfg Config) error {
	if cfg.IntraOpNumThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpNumThreads); err != nil {
			return errors.Wrap(err, "error setting intra-op threads")
		}
	}
	if cfg.InterOpNumThreads > 0 {
		if err := options.SetInterOpNumThreads(cfg.InterOpNumThreads); err != nil {
			return errors.Wrap(err, "error setting inter-op threads")
		}
	}
	return nil
}
