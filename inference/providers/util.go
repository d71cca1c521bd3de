// Package providers - Utility functions.
package providers

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
)

// ErrSharedLibraryNotFound is returned when no ONNX Runtime library can be located.
var ErrSharedLibraryNotFound = errors.New("onnxruntime shared library not found")

// sharedLibNames returns the library file names for the current platform.
func sharedLibNames() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"onnxruntime.dll"}
	case "darwin":
		return []string{"libonnxruntime.dylib", "libonnxruntime.1.21.0.dylib"}
	case "linux":
		if runtime.GOARCH == "arm64" {
			return []string{"onnxruntime_arm64.so", "libonnxruntime.so"}
		}
		return []string{"onnxruntime.so", "libonnxruntime.so"}
	}
	return nil
}

// GetSharedLibPath returns the path to the shared library for the current platform.
//
// Arguments:
//   - override: An explicit path from configuration, used as-is when set.
//   - dirs: Directories searched in order when no override is given.
//
// Returns:
//   - string: The path to the shared library.
//   - error: ErrSharedLibraryNotFound if nothing exists on disk.
func GetSharedLibPath(override string, dirs ...string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", errors.Wrapf(ErrSharedLibraryNotFound, "%s: %v", override, err)
		}
		return override, nil
	}

	for _, dir := range dirs {
		for _, name := range sharedLibNames() {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}
	return "", errors.Wrapf(ErrSharedLibraryNotFound, "%s/%s", runtime.GOOS, runtime.GOARCH)
}
