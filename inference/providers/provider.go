// Package providers - Provider interface for execution providers.
package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers.
type ProviderBackend string

// ProviderOptions is a marker interface for provider-specific config.
type ProviderOptions interface {
	isProviderOptions()
}

// ExecutionProvider represents the contract that all execution providers must implement.
type ExecutionProvider interface {
	// Backend returns the backend identifier.
	Backend() ProviderBackend
	// Options returns the provider-specific options.
	Options() ProviderOptions
	// Apply appends the provider to the session options.
	Apply(options *ort.SessionOptions) error
}

// Config selects and configures the execution provider used by every model session.
type Config struct {
	// Backend specifies the backend to use.
	Backend ProviderBackend `json:"backend" yaml:"backend" mapstructure:"backend" validate:"oneof=cpu cuda coreml openvino"`

	// IntraOpNumThreads sets threads for parallelizing ops, 0 uses the runtime default.
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads" mapstructure:"intra_op_num_threads" validate:"gte=0"`

	// InterOpNumThreads sets threads for parallelizing independent ops, 0 uses the runtime default.
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads" mapstructure:"inter_op_num_threads" validate:"gte=0"`

	// CUDA contains options used when Backend is "cuda".
	CUDA CUDAOptions `json:"cuda" yaml:"cuda" mapstructure:"cuda"`

	// CoreML contains options used when Backend is "coreml".
	CoreML CoreMLOptions `json:"coreml" yaml:"coreml" mapstructure:"coreml"`

	// OpenVINO contains options used when Backend is "openvino".
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino" mapstructure:"openvino"`
}

// DefaultConfig returns a CPU configuration with runtime-chosen thread counts.
func DefaultConfig() Config {
	return Config{
		Backend: CPUProviderBackend,
		OpenVINO: OpenVINOOptions{
			DeviceType: "CPU",
			Precision:  "FP32",
		},
	}
}

// NewProvider creates a new provider based on the required backend.
//
// Arguments:
//   - cfg: The provider configuration.
//
// Returns:
//   - ExecutionProvider: The new provider.
//   - error: An error if the backend is not supported.
func NewProvider(cfg Config) (ExecutionProvider, error) {
	switch cfg.Backend {
	case CPUProviderBackend, "":
		return NewCPUProvider(), nil
	case CUDAProviderBackend:
		return NewCUDAProvider(cfg.CUDA), nil
	case CoreMLProviderBackend:
		return NewCoreMLProvider(cfg.CoreML), nil
	case OpenVINOProviderBackend:
		return NewOpenVINOProvider(cfg.OpenVINO), nil
	default:
		return nil, fmt.Errorf("unsupported provider backend: %s", cfg.Backend)
	}
}
