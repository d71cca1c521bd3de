package providers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		backend ProviderBackend
		want    ProviderBackend
		wantErr bool
	}{
		{name: "empty defaults to cpu", backend: "", want: CPUProviderBackend},
		{name: "cpu", backend: CPUProviderBackend, want: CPUProviderBackend},
		{name: "cuda", backend: CUDAProviderBackend, want: CUDAProviderBackend},
		{name: "coreml", backend: CoreMLProviderBackend, want: CoreMLProviderBackend},
		{name: "openvino", backend: OpenVINOProviderBackend, want: OpenVINOProviderBackend},
		{name: "unknown", backend: "tpu", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Backend = tc.backend

			provider, err := NewProvider(cfg)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, provider.Backend())
		})
	}
}

func TestProviderOptionsCarryConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = OpenVINOProviderBackend
	cfg.OpenVINO.NumStreams = 2

	provider, err := NewProvider(cfg)
	require.NoError(t, err)

	opts, ok := provider.Options().(OpenVINOOptions)
	require.True(t, ok)
	assert.Equal(t, 2, opts.NumStreams)
	assert.Equal(t, "CPU", opts.DeviceType)
}

func TestCUDAOptionsMap(t *testing.T) {
	m := CUDAOptions{DeviceID: 1, PreferNHWC: true}.ProviderOptionsMap()
	assert.Equal(t, "1", m["device_id"])
	assert.Equal(t, "1", m["prefer_nhwc"])
	assert.Equal(t, "0", m["use_tf32"])
	assert.NotContains(t, m, "gpu_mem_limit", "unset limit keeps runtime default")

	m = CUDAOptions{GPUMemLimit: 2 << 30, CudnnConvAlgoSearch: "HEURISTIC"}.ProviderOptionsMap()
	assert.Equal(t, "2147483648", m["gpu_mem_limit"])
	assert.Equal(t, "HEURISTIC", m["cudnn_conv_algo_search"])
}

func TestCoreMLFlags(t *testing.T) {
	assert.Equal(t, uint32(0), CoreMLOptions{}.Flags())
	assert.Equal(t, uint32(0x001), CoreMLOptions{CPUOnly: true}.Flags())
	assert.Equal(t, uint32(0x018), CoreMLOptions{RequireStaticInputShapes: true, MLProgram: true}.Flags())
}

func TestOpenVINOOptionsMap(t *testing.T) {
	assert.Empty(t, OpenVINOOptions{}.ProviderOptionsMap())

	m := OpenVINOOptions{DeviceType: "GPU", Precision: "FP16", NumOfThreads: 4}.ProviderOptionsMap()
	assert.Equal(t, map[string]string{
		"device_type":    "GPU",
		"precision":      "FP16",
		"num_of_threads": "4",
	}, m)
}

func TestGetSharedLibPath(t *testing.T) {
	dir := t.TempDir()

	_, err := GetSharedLibPath("", dir)
	assert.True(t, errors.Is(err, ErrSharedLibraryNotFound))

	_, err = GetSharedLibPath(filepath.Join(dir, "missing.so"))
	assert.True(t, errors.Is(err, ErrSharedLibraryNotFound))

	name := sharedLibNames()[0]
	lib := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(lib, []byte{0}, 0o644))

	path, err := GetSharedLibPath("", filepath.Join(dir, "nope"), dir)
	require.NoError(t, err)
	assert.Equal(t, lib, path)

	path, err = GetSharedLibPath(lib)
	require.NoError(t, err)
	assert.Equal(t, lib, path)
}
