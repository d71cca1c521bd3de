package inference

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/tumorclassifier/images"
)

// PrepareInput copies a preprocessed tensor into a session's bound input tensor.
//
// Arguments:
//   - src: The preprocessed image tensor.
//   - dst: The destination tensor to populate.
//
// Returns:
//   - error: An error if the sizes differ.
func PrepareInput(src *images.Tensor, dst *ort.Tensor[float32]) error {
	return copyInput(src, dst.GetData())
}

func copyInput(src *images.Tensor, dst []float32) error {
	if src == nil {
		return errors.New("nil input tensor")
	}
	data := src.Data()
	if len(dst) != len(data) {
		return errors.Errorf("destination tensor holds %d floats, input has %d "+
			"(make sure it's the right shape!)", len(dst), len(data))
	}
	copy(dst, data)
	return nil
}
