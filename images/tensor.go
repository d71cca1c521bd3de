package images

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Tensor is a preprocessed image laid out as [batch, height, width, channels]
// with float32 values in [0, 1] and RGB channel order.
type Tensor struct {
	dense *tensor.Dense
}

// NewTensor wraps NHWC data of a single square image.
//
// Arguments:
//   - data: The pixel values, len(data) must equal size*size*channels.
//   - size: The image height and width.
//   - channels: The number of channels.
//
// Returns:
//   - *Tensor: The tensor with shape (1, size, size, channels).
//   - error: An error if the data does not match the shape.
func NewTensor(data []float32, size, channels int) (*Tensor, error) {
	if size <= 0 || channels <= 0 {
		return nil, errors.Errorf("invalid tensor dimensions: size=%d, channels=%d", size, channels)
	}
	if want := size * size * channels; len(data) != want {
		return nil, errors.Errorf("tensor data holds %d floats, needs %d", len(data), want)
	}

	return &Tensor{
		dense: tensor.New(
			tensor.WithShape(1, size, size, channels),
			tensor.WithBacking(data),
		),
	}, nil
}

// Shape returns the tensor dimensions.
func (t *Tensor) Shape() []int {
	return []int(t.dense.Shape().Clone())
}

// Data returns the backing float32 slice in NHWC order.
func (t *Tensor) Data() []float32 {
	return t.dense.Data().([]float32)
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return t.dense.Len()
}

// At returns the value at batch b, row y, column x and channel c.
func (t *Tensor) At(b, y, x, c int) (float32, error) {
	v, err := t.dense.At(b, y, x, c)
	if err != nil {
		return 0, errors.Wrap(err, "tensor index")
	}
	return v.(float32), nil
}

// Dense exposes the underlying tensor.
func (t *Tensor) Dense() *tensor.Dense {
	return t.dense
}
