package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrPreprocess is matched by every error returned from Preprocess.
var ErrPreprocess = errors.New("image preprocessing failed")

// PreprocessError carries the original cause of a preprocessing failure.
type PreprocessError struct {
	cause error
}

// Error returns "image preprocessing failed: <cause>".
func (e *PreprocessError) Error() string {
	return ErrPreprocess.Error() + ": " + e.cause.Error()
}

// Cause returns the original error for errors.Cause.
func (e *PreprocessError) Cause() error { return e.cause }

// Unwrap returns the original error for errors.Is/As.
func (e *PreprocessError) Unwrap() error { return e.cause }

// Is matches ErrPreprocess.
func (e *PreprocessError) Is(target error) bool { return target == ErrPreprocess }

// PreprocessConfig defines the preprocessing shared by all classifiers.
type PreprocessConfig struct {
	// Size is the square input edge expected by the models.
	Size int `json:"size" yaml:"size" mapstructure:"size" validate:"gt=0"`
	// FilterDiameter is the bilateral filter pixel neighbourhood diameter.
	FilterDiameter int `json:"filter_diameter" yaml:"filter_diameter" mapstructure:"filter_diameter" validate:"gt=0"`
	// SigmaColor is the bilateral filter sigma in color space.
	SigmaColor float64 `json:"sigma_color" yaml:"sigma_color" mapstructure:"sigma_color" validate:"gt=0"`
	// SigmaSpace is the bilateral filter sigma in coordinate space.
	SigmaSpace float64 `json:"sigma_space" yaml:"sigma_space" mapstructure:"sigma_space" validate:"gt=0"`
}

// Channels is the number of color channels of a preprocessed image.
const Channels = 3

// DefaultPreprocessConfig returns the configuration the models were trained with.
func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		Size:           128,
		FilterDiameter: 9,
		SigmaColor:     75,
		SigmaSpace:     75,
	}
}

// Preprocess turns an image file into a model input tensor.
//
// Order of operations:
//  1. Decode to BGR (OpenCV first, Go decoders as fallback).
//  2. Bilateral smoothing.
//  3. BGR to RGB.
//  4. Resize to Size x Size.
//  5. Scale to [0, 1].
//  6. Add the batch dimension.
//
// Arguments:
//   - path: The path to the uploaded image.
//   - cfg: The preprocessing configuration.
//
// Returns:
//   - *Tensor: The (1, Size, Size, 3) input tensor.
//   - error: A *PreprocessError wrapping the cause if any step fails.
func Preprocess(path string, cfg PreprocessConfig) (*Tensor, error) {
	mat, err := DecodeBGR(path)
	if err != nil {
		return nil, &PreprocessError{cause: err}
	}
	defer mat.Close()

	t, err := PreprocessMat(mat, cfg)
	if err != nil {
		return nil, &PreprocessError{cause: err}
	}
	return t, nil
}

// PreprocessImage runs the pipeline on an in-memory image.
//
// Arguments:
//   - img: The decoded image.
//   - cfg: The preprocessing configuration.
//
// Returns:
//   - *Tensor: The (1, Size, Size, 3) input tensor.
//   - error: A *PreprocessError wrapping the cause if any step fails.
func PreprocessImage(img image.Image, cfg PreprocessConfig) (*Tensor, error) {
	mat, err := MatFromImage(img)
	if err != nil {
		return nil, &PreprocessError{cause: err}
	}
	defer mat.Close()

	t, err := PreprocessMat(mat, cfg)
	if err != nil {
		return nil, &PreprocessError{cause: err}
	}
	return t, nil
}

// PreprocessMat runs steps 2-6 on a BGR 8-bit Mat.
//
// Arguments:
//   - bgr: The source image in BGR order. It is not modified.
//   - cfg: The preprocessing configuration.
//
// Returns:
//   - *Tensor: The (1, Size, Size, 3) input tensor.
//   - error: An error if the Mat is unusable.
func PreprocessMat(bgr gocv.Mat, cfg PreprocessConfig) (*Tensor, error) {
	if bgr.Empty() {
		return nil, ErrEmptyImage
	}
	if bgr.Channels() != Channels {
		return nil, errors.Errorf("expected %d channels, got %d", Channels, bgr.Channels())
	}
	if cfg.Size <= 0 {
		return nil, errors.Errorf("invalid target size %d", cfg.Size)
	}

	smoothed := gocv.NewMat()
	defer smoothed.Close()
	gocv.BilateralFilter(bgr, &smoothed, cfg.FilterDiameter, cfg.SigmaColor, cfg.SigmaSpace)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(smoothed, &rgb, gocv.ColorBGRToRGB)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(rgb, &resized, image.Pt(cfg.Size, cfg.Size), 0, 0, gocv.InterpolationLinear)

	scaled := gocv.NewMat()
	defer scaled.Close()
	resized.ConvertToWithParams(&scaled, gocv.MatTypeCV32FC3, 1.0/255.0, 0)

	ptr, err := scaled.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "read scaled pixels")
	}

	// The Mat owns ptr; copy before it is closed.
	data := make([]float32, len(ptr))
	copy(data, ptr)

	return NewTensor(data, cfg.Size, Channels)
}
