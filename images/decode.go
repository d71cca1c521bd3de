package images

import (
	"bufio"
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gocv.io/x/gocv"
)

// Error definitions for decoding.
var (
	ErrEmptyImage  = errors.New("image has no pixels")
	ErrNoPixelData = errors.New("dicom file has no pixel data")
)

// dicomPreambleLen is the length of the DICOM file preamble before the "DICM" magic.
const dicomPreambleLen = 128

// DecodeBGR reads an image file into an 8-bit, 3-channel BGR Mat.
//
// OpenCV's decoder is tried first. When it cannot read the file, the image is
// decoded in Go (DICOM or any registered image.Decode format) and converted to
// BGR.
//
// **Note: The caller owns the returned Mat and must Close it.**
//
// Arguments:
//   - path: The path to the image file.
//
// Returns:
//   - gocv.Mat: The BGR image.
//   - error: An error if no decoder can read the file.
func DecodeBGR(path string) (gocv.Mat, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if !mat.Empty() {
		return mat, nil
	}
	mat.Close()

	img, err := DecodeImage(path)
	if err != nil {
		return gocv.NewMat(), err
	}

	return MatFromImage(img)
}

// DecodeImage decodes an image file without OpenCV.
//
// Arguments:
//   - path: The path to the image file.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: An error if the file cannot be decoded.
func DecodeImage(path string) (image.Image, error) {
	if FormatFromFilename(path) == FormatDICOM {
		return DecodeDICOM(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open image")
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if isDICOM(br) {
		return DecodeDICOM(path)
	}

	img, _, err := image.Decode(br)
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	return img, nil
}

// isDICOM reports whether the stream carries the "DICM" magic after the preamble.
func isDICOM(br *bufio.Reader) bool {
	head, err := br.Peek(dicomPreambleLen + 4)
	if err != nil && err != io.EOF {
		return false
	}
	return len(head) == dicomPreambleLen+4 && bytes.Equal(head[dicomPreambleLen:], []byte("DICM"))
}

// DecodeDICOM decodes the first frame of a DICOM file.
//
// 16-bit grayscale frames are min-max stretched to the 8-bit range so that
// 12-bit scanner data is not rendered near black.
//
// Arguments:
//   - path: The path to the DICOM file.
//
// Returns:
//   - image.Image: The first frame.
//   - error: An error if the file has no decodable pixel data.
func DecodeDICOM(path string) (image.Image, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "parse dicom")
	}

	img, err := firstFrame(&ds)
	if err != nil {
		return nil, err
	}

	if g16, ok := img.(*image.Gray16); ok {
		return stretchGray16(g16), nil
	}
	return img, nil
}

// firstFrame returns the first frame of the dataset's pixel data. A PixelData
// element that was not read as pixel data, such as one with an explicit UN VR,
// is reported as ErrNoPixelData.
func firstFrame(ds *dicom.Dataset) (image.Image, error) {
	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, errors.Wrap(ErrNoPixelData, err.Error())
	}
	if el.Value == nil || el.Value.ValueType() != dicom.PixelData {
		return nil, ErrNoPixelData
	}

	info := dicom.MustGetPixelDataInfo(el.Value)
	if len(info.Frames) == 0 {
		return nil, ErrNoPixelData
	}

	img, err := info.Frames[0].GetImage()
	if err != nil {
		return nil, errors.Wrap(err, "dicom frame")
	}
	return img, nil
}

// stretchGray16 maps the occupied range of a 16-bit image onto 0..255.
func stretchGray16(src *image.Gray16) *image.Gray {
	b := src.Bounds()
	lo, hi := uint16(0xffff), uint16(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := src.Gray16At(x, y).Y
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}

	dst := image.NewGray(b)
	span := float64(hi) - float64(lo)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var v uint8
			if span > 0 {
				v = uint8((float64(src.Gray16At(x, y).Y) - float64(lo)) * 255 / span)
			}
			dst.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return dst
}

// MatFromImage converts a Go image into an 8-bit BGR Mat.
//
// **Note: The caller owns the returned Mat and must Close it.**
//
// Arguments:
//   - img: The image to convert. Alpha is dropped.
//
// Returns:
//   - gocv.Mat: The BGR Mat.
//   - error: An error if the image is empty or the Mat cannot be created.
func MatFromImage(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return gocv.NewMat(), ErrEmptyImage
	}

	data := make([]byte, 0, w*h*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			data = append(data, byte(bl>>8), byte(g>>8), byte(r>>8))
		}
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, data)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "create mat")
	}
	return mat, nil
}
