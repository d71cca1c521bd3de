package images

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"github.com/suyashkumar/dicom/pkg/uid"
)

// createTestImage builds a deterministic gradient with a bright square so the
// bilateral filter has edges to preserve.
func createTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / width),
				G: uint8((y * 255) / height),
				B: 64,
				A: 255,
			})
		}
	}
	for y := height / 4; y < height/2; y++ {
		for x := width / 4; x < width/2; x++ {
			img.Set(x, y, color.RGBA{R: 250, G: 250, B: 250, A: 255})
		}
	}
	return img
}

func writeTestPNG(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createTestImage(width, height)))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func writeTestJPEG(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, createTestImage(width, height), &jpeg.Options{Quality: 90}))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// writeTestDICOM writes a single frame, 16-bit grayscale DICOM whose values
// ramp across the 12-bit range a scanner produces.
func writeTestDICOM(t *testing.T, dir, name string, rows, cols int) string {
	t.Helper()
	data := make([][]int, rows*cols)
	for i := range data {
		data[i] = []int{100 + (i*4000)/(rows*cols-1)}
	}

	elements := []struct {
		tag  tag.Tag
		data interface{}
	}{
		{tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.4"}},
		{tag.MediaStorageSOPInstanceUID, []string{"1.2.3.4.5.6.7"}},
		{tag.TransferSyntaxUID, []string{uid.ImplicitVRLittleEndian}},
		{tag.Rows, []int{rows}},
		{tag.Columns, []int{cols}},
		{tag.BitsAllocated, []int{16}},
		{tag.NumberOfFrames, []string{"1"}},
		{tag.SamplesPerPixel, []int{1}},
		{tag.PixelData, dicom.PixelDataInfo{
			Frames: []*frame.Frame{{
				NativeData: frame.NativeFrame{
					BitsPerSample: 16,
					Rows:          rows,
					Cols:          cols,
					Data:          data,
				},
			}},
		}},
	}

	var ds dicom.Dataset
	for _, e := range elements {
		el, err := dicom.NewElement(e.tag, e.data)
		require.NoError(t, err)
		ds.Elements = append(ds.Elements, el)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, dicom.Write(f, ds))
	return path
}

// tensorChecksum hashes the raw bits of a tensor's values.
func tensorChecksum(t *Tensor) string {
	hash := md5.New()
	var buf [4]byte
	for _, v := range t.Data() {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		hash.Write(buf[:])
	}
	return fmt.Sprintf("%x", hash.Sum(nil))
}

func assertValidTensor(t *testing.T, tensor *Tensor) {
	t.Helper()
	require.NotNil(t, tensor)
	assert.Equal(t, []int{1, 128, 128, 3}, tensor.Shape(), "tensor shape should be (1,128,128,3)")
	assert.Len(t, tensor.Data(), 128*128*3)
	for i, v := range tensor.Data() {
		if v < 0 || v > 1 {
			t.Fatalf("value %d out of [0,1]: %f", i, v)
		}
	}
}

func TestPreprocessAllowedFormats(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{name: "png", path: writeTestPNG(t, dir, "scan.png", 320, 240)},
		{name: "upper case jpg", path: writeTestJPEG(t, dir, "scan.JPG", 512, 512)},
		{name: "jpeg", path: writeTestJPEG(t, dir, "scan.jpeg", 64, 200)},
		{name: "tiny png", path: writeTestPNG(t, dir, "tiny.png", 3, 3)},
		// OpenCV sniffs content, so a PNG renamed by a PACS export still decodes.
		{name: "png with dcm extension", path: writeTestPNG(t, dir, "scan.dcm", 128, 128)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tensor, err := Preprocess(tc.path, DefaultPreprocessConfig())
			require.NoError(t, err)
			assertValidTensor(t, tensor)
		})
	}
}

func TestPreprocessDICOM(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{name: "dcm", path: writeTestDICOM(t, dir, "study.dcm", 48, 64)},
		{name: "upper case dicom", path: writeTestDICOM(t, dir, "study.DICOM", 200, 160)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tensor, err := Preprocess(tc.path, DefaultPreprocessConfig())
			require.NoError(t, err)
			assertValidTensor(t, tensor)

			// Grayscale input stays gray in every channel.
			r, err := tensor.At(0, 64, 64, 0)
			require.NoError(t, err)
			g, err := tensor.At(0, 64, 64, 1)
			require.NoError(t, err)
			b, err := tensor.At(0, 64, 64, 2)
			require.NoError(t, err)
			assert.InDelta(t, r, g, 1e-6)
			assert.InDelta(t, r, b, 1e-6)
		})
	}
}

func TestDecodeDICOMStretchesFirstFrame(t *testing.T) {
	path := writeTestDICOM(t, t.TempDir(), "study.dcm", 48, 64)

	img, err := DecodeDICOM(path)
	require.NoError(t, err)

	gray, ok := img.(*image.Gray)
	require.True(t, ok, "16-bit frames are stretched to 8-bit gray, got %T", img)
	assert.Equal(t, image.Rect(0, 0, 64, 48), gray.Bounds())
	assert.Equal(t, uint8(0), gray.GrayAt(0, 0).Y, "lowest value maps to black")
	assert.Equal(t, uint8(255), gray.GrayAt(63, 47).Y, "highest value maps to white")

	sniffed, err := DecodeImage(path)
	require.NoError(t, err)
	assert.Equal(t, gray.Bounds(), sniffed.Bounds())
}

func TestFirstFrameWithoutPixelData(t *testing.T) {
	rows, err := dicom.NewElement(tag.Rows, []int{2})
	require.NoError(t, err)
	// A PixelData element read with an explicit UN VR carries raw bytes.
	raw, err := dicom.NewElement(tag.PixelData, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	empty, err := dicom.NewElement(tag.PixelData, dicom.PixelDataInfo{})
	require.NoError(t, err)

	tests := []struct {
		name     string
		elements []*dicom.Element
	}{
		{name: "missing element", elements: []*dicom.Element{rows}},
		{name: "raw bytes value", elements: []*dicom.Element{rows, raw}},
		{name: "no frames", elements: []*dicom.Element{rows, empty}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img, err := firstFrame(&dicom.Dataset{Elements: tc.elements})
			assert.Nil(t, img)
			assert.True(t, errors.Is(err, ErrNoPixelData), "got %v", err)
		})
	}
}

func TestPreprocessIsDeterministic(t *testing.T) {
	path := writeTestPNG(t, t.TempDir(), "scan.png", 300, 300)

	first, err := Preprocess(path, DefaultPreprocessConfig())
	require.NoError(t, err)
	second, err := Preprocess(path, DefaultPreprocessConfig())
	require.NoError(t, err)

	assert.Equal(t, tensorChecksum(first), tensorChecksum(second),
		"identical input must produce identical tensors")
}

func TestPreprocessImageChannelOrder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	tensor, err := PreprocessImage(img, DefaultPreprocessConfig())
	require.NoError(t, err)
	assertValidTensor(t, tensor)

	r, err := tensor.At(0, 64, 64, 0)
	require.NoError(t, err)
	g, err := tensor.At(0, 64, 64, 1)
	require.NoError(t, err)
	b, err := tensor.At(0, 64, 64, 2)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, r, 0.01, "red must be channel 0")
	assert.InDelta(t, 0.0, g, 0.01)
	assert.InDelta(t, 0.0, b, 0.01, "blue must be channel 2")
}

func TestMatFromImageIsBGR(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 200, G: 100, B: 10, A: 255})
	img.Set(1, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	mat, err := MatFromImage(img)
	require.NoError(t, err)
	defer mat.Close()

	assert.Equal(t, 1, mat.Rows())
	assert.Equal(t, 2, mat.Cols())
	assert.Equal(t, 3, mat.Channels())

	px := mat.GetVecbAt(0, 0)
	assert.Equal(t, []uint8{10, 100, 200}, []uint8{px[0], px[1], px[2]})
	px = mat.GetVecbAt(0, 1)
	assert.Equal(t, []uint8{3, 2, 1}, []uint8{px[0], px[1], px[2]})
}

func TestMatFromImageEmpty(t *testing.T) {
	_, err := MatFromImage(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.True(t, errors.Is(err, ErrEmptyImage))
}

func TestPreprocessFailures(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not an image"), 0o644))
	fakeDICOM := filepath.Join(dir, "study.dcm")
	require.NoError(t, os.WriteFile(fakeDICOM, []byte("not a dicom file"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(dir, "missing.png")},
		{name: "undecodable", path: garbage},
		{name: "invalid dicom", path: fakeDICOM},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tensor, err := Preprocess(tc.path, DefaultPreprocessConfig())
			require.Error(t, err)
			assert.Nil(t, tensor, "no partial result on failure")
			assert.True(t, errors.Is(err, ErrPreprocess), "error should match ErrPreprocess")
			assert.Contains(t, err.Error(), "image preprocessing failed: ")

			var perr *PreprocessError
			require.True(t, errors.As(err, &perr))
			assert.NotNil(t, perr.Cause(), "original cause must be carried")
		})
	}
}

func TestPreprocessMatRejectsBadConfig(t *testing.T) {
	mat, err := MatFromImage(createTestImage(8, 8))
	require.NoError(t, err)
	defer mat.Close()

	cfg := DefaultPreprocessConfig()
	cfg.Size = 0
	_, err = PreprocessMat(mat, cfg)
	assert.Error(t, err)
}

func TestStretchGray16(t *testing.T) {
	src := image.NewGray16(image.Rect(0, 0, 3, 1))
	src.SetGray16(0, 0, color.Gray16{Y: 100})
	src.SetGray16(1, 0, color.Gray16{Y: 2100})
	src.SetGray16(2, 0, color.Gray16{Y: 4100})

	dst := stretchGray16(src)
	assert.Equal(t, uint8(0), dst.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(127), dst.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), dst.GrayAt(2, 0).Y)
}

func TestIsDICOM(t *testing.T) {
	header := make([]byte, dicomPreambleLen)
	header = append(header, []byte("DICM")...)
	header = append(header, 0x02, 0x00)

	assert.True(t, isDICOM(bufio.NewReader(bytes.NewReader(header))))
	assert.False(t, isDICOM(bufio.NewReader(bytes.NewReader([]byte("\x89PNG\r\n")))))
}

func TestFormatFromFilename(t *testing.T) {
	tests := []struct {
		name string
		want ImageFormat
	}{
		{"x.PNG", FormatPNG},
		{"x.jpg", FormatJPEG},
		{"x.JpEg", FormatJPEG},
		{"brain.dcm", FormatDICOM},
		{"brain.dicom", FormatDICOM},
		{"archive.tar.png", FormatPNG},
		{"x.exe", FormatUnknown},
		{"noext", FormatUnknown},
		{"trailingdot.", FormatUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatFromFilename(tc.name))
		})
	}
}
