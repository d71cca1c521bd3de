package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nvr-ai/tumorclassifier/config"
	"github.com/nvr-ai/tumorclassifier/images"
	"github.com/nvr-ai/tumorclassifier/inference"
	"github.com/nvr-ai/tumorclassifier/metrics"
	"github.com/nvr-ai/tumorclassifier/models"
)

type stubClassifier struct {
	name  models.Name
	probs []float32
	err   error
}

func (s *stubClassifier) Name() models.Name { return s.name }

func (s *stubClassifier) Classify(_ context.Context, _ *images.Tensor) ([]float32, error) {
	return s.probs, s.err
}

func (s *stubClassifier) Close() error { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New()
	cfg.Server.Mode = gin.TestMode
	cfg.Server.StaticDir = filepath.Join(dir, "static")
	cfg.Upload.Dir = filepath.Join(dir, "static", "uploads")
	return cfg
}

func demoDispatcher() *inference.Dispatcher {
	return inference.NewDemoDispatcher(models.Default(), inference.WithRand(rand.New(rand.NewPCG(3, 4))))
}

func liveDispatcher(t *testing.T, failing ...models.Name) *inference.Dispatcher {
	t.Helper()
	registry := models.Default()
	classifiers := make([]inference.Classifier, 0, registry.Len())
	for _, name := range registry.Names() {
		c := &stubClassifier{name: name, probs: []float32{0.05, 0.05, 0.1, 0.8}}
		for _, f := range failing {
			if f == name {
				c.err = errors.New("forward pass failed")
			}
		}
		classifiers = append(classifiers, c)
	}
	d, err := inference.NewLiveDispatcher(registry, classifiers)
	require.NoError(t, err)
	return d
}

func newTestServer(t *testing.T, cfg *config.Config, d *inference.Dispatcher) *Server {
	t.Helper()
	s, err := New(cfg, d, metrics.New(), zap.NewNop().Sugar())
	require.NoError(t, err)
	return s
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 5), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// uploadRequest builds a multipart request with one file part; an empty
// field name sends an unrelated text field instead.
func uploadRequest(t *testing.T, path, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if field == "" {
		require.NoError(t, w.WriteField("comment", "no file here"))
	} else {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// textFieldRequest builds a multipart request whose image field is a plain
// form value, sent without a filename.
func textFieldRequest(t *testing.T, path string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("image", "not a file"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func uploadedFiles(t *testing.T, cfg *config.Config) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(cfg.Upload.Dir)
	require.NoError(t, err)
	return entries
}

func TestHandlers_ClassifyValidation(t *testing.T) {
	jsonReq := httptest.NewRequest(http.MethodPost, "/classify", strings.NewReader(`{"image":"x"}`))
	jsonReq.Header.Set("Content-Type", "application/json")

	tests := []struct {
		name       string
		req        *http.Request
		expectCode int
		expectMsg  string
	}{
		{
			name:       "missing field",
			req:        uploadRequest(t, "/classify", "", "", nil),
			expectCode: http.StatusBadRequest,
			expectMsg:  "No image file provided",
		},
		{
			name:       "not multipart",
			req:        jsonReq,
			expectCode: http.StatusBadRequest,
			expectMsg:  "No image file provided",
		},
		{
			name:       "text field named image",
			req:        textFieldRequest(t, "/classify"),
			expectCode: http.StatusBadRequest,
			expectMsg:  "No image file provided",
		},
		{
			name:       "empty filename",
			req:        uploadRequest(t, "/classify", "image", "", []byte("data")),
			expectCode: http.StatusBadRequest,
			expectMsg:  "No file selected",
		},
		{
			name:       "executable",
			req:        uploadRequest(t, "/classify", "image", "virus.exe", []byte("MZ")),
			expectCode: http.StatusBadRequest,
			expectMsg:  "Invalid file format. Please upload JPEG, PNG, or DICOM files.",
		},
		{
			name:       "no extension",
			req:        uploadRequest(t, "/classify", "image", "noext", []byte("data")),
			expectCode: http.StatusBadRequest,
			expectMsg:  "Invalid file format. Please upload JPEG, PNG, or DICOM files.",
		},
		{
			name:       "api route",
			req:        uploadRequest(t, "/api/v1/classify", "image", "virus.exe", []byte("MZ")),
			expectCode: http.StatusBadRequest,
			expectMsg:  "Invalid file format. Please upload JPEG, PNG, or DICOM files.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			cfg := testConfig(t)
			s := newTestServer(t, cfg, liveDispatcher(t))

			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, tc.req)

			assert.Equal(tc.expectCode, w.Code)
			assert.Equal(tc.expectMsg, decodeError(t, w))
			assert.Empty(uploadedFiles(t, cfg), "rejected uploads are never written")
		})
	}
}

func TestHandlers_ClassifyTooLarge(t *testing.T) {
	assert := assert.New(t)
	cfg := testConfig(t)
	cfg.Server.MaxUploadBytes = 1024
	s := newTestServer(t, cfg, demoDispatcher())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, uploadRequest(t, "/classify", "image", "big.png", bytes.Repeat([]byte{1}, 8192)))

	assert.Equal(http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal("File too large. Maximum upload size is 1024 bytes.", decodeError(t, w))
	assert.Empty(uploadedFiles(t, cfg))
	assert.Equal("File too large. Maximum upload size is 16MB.", NewFileTooLargeError(config.DefaultMaxUploadBytes).Message)
}

func TestHandlers_ClassifyDemo(t *testing.T) {
	assert := assert.New(t)
	cfg := testConfig(t)
	s := newTestServer(t, cfg, demoDispatcher())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, uploadRequest(t, "/classify", "image", "brain scan.PNG", pngBytes(t)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(resp.Success)
	assert.True(resp.DemoMode)
	require.Len(t, resp.Predictions, 4)
	assert.Equal(models.ModelNameIDTNet, resp.Predictions[0].Model)
	assert.Equal("96.78", resp.Predictions[0].Confidence)
	assert.Equal(models.ClassNoTumor, resp.Predictions[2].Prediction)
	assert.Regexp(`^/static/uploads/\d+_brain_scan\.PNG$`, resp.ImageURL)
	assert.Empty(resp.PreviewURL)

	// The saved upload is served back from its URL.
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, resp.ImageURL, nil))
	assert.Equal(http.StatusOK, w.Code)
	assert.Equal(pngBytes(t), w.Body.Bytes())
}

func TestHandlers_ClassifySkipsTextFieldBeforeFile(t *testing.T) {
	cfg := testConfig(t)
	s := newTestServer(t, cfg, demoDispatcher())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("image", "caption"))
	part, err := mw.CreateFormFile("image", "scan.jpg")
	require.NoError(t, err)
	_, err = part.Write(pngBytes(t))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/classify", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Regexp(t, `^/static/uploads/\d+_scan\.jpg$`, resp.ImageURL)
	assert.Len(t, uploadedFiles(t, cfg), 1)
}

func TestHandlers_ClassifyLive(t *testing.T) {
	assert := assert.New(t)
	cfg := testConfig(t)
	s := newTestServer(t, cfg, liveDispatcher(t, models.ModelNameVGG16))

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, uploadRequest(t, "/classify", "image", "scan.png", pngBytes(t)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(false, raw["demo_mode"])
	assert.Equal(true, raw["success"])

	var resp ClassifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Predictions, 4)
	for i, p := range resp.Predictions {
		if i == 1 {
			assert.Equal("forward pass failed", p.Error)
			assert.Empty(p.Confidence)
			continue
		}
		assert.Equal(models.ClassPituitary, p.Prediction)
		assert.Equal("80.00", p.Confidence)
		assert.Regexp(`^\d+ms$`, p.ProcessingTime)
		assert.Empty(p.Error)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, metrics.DefaultPath, nil))
	assert.Contains(w.Body.String(), `tumorclassifier_classify_requests_total{code="200"} 1`)
	assert.Contains(w.Body.String(), "tumorclassifier_demo_mode 0")
}

func TestHandlers_ClassifyFailures(t *testing.T) {
	tests := []struct {
		name       string
		dispatcher func(t *testing.T) *inference.Dispatcher
		content    []byte
		expect     func(t *testing.T, w *httptest.ResponseRecorder)
	}{
		{
			name:       "undecodable image",
			dispatcher: func(t *testing.T) *inference.Dispatcher { return liveDispatcher(t) },
			content:    []byte("this is not a png"),
			expect: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert := assert.New(t)
				assert.Equal(http.StatusInternalServerError, w.Code)
				assert.True(strings.HasPrefix(decodeError(t, w), "image preprocessing failed: "))
			},
		},
		{
			name: "every model fails",
			dispatcher: func(t *testing.T) *inference.Dispatcher {
				return liveDispatcher(t, models.Default().Names()...)
			},
			content: pngBytes(t),
			expect: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert := assert.New(t)
				assert.Equal(http.StatusInternalServerError, w.Code)
				assert.Equal(inference.ErrNoModelSucceeded.Error(), decodeError(t, w))
			},
		},
		{
			name:       "demo ignores content",
			dispatcher: func(t *testing.T) *inference.Dispatcher { return demoDispatcher() },
			content:    []byte("this is not a png"),
			expect: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusOK, w.Code)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, testConfig(t), tc.dispatcher(t))
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, uploadRequest(t, "/classify", "image", "scan.png", tc.content))
			tc.expect(t, w)
		})
	}
}

func TestHandlers_GetHealth(t *testing.T) {
	tests := []struct {
		name       string
		dispatcher func(t *testing.T) *inference.Dispatcher
		expectDemo bool
	}{
		{name: "demo", dispatcher: func(t *testing.T) *inference.Dispatcher { return demoDispatcher() }, expectDemo: true},
		{name: "live", dispatcher: func(t *testing.T) *inference.Dispatcher { return liveDispatcher(t) }, expectDemo: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			s := newTestServer(t, testConfig(t), tc.dispatcher(t))

			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthy", nil))

			assert.Equal(http.StatusOK, w.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal("ok", resp.Status)
			assert.Equal(tc.expectDemo, resp.DemoMode)
		})
	}
}

func TestHandlers_GetModels(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t, testConfig(t), demoDispatcher())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp ModelsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(models.DefaultDescriptors(), resp.Models)
	assert.Equal([]models.ClassLabel{
		models.ClassGlioma, models.ClassMeningioma, models.ClassNoTumor, models.ClassPituitary,
	}, resp.Classes)
	assert.True(resp.DemoMode)
}

func TestHandlers_Index(t *testing.T) {
	tests := []struct {
		name       string
		dispatcher func(t *testing.T) *inference.Dispatcher
		expectDemo bool
	}{
		{name: "demo banner", dispatcher: func(t *testing.T) *inference.Dispatcher { return demoDispatcher() }, expectDemo: true},
		{name: "no banner", dispatcher: func(t *testing.T) *inference.Dispatcher { return liveDispatcher(t) }, expectDemo: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			s := newTestServer(t, testConfig(t), tc.dispatcher(t))

			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(http.StatusOK, w.Code)
			body := w.Body.String()
			assert.Contains(body, "IDTNet")
			assert.Contains(body, "98.13%")
			assert.Contains(body, "<strong>92.8%</strong>", "accuracy is shown as configured")
			assert.Contains(body, "fa-sitemap")
			assert.Contains(body, `accept=".png,.jpg,.jpeg,.dcm,.dicom"`)
			assert.Equal(tc.expectDemo, strings.Contains(body, `id="demoBanner"`))
		})
	}
}

func TestHandlers_Assets(t *testing.T) {
	s := newTestServer(t, testConfig(t), demoDispatcher())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assets/js/app.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/classify")
}

func TestRequestID(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t, testConfig(t), demoDispatcher())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthy", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(generated, 36)

	const id = "5f0c8a5e-0d8b-4c1e-9a43-1d4b2f9c7e10"
	req := httptest.NewRequest(http.MethodGet, "/healthy", nil)
	req.Header.Set(RequestIDHeader, id)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(id, w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/healthy", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.NotEqual("not-a-uuid", w.Header().Get(RequestIDHeader))
}

func TestStatusFor(t *testing.T) {
	code, msg := statusFor(errors.Wrap(ErrNoFileSelected, "upload"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No file selected", msg)

	code, msg = statusFor(errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal Server Error", msg)
}
