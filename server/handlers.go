package server

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/tumorclassifier/inference"
	"github.com/nvr-ai/tumorclassifier/metrics"
	"github.com/nvr-ai/tumorclassifier/models"
	"github.com/nvr-ai/tumorclassifier/util"
)

// imageField is the multipart field holding the upload.
const imageField = "image"

// ClassifyResponse is the body of a successful classification.
type ClassifyResponse struct {
	Success     bool                   `json:"success"`
	Predictions []inference.Prediction `json:"predictions"`
	ImageURL    string                 `json:"image_url"`
	PreviewURL  string                 `json:"preview_url,omitempty"`
	DemoMode    bool                   `json:"demo_mode"`
}

// HealthResponse is the body of the health check.
type HealthResponse struct {
	Status   string `json:"status"`
	DemoMode bool   `json:"demo_mode"`
}

// ModelsResponse lists the registry.
type ModelsResponse struct {
	Models   []models.Descriptor `json:"models"`
	Classes  []models.ClassLabel `json:"classes"`
	DemoMode bool                `json:"demo_mode"`
}

// HandlersOptions holds the dependencies of the HTTP handlers.
type HandlersOptions struct {
	Dispatcher        *inference.Dispatcher
	Store             *util.UploadStore
	AllowedExtensions []string
	MaxUploadBytes    int64
	PreviewMaxEdge    uint
	// Metrics is optional.
	Metrics *metrics.Metrics
	Logger  *zap.SugaredLogger
}

// Handlers serves the classification endpoints.
type Handlers struct {
	opts HandlersOptions
}

// NewHandlers creates the handlers.
func NewHandlers(opts HandlersOptions) *Handlers {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Handlers{opts: opts}
}

// Index renders the landing page.
func (h *Handlers) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Models":         h.opts.Dispatcher.Registry().Descriptors(),
		"ModelsLoaded":   !h.opts.Dispatcher.DemoMode(),
		"Accept":         acceptAttr(h.opts.AllowedExtensions),
		"MaxUploadBytes": formatSize(h.opts.MaxUploadBytes),
	})
}

// Classify validates an upload, stores it and returns every model's prediction.
func (h *Handlers) Classify(c *gin.Context) {
	log := h.opts.Logger.With(requestIDKey, c.GetString(requestIDKey))

	part, err := h.imagePart(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	filename := part.FileName()
	if !util.AllowedFile(filename, h.opts.AllowedExtensions) {
		abortWithError(c, ErrInvalidFormat)
		return
	}

	stop := h.startOperation(metrics.OperationSaveUpload)
	saved, err := h.opts.Store.Save(filename, part)
	stop()
	if err != nil {
		abortWithError(c, err)
		return
	}

	if h.opts.PreviewMaxEdge > 0 {
		if err := h.opts.Store.SavePreview(saved, h.opts.PreviewMaxEdge); err != nil {
			log.Warnw("Preview not written", "file", saved.Name, "error", err)
		}
	}

	stop = h.startOperation(metrics.OperationClassify)
	outcomes, err := h.opts.Dispatcher.ClassifyFile(c.Request.Context(), saved.Path)
	stop()
	if err != nil {
		log.Errorw("Classification failed", "file", saved.Name, "error", err)
		abortWithError(c, err)
		return
	}

	for _, o := range outcomes {
		if !o.OK() {
			log.Warnw("Model failed", "model", o.Prediction.Model, "error", o.Err)
		}
	}
	log.Infow("Classified upload",
		"file", saved.Name,
		"demo_mode", h.opts.Dispatcher.DemoMode(),
		"succeeded", inference.Succeeded(outcomes),
	)

	c.JSON(http.StatusOK, ClassifyResponse{
		Success:     true,
		Predictions: inference.Predictions(outcomes),
		ImageURL:    saved.URL,
		PreviewURL:  saved.PreviewURL,
		DemoMode:    h.opts.Dispatcher.DemoMode(),
	})
}

// imagePart buffers the request body and returns the first part of the image
// field sent with a filename parameter. A part without one is a plain form
// value and does not count as a file.
func (h *Handlers) imagePart(c *gin.Context) (*multipart.Part, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		if isBodyTooLarge(err) {
			return nil, NewFileTooLargeError(h.opts.MaxUploadBytes)
		}
		return nil, errors.Wrap(err, "read request body")
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	mr, err := c.Request.MultipartReader()
	if err != nil {
		return nil, ErrNoImageProvided
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			// io.EOF, or a malformed body.
			return nil, ErrNoImageProvided
		}
		if part.FormName() != imageField {
			continue
		}

		_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if err != nil {
			continue
		}
		filename, ok := params["filename"]
		if !ok {
			continue
		}
		if filename == "" {
			return nil, ErrNoFileSelected
		}
		return part, nil
	}
}

// Health reports liveness and the inference mode.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		DemoMode: h.opts.Dispatcher.DemoMode(),
	})
}

// Models lists the registered models and labels.
func (h *Handlers) Models(c *gin.Context) {
	registry := h.opts.Dispatcher.Registry()

	classes := make([]models.ClassLabel, 0, registry.Classes().Len())
	for _, cl := range registry.Classes().Classes {
		classes = append(classes, cl.Name)
	}

	c.JSON(http.StatusOK, ModelsResponse{
		Models:   registry.Descriptors(),
		Classes:  classes,
		DemoMode: h.opts.Dispatcher.DemoMode(),
	})
}

func (h *Handlers) startOperation(name string) func() {
	if h.opts.Metrics == nil {
		return func() {}
	}
	return h.opts.Metrics.StartOperation(name)
}

func acceptAttr(exts []string) string {
	dotted := make([]string, len(exts))
	for i, e := range exts {
		dotted[i] = "." + e
	}
	return strings.Join(dotted, ",")
}
