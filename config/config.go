// Package config - Service configuration, defaults and validation.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/nvr-ai/tumorclassifier/images"
	"github.com/nvr-ai/tumorclassifier/inference"
	"github.com/nvr-ai/tumorclassifier/logger"
	"github.com/nvr-ai/tumorclassifier/metrics"
	"github.com/nvr-ai/tumorclassifier/models"
)

// DefaultMaxUploadBytes is the largest accepted request body, 16 MiB.
const DefaultMaxUploadBytes int64 = 16 * 1024 * 1024

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig        `json:"server" yaml:"server" mapstructure:"server"`
	Upload    UploadConfig        `json:"upload" yaml:"upload" mapstructure:"upload"`
	Inference inference.Config    `json:"inference" yaml:"inference" mapstructure:"inference"`
	Models    []models.Descriptor `json:"models" yaml:"models" mapstructure:"models" validate:"len=4,dive"`
	Log       logger.Config       `json:"log" yaml:"log" mapstructure:"log"`
	Metrics   metrics.Config      `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr" validate:"required"`
	// Mode is the gin mode: debug, release or test.
	Mode string `json:"mode" yaml:"mode" mapstructure:"mode" validate:"oneof=debug release test"`
	// MaxUploadBytes caps the request body of an upload.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes" mapstructure:"max_upload_bytes" validate:"gt=0"`
	// StaticDir is served under /static.
	StaticDir string `json:"static_dir" yaml:"static_dir" mapstructure:"static_dir" validate:"required"`
	// ReadTimeout bounds reading a whole request.
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout" validate:"gte=0"`
	// WriteTimeout bounds writing a response, inference included.
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout" validate:"gte=0"`
	// ShutdownTimeout bounds the graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gt=0"`
	// CORS configures cross-origin access to the API.
	CORS CORSConfig `json:"cors" yaml:"cors" mapstructure:"cors"`
}

// CORSConfig configures cross-origin requests.
type CORSConfig struct {
	// AllowOrigins lists allowed origins, "*" allows any.
	AllowOrigins []string `json:"allow_origins" yaml:"allow_origins" mapstructure:"allow_origins" validate:"min=1"`
	// MaxAge is how long preflight results may be cached.
	MaxAge time.Duration `json:"max_age" yaml:"max_age" mapstructure:"max_age" validate:"gte=0"`
}

// UploadConfig controls where uploads are written and which are accepted.
type UploadConfig struct {
	// Dir receives the uploaded files.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir" validate:"required"`
	// URLPrefix is the URL path Dir is served under.
	URLPrefix string `json:"url_prefix" yaml:"url_prefix" mapstructure:"url_prefix" validate:"required,startswith=/"`
	// AllowedExtensions are lower-case extensions without the dot.
	AllowedExtensions []string `json:"allowed_extensions" yaml:"allowed_extensions" mapstructure:"allowed_extensions" validate:"min=1,dive,required,lowercase"`
	// PreviewMaxEdge is the longest edge of DICOM previews, 0 disables them.
	PreviewMaxEdge uint `json:"preview_max_edge" yaml:"preview_max_edge" mapstructure:"preview_max_edge"`
}

// New returns the default configuration.
//
// Returns:
//   - *Config: The defaults, valid as-is.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "0.0.0.0:5000",
			Mode:            "release",
			MaxUploadBytes:  DefaultMaxUploadBytes,
			StaticDir:       "static",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			CORS: CORSConfig{
				AllowOrigins: []string{"*"},
				MaxAge:       12 * time.Hour,
			},
		},
		Upload: UploadConfig{
			Dir:               "static/uploads",
			URLPrefix:         "/static/uploads",
			AllowedExtensions: images.AllowedExtensions(),
			PreviewMaxEdge:    512,
		},
		Inference: inference.DefaultConfig(),
		Models:    models.DefaultDescriptors(),
		Log:       logger.DefaultConfig(),
		Metrics:   metrics.DefaultConfig(),
	}
}

// Validate checks struct tags and cross-field rules.
//
// Returns:
//   - error: Every violation, aggregated.
func (c *Config) Validate() error {
	var result *multierror.Error

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				result = multierror.Append(result, errors.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}

	if c.Metrics.Enable && c.Metrics.Path == "" {
		result = multierror.Append(result, errors.New("metrics.path is required when metrics are enabled"))
	}
	if _, err := c.Registry(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "models"))
	}

	return result.ErrorOrNil()
}

// Registry builds the model registry described by Models.
func (c *Config) Registry() (*models.Registry, error) {
	return models.NewRegistry(c.Models, models.TumorClasses)
}
