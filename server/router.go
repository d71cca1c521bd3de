package server

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/tumorclassifier/config"
	"github.com/nvr-ai/tumorclassifier/metrics"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed assets
var assetsFS embed.FS

// NewRouter wires middlewares, static content and the handlers.
//
// Arguments:
//   - cfg: The service configuration.
//   - h: The handlers.
//   - m: The metrics, nil to disable the metrics endpoint.
//   - log: The access logger.
//
// Returns:
//   - *gin.Engine: The router.
//   - error: An error if the embedded templates cannot be parsed.
func NewRouter(cfg *config.Config, h *Handlers, m *metrics.Metrics, log *zap.SugaredLogger) (*gin.Engine, error) {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()

	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, errors.Wrap(err, "parse templates")
	}
	r.SetHTMLTemplate(tmpl)

	// CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.MaxAge = cfg.Server.CORS.MaxAge
	if allowsAnyOrigin(cfg.Server.CORS.AllowOrigins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Server.CORS.AllowOrigins
	}
	corsConfig.AddAllowHeaders(RequestIDHeader)
	corsConfig.AddExposeHeaders(RequestIDHeader)

	// Middleware
	r.Use(RequestID())
	r.Use(ginzap.Ginzap(log.Desugar(), time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(log.Desugar(), true))
	r.Use(Error())
	r.Use(cors.New(corsConfig))

	// Static content, uploads first since they may live outside the static dir.
	r.Use(static.Serve(cfg.Upload.URLPrefix, static.LocalFile(cfg.Upload.Dir, false)))
	r.Use(static.Serve("/static", static.LocalFile(cfg.Server.StaticDir, false)))

	assets, err := fs.Sub(assetsFS, "assets")
	if err != nil {
		return nil, errors.Wrap(err, "open assets")
	}
	r.StaticFS("/assets", http.FS(assets))

	classify := []gin.HandlerFunc{BodyLimit(cfg.Server.MaxUploadBytes), h.Classify}
	if m != nil {
		classify = append([]gin.HandlerFunc{CountRequests(m)}, classify...)
	}

	// Router
	r.GET("/", h.Index)
	r.POST("/classify", classify...)
	r.GET("/healthy", h.Health)

	apiv1 := r.Group("/api/v1")
	apiv1.GET("/models", h.Models)
	apiv1.POST("/classify", classify...)

	if m != nil && cfg.Metrics.Enable {
		r.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	return r, nil
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
