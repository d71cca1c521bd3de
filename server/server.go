// Package server - HTTP surface of the classification service.
package server

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/tumorclassifier/config"
	"github.com/nvr-ai/tumorclassifier/inference"
	"github.com/nvr-ai/tumorclassifier/metrics"
	"github.com/nvr-ai/tumorclassifier/util"
)

// Server is the classification web server.
type Server struct {
	cfg        *config.Config
	log        *zap.SugaredLogger
	httpServer *http.Server
}

// New creates the server and its router.
//
// Arguments:
//   - cfg: The validated configuration.
//   - dispatcher: The dispatcher chosen at startup.
//   - m: The metrics, may be nil.
//   - log: The logger.
//
// Returns:
//   - *Server: The server.
//   - error: An error if the upload directory or the router cannot be set up.
func New(
	cfg *config.Config,
	dispatcher *inference.Dispatcher,
	m *metrics.Metrics,
	log *zap.SugaredLogger,
) (*Server, error) {
	store, err := util.NewUploadStore(cfg.Upload.Dir, cfg.Upload.URLPrefix)
	if err != nil {
		return nil, err
	}

	h := NewHandlers(HandlersOptions{
		Dispatcher:        dispatcher,
		Store:             store,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		MaxUploadBytes:    cfg.Server.MaxUploadBytes,
		PreviewMaxEdge:    cfg.Upload.PreviewMaxEdge,
		Metrics:           m,
		Logger:            log,
	})

	router, err := NewRouter(cfg, h, m, log)
	if err != nil {
		return nil, err
	}

	if m != nil {
		m.SetDemoMode(dispatcher.DemoMode())
	}

	return &Server{
		cfg: cfg,
		log: log,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
//
// Arguments:
//   - ctx: Cancelled to stop the server.
//
// Returns:
//   - error: A listen error, or a shutdown error.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("Server listening", "addr", s.cfg.Server.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	s.log.Infow("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
