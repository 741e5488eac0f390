// Package server exposes the keycap pipeline over HTTP.
//
// # Endpoints
//
//	GET  /                 health and version
//	GET  /fonts            built-in and uploaded fonts
//	POST /fonts            upload a .ttf/.otf (multipart field "file")
//	GET  /machines         keycap variants
//	GET  /stats            generation and cache counters
//	POST /generate         batch request (JSON or JSON5) -> ZIP archive
//	GET  /generate/{text}  single keycap -> STL
//	GET  /preview/{text}   legend placement -> PNG
//
// Errors are JSON objects {"error": {"code": ..., "message": ...}} with a
// status derived from the error code.
package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/keyforge/pkg/fontstore"
	"github.com/matzehuels/keyforge/pkg/pipeline"
)

// Options limits request sizes and durations.
type Options struct {
	MaxBodyBytes   int64
	MaxUploadBytes int64
	RequestTimeout time.Duration
	// BatchTimeout bounds pipeline execution per request.
	BatchTimeout time.Duration
}

// Server serves the HTTP API.
type Server struct {
	Runner  *pipeline.Runner
	Fonts   *fontstore.Resolver
	Uploads fontstore.Store
	Logger  *log.Logger
	Metrics *Metrics
	Options Options
}

// New creates a server. A nil logger uses log.Default().
func New(runner *pipeline.Runner, fonts *fontstore.Resolver, uploads fontstore.Store, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if fonts == nil {
		fonts = fontstore.NewResolver(nil)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = fontstore.MaxFontBytes
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	return &Server{
		Runner:  runner,
		Fonts:   fonts,
		Uploads: uploads,
		Logger:  logger,
		Metrics: NewMetrics(),
		Options: opts,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.Options.RequestTimeout))

	r.Get("/", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/machines", s.handleMachines)
	r.Route("/fonts", func(r chi.Router) {
		r.Get("/", s.handleListFonts)
		r.Post("/", s.handleUploadFont)
	})
	r.Post("/generate", s.handleGenerate)
	r.Get("/generate/{text}", s.handleGenerateOne)
	r.Get("/preview/{text}", s.handlePreview)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, notFound(r.URL.Path))
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.Logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
