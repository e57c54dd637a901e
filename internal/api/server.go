// Package api exposes batch start and stop commands over HTTP, along with
// health and metrics endpoints.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"

	"github.com/tastythames/credcheck/internal/batch"
	"github.com/tastythames/credcheck/internal/metrics"
)

type Options struct {
	Addr string
	// APIKey, when set, is required in the X-API-Key header of /api/v1 calls.
	APIKey     string
	Dispatcher *batch.Dispatcher
	Metrics    *metrics.Renderer
	Logger     *slog.Logger
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      NewHandler(opts),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: opts.Logger,
	}
}

// NewHandler builds the router.
func NewHandler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{dispatcher: opts.Dispatcher, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:             slog.LevelDebug,
		Schema:            httplog.SchemaECS.Concise(true),
		LogRequestHeaders: []string{},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if opts.Metrics != nil {
		r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
			opts.Metrics.Write(w)
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiKeyAuth(opts.APIKey))
		r.Get("/batches", h.listBatches)
		r.Post("/batches/{owner}", h.startBatch)
		r.Get("/batches/{owner}", h.getBatch)
		r.Delete("/batches/{owner}", h.cancelBatch)
	})
	return r
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("credcheck listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
