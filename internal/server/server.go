// Package server exposes the subtitle pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saccohuo/subpipe/internal/asr"
	"github.com/saccohuo/subpipe/internal/config"
	"github.com/saccohuo/subpipe/internal/fileinfo"
	"github.com/saccohuo/subpipe/internal/health"
	"github.com/saccohuo/subpipe/internal/hotword"
	"github.com/saccohuo/subpipe/internal/observe"
	"github.com/saccohuo/subpipe/internal/pipeline"
	"github.com/saccohuo/subpipe/internal/resilience"
	"github.com/saccohuo/subpipe/internal/resolver"
	"github.com/saccohuo/subpipe/internal/subtitle"
	"github.com/saccohuo/subpipe/internal/translate"
)

const shutdownGrace = 10 * time.Second

// Server wires the pipeline behind the HTTP API.
type Server struct {
	cfg       config.AppConfig
	proc      *pipeline.Processor
	router    *translate.Router
	settings  *hotword.SettingsStore
	store     *fileinfo.Store
	metrics   *observe.Metrics
	health    *health.Handler
	uploadDir string
}

// Option configures a [Server].
type Option func(*Server)

// WithTranslateAPI enables the standalone /api/translate endpoint.
func WithTranslateAPI(r *translate.Router) Option {
	return func(s *Server) { s.router = r }
}

// WithSettingsAPI enables the hotword settings endpoints.
func WithSettingsAPI(st *hotword.SettingsStore) Option {
	return func(s *Server) { s.settings = st }
}

// WithFileInfoAPI enables the file record endpoints.
func WithFileInfoAPI(st *fileinfo.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithHealth sets the health handler. Without one a checker-less handler is
// used.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithServerMetrics overrides the metrics sink.
func WithServerMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a [Server] around proc.
func New(cfg config.AppConfig, proc *pipeline.Processor, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		proc:      proc,
		uploadDir: cfg.UploadFolder,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New()
	}
	return s
}

// Routes builds the full handler with middleware applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/process", s.handleProcess)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /api/translate", s.handleTranslate)
	mux.HandleFunc("POST /api/parse-srt", s.handleParseSRT)
	mux.HandleFunc("GET /api/hotword-settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/hotword-settings", s.handleUpdateSettings)
	mux.HandleFunc("GET /api/files/{id}", s.handleGetFile)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)

	return observe.Middleware(s.metrics)(mux)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// httpStatus maps pipeline error families onto response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, resolver.ErrInvalidURL),
		errors.Is(err, resolver.ErrUnsupportedPlatform):
		return http.StatusBadRequest
	case errors.Is(err, resolver.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, resolver.ErrNoUsableSource),
		errors.Is(err, resolver.ErrSourceUnavailable),
		errors.Is(err, asr.ErrTranscriptionEmpty),
		errors.Is(err, subtitle.ErrInvalidSRT):
		return http.StatusUnprocessableEntity
	case errors.Is(err, asr.ErrNoHealthyBackend),
		errors.Is(err, translate.ErrNoProviders),
		errors.Is(err, resilience.ErrChainExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, fileinfo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
