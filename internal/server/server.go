// Package server exposes batch processing over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/spigell/resume-batch/internal/ai"
	"github.com/spigell/resume-batch/internal/batch"
	"github.com/spigell/resume-batch/internal/document"
	"github.com/spigell/resume-batch/internal/publisher"
	"go.uber.org/zap"
)

const (
	defaultListen         = ":8080"
	defaultMaxUploadBytes = 64 << 20
	shutdownTimeout       = 10 * time.Second
)

// Config holds the listener settings and batch defaults for requests that omit them.
type Config struct {
	Listen         string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
	Concurrency    int
	Strategy       batch.Strategy
}

// Deps are the collaborators served over HTTP. Metrics is optional.
type Deps struct {
	Manager        *batch.Manager
	Publisher      *publisher.Publisher
	Resolver       *document.Resolver
	Processor      batch.Processor
	Scorer         ai.Scorer
	// CriteriaScorer and Comparer are optional; their endpoints answer 501 without them.
	CriteriaScorer ai.CriteriaScorer
	Comparer       ai.Comparer
	Metrics        http.Handler
}

type Server struct {
	ctx      context.Context
	deps     Deps
	cfg      Config
	logger   *zap.Logger
	upgrader websocket.Upgrader
	router   *mux.Router
}

// New builds the server. ctx bounds every batch started through it.
func New(ctx context.Context, deps Deps, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Listen == "" {
		cfg.Listen = defaultListen
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}

	s := &Server{
		ctx:    ctx,
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			// progress is read-only and unauthenticated
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/batches", s.startBatch).Methods(http.MethodPost)
	api.HandleFunc("/batches/{id}", s.cancelBatch).Methods(http.MethodDelete)
	api.HandleFunc("/batches/{id}/progress", s.progress).Methods(http.MethodGet)
	api.HandleFunc("/batches/{id}/stream", s.stream).Methods(http.MethodGet)
	api.HandleFunc("/batches/{id}/ws", s.wsStream).Methods(http.MethodGet)
	api.HandleFunc("/batches/{id}/results", s.results).Methods(http.MethodGet)
	api.HandleFunc("/batches/{id}/export", s.export).Methods(http.MethodGet)

	api.HandleFunc("/batch_progress", s.latestProgress).Methods(http.MethodGet)
	api.HandleFunc("/batch_results", s.latestResults).Methods(http.MethodGet)

	api.HandleFunc("/process", s.processOne).Methods(http.MethodPost)
	api.HandleFunc("/score", s.score).Methods(http.MethodPost)
	api.HandleFunc("/compare", s.compare).Methods(http.MethodPost)

	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("listen", s.cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
