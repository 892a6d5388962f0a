// Package api exposes the redaction pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"redactor/internal/imageio"
	"redactor/internal/jobs"
	"redactor/internal/logger"
	"redactor/internal/pipeline"
	"redactor/internal/queue"
	"redactor/internal/storage"
)

// Enqueuer submits asynchronous redaction tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload queue.Payload) (string, error)
	Ping() error
}

// Options configures a Server. Jobs and Queue are optional.
type Options struct {
	Pipeline       *pipeline.Pipeline
	Store          storage.Store
	Jobs           jobs.Store
	Queue          Enqueuer
	MaxUploadBytes int64
	JWTSecret      string
	Version        string
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	pipeline  *pipeline.Pipeline
	store     storage.Store
	jobs      jobs.Store
	queue     Enqueuer
	maxUpload int64
	jwtSecret []byte
	version   string
	started   time.Time
	now       func() time.Time
	log       zerolog.Logger
}

// NewServer creates a server.
func NewServer(opts Options) *Server {
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = imageio.MaxImageBytes
	}
	var secret []byte
	if opts.JWTSecret != "" {
		secret = []byte(opts.JWTSecret)
	}
	return &Server{
		pipeline:  opts.Pipeline,
		store:     opts.Store,
		jobs:      opts.Jobs,
		queue:     opts.Queue,
		maxUpload: maxUpload,
		jwtSecret: secret,
		version:   opts.Version,
		started:   time.Now(),
		now:       time.Now,
		log:       logger.WithComponent("api"),
	}
}

// Router configures the HTTP routes.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.requestID, s.accessLog, s.authenticate)

	router.HandleFunc("/health", s.Health).Methods(http.MethodGet)
	router.HandleFunc("/upload-image", s.UploadImage).Methods(http.MethodPost)
	router.HandleFunc("/preview-detection", s.PreviewDetection).Methods(http.MethodPost)
	router.HandleFunc("/uploads/{filename}", s.ServeFile).Methods(http.MethodGet)
	router.HandleFunc("/api/statistics", s.Statistics).Methods(http.MethodGet)
	router.HandleFunc("/cleanup", s.Cleanup).Methods(http.MethodDelete)
	router.HandleFunc("/api/jobs", s.CreateJob).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs/{id}", s.GetJob).Methods(http.MethodGet)

	return router
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.log.Info().Msg("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}
