// Package server wires the mudra HTTP endpoints together.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/pkg/logger"
	"github.com/ayusman/mudra/pkg/metrics"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Config holds the server configuration. Only Predictor is required; the
// stream, catalog and metrics routes exist only when their dependency is set.
type Config struct {
	Predictor *inference.Predictor
	Session   *app.Session
	Store     *store.Store
	Metrics   *metrics.Manager
	Logger    logger.Logger
	StaticDir string
}

// Server represents the HTTP server for the mudra service.
type Server struct {
	config  Config
	mux     *http.ServeMux
	handler http.Handler
	log     logger.Logger
	start   time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		log:    log,
		start:  time.Now(),
	}
	s.setupRoutes()
	s.handler = cors(s.mux)
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.handle("/api/health", http.HandlerFunc(s.handleHealth))

	if s.config.Predictor != nil {
		s.handle("/predict", api.NewPredictHandler(s.config.Predictor, s.log.Named("predict")))
	}

	if s.config.Session != nil {
		s.handle("/toggle_detection", api.NewToggleHandler(s.config.Session, s.log.Named("toggle")))
		s.handle("/video_feed", NewStreamHandler(s.config.Session, s.log.Named("stream")))
		s.handle("/api/predictions", NewPredictionsHandler(s.config.Session, s.log.Named("ws")))
	}

	if s.config.Store != nil {
		gestures := api.NewGestureHandler(s.config.Store)
		s.handle("/api/gestures", gestures)
		s.handle("/api/gestures/", gestures)

		runs := api.NewTrainingHandler(s.config.Store)
		s.handle("/api/training/runs", runs)
		s.handle("/api/training/runs/", runs)

		captures := api.NewCaptureHandler(s.config.Store)
		s.handle("/api/captures", captures)
		s.handle("/api/captures/", captures)
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics.Handler())
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

func (s *Server) handle(pattern string, h http.Handler) {
	if s.config.Metrics != nil {
		h = instrument(h, pattern, s.config.Metrics)
	}
	s.mux.Handle(pattern, h)
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type healthResponse struct {
	Status    string   `json:"status"`
	Uptime    string   `json:"uptime"`
	Ready     bool     `json:"ready"`
	Model     string   `json:"model"`
	Classes   []string `json:"classes,omitempty"`
	Detect    *bool    `json:"detect,omitempty"`
	Streaming *bool    `json:"streaming,omitempty"`
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).Round(time.Second).String(),
		Model:  inference.NotReady.String(),
	}
	if p := s.config.Predictor; p != nil {
		response.Ready = p.Ready()
		response.Model = p.State().String()
		response.Classes = p.Classes()
	}
	if sess := s.config.Session; sess != nil {
		detect, streaming := sess.Detecting(), sess.Streaming()
		response.Detect = &detect
		response.Streaming = &streaming
	}

	writeJSON(w, http.StatusOK, response)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "starting HTTP server", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info(ctx, "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
