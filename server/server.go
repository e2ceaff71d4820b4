// Package server exposes the REST façade over jobs, executions, logs, the
// knowledge base and audit entries, plus /health and /metrics.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/jobs"
	"github.com/teranos/rpawatch/rca"
	"github.com/teranos/rpawatch/records"
)

// Pipeline is what the server needs from pipeline.Orchestrator
type Pipeline interface {
	Trigger(jobID string)
	Remediate(ctx context.Context, jobID string) error
}

// FeedStatus reports the live feed connection
type FeedStatus interface {
	Connected() bool
}

// Deps are the stores and services behind the handlers
type Deps struct {
	Jobs       *jobs.Store
	Audit      *jobs.AuditStore
	Executions *records.ExecutionStore
	Logs       *records.LogStore
	KB         *rca.Store
	Pipeline   Pipeline
	Feed       FeedStatus // optional
}

// Config holds server configuration
type Config struct {
	Port           int
	AllowedOrigins []string
}

// Server serves the REST API
type Server struct {
	deps    Deps
	cfg     Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *zap.SugaredLogger
	started time.Time
}

// New creates a server with all routes registered
func New(deps Deps, cfg Config, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		deps:    deps,
		cfg:     cfg,
		mux:     http.NewServeMux(),
		logger:  log,
		started: time.Now(),
	}
	s.setupHTTPRoutes()
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on the configured port and serves in the background. It
// returns once the listener is bound.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}

	s.httpSrv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("HTTP server stopped", "error", err)
		}
	}()
	s.logger.Infow("HTTP server listening", "addr", ln.Addr().String())
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "failed to shut down HTTP server")
	}
	s.logger.Infow("HTTP server stopped")
	return nil
}
