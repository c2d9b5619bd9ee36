/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package server exposes the spawner hooks over HTTP for a hub-side client.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/lifecycle"
	"github.com/jupyter-infra/dataproc-hub/internal/metrics"
	"github.com/jupyter-infra/dataproc-hub/internal/redirect"
	"github.com/jupyter-infra/dataproc-hub/internal/spawner"
)

// Spawner is the engine behind the routes
type Spawner interface {
	Start(ctx context.Context, user spawner.User, form v1alpha1.FormSelection) (*lifecycle.StartResult, error)
	Stop(ctx context.Context, user spawner.User) error
	Poll(ctx context.Context, user spawner.User) v1alpha1.PollStatus
	Progress(ctx context.Context, user spawner.User, from int) (<-chan v1alpha1.ProgressEvent, error)
	Options(ctx context.Context) (*v1alpha1.OptionsSchema, error)
	GatewayURL(ctx context.Context, user spawner.User) (string, error)
}

// Server represents the HTTP server of the spawner service
type Server struct {
	config     *spawner.Config
	spawner    Spawner
	metrics    *metrics.Collector
	logger     logr.Logger
	httpServer *http.Server
}

// NewServer creates a new server instance. collector may be nil.
func NewServer(config *spawner.Config, sp Spawner, collector *metrics.Collector, logger logr.Logger) *Server {
	return &Server{
		config:  config,
		spawner: sp,
		metrics: collector,
		logger:  logger.WithName("server"),
	}
}

// Handler returns the router with every route registered
func (s *Server) Handler() http.Handler {
	router := http.NewServeMux()

	// Default and named servers share handlers
	for _, prefix := range []string{"/api/v1/users/{user}/server", "/api/v1/users/{user}/servers/{server}"} {
		s.route(router, "POST "+prefix, s.handleStart)
		s.route(router, "DELETE "+prefix, s.handleStop)
		s.route(router, "GET "+prefix+"/status", s.handleStatus)
		s.route(router, "GET "+prefix+"/progress", s.handleProgress)
	}
	s.route(router, "GET /api/v1/options", s.handleOptions)
	s.route(router, "GET /user/{user}/{path...}", (&redirect.Handler{
		Resolver: redirect.ResolverFunc(func(ctx context.Context, username string) (string, error) {
			return s.spawner.GatewayURL(ctx, spawner.User{Name: username})
		}),
	}).ServeHTTP)
	s.route(router, "GET /health", s.handleHealth)
	if s.metrics != nil {
		router.Handle("GET /metrics", s.metrics.Handler())
	}
	return router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		// Progress streams end with the serving context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Channel for handling shutdown
	idleConnsClosed := make(chan struct{})
	go s.handleShutdown(ctx, idleConnsClosed)

	s.logger.Info("Starting spawner service", "port", s.config.Port)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-idleConnsClosed
	s.logger.Info("Server stopped")
	return nil
}

// handleShutdown handles graceful server shutdown
func (s *Server) handleShutdown(ctx context.Context, idleConnsClosed chan struct{}) {
	<-ctx.Done()
	s.logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(err, "Server shutdown error")
	}

	close(idleConnsClosed)
}

// route registers handler under pattern with a request-scoped logger and
// request metrics labelled by pattern
func (s *Server) route(router *http.ServeMux, pattern string, handler http.HandlerFunc) {
	router.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		logger := s.logger.WithValues("route", pattern)
		r = r.WithContext(logf.IntoContext(r.Context(), logger))

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		handler(sw, r)

		if s.metrics != nil {
			s.metrics.ObserveHTTPRequest(pattern, sw.code, time.Since(started))
		}
		logger.V(1).Info("Served request", "status", sw.code, "duration", time.Since(started).String())
	})
}

// statusWriter remembers the response code and keeps streaming responses flushable
type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Handler methods are implemented in separate files:
// - serverroute_spawn.go
// - serverroute_options.go
// - serverroute_health.go
