package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chessrelay/internal/config"
)

// Drainer is closed after the HTTP listener stops accepting, to end
// long-lived connections that http.Server.Shutdown does not track. It must
// return once ctx is done.
type Drainer interface {
	Shutdown(ctx context.Context) error
}

// Server runs an http.Server as a lifecycle service.
type Server struct {
	cfg     config.ServerConfig
	srv     *http.Server
	drainer Drainer
	logger  *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewServer wraps handler in an http.Server configured from cfg. drainer may be nil.
//
// Precondition: handler and logger must be non-nil.
func NewServer(cfg config.ServerConfig, handler http.Handler, drainer Drainer, logger *zap.Logger) *Server {
	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		drainer: drainer,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Start listens and serves until Stop is called. It blocks.
//
// Postcondition: returns nil after a clean Stop, or the listen/serve error.
func (s *Server) Start(_ context.Context) error {
	start := time.Now()
	listener, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("http server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)
	if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Stop stops accepting requests, closes websocket connections, and waits for
// in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if s.drainer != nil {
		if err := s.drainer.Shutdown(ctx); err != nil {
			s.logger.Warn("connection drain incomplete", zap.Error(err))
		}
	}
	s.logger.Info("http server stopped")
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listen address, or "" before Start binds.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
