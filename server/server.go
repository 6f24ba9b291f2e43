package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"corsserve/config"
	"corsserve/logger"

	"github.com/gorilla/mux"
)

const defaultShutdownTimeout = 10 * time.Second

// Server serves cfg.Root over HTTP with a wildcard CORS header on every
// response.
type Server struct {
	cfg     *config.Config
	router  *mux.Router
	handler http.Handler
	server  *http.Server
	ln      net.Listener
	log     *logger.Logger

	done    chan error
	stopped chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewServer builds the handler chain. It does not touch the network.
func NewServer(cfg *config.Config, log *logger.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		router:  mux.NewRouter(),
		log:     log,
		done:    make(chan error, 1),
		stopped: make(chan struct{}),
	}
	s.setupRoutes()

	// CORS wraps the router from the outside so responses the router
	// generates itself (405) carry the header too.
	s.handler = CORSMiddleware(
		RequestIDMiddleware(
			s.AccessLogMiddleware(
				s.RecoverMiddleware(s.router))))
	return s
}

// setupRoutes registers the single catch-all file route
func (s *Server) setupRoutes() {
	s.router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	files := http.FileServer(http.Dir(s.cfg.Root))
	s.router.PathPrefix("/").Handler(files).Methods(http.MethodGet, http.MethodHead)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET, HEAD")
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

// Handler returns the complete handler chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves in the background. A bind failure is
// returned directly. Cancelling ctx shuts the server down.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	s.ln = ln

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	port := ln.Addr().(*net.TCPAddr).Port
	s.log.Info(fmt.Sprintf("Serving HTTP on %s port %d", s.cfg.DisplayHost(), port), map[string]interface{}{
		"addr": ln.Addr().String(),
		"root": s.cfg.Root,
	})

	go func() {
		defer close(s.stopped)
		err := s.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		} else {
			s.log.Error("File server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
		s.done <- err
	}()

	// Wait for context cancellation
	go func() {
		select {
		case <-ctx.Done():
			if err := s.Shutdown(); err != nil {
				s.log.Error("Shutdown failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		case <-s.stopped:
		}
	}()

	return nil
}

// Addr returns the bound listener address, or the configured one before
// Start.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.cfg.Addr()
}

// Done yields the serve loop's result once: nil after a clean shutdown.
func (s *Server) Done() <-chan error {
	return s.done
}

// Shutdown gracefully shuts down the server. Concurrent and repeated calls
// wait for the first one and share its result.
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}
	s.shutdownOnce.Do(func() {
		s.log.Info("Shutting down file server", nil)

		timeout := s.cfg.GetShutdownTimeout()
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			s.shutdownErr = fmt.Errorf("server shutdown failed: %w", err)
		}
	})
	return s.shutdownErr
}
