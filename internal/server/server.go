// Package server provides the loopback HTTP surface: the route table and
// graceful-shutdown lifecycle wrapping internal/dispatcher and
// internal/monitor. Grounded on the teacher's internal/server/server.go.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claudish/claudish/internal/config"
	"github.com/claudish/claudish/internal/dispatcher"
	"github.com/claudish/claudish/internal/middleware"
	"github.com/claudish/claudish/internal/monitor"
)

type Server struct {
	addr   string
	logger *slog.Logger
	server *http.Server
}

// New builds the translating-proxy server: POST /v1/messages is handled by
// d, plus the count_tokens and models endpoints spec.md §6 names.
func New(cfgMgr *config.Manager, d *dispatcher.Dispatcher, logger *slog.Logger) *Server {
	cfg := cfgMgr.Get()
	mwSet := middleware.NewMiddlewareSet(cfgMgr, logger)

	mux := http.NewServeMux()
	mux.Handle("/health", mwSet.HealthChain().Handler(http.HandlerFunc(healthHandler)))
	mux.Handle("/v1/messages/count_tokens", mwSet.DefaultChain().Handler(http.HandlerFunc(countTokensHandler)))
	mux.Handle("/v1/models", mwSet.DefaultChain().Handler(modelsHandler(func() string {
		return cfgMgr.Get().DefaultModel
	})))
	mux.Handle("/v1/messages", mwSet.DefaultChain().Handler(d))

	return &Server{
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		logger: logger,
		server: &http.Server{Handler: mux},
	}
}

// NewMonitor builds a server that runs Monitor Mode only: every request is
// passed straight through to m, per spec.md §4.6.
func NewMonitor(cfgMgr *config.Manager, m *monitor.Handler, logger *slog.Logger) *Server {
	cfg := cfgMgr.Get()
	mwSet := middleware.NewMiddlewareSet(cfgMgr, logger)

	mux := http.NewServeMux()
	mux.Handle("/health", mwSet.HealthChain().Handler(http.HandlerFunc(healthHandler)))
	mux.Handle("/", mwSet.PublicChain().Handler(m))

	return &Server{
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		logger: logger,
		server: &http.Server{Handler: mux},
	}
}

// Start runs the HTTP listener and blocks until SIGINT/SIGTERM, then shuts
// down gracefully. Grounded on the teacher's Server.Start.
func (s *Server) Start() error {
	s.server.Addr = s.addr

	s.logger.Info("starting server", "address", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	s.logger.Info("server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("server exited")
	return nil
}

// Stop shuts the server down without waiting for a signal. `claudish stop`
// does not call it; it signals the running process instead.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
