// Package httpserver wraps the standard HTTP server with the lifecycle the
// vault runtime expects.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/R3E-Network/gas_vault/internal/config"
	"github.com/R3E-Network/gas_vault/pkg/logger"
)

// Server owns the listener for the vault API.
type Server struct {
	srv *http.Server
	log *logger.Logger
}

// New builds a server for the given handler. Connection timeouts do not apply
// to websocket sessions, which manage their own deadlines after the upgrade.
func New(cfg config.ServerConfig, log *logger.Logger, handler http.Handler) *Server {
	if log == nil {
		log = logger.NewDefault("httpserver")
	}
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		log: log,
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.srv.Addr }

// Start blocks serving requests until Shutdown is called or the listener
// fails. It returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	s.log.WithField("addr", s.srv.Addr).Info("http server listening")
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http server shutting down")
	return s.srv.Shutdown(ctx)
}
