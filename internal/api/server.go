// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/storepulse/storepulse/internal/config"
	"github.com/storepulse/storepulse/internal/logging"
)

// Server wraps http.Server as a suture.Service: Serve blocks until the
// context is cancelled, then drains within the shutdown timeout.
type Server struct {
	cfg *config.ServerConfig
	srv *http.Server
}

// NewServer builds the HTTP server around the router.
func NewServer(cfg *config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Serve runs the listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logging.Warn().Err(err).Msg("HTTP server shutdown was not clean")
	}
	return ctx.Err()
}

// String names the service in supervisor logs.
func (s *Server) String() string { return "http-server" }
