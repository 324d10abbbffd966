// Package server exposes the admin API: a small read-mostly HTTP
// surface for inspecting jobs, requesting cancellation and triggering
// cleanup from the command line while the bot keeps its chat surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"relaybot/internal/relaybot/state"
	"relaybot/pkg/config"
	"relaybot/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	registry *state.Registry
	cfg      *config.Config
	logger   *logger.Logger
	http     *http.Server
}

func New(registry *state.Registry, cfg *config.Config) *Server {
	s := &Server{
		registry: registry,
		cfg:      cfg,
		logger:   logger.WithField("component", "server"),
	}
	s.http = &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      s.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger(s.logger))
	r.Use(recovery(s.logger))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/jobs", s.handleListJobs)
	r.Get("/api/v1/jobs/{jobID}", s.handleGetJob)
	r.Post("/api/v1/jobs/{jobID}/cancel", s.handleCancelJob)
	r.Post("/api/v1/cleanup", s.handleCleanup)

	return r
}

// Run serves the admin API until ctx is cancelled, then drains
// in-flight requests before returning.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin API listening", "address", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("admin API: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin API shutdown: %w", err)
	}

	s.logger.Info("admin API stopped")
	return nil
}
