// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

// Package api serves the read-only operator surface using Chi: segment
// definitions, memberships, analytics history, insights and run
// summaries, plus Prometheus metrics. Segment CRUD lives in the
// external administrative interface, not here.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edupulse/segmenta/internal/analytics"
	"github.com/edupulse/segmenta/internal/logging"
	"github.com/edupulse/segmenta/internal/runner"
	"github.com/edupulse/segmenta/internal/segmentation"
)

// Config configures the HTTP server.
type Config struct {
	Host string
	Port int

	// RequestTimeout bounds request handling.
	RequestTimeout time.Duration

	// RateLimit is requests per minute per client IP. Zero disables
	// rate limiting.
	RateLimit int

	// HistoryWindow caps the analytics window served per request.
	HistoryWindow int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8443,
		RequestTimeout: 30 * time.Second,
		RateLimit:      120,
		HistoryWindow:  12,
	}
}

// Server is the operator HTTP surface.
type Server struct {
	config  Config
	store   *segmentation.Store
	history analytics.History
	runner  *runner.Runner
	logger  zerolog.Logger
}

// NewServer creates the API server over the engine's read models.
func NewServer(config Config, store *segmentation.Store, history analytics.History, r *runner.Runner) *Server {
	if config.HistoryWindow < 1 {
		config.HistoryWindow = 12
	}
	return &Server{
		config:  config,
		store:   store,
		history: history,
		runner:  r,
		logger:  logging.With("api"),
	}
}

// Routes builds the Chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(s.config.RequestTimeout))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.config.RateLimit > 0 {
			r.Use(httprate.LimitByIP(s.config.RateLimit, time.Minute))
		}

		r.Get("/segments", s.handleSegmentList)
		r.Route("/segments/{id}", func(r chi.Router) {
			r.Get("/", s.handleSegmentGet)
			r.Get("/membership", s.handleMembership)
			r.Get("/analytics", s.handleAnalytics)
			r.Get("/insights", s.handleInsights)
		})

		r.Get("/runs/latest", s.handleLatestRun)
		r.Post("/runs", s.handleTriggerRun)
	})

	return r
}

// Serve runs the HTTP server until the context is cancelled. It
// satisfies suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.RequestTimeout,
		WriteTimeout:      s.config.RequestTimeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown api server: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// String identifies the server in supervisor logs.
func (s *Server) String() string { return "api-server" }
