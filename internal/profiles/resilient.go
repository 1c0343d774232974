// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/edupulse/segmenta/internal/logging"
	"github.com/edupulse/segmenta/internal/models"
)

// ResilientConfig configures the resilient source decorator.
type ResilientConfig struct {
	// ReadTimeout bounds one snapshot read.
	ReadTimeout time.Duration

	// ReadsPerSecond rate-limits reads to protect the upstream store.
	// Zero disables the limiter.
	ReadsPerSecond float64

	// BreakerThreshold is consecutive failures before the circuit
	// opens.
	BreakerThreshold uint32

	// BreakerTimeout is how long the circuit stays open.
	BreakerTimeout time.Duration
}

// DefaultResilientConfig returns sensible defaults.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		ReadTimeout:      30 * time.Second,
		ReadsPerSecond:   2,
		BreakerThreshold: 5,
		BreakerTimeout:   time.Minute,
	}
}

// ResilientSource wraps a Source with a per-read timeout, a rate
// limiter protecting the upstream profile store, and a circuit breaker
// that sheds reads while the store is failing. Every failure mode maps
// to ErrUnavailable: the run skips, the next cadence retries.
type ResilientSource struct {
	inner   Source
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*models.PopulationSnapshot]
	timeout time.Duration
}

// NewResilientSource wraps inner with the configured protections.
func NewResilientSource(inner Source, cfg ResilientConfig) *ResilientSource {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}

	var limiter *rate.Limiter
	if cfg.ReadsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ReadsPerSecond), 1)
	}

	logger := logging.With("profile-source")
	settings := gobreaker.Settings{
		Name:    "profile-store",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("profile store circuit state changed")
		},
	}

	return &ResilientSource{
		inner:   inner,
		limiter: limiter,
		breaker: gobreaker.NewCircuitBreaker[*models.PopulationSnapshot](settings),
		timeout: cfg.ReadTimeout,
	}
}

// Snapshot reads a population snapshot with timeout, rate limiting and
// breaker protection.
func (s *ResilientSource) Snapshot(ctx context.Context) (*models.PopulationSnapshot, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
		}
	}

	pop, err := s.breaker.Execute(func() (*models.PopulationSnapshot, error) {
		readCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.inner.Snapshot(readCtx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if pop == nil {
		return nil, fmt.Errorf("%w: empty snapshot", ErrUnavailable)
	}
	return pop, nil
}
