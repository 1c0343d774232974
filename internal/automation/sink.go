// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package automation

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/edupulse/segmenta/internal/logging"
	"github.com/edupulse/segmenta/internal/metrics"
	"github.com/edupulse/segmenta/internal/models"
)

// Sink delivers action requests to the external automation executor.
// Delivery is at-least-once from the sink's point of view; the engine's
// idempotency tokens make the overall pipeline at-most-once per
// trigger instance.
type Sink interface {
	Deliver(ctx context.Context, req models.ActionRequest) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, req models.ActionRequest) error

func (f SinkFunc) Deliver(ctx context.Context, req models.ActionRequest) error {
	return f(ctx, req)
}

// ErrDropped is returned when a request exhausted its delivery attempts
// and was abandoned.
var ErrDropped = errors.New("action request dropped after retries")

// DispatcherConfig bounds retry and circuit-breaking behavior for sink
// delivery.
type DispatcherConfig struct {
	// MaxAttempts caps delivery attempts per request, first try
	// included.
	MaxAttempts int

	// InitialInterval is the first backoff delay; each subsequent delay
	// doubles up to MaxInterval.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// BreakerThreshold is the number of consecutive failed requests
	// before the circuit opens; BreakerTimeout is how long it stays
	// open.
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxAttempts:      5,
		InitialInterval:  500 * time.Millisecond,
		MaxInterval:      30 * time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   time.Minute,
	}
}

// Dispatcher wraps a Sink with bounded exponential-backoff retry and a
// circuit breaker. A request that exhausts its attempts is dropped and
// logged; it does not fail the evaluation run.
type Dispatcher struct {
	sink    Sink
	config  DispatcherConfig
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewDispatcher creates a dispatcher around the given sink.
func NewDispatcher(sink Sink, config DispatcherConfig) *Dispatcher {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	threshold := config.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "action-sink",
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("component", "automation").
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Action sink circuit state changed")
		},
	})
	return &Dispatcher{sink: sink, config: config, breaker: breaker}
}

// Dispatch delivers the request, retrying transient failures with
// exponential backoff. Returns ErrDropped once attempts are exhausted.
func (d *Dispatcher) Dispatch(ctx context.Context, req models.ActionRequest) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.config.InitialInterval
	policy.MaxInterval = d.config.MaxInterval
	policy.MaxElapsedTime = 0 // bounded by attempt count, not wall time

	attempts := 0
	operation := func() error {
		attempts++
		_, err := d.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, d.sink.Deliver(ctx, req)
		})
		if err != nil && attempts < d.config.MaxAttempts {
			metrics.SinkDeliveries.WithLabelValues("retried").Inc()
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(d.config.MaxAttempts-1)), ctx))
	if err != nil {
		metrics.SinkDeliveries.WithLabelValues("dropped").Inc()
		logging.Error().
			Str("component", "automation").
			Err(err).
			Str("rule_id", req.RuleID).
			Str("user_id", req.UserID).
			Str("trigger", string(req.Trigger)).
			Int("attempts", attempts).
			Msg("Dropping action request after retries")
		return errors.Join(ErrDropped, err)
	}

	metrics.SinkDeliveries.WithLabelValues("delivered").Inc()
	return nil
}
