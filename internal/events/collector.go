// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/edupulse/segmenta/internal/logging"
	"github.com/edupulse/segmenta/internal/metrics"
	"github.com/edupulse/segmenta/internal/models"
)

// Collector subscribes to the behavior topic and buffers well-formed
// events until the run loop drains them. Malformed messages are acked
// and counted: the bus has no schema enforcement, so a bad payload must
// not wedge the subscription.
type Collector struct {
	router *message.Router
	logger zerolog.Logger

	mu      sync.Mutex
	pending []models.BehaviorEvent
}

// NewCollector builds a collector consuming from the bus.
func NewCollector(bus *Bus) (*Collector, error) {
	logger := logging.With("event-collector")

	router, err := message.NewRouter(
		message.RouterConfig{CloseTimeout: 10 * time.Second},
		NewWatermillLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create event router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)

	c := &Collector{router: router, logger: logger}
	router.AddNoPublisherHandler(
		"behavior-collector",
		TopicUserBehavior,
		bus.Subscriber(),
		c.handle,
	)
	return c, nil
}

// Run consumes events until the context is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	return c.router.Run(ctx)
}

// Serve satisfies suture.Service.
func (c *Collector) Serve(ctx context.Context) error {
	return c.Run(ctx)
}

// String names the service in supervisor logs.
func (c *Collector) String() string { return "event-collector" }

// Running returns a channel closed once the router is consuming.
func (c *Collector) Running() <-chan struct{} {
	return c.router.Running()
}

// Close stops the router.
func (c *Collector) Close() error {
	return c.router.Close()
}

func (c *Collector) handle(msg *message.Message) error {
	var ev models.BehaviorEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		metrics.EventsConsumed.WithLabelValues("malformed").Inc()
		c.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("Discarding malformed behavior event")
		return nil
	}
	if ev.ID == "" || ev.UserID == "" || ev.Type == "" {
		metrics.EventsConsumed.WithLabelValues("malformed").Inc()
		c.logger.Warn().Str("message_id", msg.UUID).Msg("Discarding behavior event with missing fields")
		return nil
	}

	c.mu.Lock()
	c.pending = append(c.pending, ev)
	c.mu.Unlock()

	metrics.EventsConsumed.WithLabelValues("processed").Inc()
	return nil
}

// Drain returns the events buffered since the previous drain, ordered
// by occurrence time then ID so consumers see a stable sequence.
func (c *Collector) Drain() []models.BehaviorEvent {
	c.mu.Lock()
	out := c.pending
	c.pending = nil
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
