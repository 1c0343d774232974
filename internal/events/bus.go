// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

// Package events carries behavior events from platform instrumentation
// to the automation rule engine over an in-process Watermill bus.
package events

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edupulse/segmenta/internal/logging"
	"github.com/edupulse/segmenta/internal/models"
)

// TopicUserBehavior is the topic behavior events are published on.
const TopicUserBehavior = "user.behavior"

// TopicActionRequests is the topic fired action requests are published
// on for external delivery consumers.
const TopicActionRequests = "automation.actions"

// Bus is the in-process pub/sub transport for behavior events.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-process bus. The output buffer absorbs publish
// bursts between run-loop drains.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			NewWatermillLogger(logging.With("event-bus")),
		),
	}
}

// Publisher returns the bus's publisher side.
func (b *Bus) Publisher() message.Publisher { return b.pubsub }

// Subscriber returns the bus's subscriber side.
func (b *Bus) Subscriber() message.Subscriber { return b.pubsub }

// Close shuts the bus down. Pending messages are dropped.
func (b *Bus) Close() error { return b.pubsub.Close() }

// PublishBehaviorEvent publishes one event on the behavior topic.
func (b *Bus) PublishBehaviorEvent(ev models.BehaviorEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal behavior event: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	return b.pubsub.Publish(TopicUserBehavior, msg)
}

// PublishActionRequest publishes one fired action request on the
// action topic. Consumers that perform the actual delivery (email,
// push, CRM) subscribe out of process.
func (b *Bus) PublishActionRequest(req models.ActionRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal action request: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	return b.pubsub.Publish(TopicActionRequests, msg)
}

// WatermillLogger adapts zerolog to watermill.LoggerAdapter.
type WatermillLogger struct {
	logger zerolog.Logger
}

// NewWatermillLogger wraps a zerolog logger for Watermill.
func NewWatermillLogger(logger zerolog.Logger) *WatermillLogger {
	return &WatermillLogger{logger: logger}
}

func (l *WatermillLogger) with(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}

func (l *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.with(l.logger.Error().Err(err), fields).Msg(msg)
}

func (l *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	l.with(l.logger.Info(), fields).Msg(msg)
}

func (l *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.with(l.logger.Debug(), fields).Msg(msg)
}

func (l *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.with(l.logger.Trace(), fields).Msg(msg)
}

func (l *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &WatermillLogger{logger: ctx.Logger()}
}
