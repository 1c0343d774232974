// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/edupulse/segmenta/internal/models"
)

func startCollector(t *testing.T) (*Bus, *Collector) {
	t.Helper()
	bus := NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	c, err := NewCollector(bus)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = c.Run(ctx) }()

	select {
	case <-c.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not start")
	}
	return bus, c
}

func waitForEvents(t *testing.T, c *Collector, n int) []models.BehaviorEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	var out []models.BehaviorEvent
	for {
		out = append(out, c.Drain()...)
		if len(out) >= n {
			return out
		}
		select {
		case <-deadline:
			t.Fatalf("collected %d events, want %d", len(out), n)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCollectorReceivesPublishedEvents(t *testing.T) {
	bus, c := startCollector(t)

	occurred := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := []models.BehaviorEvent{
		{ID: "ev-2", UserID: "alice", Type: "achievement_unlocked", Param: "gold_streak", OccurredAt: occurred.Add(time.Minute)},
		{ID: "ev-1", UserID: "bob", Type: "achievement_unlocked", Param: "first_test", OccurredAt: occurred},
	}
	for _, ev := range events {
		if err := bus.PublishBehaviorEvent(ev); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	got := waitForEvents(t, c, 2)
	// Drain orders by occurrence time.
	if got[0].ID != "ev-1" || got[1].ID != "ev-2" {
		t.Errorf("order = %s, %s; want ev-1, ev-2", got[0].ID, got[1].ID)
	}

	// A second drain is empty.
	if rest := c.Drain(); len(rest) != 0 {
		t.Errorf("second drain returned %d events", len(rest))
	}
}

func TestCollectorDiscardsMalformedPayloads(t *testing.T) {
	bus, c := startCollector(t)

	bad := []message.Messages{
		{message.NewMessage(uuid.NewString(), []byte("not json"))},
		{message.NewMessage(uuid.NewString(), []byte(`{"id":"","user_id":"alice","type":"x"}`))},
		{message.NewMessage(uuid.NewString(), []byte(`{"id":"ev-1","user_id":"","type":"x"}`))},
	}
	for _, msgs := range bad {
		if err := bus.Publisher().Publish(TopicUserBehavior, msgs...); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := bus.PublishBehaviorEvent(models.BehaviorEvent{
		ID: "ev-good", UserID: "alice", Type: "achievement_unlocked",
		OccurredAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := waitForEvents(t, c, 1)
	if len(got) != 1 || got[0].ID != "ev-good" {
		t.Errorf("got %+v, want only ev-good", got)
	}
}
