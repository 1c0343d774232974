// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package automation

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/edupulse/segmenta/internal/models"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStateStoreRoundTrip(t *testing.T) {
	for _, tt := range []struct {
		name  string
		store StateStore
	}{
		{"badger", NewBadgerStateStore(openTestDB(t), 0)},
		{"memory", NewMemoryStateStore()},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			firedAt := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
			token := models.IdempotencyToken("rule-1", "alice", "inst-1")

			seen, err := tt.store.TokenSeen(ctx, token)
			if err != nil || seen {
				t.Fatalf("TokenSeen before firing = %v, %v", seen, err)
			}
			last, err := tt.store.LastFired(ctx, "rule-1", "alice")
			if err != nil || !last.IsZero() {
				t.Fatalf("LastFired before firing = %v, %v", last, err)
			}

			if err := tt.store.RecordFiring(ctx, token, "rule-1", "alice", firedAt); err != nil {
				t.Fatalf("RecordFiring: %v", err)
			}

			seen, err = tt.store.TokenSeen(ctx, token)
			if err != nil || !seen {
				t.Errorf("TokenSeen after firing = %v, %v", seen, err)
			}
			last, err = tt.store.LastFired(ctx, "rule-1", "alice")
			if err != nil {
				t.Fatalf("LastFired: %v", err)
			}
			if !last.Equal(firedAt) {
				t.Errorf("LastFired = %v, want %v", last, firedAt)
			}

			// Other pairs remain untouched.
			last, err = tt.store.LastFired(ctx, "rule-1", "bob")
			if err != nil || !last.IsZero() {
				t.Errorf("LastFired for other user = %v, %v", last, err)
			}
		})
	}
}

func TestObserveRuleStateAccumulatesDisabledTime(t *testing.T) {
	for _, tt := range []struct {
		name  string
		store StateStore
	}{
		{"badger", NewBadgerStateStore(openTestDB(t), 0)},
		{"memory", NewMemoryStateStore()},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			start := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)

			paused, err := tt.store.ObserveRuleState(ctx, "rule-1", true, start)
			if err != nil || paused != 0 {
				t.Fatalf("enabled rule paused = %v, %v", paused, err)
			}

			// Disable observed; the span is still open two hours in.
			if _, err := tt.store.ObserveRuleState(ctx, "rule-1", false, start.Add(time.Hour)); err != nil {
				t.Fatalf("ObserveRuleState: %v", err)
			}
			paused, err = tt.store.ObserveRuleState(ctx, "rule-1", false, start.Add(3*time.Hour))
			if err != nil {
				t.Fatalf("ObserveRuleState: %v", err)
			}
			if paused != 2*time.Hour {
				t.Errorf("open span paused = %v, want 2h", paused)
			}

			// Re-enable closes the span at five hours of disabled time.
			paused, err = tt.store.ObserveRuleState(ctx, "rule-1", true, start.Add(6*time.Hour))
			if err != nil {
				t.Fatalf("ObserveRuleState: %v", err)
			}
			if paused != 5*time.Hour {
				t.Errorf("closed span paused = %v, want 5h", paused)
			}

			// The total sticks once the rule stays enabled.
			paused, err = tt.store.ObserveRuleState(ctx, "rule-1", true, start.Add(48*time.Hour))
			if err != nil || paused != 5*time.Hour {
				t.Errorf("steady state paused = %v, %v, want 5h", paused, err)
			}

			// Other rules are unaffected.
			paused, err = tt.store.ObserveRuleState(ctx, "rule-2", true, start.Add(48*time.Hour))
			if err != nil || paused != 0 {
				t.Errorf("other rule paused = %v, %v, want 0", paused, err)
			}
		})
	}
}

func TestStateStoreLatestFiringWins(t *testing.T) {
	store := NewBadgerStateStore(openTestDB(t), 0)
	ctx := context.Background()
	first := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	second := first.Add(48 * time.Hour)

	if err := store.RecordFiring(ctx, "t1", "rule-1", "alice", first); err != nil {
		t.Fatalf("RecordFiring: %v", err)
	}
	if err := store.RecordFiring(ctx, "t2", "rule-1", "alice", second); err != nil {
		t.Fatalf("RecordFiring: %v", err)
	}

	last, err := store.LastFired(ctx, "rule-1", "alice")
	if err != nil {
		t.Fatalf("LastFired: %v", err)
	}
	if !last.Equal(second) {
		t.Errorf("LastFired = %v, want %v", last, second)
	}

	// Both tokens remain recorded.
	for _, token := range []string{"t1", "t2"} {
		seen, err := store.TokenSeen(ctx, token)
		if err != nil || !seen {
			t.Errorf("TokenSeen(%s) = %v, %v", token, seen, err)
		}
	}
}
