// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package analytics

import (
	"context"
	"errors"
	"fmt"
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

func periodAt(i int) string {
	return time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
}

func TestHistoryAppendAndWindow(t *testing.T) {
	h := NewBadgerHistory(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		snap := models.AnalyticsSnapshot{
			SegmentID: "seg-high",
			Period:    periodAt(i),
			UserCount: i + 1,
		}
		if err := h.Append(ctx, snap); err != nil {
			t.Fatalf("Append period %d: %v", i, err)
		}
	}

	window, err := h.Window(ctx, "seg-high", 3)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("len(window) = %d, want 3", len(window))
	}
	// Chronological order, most recent 3.
	for i, want := range []int{3, 4, 5} {
		if window[i].UserCount != want {
			t.Errorf("window[%d].UserCount = %d, want %d", i, window[i].UserCount, want)
		}
	}

	latest, err := h.Latest(ctx, "seg-high")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil || latest.UserCount != 5 {
		t.Errorf("Latest = %+v, want UserCount 5", latest)
	}
}

func TestHistoryAppendOnly(t *testing.T) {
	h := NewBadgerHistory(openTestDB(t))
	ctx := context.Background()

	snap := models.AnalyticsSnapshot{SegmentID: "seg", Period: periodAt(0), UserCount: 2}
	if err := h.Append(ctx, snap); err != nil {
		t.Fatalf("Append: %v", err)
	}

	snap.UserCount = 99
	err := h.Append(ctx, snap)
	if !errors.Is(err, ErrPeriodExists) {
		t.Fatalf("re-append error = %v, want ErrPeriodExists", err)
	}

	// Original numbers untouched.
	latest, err := h.Latest(ctx, "seg")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.UserCount != 2 {
		t.Errorf("UserCount = %d, want original 2", latest.UserCount)
	}
}

func TestHistorySegmentIsolation(t *testing.T) {
	h := NewBadgerHistory(openTestDB(t))
	ctx := context.Background()

	for i, segID := range []string{"seg-a", "seg-b"} {
		snap := models.AnalyticsSnapshot{SegmentID: segID, Period: periodAt(0), UserCount: i + 1}
		if err := h.Append(ctx, snap); err != nil {
			t.Fatalf("Append %s: %v", segID, err)
		}
	}

	window, err := h.Window(ctx, "seg-a", 10)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(window) != 1 || window[0].SegmentID != "seg-a" {
		t.Errorf("window = %+v, want only seg-a snapshots", window)
	}
}

func TestHistoryPrefixSegmentIDsDoNotAlias(t *testing.T) {
	h := NewBadgerHistory(openTestDB(t))
	ctx := context.Background()

	// "seg-a" is a key prefix of "seg-a:trial"; their windows must not
	// bleed into each other.
	for i, segID := range []string{"seg-a", "seg-a:trial"} {
		snap := models.AnalyticsSnapshot{SegmentID: segID, Period: periodAt(0), UserCount: i + 1}
		if err := h.Append(ctx, snap); err != nil {
			t.Fatalf("Append %s: %v", segID, err)
		}
	}

	window, err := h.Window(ctx, "seg-a", 10)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(window) != 1 || window[0].SegmentID != "seg-a" {
		t.Errorf("window = %+v, want only seg-a snapshots", window)
	}

	latest, err := h.Latest(ctx, "seg-a:trial")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil || latest.UserCount != 2 {
		t.Errorf("latest = %+v, want the seg-a:trial snapshot", latest)
	}
}

func TestHistoryLatestEmpty(t *testing.T) {
	h := NewBadgerHistory(openTestDB(t))

	latest, err := h.Latest(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest != nil {
		t.Errorf("Latest for unknown segment = %+v, want nil", latest)
	}
}

func TestHistoryRejectsIncompleteSnapshot(t *testing.T) {
	h := NewBadgerHistory(openTestDB(t))

	for _, snap := range []models.AnalyticsSnapshot{
		{Period: periodAt(0)},
		{SegmentID: "seg"},
	} {
		if err := h.Append(context.Background(), snap); err == nil {
			t.Errorf("Append(%+v) should fail", snap)
		}
	}
}

func TestHistoryWindowOrderIsChronological(t *testing.T) {
	h := NewBadgerHistory(openTestDB(t))
	ctx := context.Background()

	// Append out of order; read back sorted by period.
	for _, i := range []int{2, 0, 1} {
		snap := models.AnalyticsSnapshot{SegmentID: "seg", Period: periodAt(i), UserCount: i}
		if err := h.Append(ctx, snap); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	window, err := h.Window(ctx, "seg", 10)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	var got []string
	for _, s := range window {
		got = append(got, fmt.Sprint(s.UserCount))
	}
	if len(window) != 3 || window[0].UserCount != 0 || window[2].UserCount != 2 {
		t.Errorf("window order = %v, want [0 1 2]", got)
	}
}
