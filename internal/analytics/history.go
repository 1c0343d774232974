// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/edupulse/segmenta/internal/models"
)

// ErrPeriodExists is returned when appending a snapshot for a period
// that already has one. History is append-only: a prior period's
// numbers are never rewritten.
var ErrPeriodExists = errors.New("snapshot for period already exists")

// Key layout: snapshot:<segmentID>\x00<period>. The NUL separator
// keeps a segment ID that is a prefix of another (such as "vip" and
// "vip:trial") from aliasing the other's window. Periods are RFC3339
// UTC strings, so lexicographic key order is chronological order.
const snapshotKeyPrefix = "snapshot:"

func snapshotKey(segmentID, period string) []byte {
	return append(segmentPrefix(segmentID), period...)
}

func segmentPrefix(segmentID string) []byte {
	return []byte(snapshotKeyPrefix + segmentID + "\x00")
}

// History is the append-only per-segment snapshot log.
type History interface {
	// Append records a snapshot. Returns ErrPeriodExists if the
	// segment already has a snapshot for the period.
	Append(ctx context.Context, snap models.AnalyticsSnapshot) error

	// Latest returns the most recent snapshot for the segment, or nil
	// if none exists.
	Latest(ctx context.Context, segmentID string) (*models.AnalyticsSnapshot, error)

	// Window returns up to n most recent snapshots for the segment in
	// chronological order.
	Window(ctx context.Context, segmentID string, n int) ([]models.AnalyticsSnapshot, error)
}

// BadgerHistory implements History on BadgerDB.
type BadgerHistory struct {
	db *badger.DB
}

// NewBadgerHistory creates a BadgerDB-backed snapshot history.
func NewBadgerHistory(db *badger.DB) *BadgerHistory {
	return &BadgerHistory{db: db}
}

// Append records a snapshot, refusing to overwrite an existing period.
func (h *BadgerHistory) Append(ctx context.Context, snap models.AnalyticsSnapshot) error {
	if snap.SegmentID == "" || snap.Period == "" {
		return fmt.Errorf("snapshot requires segment ID and period")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	key := snapshotKey(snap.SegmentID, snap.Period)
	return h.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("%w: %s/%s", ErrPeriodExists, snap.SegmentID, snap.Period)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check period: %w", err)
		}
		return txn.Set(key, data)
	})
}

// Latest returns the most recent snapshot for the segment.
func (h *BadgerHistory) Latest(ctx context.Context, segmentID string) (*models.AnalyticsSnapshot, error) {
	window, err := h.Window(ctx, segmentID, 1)
	if err != nil {
		return nil, err
	}
	if len(window) == 0 {
		return nil, nil
	}
	return &window[0], nil
}

// Window returns up to n most recent snapshots in chronological order.
func (h *BadgerHistory) Window(ctx context.Context, segmentID string, n int) ([]models.AnalyticsSnapshot, error) {
	if n < 1 {
		return nil, nil
	}

	var out []models.AnalyticsSnapshot
	prefix := segmentPrefix(segmentID)

	err := h.db.View(func(txn *badger.Txn) error {
		// Iterate in reverse key order: newest period first.
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the greatest key under the
		// prefix; 0xFF suffix lands past every period.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < n; it.Next() {
			var snap models.AnalyticsSnapshot
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			}); err != nil {
				return fmt.Errorf("unmarshal snapshot: %w", err)
			}
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
