// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

// Package profiles provides access to the external user-profile store.
// The engine only requires one capability from it: "all profiles as of
// snapshot S". Snapshots are immutable once read, so a run never sees
// mid-scan profile updates.
package profiles

import (
	"context"
	"errors"

	"github.com/edupulse/segmenta/internal/models"
)

// ErrUnavailable is returned when the profile store cannot serve a
// snapshot this run. Callers skip the run and retry on the next
// scheduled cadence; nothing retries synchronously.
var ErrUnavailable = errors.New("profile store unavailable")

// Source provides immutable population snapshots.
type Source interface {
	// Snapshot returns all user profiles as of a single point in time.
	Snapshot(ctx context.Context) (*models.PopulationSnapshot, error)
}

// StaticSource serves a fixed snapshot. Used by tests, preview seeding
// and file-backed fixtures.
type StaticSource struct {
	Pop *models.PopulationSnapshot
	Err error
}

// Snapshot returns the configured snapshot or error.
func (s *StaticSource) Snapshot(ctx context.Context) (*models.PopulationSnapshot, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Pop, nil
}
