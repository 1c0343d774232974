// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package profiles

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/edupulse/segmenta/internal/models"
)

// FileSource reads population snapshots from a JSON file exported by
// the external profile store. The file is re-read on every call, so a
// fresh export is picked up by the next run without a restart.
type FileSource struct {
	Path string
}

// NewFileSource creates a file-backed snapshot source.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Snapshot reads and validates the snapshot file. Any read or decode
// failure maps to ErrUnavailable: the run is skipped and retried on
// the next cadence.
func (s *FileSource) Snapshot(ctx context.Context) (*models.PopulationSnapshot, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, s.Path, err)
	}

	var pop models.PopulationSnapshot
	if err := json.Unmarshal(data, &pop); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUnavailable, s.Path, err)
	}
	if pop.ID == "" {
		return nil, fmt.Errorf("%w: snapshot %s missing id", ErrUnavailable, s.Path)
	}
	if pop.TakenAt.IsZero() {
		return nil, fmt.Errorf("%w: snapshot %s missing taken_at", ErrUnavailable, s.Path)
	}
	if pop.Profiles == nil {
		pop.Profiles = make(map[string]*models.UserProfile)
	}
	return &pop, nil
}

var _ Source = (*FileSource)(nil)
