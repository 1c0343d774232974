// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package segmentation

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/edupulse/segmenta/internal/criteria"
	"github.com/edupulse/segmenta/internal/logging"
	"github.com/edupulse/segmenta/internal/models"
)

// LoadSegmentsFile reads segment definitions exported by the
// administrative interface and loads them into the store. Segments
// with malformed criteria are rejected; criteria that merely match
// everyone load with a warning.
func LoadSegmentsFile(store *Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read segments file: %w", err)
	}

	var segments []*models.Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return 0, fmt.Errorf("decode segments file: %w", err)
	}

	logger := logging.With("segment-loader")
	loaded := 0
	for _, seg := range segments {
		if seg.ID == "" {
			return loaded, fmt.Errorf("segment %q missing id", seg.Name)
		}
		report, err := criteria.Validate(&seg.Criteria)
		if err != nil {
			return loaded, fmt.Errorf("segment %s: %w", seg.ID, err)
		}
		for _, warning := range report.Warnings {
			logger.Warn().
				Str("segment_id", seg.ID).
				Str("warning", warning).
				Msg("Segment criteria warning")
		}
		store.PutSegment(seg)
		loaded++
	}
	return loaded, nil
}
