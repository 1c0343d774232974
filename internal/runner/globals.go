// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package runner

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/edupulse/segmenta/internal/models"
)

// FileGlobals reads billing facts from a JSON file exported by the
// metrics collector. The file is re-read each run so a fresh export is
// picked up without a restart.
type FileGlobals struct {
	Path string
}

// NewFileGlobals creates a file-backed global metrics source.
func NewFileGlobals(path string) *FileGlobals {
	return &FileGlobals{Path: path}
}

func (f *FileGlobals) GlobalMetrics(ctx context.Context) (*models.GlobalMetrics, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read globals file: %w", err)
	}
	var g models.GlobalMetrics
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode globals file: %w", err)
	}
	return &g, nil
}

var _ GlobalSource = (*FileGlobals)(nil)
