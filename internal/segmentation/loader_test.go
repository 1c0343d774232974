// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package segmentation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/edupulse/segmenta/internal/criteria"
)

func writeSegmentsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segments.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadSegmentsFile(t *testing.T) {
	path := writeSegmentsFile(t, `[
		{
			"id": "seg-high",
			"name": "High Performers",
			"status": "active",
			"priority": 10,
			"criteria": {
				"version": 1,
				"performance": {"score": {"min": 85}}
			}
		},
		{
			"id": "seg-all",
			"name": "Everyone",
			"status": "draft",
			"criteria": {"version": 1}
		}
	]`)

	store := NewStore(nil)
	loaded, err := LoadSegmentsFile(store, path)
	if err != nil {
		t.Fatalf("LoadSegmentsFile: %v", err)
	}
	if loaded != 2 {
		t.Errorf("loaded = %d, want 2", loaded)
	}

	seg, err := store.Segment("seg-high")
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if seg.Criteria.Performance == nil || seg.Criteria.Performance.Score == nil ||
		seg.Criteria.Performance.Score.Min == nil || *seg.Criteria.Performance.Score.Min != 85 {
		t.Errorf("criteria not decoded: %+v", seg.Criteria)
	}
}

func TestLoadSegmentsFileRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing id", `[{"name": "x", "status": "active", "criteria": {"version": 1}}]`},
		{"inverted range", `[{"id": "s", "status": "active",
			"criteria": {"version": 1, "performance": {"score": {"min": 90, "max": 10}}}}]`},
		{"not json", `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(nil)
			if _, err := LoadSegmentsFile(store, writeSegmentsFile(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadSegmentsFileCriteriaError(t *testing.T) {
	path := writeSegmentsFile(t, `[{"id": "s", "status": "active",
		"criteria": {"version": 1, "performance": {"score": {"min": 150}}}}]`)

	_, err := LoadSegmentsFile(NewStore(nil), path)
	if !errors.Is(err, criteria.ErrMalformedCriteria) {
		t.Errorf("err = %v, want ErrMalformedCriteria", err)
	}
}

func TestLoadSegmentsFileMissing(t *testing.T) {
	if _, err := LoadSegmentsFile(NewStore(nil), "/does/not/exist.json"); err == nil {
		t.Error("expected error for missing file")
	}
}
