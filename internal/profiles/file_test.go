// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package profiles

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeSnapshotFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "population.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestFileSourceReadsSnapshot(t *testing.T) {
	path := writeSnapshotFile(t, `{
		"id": "snap-1",
		"taken_at": "2026-08-01T06:00:00Z",
		"profiles": {
			"alice": {"user_id": "alice", "score": 92},
			"bob": {"user_id": "bob", "score": 55}
		}
	}`)

	pop, err := NewFileSource(path).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if pop.ID != "snap-1" || pop.Size() != 2 {
		t.Errorf("snapshot = %s size %d, want snap-1 size 2", pop.ID, pop.Size())
	}
	if pop.Profiles["alice"].Score != 92 {
		t.Errorf("alice score = %v", pop.Profiles["alice"].Score)
	}
}

func TestFileSourceFailuresMapToUnavailable(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing file", "/does/not/exist.json"},
		{"not json", writeSnapshotFile(t, "nope")},
		{"missing id", writeSnapshotFile(t, `{"taken_at": "2026-08-01T06:00:00Z"}`)},
		{"missing taken_at", writeSnapshotFile(t, `{"id": "snap-1"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFileSource(tt.path).Snapshot(context.Background())
			if !errors.Is(err, ErrUnavailable) {
				t.Errorf("err = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestFileSourcePicksUpNewExport(t *testing.T) {
	path := writeSnapshotFile(t, `{"id": "snap-1", "taken_at": "2026-08-01T06:00:00Z"}`)
	src := NewFileSource(path)

	pop, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if pop.ID != "snap-1" {
		t.Fatalf("ID = %s", pop.ID)
	}

	if err := os.WriteFile(path, []byte(`{"id": "snap-2", "taken_at": "2026-08-02T06:00:00Z"}`), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	pop, err = src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if pop.ID != "snap-2" {
		t.Errorf("ID = %s, want snap-2 after re-export", pop.ID)
	}
}
