// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package models

import (
	"time"
)

// RunSummary is the per-run report surfaced to the administrative
// dashboard. Failures are isolated and counted here; a run never
// propagates a raw exception to the operator.
type RunSummary struct {
	RunID      string `json:"run_id"`
	SnapshotID string `json:"snapshot_id"`

	// Preview marks an on-demand run that included draft segments.
	Preview bool `json:"preview"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	PopulationSize int `json:"population_size"`

	SegmentsEvaluated int `json:"segments_evaluated"`
	SegmentsSkipped   int `json:"segments_skipped"`

	// UsersSkipped counts users whose profiles were unavailable or
	// unreadable this run. They are excluded from membership and
	// retried on the next scheduled run.
	UsersSkipped int `json:"users_skipped"`

	ActionsDispatched int `json:"actions_dispatched"`

	// SinkFailures counts action requests dropped after the retry
	// budget was exhausted.
	SinkFailures int `json:"sink_failures"`

	// Deltas holds the membership delta per evaluated segment.
	Deltas map[string]MembershipDelta `json:"deltas,omitempty"`

	// Errors holds human-readable descriptions of isolated failures.
	Errors []string `json:"errors,omitempty"`
}

// Duration returns the run's wall time.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
