// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package models

import (
	"time"
)

// InsightType classifies a derived observation about a segment.
type InsightType string

const (
	InsightOpportunity InsightType = "opportunity"
	InsightRisk        InsightType = "risk"
	InsightTrend       InsightType = "trend"
)

// InsightSeverity ranks how urgently an insight needs attention.
type InsightSeverity string

const (
	SeverityHigh   InsightSeverity = "high"
	SeverityMedium InsightSeverity = "medium"
	SeverityLow    InsightSeverity = "low"
)

// Rank returns a numeric rank for ordering (higher is more severe).
func (s InsightSeverity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Insight is a threshold-based observation derived from a segment's
// analytics trend.
type Insight struct {
	SegmentID string          `json:"segment_id"`
	Type      InsightType     `json:"type"`
	Severity  InsightSeverity `json:"severity"`

	// Metric names the snapshot field that produced the insight.
	Metric string `json:"metric"`

	Title       string `json:"title"`
	Description string `json:"description"`

	// Delta is the observed change in the metric, in the metric's own
	// unit (percentage points for rates).
	Delta float64 `json:"delta"`

	ActionRequired bool `json:"action_required"`

	GeneratedAt time.Time `json:"generated_at"`
}
