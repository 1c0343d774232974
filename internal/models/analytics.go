// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package models

import (
	"time"
)

// AnalyticsSnapshot captures one segment's analytics for one evaluation
// period. Snapshots are append-only history: never mutated after
// creation, only superseded by the next period's snapshot.
//
// All rates are percentages rounded to one decimal. Zero-population
// edge cases degrade to 0, never to NaN or infinity.
type AnalyticsSnapshot struct {
	SegmentID string `json:"segment_id"`

	// Period identifies the evaluation period (RFC3339 of the period
	// start). Appending a second snapshot for the same period is an
	// error; history is immutable.
	Period string `json:"period"`

	UserCount int `json:"user_count"`

	// GrowthRate is the percentage change in UserCount versus the
	// previous period. 0 when the previous period had no members.
	GrowthRate float64 `json:"growth_rate"`

	// AveragePerformance is the mean score of current members.
	AveragePerformance float64 `json:"average_performance"`

	// RetentionRate is the percentage of the previous period's members
	// who are both still members and still active.
	RetentionRate float64 `json:"retention_rate"`

	// ConversionRate is the percentage of members who moved from the
	// free tier to a paid tier within the period, computed from
	// externally supplied financial facts.
	ConversionRate float64 `json:"conversion_rate"`

	// RevenueContribution is the percentage of total platform revenue
	// attributable to this segment's members.
	RevenueContribution float64 `json:"revenue_contribution"`

	CreatedAt time.Time `json:"created_at"`
}

// TierTransition records a user's subscription tier change within the
// current period, as reported by the billing system.
type TierTransition struct {
	From SubscriptionTier `json:"from"`
	To   SubscriptionTier `json:"to"`
}

// Converted reports whether the transition is a free-to-paid move.
func (t TierTransition) Converted() bool {
	return t.From == TierFree && t.To != TierFree && t.To != ""
}

// GlobalMetrics carries the externally supplied financial facts the
// aggregator consumes. The engine never computes these from raw
// profiles; the metrics collector owns billing semantics.
type GlobalMetrics struct {
	// Period identifies the evaluation period these facts cover.
	Period string `json:"period"`

	// PlatformRevenue is total platform revenue for the period.
	PlatformRevenue float64 `json:"platform_revenue"`

	// UserRevenue maps user ID to revenue attributed to that user.
	UserRevenue map[string]float64 `json:"user_revenue,omitempty"`

	// TierTransitions maps user ID to that user's tier change within
	// the period, if any.
	TierTransitions map[string]TierTransition `json:"tier_transitions,omitempty"`
}
