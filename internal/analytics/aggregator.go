// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package analytics

import (
	"time"

	"github.com/edupulse/segmenta/internal/models"
)

// AggregatorConfig configures the analytics aggregator.
type AggregatorConfig struct {
	// ActivityWindow is how recently a member must have logged in,
	// relative to the population snapshot's reference time, to count
	// as active for retention.
	ActivityWindow time.Duration
}

// DefaultAggregatorConfig returns sensible defaults.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{ActivityWindow: 30 * 24 * time.Hour}
}

// Inputs carries everything one Aggregate call consumes. Conversion
// and revenue facts come from the external metrics collector via
// GlobalMetrics; the aggregator only sums and divides them, keeping it
// agnostic of billing internals.
type Inputs struct {
	Segment *models.Segment

	// Current is the membership committed this period.
	Current map[string]struct{}

	// Previous is the membership committed the previous period; nil
	// for a segment's first period.
	Previous map[string]struct{}

	// PreviousSnapshot is the last period's analytics; nil for the
	// first period.
	PreviousSnapshot *models.AnalyticsSnapshot

	// Population is the snapshot this period was computed from.
	Population *models.PopulationSnapshot

	// Global holds externally supplied financial facts; may be nil,
	// in which case conversion and revenue rates degrade to 0.
	Global *models.GlobalMetrics

	// Period identifies the evaluation period (RFC3339, UTC).
	Period string
}

// Aggregator computes analytics snapshots from membership sets and
// supplied financial facts.
type Aggregator struct {
	config AggregatorConfig
}

// NewAggregator creates an aggregator.
func NewAggregator(config AggregatorConfig) *Aggregator {
	if config.ActivityWindow <= 0 {
		config.ActivityWindow = 30 * 24 * time.Hour
	}
	return &Aggregator{config: config}
}

// Aggregate computes the segment's snapshot for one evaluation period.
// It never fails: degenerate inputs produce zero rates, not errors.
func (a *Aggregator) Aggregate(in Inputs) models.AnalyticsSnapshot {
	snap := models.AnalyticsSnapshot{
		SegmentID: in.Segment.ID,
		Period:    in.Period,
		UserCount: len(in.Current),
		CreatedAt: referenceTime(in),
	}

	snap.AveragePerformance = a.averagePerformance(in)
	snap.GrowthRate = a.growthRate(in)
	snap.RetentionRate = a.retentionRate(in)
	snap.ConversionRate = a.conversionRate(in)
	snap.RevenueContribution = a.revenueContribution(in)
	return snap
}

// referenceTime is the population snapshot's timestamp so repeated
// aggregation over the same inputs is bit-identical.
func referenceTime(in Inputs) time.Time {
	if in.Population != nil {
		return in.Population.TakenAt
	}
	return time.Time{}
}

func (a *Aggregator) averagePerformance(in Inputs) float64 {
	if len(in.Current) == 0 || in.Population == nil {
		return 0
	}
	var sum float64
	var counted int
	for id := range in.Current {
		if p := in.Population.Profiles[id]; p != nil {
			sum += p.Score
			counted++
		}
	}
	if counted == 0 {
		return 0
	}
	return roundRate(sum / float64(counted))
}

// growthRate is the percentage change in member count versus the
// previous snapshot. A previous period with zero members is defined as
// 0% growth, not infinite.
func (a *Aggregator) growthRate(in Inputs) float64 {
	if in.PreviousSnapshot == nil {
		return 0
	}
	return change(float64(len(in.Current)), float64(in.PreviousSnapshot.UserCount))
}

// retentionRate is the share of the previous period's members who are
// both still members and still active. An empty previous membership
// yields 0.
func (a *Aggregator) retentionRate(in Inputs) float64 {
	if len(in.Previous) == 0 {
		return 0
	}
	retained := 0
	for id := range in.Previous {
		if _, ok := in.Current[id]; !ok {
			continue
		}
		if a.isActive(in, id) {
			retained++
		}
	}
	return ratio(float64(retained), float64(len(in.Previous)))
}

// isActive reports whether the member logged in within the activity
// window as of the population snapshot's reference time.
func (a *Aggregator) isActive(in Inputs, userID string) bool {
	if in.Population == nil {
		return false
	}
	p := in.Population.Profiles[userID]
	if p == nil || p.LastLoginAt.IsZero() {
		return false
	}
	return in.Population.TakenAt.Sub(p.LastLoginAt) <= a.config.ActivityWindow
}

// conversionRate is the share of current members with a free-to-paid
// tier transition this period, per the supplied billing facts.
func (a *Aggregator) conversionRate(in Inputs) float64 {
	if len(in.Current) == 0 || in.Global == nil {
		return 0
	}
	converted := 0
	for id := range in.Current {
		if tr, ok := in.Global.TierTransitions[id]; ok && tr.Converted() {
			converted++
		}
	}
	return ratio(float64(converted), float64(len(in.Current)))
}

// revenueContribution is the share of total platform revenue
// attributed to current members, per the supplied revenue facts.
func (a *Aggregator) revenueContribution(in Inputs) float64 {
	if len(in.Current) == 0 || in.Global == nil {
		return 0
	}
	var attributed float64
	for id := range in.Current {
		attributed += in.Global.UserRevenue[id]
	}
	return ratio(attributed, in.Global.PlatformRevenue)
}
