// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

// Package insights derives threshold-based observations from a
// segment's analytics history. Thresholds are configuration, not
// constants, so operators tune sensitivity without code changes.
package insights

import (
	"fmt"
	"sort"

	"github.com/edupulse/segmenta/internal/metrics"
	"github.com/edupulse/segmenta/internal/models"
)

// Config holds the generator's tunable thresholds.
type Config struct {
	// RetentionDropPoints is the retention drop, in percentage points
	// versus the previous period, that raises a high-severity risk.
	RetentionDropPoints float64

	// GrowthStreakPct is the growth rate that, sustained for
	// GrowthStreakPeriods consecutive periods, raises a trend.
	GrowthStreakPct     float64
	GrowthStreakPeriods int

	// ConversionTargetPct is the conversion rate above which an
	// opportunity is raised.
	ConversionTargetPct float64

	// RevenueDropPoints is the revenue-share drop, in percentage
	// points, that raises a risk.
	RevenueDropPoints float64

	// ShrinkagePct is the negative growth rate at or beyond which a
	// shrinking-segment risk is raised.
	ShrinkagePct float64
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		RetentionDropPoints: 15,
		GrowthStreakPct:     10,
		GrowthStreakPeriods: 2,
		ConversionTargetPct: 20,
		RevenueDropPoints:   5,
		ShrinkagePct:        -10,
	}
}

// Generator evaluates a segment's snapshot window against the
// configured thresholds.
type Generator struct {
	config Config
}

// NewGenerator creates a generator.
func NewGenerator(config Config) *Generator {
	if config.GrowthStreakPeriods < 1 {
		config.GrowthStreakPeriods = 1
	}
	return &Generator{config: config}
}

// Generate derives insights for one segment from its snapshot window.
// The window is chronological; the last element is the current period.
// Fewer than two snapshots yield no insights: every rule compares
// across periods.
func (g *Generator) Generate(seg *models.Segment, window []models.AnalyticsSnapshot) []models.Insight {
	if seg == nil || len(window) < 2 {
		return nil
	}
	current := window[len(window)-1]
	previous := window[len(window)-2]

	var out []models.Insight
	add := func(ins models.Insight) {
		ins.SegmentID = seg.ID
		ins.GeneratedAt = current.CreatedAt
		out = append(out, ins)
		metrics.InsightsGenerated.WithLabelValues(string(ins.Type)).Inc()
	}

	if drop := previous.RetentionRate - current.RetentionRate; drop > g.config.RetentionDropPoints {
		add(models.Insight{
			Type:           models.InsightRisk,
			Severity:       models.SeverityHigh,
			Metric:         "retention_rate",
			Title:          fmt.Sprintf("Retention dropped %.1f points in %s", drop, seg.Name),
			Description:    fmt.Sprintf("Retention fell from %.1f%% to %.1f%% versus the previous period.", previous.RetentionRate, current.RetentionRate),
			Delta:          -drop,
			ActionRequired: true,
		})
	}

	if streak := g.growthStreak(window); streak >= g.config.GrowthStreakPeriods {
		add(models.Insight{
			Type:        models.InsightTrend,
			Severity:    models.SeverityMedium,
			Metric:      "growth_rate",
			Title:       fmt.Sprintf("%s growing for %d consecutive periods", seg.Name, streak),
			Description: fmt.Sprintf("Growth has exceeded %.1f%% for %d periods in a row, most recently %.1f%%.", g.config.GrowthStreakPct, streak, current.GrowthRate),
			Delta:       current.GrowthRate,
		})
	}

	if current.ConversionRate > g.config.ConversionTargetPct {
		add(models.Insight{
			Type:        models.InsightOpportunity,
			Severity:    models.SeverityMedium,
			Metric:      "conversion_rate",
			Title:       fmt.Sprintf("%s converting above target", seg.Name),
			Description: fmt.Sprintf("Conversion reached %.1f%%, above the %.1f%% target. Consider expanding offers to adjacent segments.", current.ConversionRate, g.config.ConversionTargetPct),
			Delta:       current.ConversionRate - g.config.ConversionTargetPct,
		})
	}

	if drop := previous.RevenueContribution - current.RevenueContribution; drop > g.config.RevenueDropPoints {
		add(models.Insight{
			Type:           models.InsightRisk,
			Severity:       models.SeverityMedium,
			Metric:         "revenue_contribution",
			Title:          fmt.Sprintf("Revenue share of %s declining", seg.Name),
			Description:    fmt.Sprintf("Revenue contribution fell from %.1f%% to %.1f%% of platform revenue.", previous.RevenueContribution, current.RevenueContribution),
			Delta:          -drop,
			ActionRequired: true,
		})
	}

	if current.GrowthRate <= g.config.ShrinkagePct {
		add(models.Insight{
			Type:        models.InsightRisk,
			Severity:    models.SeverityLow,
			Metric:      "user_count",
			Title:       fmt.Sprintf("%s is shrinking", seg.Name),
			Description: fmt.Sprintf("Membership declined %.1f%% this period, from %d to %d users.", -current.GrowthRate, previous.UserCount, current.UserCount),
			Delta:       current.GrowthRate,
		})
	}

	sortInsights(out)
	return out
}

// growthStreak counts the consecutive trailing periods whose growth
// rate exceeds the streak threshold.
func (g *Generator) growthStreak(window []models.AnalyticsSnapshot) int {
	streak := 0
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].GrowthRate <= g.config.GrowthStreakPct {
			break
		}
		streak++
	}
	return streak
}

// sortInsights orders by severity (descending), then type, then metric,
// so identical inputs always produce the same ordering.
func sortInsights(out []models.Insight) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() > out[j].Severity.Rank()
		}
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Metric < out[j].Metric
	})
}
