// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package insights

import (
	"testing"
	"time"

	"github.com/edupulse/segmenta/internal/models"
)

var genTime = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func seg() *models.Segment {
	return &models.Segment{ID: "seg-high", Name: "High Performers", Status: models.SegmentActive}
}

func snap(retention, growth, conversion, revenue float64, users int) models.AnalyticsSnapshot {
	return models.AnalyticsSnapshot{
		SegmentID:           "seg-high",
		RetentionRate:       retention,
		GrowthRate:          growth,
		ConversionRate:      conversion,
		RevenueContribution: revenue,
		UserCount:           users,
		CreatedAt:           genTime,
	}
}

func findByMetric(insights []models.Insight, metric string) *models.Insight {
	for i := range insights {
		if insights[i].Metric == metric {
			return &insights[i]
		}
	}
	return nil
}

func TestRetentionDropRaisesHighRisk(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	window := []models.AnalyticsSnapshot{
		snap(80, 0, 0, 0, 10),
		snap(60, 0, 0, 0, 10), // 20 point drop, threshold 15
	}
	got := g.Generate(seg(), window)

	ins := findByMetric(got, "retention_rate")
	if ins == nil {
		t.Fatal("no retention insight generated")
	}
	if ins.Type != models.InsightRisk || ins.Severity != models.SeverityHigh {
		t.Errorf("type/severity = %s/%s, want risk/high", ins.Type, ins.Severity)
	}
	if !ins.ActionRequired {
		t.Error("retention risk should require action")
	}
	if ins.Delta != -20 {
		t.Errorf("Delta = %v, want -20", ins.Delta)
	}

	// A drop at the threshold exactly does not fire.
	window[1] = snap(65, 0, 0, 0, 10)
	if got := g.Generate(seg(), window); findByMetric(got, "retention_rate") != nil {
		t.Error("15 point drop should not exceed the 15 point threshold")
	}
}

func TestGrowthStreakRaisesTrend(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	window := []models.AnalyticsSnapshot{
		snap(80, 5, 0, 0, 10), // below streak threshold
		snap(80, 12, 0, 0, 11),
		snap(80, 15, 0, 0, 13), // two consecutive periods above 10%
	}
	got := g.Generate(seg(), window)

	ins := findByMetric(got, "growth_rate")
	if ins == nil {
		t.Fatal("no growth trend generated")
	}
	if ins.Type != models.InsightTrend || ins.Severity != models.SeverityMedium {
		t.Errorf("type/severity = %s/%s, want trend/medium", ins.Type, ins.Severity)
	}
	if ins.Delta != 15 {
		t.Errorf("Delta = %v, want 15", ins.Delta)
	}

	// One strong period alone is not a streak.
	window = []models.AnalyticsSnapshot{
		snap(80, 5, 0, 0, 10),
		snap(80, 15, 0, 0, 12),
	}
	if got := g.Generate(seg(), window); findByMetric(got, "growth_rate") != nil {
		t.Error("single period above threshold should not form a streak")
	}
}

func TestConversionAboveTargetRaisesOpportunity(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	window := []models.AnalyticsSnapshot{
		snap(80, 0, 18, 0, 10),
		snap(80, 0, 25, 0, 10),
	}
	got := g.Generate(seg(), window)

	ins := findByMetric(got, "conversion_rate")
	if ins == nil {
		t.Fatal("no conversion opportunity generated")
	}
	if ins.Type != models.InsightOpportunity {
		t.Errorf("Type = %s, want opportunity", ins.Type)
	}
	if ins.Delta != 5 {
		t.Errorf("Delta = %v, want 5 over target", ins.Delta)
	}
}

func TestRevenueDropRaisesRisk(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	window := []models.AnalyticsSnapshot{
		snap(80, 0, 0, 30, 10),
		snap(80, 0, 0, 22, 10), // 8 point drop, threshold 5
	}
	got := g.Generate(seg(), window)

	ins := findByMetric(got, "revenue_contribution")
	if ins == nil {
		t.Fatal("no revenue risk generated")
	}
	if ins.Type != models.InsightRisk || !ins.ActionRequired {
		t.Errorf("insight = %+v, want actionable risk", ins)
	}
}

func TestShrinkageRaisesRisk(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	window := []models.AnalyticsSnapshot{
		snap(80, 0, 0, 0, 20),
		snap(80, -25, 0, 0, 15),
	}
	got := g.Generate(seg(), window)

	ins := findByMetric(got, "user_count")
	if ins == nil {
		t.Fatal("no shrinkage risk generated")
	}
	if ins.Type != models.InsightRisk || ins.Severity != models.SeverityLow {
		t.Errorf("type/severity = %s/%s, want risk/low", ins.Type, ins.Severity)
	}
}

func TestGenerateOrdersBySeverity(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	// Trip retention (high), conversion (medium) and shrinkage (low)
	// in one window.
	window := []models.AnalyticsSnapshot{
		snap(80, 0, 25, 0, 20),
		snap(50, -25, 25, 0, 15),
	}
	got := g.Generate(seg(), window)
	if len(got) != 3 {
		t.Fatalf("generated %d insights, want 3", len(got))
	}

	wantSeverity := []models.InsightSeverity{
		models.SeverityHigh, models.SeverityMedium, models.SeverityLow,
	}
	for i, want := range wantSeverity {
		if got[i].Severity != want {
			t.Errorf("insight[%d].Severity = %s, want %s", i, got[i].Severity, want)
		}
	}
	for _, ins := range got {
		if ins.SegmentID != "seg-high" {
			t.Errorf("SegmentID = %q", ins.SegmentID)
		}
		if !ins.GeneratedAt.Equal(genTime) {
			t.Errorf("GeneratedAt = %v, want snapshot reference time", ins.GeneratedAt)
		}
	}
}

func TestGenerateNeedsTwoPeriods(t *testing.T) {
	g := NewGenerator(DefaultConfig())

	if got := g.Generate(seg(), []models.AnalyticsSnapshot{snap(10, -50, 99, 0, 1)}); got != nil {
		t.Errorf("single-period window generated %d insights, want none", len(got))
	}
	if got := g.Generate(nil, nil); got != nil {
		t.Errorf("nil inputs generated insights")
	}
}

func TestCustomThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetentionDropPoints = 5
	cfg.ConversionTargetPct = 50
	g := NewGenerator(cfg)

	window := []models.AnalyticsSnapshot{
		snap(80, 0, 40, 0, 10),
		snap(72, 0, 40, 0, 10),
	}
	got := g.Generate(seg(), window)

	if findByMetric(got, "retention_rate") == nil {
		t.Error("8 point drop should fire with a 5 point threshold")
	}
	if findByMetric(got, "conversion_rate") != nil {
		t.Error("40% conversion should not fire with a 50% target")
	}
}
