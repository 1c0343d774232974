// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package criteria

import (
	"errors"
	"testing"
	"time"

	"github.com/edupulse/segmenta/internal/models"
)

func TestValidateAcceptsWellFormed(t *testing.T) {
	c := &models.SegmentCriteria{
		Version: 1,
		Performance: &models.PerformanceCriteria{
			Score: &models.FloatRange{Min: fptr(60), Max: fptr(100)},
		},
		Demographics: &models.DemographicCriteria{
			Tiers: []models.SubscriptionTier{models.TierFree},
		},
	}
	report, err := Validate(c)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", report.Warnings)
	}
}

func TestValidateWarnsOnMatchesAll(t *testing.T) {
	report, err := Validate(&models.SegmentCriteria{Version: 1})
	if err != nil {
		t.Fatalf("constraint-free criteria must be accepted, got: %v", err)
	}
	if len(report.Warnings) != 1 || report.Warnings[0] != WarnMatchesAll {
		t.Errorf("want %q warning, got %v", WarnMatchesAll, report.Warnings)
	}
}

func TestValidateRejectsMalformed(t *testing.T) {
	after := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	before := after.AddDate(0, -3, 0)

	tests := []struct {
		name     string
		criteria models.SegmentCriteria
	}{
		{
			name: "min greater than max",
			criteria: models.SegmentCriteria{
				Performance: &models.PerformanceCriteria{
					Score: &models.FloatRange{Min: fptr(90), Max: fptr(50)},
				},
			},
		},
		{
			name: "score bound out of 0-100",
			criteria: models.SegmentCriteria{
				Performance: &models.PerformanceCriteria{
					Score: &models.FloatRange{Min: fptr(-5)},
				},
			},
		},
		{
			name: "range with no bounds",
			criteria: models.SegmentCriteria{
				Engagement: &models.EngagementCriteria{LoginsPerWeek: &models.FloatRange{}},
			},
		},
		{
			name: "negative int bound",
			criteria: models.SegmentCriteria{
				Engagement: &models.EngagementCriteria{SocialActions: &models.IntRange{Min: iptr(-1)}},
			},
		},
		{
			name: "unknown tier",
			criteria: models.SegmentCriteria{
				Demographics: &models.DemographicCriteria{Tiers: []models.SubscriptionTier{"platinum"}},
			},
		},
		{
			name: "inverted registration window",
			criteria: models.SegmentCriteria{
				Demographics: &models.DemographicCriteria{
					RegisteredAfter:  &after,
					RegisteredBefore: &before,
				},
			},
		},
		{
			name: "unknown study time",
			criteria: models.SegmentCriteria{
				Behavioral: &models.BehavioralCriteria{StudyTimes: []models.StudyTime{"dawn"}},
			},
		},
		{
			name: "unknown device class",
			criteria: models.SegmentCriteria{
				Behavioral: &models.BehavioralCriteria{Devices: []models.DeviceClass{"console"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(&tt.criteria)
			if err == nil {
				t.Fatal("expected rejection, got nil")
			}
			if !errors.Is(err, ErrMalformedCriteria) {
				t.Errorf("error should wrap ErrMalformedCriteria, got %v", err)
			}
		})
	}
}
