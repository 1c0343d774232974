// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package criteria

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/edupulse/segmenta/internal/models"
)

// ErrMalformedCriteria is returned by Validate for criteria the
// evaluator must never see. Definitions are rejected here, at creation
// time; Matches assumes its input already passed.
var ErrMalformedCriteria = errors.New("malformed criteria")

// Warning codes attached to an otherwise valid criteria.
const (
	// WarnMatchesAll marks a criteria with no constraints at all.
	// Legal, matches everyone, but almost always an operator mistake.
	WarnMatchesAll = "matches_all"
)

// Report carries non-fatal findings about a valid criteria.
type Report struct {
	Warnings []string `json:"warnings,omitempty"`
}

// singleton validator instance; validator.Validate caches struct
// metadata so sharing one instance is both safe and faster.
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// validatedCriteria mirrors the range fields of SegmentCriteria with
// validator tags for the bound checks the struct tags can express.
type validatedRanges struct {
	ScoreMin *float64 `validate:"omitempty,gte=0,lte=100"`
	ScoreMax *float64 `validate:"omitempty,gte=0,lte=100"`
}

// Validate checks a criteria definition. It returns ErrMalformedCriteria
// (wrapped with detail) for definitions the evaluator must not see, and
// a Report of non-fatal warnings otherwise.
func Validate(c *models.SegmentCriteria) (*Report, error) {
	if c == nil {
		return &Report{Warnings: []string{WarnMatchesAll}}, nil
	}

	var problems []string

	if c.Performance != nil {
		problems = append(problems, checkFloatRange("performance.score", c.Performance.Score)...)
		problems = append(problems, checkIntRange("performance.tests_completed", c.Performance.TestsCompleted)...)
		problems = append(problems, checkFloatRange("performance.avg_test_seconds", c.Performance.AvgTestSeconds)...)

		if c.Performance.Score != nil {
			vr := validatedRanges{ScoreMin: c.Performance.Score.Min, ScoreMax: c.Performance.Score.Max}
			if err := getValidator().Struct(&vr); err != nil {
				problems = append(problems, "performance.score bounds must be within 0-100")
			}
		}
	}

	if c.Engagement != nil {
		problems = append(problems, checkFloatRange("engagement.logins_per_week", c.Engagement.LoginsPerWeek)...)
		problems = append(problems, checkFloatRange("engagement.study_hours_per_week", c.Engagement.StudyHoursPerWeek)...)
		problems = append(problems, checkIntRange("engagement.social_actions", c.Engagement.SocialActions)...)
		problems = append(problems, checkIntRange("engagement.inactive_days", c.Engagement.InactiveDays)...)
	}

	if c.Demographics != nil {
		for _, tier := range c.Demographics.Tiers {
			if !knownTier(tier) {
				problems = append(problems, fmt.Sprintf("demographics.tiers: unknown tier %q", tier))
			}
		}
		if c.Demographics.RegisteredAfter != nil && c.Demographics.RegisteredBefore != nil &&
			c.Demographics.RegisteredAfter.After(*c.Demographics.RegisteredBefore) {
			problems = append(problems, "demographics: registered_after is later than registered_before")
		}
	}

	if c.Behavioral != nil {
		for _, st := range c.Behavioral.StudyTimes {
			if !knownStudyTime(st) {
				problems = append(problems, fmt.Sprintf("behavioral.study_times: unknown bucket %q", st))
			}
		}
		for _, d := range c.Behavioral.Devices {
			if !knownDevice(d) {
				problems = append(problems, fmt.Sprintf("behavioral.devices: unknown class %q", d))
			}
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMalformedCriteria, strings.Join(problems, "; "))
	}

	report := &Report{}
	if c.Empty() {
		report.Warnings = append(report.Warnings, WarnMatchesAll)
	}
	return report, nil
}

func checkFloatRange(field string, r *models.FloatRange) []string {
	if r == nil {
		return nil
	}
	var problems []string
	if r.Min == nil && r.Max == nil {
		problems = append(problems, field+": range present but both bounds absent")
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		problems = append(problems, fmt.Sprintf("%s: min %v greater than max %v", field, *r.Min, *r.Max))
	}
	return problems
}

func checkIntRange(field string, r *models.IntRange) []string {
	if r == nil {
		return nil
	}
	var problems []string
	if r.Min == nil && r.Max == nil {
		problems = append(problems, field+": range present but both bounds absent")
	}
	if r.Min != nil && *r.Min < 0 {
		problems = append(problems, fmt.Sprintf("%s: min %d is negative", field, *r.Min))
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		problems = append(problems, fmt.Sprintf("%s: min %d greater than max %d", field, *r.Min, *r.Max))
	}
	return problems
}

func knownTier(t models.SubscriptionTier) bool {
	for _, k := range models.KnownTiers {
		if t == k {
			return true
		}
	}
	return false
}

func knownStudyTime(s models.StudyTime) bool {
	for _, k := range models.KnownStudyTimes {
		if s == k {
			return true
		}
	}
	return false
}

func knownDevice(d models.DeviceClass) bool {
	for _, k := range models.KnownDeviceClasses {
		if d == k {
			return true
		}
	}
	return false
}
