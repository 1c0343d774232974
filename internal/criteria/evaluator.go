// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

// Package criteria evaluates segment criteria against user profiles
// and validates criteria definitions.
//
// Evaluation is pure: no state, no clock, no error return. Malformed
// criteria (min > max, unknown enum values) are rejected at definition
// time by Validate, never at evaluation time. A criteria with no
// constraints at all matches every user; Validate flags that case so
// operators are warned rather than silently accepted.
package criteria

import (
	"time"

	"github.com/edupulse/segmenta/internal/models"
)

// Matches reports whether the profile satisfies the criteria as of the
// given reference time. Each present predicate group must hold; groups
// combine with AND. Range bounds are inclusive; set-valued fields
// match on non-empty intersection.
//
// Determinism: time-relative constraints (inactivity, registration
// age) are measured against asOf, which callers take from the
// population snapshot, never from the wall clock.
func Matches(profile *models.UserProfile, c *models.SegmentCriteria, asOf time.Time) bool {
	if profile == nil {
		return false
	}
	if c == nil {
		return true
	}

	if !c.Performance.Empty() && !matchPerformance(profile, c.Performance) {
		return false
	}
	if !c.Engagement.Empty() && !matchEngagement(profile, c.Engagement, asOf) {
		return false
	}
	if !c.Demographics.Empty() && !matchDemographics(profile, c.Demographics) {
		return false
	}
	if !c.Behavioral.Empty() && !matchBehavioral(profile, c.Behavioral) {
		return false
	}
	return true
}

func matchPerformance(p *models.UserProfile, c *models.PerformanceCriteria) bool {
	if !c.Score.Contains(p.Score) {
		return false
	}
	if !c.TestsCompleted.Contains(p.TestsCompleted) {
		return false
	}
	if !c.AvgTestSeconds.Contains(p.AvgTestSeconds) {
		return false
	}
	return true
}

func matchEngagement(p *models.UserProfile, c *models.EngagementCriteria, asOf time.Time) bool {
	if !c.LoginsPerWeek.Contains(p.LoginsPerWeek) {
		return false
	}
	if !c.StudyHoursPerWeek.Contains(p.StudyHoursPerWeek) {
		return false
	}
	if !c.SocialActions.Contains(p.SocialActions) {
		return false
	}
	if c.InactiveDays != nil {
		// A profile that never recorded a login cannot satisfy an
		// inactivity constraint: fail the group, don't guess.
		if p.LastLoginAt.IsZero() {
			return false
		}
		days := int(asOf.Sub(p.LastLoginAt).Hours() / 24)
		if days < 0 {
			days = 0
		}
		if !c.InactiveDays.Contains(days) {
			return false
		}
	}
	return true
}

func matchDemographics(p *models.UserProfile, c *models.DemographicCriteria) bool {
	if len(c.Institutes) > 0 && !containsString(c.Institutes, p.InstituteID) {
		return false
	}
	if len(c.Tiers) > 0 {
		found := false
		for _, tier := range c.Tiers {
			if p.Tier == tier {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.RegisteredAfter != nil || c.RegisteredBefore != nil {
		if p.RegisteredAt.IsZero() {
			return false
		}
		if c.RegisteredAfter != nil && p.RegisteredAt.Before(*c.RegisteredAfter) {
			return false
		}
		if c.RegisteredBefore != nil && p.RegisteredAt.After(*c.RegisteredBefore) {
			return false
		}
	}
	return true
}

func matchBehavioral(p *models.UserProfile, c *models.BehavioralCriteria) bool {
	if len(c.Subjects) > 0 && !intersects(c.Subjects, p.PreferredSubjects) {
		return false
	}
	if len(c.StudyTimes) > 0 {
		found := false
		for _, st := range c.StudyTimes {
			if p.StudyTime == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(c.Devices) > 0 {
		found := false
		for _, d := range c.Devices {
			if p.Device == d {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsString(set []string, v string) bool {
	if v == "" {
		return false
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// intersects reports whether the two string sets share at least one
// element.
func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[s]; ok {
			return true
		}
	}
	return false
}
