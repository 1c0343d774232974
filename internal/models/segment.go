// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package models

import (
	"time"
)

// SegmentStatus identifies a segment's lifecycle state.
type SegmentStatus string

const (
	// SegmentActive segments are computed and drive automation.
	SegmentActive SegmentStatus = "active"

	// SegmentInactive segments are skipped entirely.
	SegmentInactive SegmentStatus = "inactive"

	// SegmentDraft segments are computed for preview but excluded from
	// automation and insight generation.
	SegmentDraft SegmentStatus = "draft"
)

// FloatRange is an optional inclusive numeric bound. A nil Min or Max
// imposes no constraint on that side.
type FloatRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Contains reports whether v lies within the range (bounds inclusive).
func (r *FloatRange) Contains(v float64) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// IntRange is an optional inclusive integer bound.
type IntRange struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// Contains reports whether v lies within the range (bounds inclusive).
func (r *IntRange) Contains(v int) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// PerformanceCriteria constrains a user's performance metrics. Every
// field is optional; an absent field imposes no constraint.
type PerformanceCriteria struct {
	Score          *FloatRange `json:"score,omitempty"`
	TestsCompleted *IntRange   `json:"tests_completed,omitempty"`
	AvgTestSeconds *FloatRange `json:"avg_test_seconds,omitempty"`
}

// Empty reports whether no constraint is present.
func (c *PerformanceCriteria) Empty() bool {
	return c == nil || (c.Score == nil && c.TestsCompleted == nil && c.AvgTestSeconds == nil)
}

// EngagementCriteria constrains a user's engagement metrics.
type EngagementCriteria struct {
	LoginsPerWeek     *FloatRange `json:"logins_per_week,omitempty"`
	StudyHoursPerWeek *FloatRange `json:"study_hours_per_week,omitempty"`
	SocialActions     *IntRange   `json:"social_actions,omitempty"`

	// InactiveDays bounds the number of days since the user's last
	// login, measured against the population snapshot's reference time.
	InactiveDays *IntRange `json:"inactive_days,omitempty"`
}

// Empty reports whether no constraint is present.
func (c *EngagementCriteria) Empty() bool {
	return c == nil || (c.LoginsPerWeek == nil && c.StudyHoursPerWeek == nil &&
		c.SocialActions == nil && c.InactiveDays == nil)
}

// DemographicCriteria constrains a user's demographic attributes.
// Set-valued fields match when the profile value is a member of the
// set (OR within the set).
type DemographicCriteria struct {
	Institutes       []string           `json:"institutes,omitempty"`
	Tiers            []SubscriptionTier `json:"tiers,omitempty"`
	RegisteredAfter  *time.Time         `json:"registered_after,omitempty"`
	RegisteredBefore *time.Time         `json:"registered_before,omitempty"`
}

// Empty reports whether no constraint is present.
func (c *DemographicCriteria) Empty() bool {
	return c == nil || (len(c.Institutes) == 0 && len(c.Tiers) == 0 &&
		c.RegisteredAfter == nil && c.RegisteredBefore == nil)
}

// BehavioralCriteria constrains a user's behavioral attributes.
// Subjects matches when the intersection with the profile's preferred
// subjects is non-empty.
type BehavioralCriteria struct {
	Subjects   []string      `json:"subjects,omitempty"`
	StudyTimes []StudyTime   `json:"study_times,omitempty"`
	Devices    []DeviceClass `json:"devices,omitempty"`
}

// Empty reports whether no constraint is present.
func (c *BehavioralCriteria) Empty() bool {
	return c == nil || (len(c.Subjects) == 0 && len(c.StudyTimes) == 0 && len(c.Devices) == 0)
}

// SegmentCriteria is a conjunction of independent predicate groups.
// Groups combine with AND; a criteria with no constraints at all
// matches every user. Criteria are versioned; a version bump
// invalidates any cached membership for the segment.
type SegmentCriteria struct {
	Version      int                  `json:"version"`
	Performance  *PerformanceCriteria `json:"performance,omitempty"`
	Engagement   *EngagementCriteria  `json:"engagement,omitempty"`
	Demographics *DemographicCriteria `json:"demographics,omitempty"`
	Behavioral   *BehavioralCriteria  `json:"behavioral,omitempty"`
}

// Empty reports whether the criteria carries no constraint at all.
func (c *SegmentCriteria) Empty() bool {
	if c == nil {
		return true
	}
	return c.Performance.Empty() && c.Engagement.Empty() &&
		c.Demographics.Empty() && c.Behavioral.Empty()
}

// Segment is a named, criteria-defined subset of the user population.
// Segments are created and edited by the external administrative
// interface; the engine only recomputes membership and analytics.
type Segment struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Criteria SegmentCriteria `json:"criteria"`

	// Priority is a tie-break/ordering hint for display and dispatch.
	Priority int `json:"priority"`

	Status SegmentStatus `json:"status"`

	// Rules are the automation rules scoped to this segment.
	Rules []AutomationRule `json:"rules,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AutomationEligible reports whether this segment's rules may fire.
// Draft segments are computed for preview only; inactive segments are
// not computed at all.
func (s *Segment) AutomationEligible() bool {
	return s.Status == SegmentActive
}

// MembershipDelta records the users who joined or left a segment
// between two evaluation runs. Joined and Left are sorted so a delta
// for identical inputs is bit-identical.
type MembershipDelta struct {
	SegmentID       string    `json:"segment_id"`
	CriteriaVersion int       `json:"criteria_version"`
	Joined          []string  `json:"joined"`
	Left            []string  `json:"left"`
	Size            int       `json:"size"` // membership size after the run
	ComputedAt      time.Time `json:"computed_at"`
}

// Empty reports whether the delta carries no change.
func (d *MembershipDelta) Empty() bool {
	return len(d.Joined) == 0 && len(d.Left) == 0
}
