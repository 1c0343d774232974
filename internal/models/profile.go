// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

// Package models defines the data model shared by the segmentation,
// analytics, automation and insight packages. Types here are plain
// data carriers; all behavior lives in the engine packages.
package models

import (
	"time"
)

// SubscriptionTier identifies a user's billing tier.
type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierBasic   SubscriptionTier = "basic"
	TierPremium SubscriptionTier = "premium"
)

// KnownTiers lists every valid subscription tier.
var KnownTiers = []SubscriptionTier{TierFree, TierBasic, TierPremium}

// StudyTime buckets the hour of day a user typically studies in.
type StudyTime string

const (
	StudyMorning   StudyTime = "morning"
	StudyAfternoon StudyTime = "afternoon"
	StudyEvening   StudyTime = "evening"
	StudyNight     StudyTime = "night"
)

// KnownStudyTimes lists every valid study-time bucket.
var KnownStudyTimes = []StudyTime{StudyMorning, StudyAfternoon, StudyEvening, StudyNight}

// DeviceClass identifies the class of device a user studies on.
type DeviceClass string

const (
	DeviceMobile  DeviceClass = "mobile"
	DeviceDesktop DeviceClass = "desktop"
	DeviceTablet  DeviceClass = "tablet"
)

// KnownDeviceClasses lists every valid device class.
var KnownDeviceClasses = []DeviceClass{DeviceMobile, DeviceDesktop, DeviceTablet}

// UserProfile is a point-in-time snapshot of one user, produced by the
// external metrics collector. Profiles are immutable once recorded; a
// newer snapshot supersedes the previous one for the same user.
type UserProfile struct {
	// Identity
	UserID       string           `json:"user_id"`
	InstituteID  string           `json:"institute_id,omitempty"`
	Tier         SubscriptionTier `json:"tier"`
	RegisteredAt time.Time        `json:"registered_at"`

	// Performance metrics
	Score          float64 `json:"score"` // 0-100, latest assessment average
	TestsCompleted int     `json:"tests_completed"`
	AvgTestSeconds float64 `json:"avg_test_seconds"`

	// Engagement metrics
	LoginsPerWeek     float64   `json:"logins_per_week"`
	LastLoginAt       time.Time `json:"last_login_at"`
	StudyHoursPerWeek float64   `json:"study_hours_per_week"`
	SocialActions     int       `json:"social_actions"`

	// Behavioral attributes
	PreferredSubjects []string    `json:"preferred_subjects,omitempty"`
	StudyTime         StudyTime   `json:"study_time,omitempty"`
	Device            DeviceClass `json:"device,omitempty"`

	// RecordedAt is when the collector captured this snapshot.
	RecordedAt time.Time `json:"recorded_at"`
}

// PopulationSnapshot is an immutable view of all user profiles as of a
// single point in time. Membership computation for a run always reads
// from one snapshot so no mid-scan profile updates can leak in.
type PopulationSnapshot struct {
	// ID uniquely identifies this snapshot.
	ID string `json:"id"`

	// TakenAt is the snapshot's reference time. Time-relative criteria
	// (inactivity windows, registration age) are evaluated against it,
	// never against the wall clock, so a snapshot always segments the
	// same way.
	TakenAt time.Time `json:"taken_at"`

	// Profiles maps user ID to the user's latest profile.
	Profiles map[string]*UserProfile `json:"profiles"`
}

// Size returns the number of profiles in the snapshot.
func (s *PopulationSnapshot) Size() int {
	if s == nil {
		return 0
	}
	return len(s.Profiles)
}
