// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// TriggerType identifies the condition an automation rule fires on.
type TriggerType string

const (
	// TriggerSegmentJoined fires when a user joins the segment.
	TriggerSegmentJoined TriggerType = "segment_joined"

	// TriggerSegmentLeft fires when a user leaves the segment.
	TriggerSegmentLeft TriggerType = "segment_left"

	// TriggerScoreBelow fires when a member's score drops below the
	// rule's threshold.
	TriggerScoreBelow TriggerType = "score_below_threshold"

	// TriggerScoreAbove fires when a member's score rises above the
	// rule's threshold.
	TriggerScoreAbove TriggerType = "score_above_threshold"

	// TriggerNoLogin fires when a member has not logged in for the
	// rule's threshold number of days.
	TriggerNoLogin TriggerType = "no_login_for_n_days"

	// TriggerAchievement fires on an achievement_unlocked behavior
	// event for a member.
	TriggerAchievement TriggerType = "achievement_unlocked"
)

// KnownTriggers lists every valid trigger type.
var KnownTriggers = []TriggerType{
	TriggerSegmentJoined,
	TriggerSegmentLeft,
	TriggerScoreBelow,
	TriggerScoreAbove,
	TriggerNoLogin,
	TriggerAchievement,
}

// NeedsThreshold reports whether the trigger type requires a numeric
// parameter.
func (t TriggerType) NeedsThreshold() bool {
	switch t {
	case TriggerScoreBelow, TriggerScoreAbove, TriggerNoLogin:
		return true
	default:
		return false
	}
}

// AutomationRule binds a trigger to an action within one segment.
// A rule fires at most once per distinct trigger instance per user.
type AutomationRule struct {
	ID        string `json:"id"`
	SegmentID string `json:"segment_id"`
	Name      string `json:"name"`

	Trigger TriggerType `json:"trigger"`

	// Threshold is the numeric parameter for threshold triggers
	// (score bound, inactivity days). Nil for triggers that take none.
	Threshold *float64 `json:"threshold,omitempty"`

	// Param is an optional string parameter (e.g. achievement code).
	Param string `json:"param,omitempty"`

	// Action is the opaque payload forwarded verbatim to the external
	// action sink. The engine never inspects it.
	Action json.RawMessage `json:"action"`

	Enabled bool `json:"enabled"`

	// Cooldown is the minimum re-fire interval for the same user.
	// Zero means the engine's configured default (one evaluation
	// period).
	Cooldown time.Duration `json:"cooldown,omitempty"`
}

// IdempotencyToken scopes rule firing to (rule, user, trigger
// instance) so the same underlying event never fires twice.
func IdempotencyToken(ruleID, userID, triggerInstance string) string {
	return fmt.Sprintf("%s|%s|%s", ruleID, userID, triggerInstance)
}

// ActionRequest is the engine's output to the external automation
// executor (email, push, CRM webhook). Delivery is out of scope.
type ActionRequest struct {
	RuleID          string          `json:"rule_id"`
	SegmentID       string          `json:"segment_id"`
	UserID          string          `json:"user_id"`
	TriggerInstance string          `json:"trigger_instance"`
	Trigger         TriggerType     `json:"trigger"`
	Payload         json.RawMessage `json:"payload"`
	RequestedAt     time.Time       `json:"requested_at"`
}

// BehaviorEvent is a per-user event consumed by the automation rule
// engine, delivered over the in-process event bus.
type BehaviorEvent struct {
	// ID uniquely identifies the event and doubles as the trigger
	// instance for event-driven rules.
	ID string `json:"id"`

	UserID string `json:"user_id"`

	// Type names the event, e.g. "achievement_unlocked".
	Type string `json:"type"`

	// Value is an optional numeric payload (score, streak length).
	Value float64 `json:"value,omitempty"`

	// Param is an optional string payload (achievement code).
	Param string `json:"param,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}
