// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package automation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edupulse/segmenta/internal/models"
)

var runTime = time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu       sync.Mutex
	requests []models.ActionRequest
}

func (s *recordingSink) Deliver(ctx context.Context, req models.ActionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func newTestEngine(t *testing.T, cooldown time.Duration) (*Engine, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	cfg := DefaultDispatcherConfig()
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = time.Millisecond
	eng := NewEngine(EngineConfig{DefaultCooldown: cooldown},
		NewMemoryStateStore(), NewDispatcher(sink, cfg))
	return eng, sink
}

func floatPtr(v float64) *float64 { return &v }

func segWithRule(rule models.AutomationRule) *models.Segment {
	rule.SegmentID = "seg-high"
	return &models.Segment{
		ID:     "seg-high",
		Name:   "High Performers",
		Status: models.SegmentActive,
		Rules:  []models.AutomationRule{rule},
	}
}

func inputsFor(seg *models.Segment, profiles map[string]*models.UserProfile, members ...string) Inputs {
	membership := make(map[string]struct{}, len(members))
	for _, id := range members {
		membership[id] = struct{}{}
	}
	return Inputs{
		RunID:       "run-1",
		Segments:    []*models.Segment{seg},
		Deltas:      map[string]*models.MembershipDelta{},
		Memberships: map[string]map[string]struct{}{seg.ID: membership},
		Population:  &models.PopulationSnapshot{ID: "snap-1", TakenAt: runTime, Profiles: profiles},
	}
}

func TestScoreAboveFiresOncePerObservation(t *testing.T) {
	eng, sink := newTestEngine(t, 24*time.Hour)

	seg := segWithRule(models.AutomationRule{
		ID:        "rule-1",
		Name:      "congratulate",
		Trigger:   models.TriggerScoreAbove,
		Threshold: floatPtr(85),
		Enabled:   true,
	})
	profiles := map[string]*models.UserProfile{
		"alice": {UserID: "alice", Score: 92, RecordedAt: runTime.Add(-time.Hour)},
		"bob":   {UserID: "bob", Score: 70, RecordedAt: runTime.Add(-time.Hour)},
	}
	in := inputsFor(seg, profiles, "alice", "bob")

	stats, err := eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 1 || sink.count() != 1 {
		t.Fatalf("first run: fired=%d delivered=%d, want 1/1", stats.Fired, sink.count())
	}
	if got := sink.requests[0].UserID; got != "alice" {
		t.Errorf("fired for %q, want alice", got)
	}

	// Next run, same observation: identical token, no new action.
	in.RunID = "run-2"
	in.Population.TakenAt = runTime.Add(24 * time.Hour)
	stats, err = eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 0 || sink.count() != 1 {
		t.Errorf("second run: fired=%d delivered=%d, want 0/1", stats.Fired, sink.count())
	}
}

func TestCooldownSuppressesFreshInstances(t *testing.T) {
	eng, sink := newTestEngine(t, 24*time.Hour)

	seg := segWithRule(models.AutomationRule{
		ID:        "rule-1",
		Trigger:   models.TriggerScoreAbove,
		Threshold: floatPtr(85),
		Enabled:   true,
	})
	profiles := map[string]*models.UserProfile{
		"alice": {UserID: "alice", Score: 92, RecordedAt: runTime},
	}
	in := inputsFor(seg, profiles, "alice")

	if _, err := eng.Evaluate(context.Background(), in); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// A new observation one hour later is a new trigger instance, but
	// the 24h cooldown has not elapsed.
	profiles["alice"].RecordedAt = runTime.Add(time.Hour)
	in.Population.TakenAt = runTime.Add(time.Hour)
	stats, err := eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 0 || stats.Suppressed != 1 || sink.count() != 1 {
		t.Errorf("within cooldown: fired=%d suppressed=%d delivered=%d, want 0/1/1",
			stats.Fired, stats.Suppressed, sink.count())
	}

	// Past the cooldown the new instance fires.
	profiles["alice"].RecordedAt = runTime.Add(25 * time.Hour)
	in.Population.TakenAt = runTime.Add(25 * time.Hour)
	stats, err = eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 1 || sink.count() != 2 {
		t.Errorf("after cooldown: fired=%d delivered=%d, want 1/2", stats.Fired, sink.count())
	}
}

func TestRuleCooldownOverridesDefault(t *testing.T) {
	eng, sink := newTestEngine(t, 24*time.Hour)

	seg := segWithRule(models.AutomationRule{
		ID:        "rule-1",
		Trigger:   models.TriggerScoreAbove,
		Threshold: floatPtr(85),
		Enabled:   true,
		Cooldown:  time.Hour,
	})
	profiles := map[string]*models.UserProfile{
		"alice": {UserID: "alice", Score: 92, RecordedAt: runTime},
	}
	in := inputsFor(seg, profiles, "alice")

	if _, err := eng.Evaluate(context.Background(), in); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	profiles["alice"].RecordedAt = runTime.Add(2 * time.Hour)
	in.Population.TakenAt = runTime.Add(2 * time.Hour)
	stats, err := eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 1 || sink.count() != 2 {
		t.Errorf("fired=%d delivered=%d, want 1/2 with 1h rule cooldown", stats.Fired, sink.count())
	}
}

func TestDisabledRuleIsFrozen(t *testing.T) {
	eng, sink := newTestEngine(t, 24*time.Hour)

	seg := segWithRule(models.AutomationRule{
		ID:        "rule-1",
		Trigger:   models.TriggerScoreAbove,
		Threshold: floatPtr(85),
		Enabled:   false,
	})
	profiles := map[string]*models.UserProfile{
		"alice": {UserID: "alice", Score: 92, RecordedAt: runTime},
	}
	in := inputsFor(seg, profiles, "alice")

	stats, err := eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 0 || sink.count() != 0 {
		t.Fatalf("disabled rule fired: %d delivered", sink.count())
	}

	// Re-enabling resumes evaluation; the untouched instance fires.
	seg.Rules[0].Enabled = true
	stats, err = eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 1 || sink.count() != 1 {
		t.Errorf("after re-enable: fired=%d delivered=%d, want 1/1", stats.Fired, sink.count())
	}
}

func TestDisabledSpanFreezesCooldown(t *testing.T) {
	eng, sink := newTestEngine(t, 24*time.Hour)

	seg := segWithRule(models.AutomationRule{
		ID:        "rule-1",
		Trigger:   models.TriggerScoreAbove,
		Threshold: floatPtr(85),
		Enabled:   true,
	})
	profiles := map[string]*models.UserProfile{
		"alice": {UserID: "alice", Score: 92, RecordedAt: runTime},
	}
	in := inputsFor(seg, profiles, "alice")

	if _, err := eng.Evaluate(context.Background(), in); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("delivered %d, want 1 before disabling", sink.count())
	}

	// One hour into the cooldown the rule is disabled.
	seg.Rules[0].Enabled = false
	in.Population.TakenAt = runTime.Add(time.Hour)
	if _, err := eng.Evaluate(context.Background(), in); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// Re-enabled 29 hours later with a fresh observation. Only one
	// enabled hour has passed since the firing, so the remaining 23
	// hours of cooldown still suppress.
	seg.Rules[0].Enabled = true
	profiles["alice"].RecordedAt = runTime.Add(30 * time.Hour)
	in.Population.TakenAt = runTime.Add(30 * time.Hour)
	stats, err := eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 0 || sink.count() != 1 {
		t.Errorf("after re-enable: fired=%d delivered=%d, want 0/1", stats.Fired, sink.count())
	}

	// 23 more enabled hours exhaust the frozen cooldown.
	profiles["alice"].RecordedAt = runTime.Add(53 * time.Hour)
	in.Population.TakenAt = runTime.Add(53 * time.Hour)
	stats, err = eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 1 || sink.count() != 2 {
		t.Errorf("cooldown elapsed: fired=%d delivered=%d, want 1/2", stats.Fired, sink.count())
	}
}

func TestJoinAndLeaveTriggers(t *testing.T) {
	eng, sink := newTestEngine(t, 24*time.Hour)

	joined := models.AutomationRule{ID: "rule-join", Trigger: models.TriggerSegmentJoined, Enabled: true}
	left := models.AutomationRule{ID: "rule-left", Trigger: models.TriggerSegmentLeft, Enabled: true}
	seg := segWithRule(joined)
	left.SegmentID = seg.ID
	seg.Rules = append(seg.Rules, left)

	in := inputsFor(seg, map[string]*models.UserProfile{}, "alice")
	in.Deltas[seg.ID] = &models.MembershipDelta{
		SegmentID: seg.ID,
		Joined:    []string{"alice"},
		Left:      []string{"bob"},
	}

	stats, err := eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 2 || sink.count() != 2 {
		t.Fatalf("fired=%d delivered=%d, want 2/2", stats.Fired, sink.count())
	}

	// Replaying the same run fires nothing: the run ID is the token's
	// trigger instance.
	stats, err = eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 0 || sink.count() != 2 {
		t.Errorf("replay: fired=%d delivered=%d, want 0/2", stats.Fired, sink.count())
	}
}

func TestNoLoginTriggerInstanceIsLastLogin(t *testing.T) {
	eng, sink := newTestEngine(t, time.Hour)

	seg := segWithRule(models.AutomationRule{
		ID:        "rule-idle",
		Trigger:   models.TriggerNoLogin,
		Threshold: floatPtr(7),
		Enabled:   true,
	})
	profiles := map[string]*models.UserProfile{
		"alice": {UserID: "alice", LastLoginAt: runTime.Add(-10 * 24 * time.Hour)},
		"bob":   {UserID: "bob", LastLoginAt: runTime.Add(-time.Hour)},
		"carol": {UserID: "carol"}, // never logged in: not considered idle
	}
	in := inputsFor(seg, profiles, "alice", "bob", "carol")

	stats, err := eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 1 || sink.requests[0].UserID != "alice" {
		t.Fatalf("fired=%d for %v, want 1 for alice", stats.Fired, sink.requests)
	}

	// Still idle next day, same last login, short cooldown elapsed:
	// the token still suppresses a re-fire.
	in.Population.TakenAt = runTime.Add(24 * time.Hour)
	stats, err = eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 0 || sink.count() != 1 {
		t.Errorf("still idle: fired=%d delivered=%d, want 0/1", stats.Fired, sink.count())
	}

	// A fresh login followed by a new idle stretch is a new instance.
	profiles["alice"].LastLoginAt = runTime.Add(12 * time.Hour)
	in.Population.TakenAt = runTime.Add(20 * 24 * time.Hour)
	stats, err = eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 1 || sink.count() != 2 {
		t.Errorf("new idle stretch: fired=%d delivered=%d, want 1/2", stats.Fired, sink.count())
	}
}

func TestAchievementTriggerMatchesMembersAndParam(t *testing.T) {
	eng, sink := newTestEngine(t, time.Hour)

	seg := segWithRule(models.AutomationRule{
		ID:      "rule-badge",
		Trigger: models.TriggerAchievement,
		Param:   "gold_streak",
		Enabled: true,
	})
	in := inputsFor(seg, map[string]*models.UserProfile{}, "alice")
	in.Events = []models.BehaviorEvent{
		{ID: "ev-1", UserID: "alice", Type: "achievement_unlocked", Param: "gold_streak", OccurredAt: runTime},
		{ID: "ev-2", UserID: "alice", Type: "achievement_unlocked", Param: "other_badge", OccurredAt: runTime},
		{ID: "ev-3", UserID: "mallory", Type: "achievement_unlocked", Param: "gold_streak", OccurredAt: runTime},
	}

	stats, err := eng.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 1 || sink.count() != 1 {
		t.Fatalf("fired=%d delivered=%d, want 1/1", stats.Fired, sink.count())
	}
	if req := sink.requests[0]; req.UserID != "alice" || req.TriggerInstance != "ev-1" {
		t.Errorf("request = %+v, want alice/ev-1", req)
	}
}

func TestDraftSegmentRulesNeverFire(t *testing.T) {
	eng, sink := newTestEngine(t, time.Hour)

	seg := segWithRule(models.AutomationRule{
		ID:        "rule-1",
		Trigger:   models.TriggerScoreAbove,
		Threshold: floatPtr(85),
		Enabled:   true,
	})
	seg.Status = models.SegmentDraft
	profiles := map[string]*models.UserProfile{
		"alice": {UserID: "alice", Score: 92, RecordedAt: runTime},
	}

	stats, err := eng.Evaluate(context.Background(), inputsFor(seg, profiles, "alice"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if stats.Fired != 0 || sink.count() != 0 {
		t.Errorf("draft segment fired %d actions", sink.count())
	}
}

func TestCandidateOrderIsDeterministic(t *testing.T) {
	eng, sink := newTestEngine(t, time.Hour)

	seg := segWithRule(models.AutomationRule{
		ID:      "rule-join",
		Trigger: models.TriggerSegmentJoined,
		Enabled: true,
	})
	in := inputsFor(seg, map[string]*models.UserProfile{})
	in.Deltas[seg.ID] = &models.MembershipDelta{
		SegmentID: seg.ID,
		Joined:    []string{"carol", "alice", "bob"},
	}

	if _, err := eng.Evaluate(context.Background(), in); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	for i, req := range sink.requests {
		if req.UserID != want[i] {
			t.Errorf("dispatch[%d] = %s, want %s", i, req.UserID, want[i])
		}
	}
}
