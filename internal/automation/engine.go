// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package automation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/edupulse/segmenta/internal/logging"
	"github.com/edupulse/segmenta/internal/metrics"
	"github.com/edupulse/segmenta/internal/models"
)

// EngineConfig configures the automation rule engine.
type EngineConfig struct {
	// DefaultCooldown is the minimum re-fire interval for rules that
	// do not set their own. Callers resolve the one-evaluation-period
	// fallback before constructing the engine.
	DefaultCooldown time.Duration
}

// Engine evaluates automation rules after each segmentation run.
//
// Every firing decision is made against the run's reference time (the
// population snapshot's TakenAt), never the wall clock, so replaying a
// run produces identical decisions.
type Engine struct {
	config     EngineConfig
	state      StateStore
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

// NewEngine creates an automation rule engine.
func NewEngine(config EngineConfig, state StateStore, dispatcher *Dispatcher) *Engine {
	return &Engine{
		config:     config,
		state:      state,
		dispatcher: dispatcher,
		logger:     logging.With("automation-engine"),
	}
}

// Inputs carries one run's worth of material for rule evaluation.
type Inputs struct {
	// RunID identifies the evaluation run; it is the trigger instance
	// for join/leave triggers.
	RunID string

	// Segments are the segments evaluated this run, rules attached.
	Segments []*models.Segment

	// Deltas maps segment ID to the run's membership delta.
	Deltas map[string]*models.MembershipDelta

	// Memberships maps segment ID to the membership committed this run.
	Memberships map[string]map[string]struct{}

	// Population is the snapshot the run was computed from. Its TakenAt
	// is the reference time for every threshold and cooldown decision.
	Population *models.PopulationSnapshot

	// Events are the behavior events consumed since the previous run.
	Events []models.BehaviorEvent
}

// Stats summarizes one evaluation's outcomes.
type Stats struct {
	Fired      int
	Suppressed int
	Dropped    int
}

// candidate is one (user, trigger instance) pair a rule may fire for.
type candidate struct {
	userID   string
	instance string
}

// Evaluate runs every eligible rule against the run's outcome. Sink
// failures are retried and, past the attempt budget, dropped; they
// never fail the evaluation.
func (e *Engine) Evaluate(ctx context.Context, in Inputs) (Stats, error) {
	var stats Stats
	if in.Population == nil {
		return stats, fmt.Errorf("automation evaluation requires a population snapshot")
	}
	now := in.Population.TakenAt

	for _, seg := range in.Segments {
		if !seg.AutomationEligible() {
			continue
		}
		for i := range seg.Rules {
			rule := &seg.Rules[i]
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			paused, err := e.state.ObserveRuleState(ctx, rule.ID, rule.Enabled, now)
			if err != nil {
				return stats, fmt.Errorf("observe rule state: %w", err)
			}
			if !rule.Enabled {
				// Disabled rules are frozen: no firing, and the
				// cooldown clock pauses with them, so re-enabling
				// resumes the remaining wait instead of crediting the
				// disabled span.
				metrics.RuleSuppressions.WithLabelValues("disabled").Inc()
				stats.Suppressed++
				continue
			}
			// Cooldown decisions run on the rule's own clock, which
			// excludes time spent disabled.
			ruleNow := now.Add(-paused)
			candidates := e.collect(rule, seg, in)
			for _, c := range candidates {
				fired, err := e.fire(ctx, rule, c, now, ruleNow)
				if err != nil {
					return stats, err
				}
				switch fired {
				case outcomeFired:
					stats.Fired++
				case outcomeSuppressed:
					stats.Suppressed++
				case outcomeDropped:
					stats.Dropped++
				}
			}
		}
	}
	return stats, nil
}

type fireOutcome int

const (
	outcomeFired fireOutcome = iota
	outcomeSuppressed
	outcomeDropped
)

// fire applies idempotency and cooldown checks, then dispatches. The
// firing is recorded before dispatch: a sink outage must not cause a
// later replay of the same trigger instance. Firing times are recorded
// on the rule clock (ruleNow) so cooldowns stay frozen across disabled
// spans; the action request carries the real reference time.
func (e *Engine) fire(ctx context.Context, rule *models.AutomationRule, c candidate, now, ruleNow time.Time) (fireOutcome, error) {
	token := models.IdempotencyToken(rule.ID, c.userID, c.instance)

	seen, err := e.state.TokenSeen(ctx, token)
	if err != nil {
		return outcomeSuppressed, fmt.Errorf("check idempotency token: %w", err)
	}
	if seen {
		metrics.RuleSuppressions.WithLabelValues("duplicate_token").Inc()
		return outcomeSuppressed, nil
	}

	last, err := e.state.LastFired(ctx, rule.ID, c.userID)
	if err != nil {
		return outcomeSuppressed, fmt.Errorf("check cooldown: %w", err)
	}
	if !last.IsZero() && ruleNow.Sub(last) < e.cooldown(rule) {
		metrics.RuleSuppressions.WithLabelValues("cooldown").Inc()
		return outcomeSuppressed, nil
	}

	if err := e.state.RecordFiring(ctx, token, rule.ID, c.userID, ruleNow); err != nil {
		return outcomeSuppressed, fmt.Errorf("record firing: %w", err)
	}

	metrics.RuleFirings.WithLabelValues(string(rule.Trigger)).Inc()
	e.logger.Info().
		Str("rule_id", rule.ID).
		Str("user_id", c.userID).
		Str("trigger", string(rule.Trigger)).
		Str("trigger_instance", c.instance).
		Msg("Automation rule fired")

	req := models.ActionRequest{
		RuleID:          rule.ID,
		SegmentID:       rule.SegmentID,
		UserID:          c.userID,
		TriggerInstance: c.instance,
		Trigger:         rule.Trigger,
		Payload:         rule.Action,
		RequestedAt:     now,
	}
	if err := e.dispatcher.Dispatch(ctx, req); err != nil {
		// Dropped, already logged and counted by the dispatcher.
		return outcomeDropped, nil
	}
	return outcomeFired, nil
}

func (e *Engine) cooldown(rule *models.AutomationRule) time.Duration {
	if rule.Cooldown > 0 {
		return rule.Cooldown
	}
	return e.config.DefaultCooldown
}

// collect gathers the rule's (user, trigger instance) candidates from
// the run's deltas, memberships, profiles and events. The trigger
// instance identifies the onset of the condition, so an unchanged
// condition across consecutive runs carries the same token and is
// deduplicated.
func (e *Engine) collect(rule *models.AutomationRule, seg *models.Segment, in Inputs) []candidate {
	var out []candidate
	delta := in.Deltas[seg.ID]
	membership := in.Memberships[seg.ID]

	switch rule.Trigger {
	case models.TriggerSegmentJoined:
		if delta != nil {
			for _, userID := range delta.Joined {
				out = append(out, candidate{userID: userID, instance: in.RunID})
			}
		}

	case models.TriggerSegmentLeft:
		if delta != nil {
			for _, userID := range delta.Left {
				out = append(out, candidate{userID: userID, instance: in.RunID})
			}
		}

	case models.TriggerScoreBelow, models.TriggerScoreAbove:
		if rule.Threshold == nil {
			return nil
		}
		for userID := range membership {
			p := in.Population.Profiles[userID]
			if p == nil {
				continue
			}
			crossed := (rule.Trigger == models.TriggerScoreBelow && p.Score < *rule.Threshold) ||
				(rule.Trigger == models.TriggerScoreAbove && p.Score > *rule.Threshold)
			if !crossed {
				continue
			}
			// Condition onset: the profile observation that put the
			// score across the threshold.
			out = append(out, candidate{
				userID:   userID,
				instance: p.RecordedAt.UTC().Format(time.RFC3339Nano),
			})
		}

	case models.TriggerNoLogin:
		if rule.Threshold == nil {
			return nil
		}
		idle := time.Duration(*rule.Threshold) * 24 * time.Hour
		for userID := range membership {
			p := in.Population.Profiles[userID]
			if p == nil || p.LastLoginAt.IsZero() {
				continue
			}
			if in.Population.TakenAt.Sub(p.LastLoginAt) < idle {
				continue
			}
			// Condition onset: the last login that began the idle
			// stretch, stable across consecutive runs.
			out = append(out, candidate{
				userID:   userID,
				instance: p.LastLoginAt.UTC().Format(time.RFC3339Nano),
			})
		}

	case models.TriggerAchievement:
		for _, ev := range in.Events {
			if ev.Type != string(models.TriggerAchievement) {
				continue
			}
			if rule.Param != "" && ev.Param != rule.Param {
				continue
			}
			if _, member := membership[ev.UserID]; !member {
				continue
			}
			out = append(out, candidate{userID: ev.UserID, instance: ev.ID})
		}
	}

	// Stable candidate order so runs over identical inputs dispatch in
	// the same order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].userID != out[j].userID {
			return out[i].userID < out[j].userID
		}
		return out[i].instance < out[j].instance
	})
	return out
}
