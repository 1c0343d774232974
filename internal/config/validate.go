// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the engine cannot run
// with. It collects all problems rather than stopping at the first.
func (c *Config) Validate() error {
	var problems []string

	if c.Engine.EvaluationPeriod <= 0 {
		problems = append(problems, "engine.evaluation_period must be positive")
	}
	if c.Engine.WorkerLimit < 1 {
		problems = append(problems, "engine.worker_limit must be at least 1")
	}
	if c.Engine.SegmentTimeout <= 0 {
		problems = append(problems, "engine.segment_timeout must be positive")
	}

	if c.Profiles.SnapshotFile == "" {
		problems = append(problems, "profiles.snapshot_file required")
	}
	if c.Profiles.ReadTimeout <= 0 {
		problems = append(problems, "profiles.read_timeout must be positive")
	}
	if c.Profiles.ReadsPerSecond < 0 {
		problems = append(problems, "profiles.reads_per_second must not be negative")
	}

	if c.Analytics.ActivityWindow <= 0 {
		problems = append(problems, "analytics.activity_window must be positive")
	}
	if c.Analytics.HistoryWindow < 1 {
		problems = append(problems, "analytics.history_window must be at least 1")
	}

	if c.Automation.DefaultCooldown < 0 {
		problems = append(problems, "automation.default_cooldown must not be negative")
	}
	if c.Automation.TokenTTL <= 0 {
		problems = append(problems, "automation.token_ttl must be positive")
	}
	if c.Automation.Sink.MaxAttempts < 1 {
		problems = append(problems, "automation.sink.max_attempts must be at least 1")
	}
	if c.Automation.Sink.InitialInterval <= 0 {
		problems = append(problems, "automation.sink.initial_interval must be positive")
	}
	if c.Automation.Sink.MaxInterval < c.Automation.Sink.InitialInterval {
		problems = append(problems, "automation.sink.max_interval must be >= initial_interval")
	}

	if c.Insights.GrowthStreakPeriods < 1 {
		problems = append(problems, "insights.growth_streak_periods must be at least 1")
	}
	if c.Insights.RetentionDropPoints <= 0 {
		problems = append(problems, "insights.retention_drop_points must be positive")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			problems = append(problems, fmt.Sprintf("api.port %d out of range", c.API.Port))
		}
		if c.API.RateLimit < 1 {
			problems = append(problems, "api.rate_limit must be at least 1")
		}
	}

	if !c.Store.InMemory && c.Store.Path == "" {
		problems = append(problems, "store.path required unless store.in_memory is set")
	}
	if c.Store.SegmentsFile == "" {
		problems = append(problems, "store.segments_file required")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
