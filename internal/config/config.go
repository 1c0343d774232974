// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

// Package config loads and validates the engine configuration using
// Koanf v2 with layered sources: built-in defaults, an optional YAML
// config file, and environment variables (highest priority).
package config

import (
	"time"
)

// Config is the root configuration for the engine.
type Config struct {
	Logging    LoggingConfig    `koanf:"logging"`
	Engine     EngineConfig     `koanf:"engine"`
	Profiles   ProfilesConfig   `koanf:"profiles"`
	Analytics  AnalyticsConfig  `koanf:"analytics"`
	Automation AutomationConfig `koanf:"automation"`
	Insights   InsightsConfig   `koanf:"insights"`
	API        APIConfig        `koanf:"api"`
	Store      StoreConfig      `koanf:"store"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// LoggingConfig configures the zerolog-based logging facade.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	// Caller includes caller file/line in log output.
	Caller bool `koanf:"caller"`
}

// EngineConfig configures the segmentation engine and its cadence.
type EngineConfig struct {
	// EvaluationPeriod is the cadence between scheduled runs. It also
	// serves as the default automation cooldown.
	EvaluationPeriod time.Duration `koanf:"evaluation_period"`

	// WorkerLimit bounds concurrent segment evaluation within a run.
	WorkerLimit int `koanf:"worker_limit"`

	// SegmentTimeout bounds the evaluation of a single segment.
	SegmentTimeout time.Duration `koanf:"segment_timeout"`
}

// ProfilesConfig configures reads from the user-profile store.
type ProfilesConfig struct {
	// SnapshotFile is the population snapshot exported by the profile
	// store, read once per run.
	SnapshotFile string `koanf:"snapshot_file"`

	// ReadTimeout bounds a single population snapshot read. A timed
	// out read means "profile store unavailable this run".
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// ReadsPerSecond rate-limits snapshot reads to protect the
	// upstream store. Zero disables the limiter.
	ReadsPerSecond float64 `koanf:"reads_per_second"`

	// BreakerThreshold is the number of consecutive read failures
	// before the circuit opens.
	BreakerThreshold uint32 `koanf:"breaker_threshold"`

	// BreakerTimeout is how long the circuit stays open.
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// AnalyticsConfig configures the analytics aggregator.
type AnalyticsConfig struct {
	// ActivityWindow is how recently a member must have logged in,
	// relative to the population snapshot's reference time, to count
	// as active for retention.
	ActivityWindow time.Duration `koanf:"activity_window"`

	// HistoryWindow is how many snapshots per segment to retain in
	// the rolling window served to the dashboard.
	HistoryWindow int `koanf:"history_window"`

	// GlobalsFile is the billing facts export from the metrics
	// collector, read once per run. Empty disables conversion and
	// revenue metrics.
	GlobalsFile string `koanf:"globals_file"`
}

// SinkConfig configures delivery to the external action sink.
type SinkConfig struct {
	// MaxAttempts caps delivery attempts per action request.
	MaxAttempts int `koanf:"max_attempts"`

	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration `koanf:"initial_interval"`

	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration `koanf:"max_interval"`

	// BreakerThreshold is the number of consecutive delivery failures
	// before the circuit opens.
	BreakerThreshold uint32 `koanf:"breaker_threshold"`

	// BreakerTimeout is how long the circuit stays open.
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// AutomationConfig configures the automation rule engine.
type AutomationConfig struct {
	// DefaultCooldown is the minimum re-fire interval applied to rules
	// that do not set their own. Zero means one evaluation period.
	DefaultCooldown time.Duration `koanf:"default_cooldown"`

	// TokenTTL is how long fired idempotency tokens are retained.
	TokenTTL time.Duration `koanf:"token_ttl"`

	Sink SinkConfig `koanf:"sink"`
}

// InsightsConfig holds the tunable thresholds for insight generation.
// These are configuration, not constants, so operators can adjust
// sensitivity without code changes.
type InsightsConfig struct {
	// RetentionDropPoints is the retention drop (percentage points)
	// that raises a high-severity risk.
	RetentionDropPoints float64 `koanf:"retention_drop_points"`

	// GrowthStreakPct is the growth rate that, sustained for
	// GrowthStreakPeriods consecutive periods, raises a trend.
	GrowthStreakPct     float64 `koanf:"growth_streak_pct"`
	GrowthStreakPeriods int     `koanf:"growth_streak_periods"`

	// ConversionTargetPct is the conversion rate above which an
	// opportunity is raised.
	ConversionTargetPct float64 `koanf:"conversion_target_pct"`

	// RevenueDropPoints is the revenue-share drop (percentage points)
	// that raises a medium-severity risk.
	RevenueDropPoints float64 `koanf:"revenue_drop_points"`

	// ShrinkagePct is the negative growth rate beyond which a
	// shrinking-segment risk is raised.
	ShrinkagePct float64 `koanf:"shrinkage_pct"`
}

// APIConfig configures the read-only operator HTTP surface.
type APIConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`

	// RequestTimeout bounds request handling.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// RateLimit is requests per minute per client IP.
	RateLimit int `koanf:"rate_limit"`
}

// StoreConfig configures the embedded badger state store.
type StoreConfig struct {
	// Path is the badger data directory.
	Path string `koanf:"path"`

	// InMemory runs badger without disk persistence (tests, preview).
	InMemory bool `koanf:"in_memory"`

	// SegmentsFile holds the segment definitions exported by the
	// administrative interface, loaded at startup.
	SegmentsFile string `koanf:"segments_file"`
}

// SupervisorConfig configures the suture service tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// defaultConfig returns a Config with all defaults applied. Defaults
// are loaded first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Engine: EngineConfig{
			EvaluationPeriod: 24 * time.Hour,
			WorkerLimit:      4,
			SegmentTimeout:   2 * time.Minute,
		},
		Profiles: ProfilesConfig{
			SnapshotFile:     "/data/segmenta/population.json",
			ReadTimeout:      30 * time.Second,
			ReadsPerSecond:   2,
			BreakerThreshold: 5,
			BreakerTimeout:   time.Minute,
		},
		Analytics: AnalyticsConfig{
			ActivityWindow: 30 * 24 * time.Hour,
			HistoryWindow:  12,
			GlobalsFile:    "",
		},
		Automation: AutomationConfig{
			DefaultCooldown: 0, // 0 = one evaluation period
			TokenTTL:        90 * 24 * time.Hour,
			Sink: SinkConfig{
				MaxAttempts:      5,
				InitialInterval:  500 * time.Millisecond,
				MaxInterval:      30 * time.Second,
				BreakerThreshold: 5,
				BreakerTimeout:   time.Minute,
			},
		},
		Insights: InsightsConfig{
			RetentionDropPoints: 15,
			GrowthStreakPct:     10,
			GrowthStreakPeriods: 2,
			ConversionTargetPct: 20,
			RevenueDropPoints:   5,
			ShrinkagePct:        -10,
		},
		API: APIConfig{
			Enabled:        true,
			Host:           "0.0.0.0",
			Port:           8443,
			RequestTimeout: 30 * time.Second,
			RateLimit:      120,
		},
		Store: StoreConfig{
			Path:         "/data/segmenta",
			InMemory:     false,
			SegmentsFile: "/data/segmenta/segments.json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// EffectiveCooldown resolves the automation cooldown: the configured
// default, falling back to one evaluation period when unset.
func (c *Config) EffectiveCooldown() time.Duration {
	if c.Automation.DefaultCooldown > 0 {
		return c.Automation.DefaultCooldown
	}
	return c.Engine.EvaluationPeriod
}
