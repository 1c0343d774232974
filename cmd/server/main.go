// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

// Package main is the entry point for the Segmenta engine.
//
// Segmenta evaluates segment criteria over periodic population
// snapshots, maintains per-segment analytics history, generates
// insights, and fires automation rules with idempotent, cooldown-aware
// delivery.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML file,
//     SEGMENTA_-prefixed environment variables)
//  2. State store: embedded BadgerDB for memberships, analytics
//     history, and automation firing state
//  3. Segment definitions: loaded from the administrative export file,
//     criteria validated up front
//  4. Profile source: file-backed snapshot reads wrapped with timeout,
//     rate limit, and circuit breaker
//  5. Event bus: in-process Watermill pub/sub for behavior events and
//     outbound action requests
//  6. Evaluation runner: the scheduled pipeline tying segmentation,
//     analytics, insights, and automation together
//  7. HTTP API: read-only operator surface with Prometheus metrics
//
// All long-running services run under a Suture supervisor tree and are
// restarted with backoff on failure.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (SEGMENTA_ENGINE__EVALUATION_PERIOD=24h)
//   - Config file (config.yaml, or -config flag)
//   - Built-in defaults
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the
// supervisor tree stops its services, in-flight HTTP requests get a
// drain window, and the state store is closed last.
//
// # One-Shot Mode
//
// For cron-style deployments and operator dry runs the engine can
// execute a single evaluation and exit:
//
//	segmenta -once            # one full run, then exit
//	segmenta -once -preview   # compute drafts too, no automation
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/edupulse/segmenta/internal/analytics"
	"github.com/edupulse/segmenta/internal/api"
	"github.com/edupulse/segmenta/internal/automation"
	"github.com/edupulse/segmenta/internal/config"
	"github.com/edupulse/segmenta/internal/events"
	"github.com/edupulse/segmenta/internal/insights"
	"github.com/edupulse/segmenta/internal/logging"
	"github.com/edupulse/segmenta/internal/models"
	"github.com/edupulse/segmenta/internal/profiles"
	"github.com/edupulse/segmenta/internal/runner"
	"github.com/edupulse/segmenta/internal/segmentation"
	"github.com/edupulse/segmenta/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "", "path to config file (overrides search)")
	once := flag.Bool("once", false, "run one evaluation and exit")
	preview := flag.Bool("preview", false, "with -once: include drafts, skip automation")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	}); err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize logging")
	}

	logging.Info().
		Str("snapshot_file", cfg.Profiles.SnapshotFile).
		Str("segments_file", cfg.Store.SegmentsFile).
		Str("store_path", cfg.Store.Path).
		Bool("api_enabled", cfg.API.Enabled).
		Msg("Starting Segmenta")

	db, err := openStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open state store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing state store")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := segmentation.NewStore(segmentation.NewBadgerMembershipStore(db))
	if err := store.Restore(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to restore memberships")
	}

	loaded, err := segmentation.LoadSegmentsFile(store, cfg.Store.SegmentsFile)
	if err != nil {
		logging.Fatal().Err(err).Int("loaded", loaded).Msg("Failed to load segment definitions")
	}
	logging.Info().Int("segments", loaded).Msg("Segment definitions loaded")

	source := profiles.NewResilientSource(
		profiles.NewFileSource(cfg.Profiles.SnapshotFile),
		profiles.ResilientConfig{
			ReadTimeout:      cfg.Profiles.ReadTimeout,
			ReadsPerSecond:   cfg.Profiles.ReadsPerSecond,
			BreakerThreshold: cfg.Profiles.BreakerThreshold,
			BreakerTimeout:   cfg.Profiles.BreakerTimeout,
		},
	)

	bus := events.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	collector, err := events.NewCollector(bus)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create event collector")
	}

	// Fired actions leave the engine as bus messages; delivery
	// consumers subscribe out of process.
	sink := automation.SinkFunc(func(ctx context.Context, req models.ActionRequest) error {
		return bus.PublishActionRequest(req)
	})
	dispatcher := automation.NewDispatcher(sink, automation.DispatcherConfig{
		MaxAttempts:      cfg.Automation.Sink.MaxAttempts,
		InitialInterval:  cfg.Automation.Sink.InitialInterval,
		MaxInterval:      cfg.Automation.Sink.MaxInterval,
		BreakerThreshold: cfg.Automation.Sink.BreakerThreshold,
		BreakerTimeout:   cfg.Automation.Sink.BreakerTimeout,
	})
	automationEngine := automation.NewEngine(
		automation.EngineConfig{DefaultCooldown: cfg.EffectiveCooldown()},
		automation.NewBadgerStateStore(db, cfg.Automation.TokenTTL),
		dispatcher,
	)

	var globals runner.GlobalSource
	if cfg.Analytics.GlobalsFile != "" {
		globals = runner.NewFileGlobals(cfg.Analytics.GlobalsFile)
	}

	run := runner.New(
		runner.Config{
			EvaluationPeriod: cfg.Engine.EvaluationPeriod,
			HistoryWindow:    cfg.Analytics.HistoryWindow,
			Engine: segmentation.EngineConfig{
				WorkerLimit:    cfg.Engine.WorkerLimit,
				SegmentTimeout: cfg.Engine.SegmentTimeout,
			},
		},
		source,
		store,
		analytics.NewAggregator(analytics.AggregatorConfig{
			ActivityWindow: cfg.Analytics.ActivityWindow,
		}),
		analytics.NewBadgerHistory(db),
		insights.NewGenerator(insights.Config{
			RetentionDropPoints: cfg.Insights.RetentionDropPoints,
			GrowthStreakPct:     cfg.Insights.GrowthStreakPct,
			GrowthStreakPeriods: cfg.Insights.GrowthStreakPeriods,
			ConversionTargetPct: cfg.Insights.ConversionTargetPct,
			RevenueDropPoints:   cfg.Insights.RevenueDropPoints,
			ShrinkagePct:        cfg.Insights.ShrinkagePct,
		}),
		automationEngine,
		collector,
		globals,
	)

	if *once {
		runOnce(ctx, run, *preview)
		return
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	tree.AddEngineService(collector)
	tree.AddEngineService(run)

	if cfg.API.Enabled {
		tree.AddAPIService(api.NewServer(api.Config{
			Host:           cfg.API.Host,
			Port:           cfg.API.Port,
			RequestTimeout: cfg.API.RequestTimeout,
			RateLimit:      cfg.API.RateLimit,
			HistoryWindow:  cfg.Analytics.HistoryWindow,
		}, store, analytics.NewBadgerHistory(db), run))
	}

	logging.Info().Msg("Supervisor tree starting")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil {
			for _, svc := range unstopped {
				logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
			}
		}
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
		return
	}
	logging.Info().Msg("Shutdown complete")
}

// openStore opens the embedded badger database per configuration.
func openStore(cfg *config.Config) (*badger.DB, error) {
	var opts badger.Options
	if cfg.Store.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Store.Path)
	}
	return badger.Open(opts.WithLogger(nil))
}

// runOnce executes a single evaluation for cron-style deployments and
// operator dry runs.
func runOnce(ctx context.Context, run *runner.Runner, preview bool) {
	summary, err := run.RunOnce(ctx, preview)
	if err != nil {
		logging.Fatal().Err(err).Msg("Evaluation run failed")
	}
	logging.Info().
		Str("run_id", summary.RunID).
		Bool("preview", summary.Preview).
		Int("segments_evaluated", summary.SegmentsEvaluated).
		Int("actions_dispatched", summary.ActionsDispatched).
		Msg("Evaluation run complete")
}
