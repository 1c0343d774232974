// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

// Package runner drives the evaluation pipeline: snapshot, membership
// recompute, analytics, insights, automation. One run is one pass over
// the whole pipeline against a single immutable population snapshot.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edupulse/segmenta/internal/analytics"
	"github.com/edupulse/segmenta/internal/automation"
	"github.com/edupulse/segmenta/internal/events"
	"github.com/edupulse/segmenta/internal/insights"
	"github.com/edupulse/segmenta/internal/logging"
	"github.com/edupulse/segmenta/internal/metrics"
	"github.com/edupulse/segmenta/internal/models"
	"github.com/edupulse/segmenta/internal/profiles"
	"github.com/edupulse/segmenta/internal/segmentation"
)

// GlobalSource supplies externally computed billing facts for analytics.
// Nil facts degrade conversion and revenue rates to zero.
type GlobalSource interface {
	GlobalMetrics(ctx context.Context) (*models.GlobalMetrics, error)
}

// StaticGlobals serves fixed billing facts (tests, fixtures).
type StaticGlobals struct {
	Metrics *models.GlobalMetrics
}

func (s *StaticGlobals) GlobalMetrics(ctx context.Context) (*models.GlobalMetrics, error) {
	return s.Metrics, nil
}

// Config configures the run loop.
type Config struct {
	// EvaluationPeriod is the cadence between scheduled runs.
	EvaluationPeriod time.Duration

	// HistoryWindow is how many analytics snapshots feed insight
	// generation per segment.
	HistoryWindow int

	// Engine is the per-run segmentation configuration.
	Engine segmentation.EngineConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		EvaluationPeriod: 24 * time.Hour,
		HistoryWindow:    12,
		Engine:           segmentation.DefaultEngineConfig(),
	}
}

// Runner owns the evaluation pipeline and its cadence.
type Runner struct {
	config     Config
	source     profiles.Source
	store      *segmentation.Store
	aggregator *analytics.Aggregator
	history    analytics.History
	generator  *insights.Generator
	automation *automation.Engine
	collector  *events.Collector // optional
	globals    GlobalSource      // optional
	logger     zerolog.Logger

	runMu sync.Mutex // serializes runs; scheduled and on-demand never overlap

	mu           sync.RWMutex
	lastSummary  *models.RunSummary
	lastInsights map[string][]models.Insight
}

// New creates a runner over the given components. collector and
// globals may be nil.
func New(
	config Config,
	source profiles.Source,
	store *segmentation.Store,
	aggregator *analytics.Aggregator,
	history analytics.History,
	generator *insights.Generator,
	automationEngine *automation.Engine,
	collector *events.Collector,
	globals GlobalSource,
) *Runner {
	if config.HistoryWindow < 2 {
		config.HistoryWindow = 2
	}
	return &Runner{
		config:       config,
		source:       source,
		store:        store,
		aggregator:   aggregator,
		history:      history,
		generator:    generator,
		automation:   automationEngine,
		collector:    collector,
		globals:      globals,
		logger:       logging.With("runner"),
		lastInsights: make(map[string][]models.Insight),
	}
}

// Serve runs the scheduled cadence until the context is cancelled. It
// satisfies suture.Service. The first run happens immediately so a
// fresh deployment does not wait a full period for its first results.
func (r *Runner) Serve(ctx context.Context) error {
	if _, err := r.RunOnce(ctx, false); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error().Err(err).Msg("Initial run failed; continuing on schedule")
	}

	ticker := time.NewTicker(r.config.EvaluationPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunOnce(ctx, false); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error().Err(err).Msg("Scheduled run failed")
			}
		}
	}
}

// RunOnce executes one full evaluation pass. Preview runs additionally
// compute draft segments but commit nothing: membership, analytics
// history and automation state stay untouched, so the next scheduled
// run still sees every join and leave. An unavailable profile store
// skips the run entirely; the previous memberships stay committed.
func (r *Runner) RunOnce(ctx context.Context, preview bool) (*models.RunSummary, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	runID := logging.GenerateRunID()
	ctx = logging.ContextWithRunID(ctx, runID)
	started := time.Now()

	summary := &models.RunSummary{
		RunID:     runID,
		Preview:   preview,
		StartedAt: started,
		Deltas:    make(map[string]models.MembershipDelta),
	}

	pop, err := r.source.Snapshot(ctx)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		r.logger.Warn().Err(err).Str("run_id", runID).Msg("Skipping run: no population snapshot")
		return nil, fmt.Errorf("read population snapshot: %w", err)
	}
	summary.SnapshotID = pop.ID
	summary.PopulationSize = pop.Size()

	// Capture pre-run memberships: retention compares against what was
	// committed before this run replaces it.
	previous := make(map[string]map[string]struct{})
	for _, seg := range r.store.Segments() {
		if m := r.store.Membership(seg.ID); m != nil {
			previous[seg.ID] = m.Members
		}
	}

	engineCfg := r.config.Engine
	engineCfg.IncludeDrafts = preview
	engineCfg.DryRun = preview
	engine := segmentation.NewEngine(r.store, engineCfg)

	deltas, stats, runErr := engine.Recompute(ctx, pop)
	summary.Deltas = deltas
	if stats != nil {
		summary.SegmentsEvaluated = stats.SegmentsEvaluated
		summary.SegmentsSkipped = stats.SegmentsSkipped
		summary.UsersSkipped = stats.UsersSkipped
		summary.Errors = append(summary.Errors, stats.Errors...)
	}
	if runErr != nil {
		summary.FinishedAt = time.Now()
		summary.Errors = append(summary.Errors, runErr.Error())
		r.publish(summary)
		return summary, runErr
	}

	if !preview {
		r.analyze(ctx, pop, deltas, previous, summary)
		if r.automation != nil {
			r.dispatch(ctx, pop, deltas, runID, summary)
		}
	}

	summary.FinishedAt = time.Now()
	metrics.RunDuration.Observe(summary.Duration().Seconds())
	metrics.RunsTotal.WithLabelValues("completed").Inc()
	r.publish(summary)

	r.logger.Info().
		Str("run_id", runID).
		Str("snapshot_id", pop.ID).
		Bool("preview", preview).
		Int("population", summary.PopulationSize).
		Int("segments_evaluated", summary.SegmentsEvaluated).
		Int("actions_dispatched", summary.ActionsDispatched).
		Dur("duration", summary.Duration()).
		Msg("Evaluation run completed")

	return summary, nil
}

// analyze appends one analytics snapshot per evaluated segment and
// regenerates its insights. Draft segments are measured but produce no
// insights. Analytics failures are isolated per segment.
func (r *Runner) analyze(
	ctx context.Context,
	pop *models.PopulationSnapshot,
	deltas map[string]models.MembershipDelta,
	previous map[string]map[string]struct{},
	summary *models.RunSummary,
) {
	var global *models.GlobalMetrics
	if r.globals != nil {
		g, err := r.globals.GlobalMetrics(ctx)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("global metrics: %v", err))
		} else {
			global = g
		}
	}

	period := pop.TakenAt.UTC().Format(time.RFC3339)
	generated := make(map[string][]models.Insight)

	for segID := range deltas {
		seg, err := r.store.Segment(segID)
		if err != nil {
			continue
		}
		membership := r.store.Membership(segID)
		if membership == nil {
			continue
		}

		prevSnap, err := r.history.Latest(ctx, segID)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("analytics %s: %v", segID, err))
			continue
		}

		snap := r.aggregator.Aggregate(analytics.Inputs{
			Segment:          seg,
			Current:          membership.Members,
			Previous:         previous[segID],
			PreviousSnapshot: prevSnap,
			Population:       pop,
			Global:           global,
			Period:           period,
		})

		if err := r.history.Append(ctx, snap); err != nil {
			if errors.Is(err, analytics.ErrPeriodExists) {
				// Same snapshot re-run: the period's numbers are already
				// recorded and identical by determinism.
				r.logger.Debug().Str("segment_id", segID).Str("period", period).
					Msg("Analytics period already recorded")
			} else {
				summary.Errors = append(summary.Errors, fmt.Sprintf("analytics %s: %v", segID, err))
				continue
			}
		}

		if seg.Status != models.SegmentActive {
			continue
		}
		window, err := r.history.Window(ctx, segID, r.config.HistoryWindow)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("insights %s: %v", segID, err))
			continue
		}
		generated[segID] = r.generator.Generate(seg, window)
	}

	r.mu.Lock()
	for segID, ins := range generated {
		r.lastInsights[segID] = ins
	}
	r.mu.Unlock()
}

// dispatch evaluates automation rules against the run's outcome.
func (r *Runner) dispatch(
	ctx context.Context,
	pop *models.PopulationSnapshot,
	deltas map[string]models.MembershipDelta,
	runID string,
	summary *models.RunSummary,
) {
	in := automation.Inputs{
		RunID:       runID,
		Deltas:      make(map[string]*models.MembershipDelta, len(deltas)),
		Memberships: make(map[string]map[string]struct{}, len(deltas)),
		Population:  pop,
	}
	for segID := range deltas {
		seg, err := r.store.Segment(segID)
		if err != nil {
			continue
		}
		in.Segments = append(in.Segments, seg)
		delta := deltas[segID]
		in.Deltas[segID] = &delta
		if m := r.store.Membership(segID); m != nil {
			in.Memberships[segID] = m.Members
		}
	}
	if r.collector != nil {
		in.Events = r.collector.Drain()
	}

	stats, err := r.automation.Evaluate(ctx, in)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("automation: %v", err))
	}
	summary.ActionsDispatched = stats.Fired
	summary.SinkFailures = stats.Dropped
}

func (r *Runner) publish(summary *models.RunSummary) {
	r.mu.Lock()
	r.lastSummary = summary
	r.mu.Unlock()
}

// LastSummary returns the most recent run's summary, or nil before the
// first run.
func (r *Runner) LastSummary() *models.RunSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSummary
}

// InsightsFor returns the insights generated for the segment on its
// most recent evaluated period.
func (r *Runner) InsightsFor(segmentID string) []models.Insight {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastInsights[segmentID]
}

// String identifies the runner in supervisor logs.
func (r *Runner) String() string { return "evaluation-runner" }
