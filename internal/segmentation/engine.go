// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package segmentation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edupulse/segmenta/internal/criteria"
	"github.com/edupulse/segmenta/internal/logging"
	"github.com/edupulse/segmenta/internal/metrics"
	"github.com/edupulse/segmenta/internal/models"
)

// EngineConfig configures the segmentation engine.
type EngineConfig struct {
	// WorkerLimit bounds concurrent segment evaluation.
	WorkerLimit int

	// SegmentTimeout bounds the evaluation of a single segment.
	SegmentTimeout time.Duration

	// IncludeDrafts computes draft segments too (preview runs).
	IncludeDrafts bool

	// DryRun computes deltas against committed membership without
	// committing the result. Preview runs set this so a what-if never
	// consumes the joins and leaves the next scheduled run must see.
	DryRun bool
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		WorkerLimit:    4,
		SegmentTimeout: 2 * time.Minute,
		IncludeDrafts:  false,
	}
}

// RunStats summarizes isolated failures and skip counts for one
// Recompute call. It feeds the per-run summary; nothing in here ever
// aborts a run.
type RunStats struct {
	SegmentsEvaluated int
	SegmentsSkipped   int
	UsersSkipped      int
	Errors            []string
}

// Engine recomputes membership for all segments against an immutable
// population snapshot. Full recompute is intentionally favored over
// incremental diffing: criteria combine independent fields too richly
// to cheaply invalidate partial results.
type Engine struct {
	store  *Store
	config EngineConfig
	logger zerolog.Logger
}

// NewEngine creates a segmentation engine over the given store.
func NewEngine(store *Store, config EngineConfig) *Engine {
	if config.WorkerLimit < 1 {
		config.WorkerLimit = 1
	}
	if config.SegmentTimeout <= 0 {
		config.SegmentTimeout = 2 * time.Minute
	}
	return &Engine{
		store:  store,
		config: config,
		logger: logging.With("segmentation-engine"),
	}
}

// Recompute evaluates every eligible segment against the population
// snapshot and returns the membership delta per segment.
//
// Guarantees:
//   - Determinism: identical (criteria, population) inputs produce
//     bit-identical membership and deltas; a second call over the same
//     snapshot yields empty deltas.
//   - Isolation: a user with an unreadable profile is skipped and
//     counted, never aborts the run.
//   - Atomic commit per segment: membership is committed only after a
//     segment fully evaluates; cancellation between segments leaves
//     uncommitted segments on their previous membership.
func (e *Engine) Recompute(ctx context.Context, pop *models.PopulationSnapshot) (map[string]models.MembershipDelta, *RunStats, error) {
	if pop == nil {
		return nil, nil, fmt.Errorf("population snapshot is nil")
	}

	segments := e.eligibleSegments()
	stats := &RunStats{}
	deltas := make(map[string]models.MembershipDelta, len(segments))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, e.config.WorkerLimit)
	)

	for _, seg := range segments {
		// Cancellation boundary: stop scheduling further segments.
		// Segments already in flight run to completion and commit.
		if ctx.Err() != nil {
			mu.Lock()
			stats.SegmentsSkipped++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(seg *models.Segment) {
			defer wg.Done()
			defer func() { <-sem }()

			segCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.SegmentTimeout)
			defer cancel()

			delta, skipped, err := e.recomputeSegment(segCtx, seg, pop)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.SegmentsSkipped++
				stats.Errors = append(stats.Errors, fmt.Sprintf("segment %s: %v", seg.ID, err))
				return
			}
			stats.SegmentsEvaluated++
			stats.UsersSkipped += skipped
			if skipped > 0 {
				metrics.SkippedUsers.Add(float64(skipped))
			}
			deltas[seg.ID] = delta
		}(seg)
	}

	wg.Wait()

	if ctx.Err() != nil {
		metrics.RunsTotal.WithLabelValues("cancelled").Inc()
		return deltas, stats, ctx.Err()
	}
	return deltas, stats, nil
}

// eligibleSegments returns the segments this run evaluates, in the
// store's stable order. Inactive segments are never computed; drafts
// only when the engine is configured for preview.
func (e *Engine) eligibleSegments() []*models.Segment {
	var out []*models.Segment
	for _, seg := range e.store.Segments() {
		switch seg.Status {
		case models.SegmentActive:
			out = append(out, seg)
		case models.SegmentDraft:
			if e.config.IncludeDrafts {
				out = append(out, seg)
			}
		case models.SegmentInactive:
			// skipped entirely
		}
	}
	return out
}

// recomputeSegment evaluates one segment against the full population
// and commits the resulting membership (unless dry-running). Returns
// the delta and the number of users skipped for unreadable profiles.
func (e *Engine) recomputeSegment(ctx context.Context, seg *models.Segment, pop *models.PopulationSnapshot) (models.MembershipDelta, int, error) {
	members := make(map[string]struct{})
	skipped := 0

	for userID, profile := range pop.Profiles {
		if profile == nil || profile.UserID == "" {
			skipped++
			continue
		}
		metrics.ProfileEvaluations.Inc()
		if criteria.Matches(profile, &seg.Criteria, pop.TakenAt) {
			members[userID] = struct{}{}
		}
	}

	prev := e.store.Membership(seg.ID)
	delta := diff(seg.ID, prev, members, seg.Criteria.Version, pop.TakenAt)

	if !e.config.DryRun {
		commit := &Membership{
			Members:         members,
			CriteriaVersion: seg.Criteria.Version,
			ComputedAt:      pop.TakenAt,
		}
		if err := e.store.Commit(ctx, seg.ID, commit); err != nil {
			return models.MembershipDelta{}, skipped, fmt.Errorf("commit membership: %w", err)
		}
	}

	status := "active"
	if seg.Status == models.SegmentDraft {
		status = "draft"
	}
	metrics.SegmentEvaluations.WithLabelValues(status).Inc()

	e.logger.Debug().
		Str("segment_id", seg.ID).
		Int("size", len(members)).
		Int("joined", len(delta.Joined)).
		Int("left", len(delta.Left)).
		Bool("dry_run", e.config.DryRun).
		Msg("segment membership computed")

	return delta, skipped, nil
}
