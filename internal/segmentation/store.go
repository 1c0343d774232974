// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

// Package segmentation recomputes segment membership against immutable
// population snapshots and maintains the last committed membership per
// segment.
package segmentation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/edupulse/segmenta/internal/metrics"
	"github.com/edupulse/segmenta/internal/models"
)

// ErrSegmentNotFound is returned for lookups of unknown segments.
var ErrSegmentNotFound = errors.New("segment not found")

// Membership is a committed membership set for one segment.
type Membership struct {
	Members         map[string]struct{}
	CriteriaVersion int
	ComputedAt      time.Time
}

// clone returns a deep copy so callers can't mutate committed state.
func (m *Membership) clone() *Membership {
	if m == nil {
		return nil
	}
	members := make(map[string]struct{}, len(m.Members))
	for id := range m.Members {
		members[id] = struct{}{}
	}
	return &Membership{
		Members:         members,
		CriteriaVersion: m.CriteriaVersion,
		ComputedAt:      m.ComputedAt,
	}
}

// MembershipPersistence stores committed memberships durably so the
// first run after a restart diffs against real history instead of
// treating the whole population as newly joined.
type MembershipPersistence interface {
	SaveMembership(ctx context.Context, segmentID string, m *Membership) error
	LoadMemberships(ctx context.Context) (map[string]*Membership, error)
}

// Store holds segment definitions and their last committed membership.
// Each segment occupies its own slot; Commit replaces the whole slot,
// so there is no fine-grained locking within a segment.
type Store struct {
	mu          sync.RWMutex
	segments    map[string]*models.Segment
	memberships map[string]*Membership

	persist MembershipPersistence // optional
}

// NewStore creates an empty store. persist may be nil for purely
// in-memory operation (tests, preview runs).
func NewStore(persist MembershipPersistence) *Store {
	return &Store{
		segments:    make(map[string]*models.Segment),
		memberships: make(map[string]*Membership),
		persist:     persist,
	}
}

// Restore loads previously committed memberships from persistence.
// Call once at startup, before the first run.
func (s *Store) Restore(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	loaded, err := s.persist.LoadMemberships(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range loaded {
		s.memberships[id] = m
	}
	return nil
}

// PutSegment inserts or replaces a segment definition.
func (s *Store) PutSegment(seg *models.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[seg.ID] = seg
}

// Segment returns a segment by ID.
func (s *Store) Segment(id string) (*models.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[id]
	if !ok {
		return nil, ErrSegmentNotFound
	}
	return seg, nil
}

// Segments returns all segment definitions ordered by priority
// (descending) then ID, so every caller sees the same ordering.
func (s *Store) Segments() []*models.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Segment, 0, len(s.segments))
	for _, seg := range s.segments {
		out = append(out, seg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Membership returns a copy of the last committed membership for the
// segment, or nil if the segment has never been committed.
func (s *Store) Membership(segmentID string) *Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memberships[segmentID].clone()
}

// Commit atomically replaces the segment's membership slot. Partial
// membership is never published: callers commit only fully computed
// sets. The write goes through persistence first so a crash between
// the two writes re-reads the durable copy on restart.
func (s *Store) Commit(ctx context.Context, segmentID string, m *Membership) error {
	if s.persist != nil {
		if err := s.persist.SaveMembership(ctx, segmentID, m); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.memberships[segmentID] = m.clone()
	s.mu.Unlock()

	metrics.MembershipSize.WithLabelValues(segmentID).Set(float64(len(m.Members)))
	return nil
}
