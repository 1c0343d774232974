// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/edupulse/segmenta/internal/models"
	"github.com/edupulse/segmenta/internal/segmentation"
)

// envelope is the uniform response shape.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // response write errors are not recoverable
	json.NewEncoder(w).Encode(envelope{Success: false, Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	if summary := s.runner.LastSummary(); summary != nil {
		health["last_run_id"] = summary.RunID
		health["last_run_finished_at"] = summary.FinishedAt
	}
	s.respond(w, http.StatusOK, health)
}

// segmentView is the list/detail shape: the definition plus the
// current committed size.
type segmentView struct {
	*models.Segment
	MemberCount int        `json:"member_count"`
	ComputedAt  *time.Time `json:"computed_at,omitempty"`
}

func (s *Server) segmentView(seg *models.Segment) segmentView {
	view := segmentView{Segment: seg}
	if m := s.store.Membership(seg.ID); m != nil {
		view.MemberCount = len(m.Members)
		view.ComputedAt = &m.ComputedAt
	}
	return view
}

func (s *Server) handleSegmentList(w http.ResponseWriter, r *http.Request) {
	segments := s.store.Segments()
	out := make([]segmentView, 0, len(segments))
	for _, seg := range segments {
		out = append(out, s.segmentView(seg))
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleSegmentGet(w http.ResponseWriter, r *http.Request) {
	seg, err := s.store.Segment(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, segmentation.ErrSegmentNotFound) {
			s.respondError(w, http.StatusNotFound, "segment not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "lookup segment")
		return
	}
	s.respond(w, http.StatusOK, s.segmentView(seg))
}

func (s *Server) handleMembership(w http.ResponseWriter, r *http.Request) {
	segID := chi.URLParam(r, "id")
	if _, err := s.store.Segment(segID); err != nil {
		s.respondError(w, http.StatusNotFound, "segment not found")
		return
	}

	m := s.store.Membership(segID)
	if m == nil {
		s.respond(w, http.StatusOK, map[string]interface{}{
			"segment_id": segID,
			"size":       0,
			"members":    []string{},
		})
		return
	}

	members := make([]string, 0, len(m.Members))
	for id := range m.Members {
		members = append(members, id)
	}
	sort.Strings(members)

	s.respond(w, http.StatusOK, map[string]interface{}{
		"segment_id":       segID,
		"size":             len(members),
		"members":          members,
		"criteria_version": m.CriteriaVersion,
		"computed_at":      m.ComputedAt,
	})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	segID := chi.URLParam(r, "id")
	if _, err := s.store.Segment(segID); err != nil {
		s.respondError(w, http.StatusNotFound, "segment not found")
		return
	}

	window := s.config.HistoryWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "window must be a positive integer")
			return
		}
		if n < window {
			window = n
		}
	}

	snapshots, err := s.history.Window(r.Context(), segID, window)
	if err != nil {
		s.logger.Error().Err(err).Str("segment_id", segID).Msg("read analytics window")
		s.respondError(w, http.StatusInternalServerError, "read analytics history")
		return
	}
	if snapshots == nil {
		snapshots = []models.AnalyticsSnapshot{}
	}
	s.respond(w, http.StatusOK, snapshots)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	segID := chi.URLParam(r, "id")
	if _, err := s.store.Segment(segID); err != nil {
		s.respondError(w, http.StatusNotFound, "segment not found")
		return
	}

	insights := s.runner.InsightsFor(segID)
	if insights == nil {
		insights = []models.Insight{}
	}
	s.respond(w, http.StatusOK, insights)
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	summary := s.runner.LastSummary()
	if summary == nil {
		s.respondError(w, http.StatusNotFound, "no runs yet")
		return
	}
	s.respond(w, http.StatusOK, summary)
}

// handleTriggerRun starts an on-demand run. preview=true additionally
// computes draft segments and suppresses automation.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	preview := r.URL.Query().Get("preview") == "true"

	summary, err := s.runner.RunOnce(r.Context(), preview)
	if err != nil {
		s.logger.Error().Err(err).Bool("preview", preview).Msg("on-demand run failed")
		s.respondError(w, http.StatusServiceUnavailable, "run failed: "+err.Error())
		return
	}
	s.respond(w, http.StatusOK, summary)
}
