// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

// Package metrics exposes Prometheus instrumentation for the engine:
// run timing, evaluation throughput, membership sizes, rule firings
// and sink delivery outcomes. Scraped via the API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "segmenta_run_duration_seconds",
			Help:    "Duration of full evaluation runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segmenta_runs_total",
			Help: "Total evaluation runs by outcome",
		},
		[]string{"outcome"}, // completed, cancelled, failed
	)

	// Segmentation metrics
	SegmentEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segmenta_segment_evaluations_total",
			Help: "Total per-segment membership recomputations",
		},
		[]string{"status"}, // active, draft
	)

	ProfileEvaluations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "segmenta_profile_evaluations_total",
			Help: "Total profile-against-criteria evaluations",
		},
	)

	SkippedUsers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "segmenta_skipped_users_total",
			Help: "Users excluded from a run because their profile was unavailable",
		},
	)

	MembershipSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "segmenta_membership_size",
			Help: "Current committed membership size per segment",
		},
		[]string{"segment_id"},
	)

	// Automation metrics
	RuleFirings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segmenta_rule_firings_total",
			Help: "Automation rule firings by trigger type",
		},
		[]string{"trigger"},
	)

	RuleSuppressions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segmenta_rule_suppressions_total",
			Help: "Rule firings suppressed by idempotency or cooldown",
		},
		[]string{"reason"}, // duplicate_token, cooldown, disabled
	)

	SinkDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segmenta_sink_deliveries_total",
			Help: "Action sink delivery attempts by outcome",
		},
		[]string{"outcome"}, // delivered, retried, dropped
	)

	// Event bus metrics
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segmenta_behavior_events_total",
			Help: "Behavior events consumed from the bus",
		},
		[]string{"outcome"}, // processed, malformed
	)

	// Insight metrics
	InsightsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segmenta_insights_generated_total",
			Help: "Insights generated by type",
		},
		[]string{"type"},
	)
)
