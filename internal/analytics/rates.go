// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

// Package analytics computes per-segment analytics snapshots and keeps
// their append-only history.
package analytics

import (
	"math"
)

// Rate math policy: every rate is a percentage rounded to one decimal,
// and zero-population edge cases degrade to 0. No snapshot field ever
// holds NaN or an infinity.

// roundRate rounds a percentage to one decimal, mapping NaN and
// infinities to 0.
func roundRate(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10) / 10
}

// ratio returns num/denom as a one-decimal percentage, 0 when denom
// is not positive.
func ratio(num, denom float64) float64 {
	if denom <= 0 {
		return 0
	}
	return roundRate(num / denom * 100)
}

// change returns the percentage change from prev to cur, 0 when prev
// is not positive.
func change(cur, prev float64) float64 {
	if prev <= 0 {
		return 0
	}
	return roundRate((cur - prev) / prev * 100)
}
