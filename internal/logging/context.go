// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// contextKey is the private type for context keys in this package.
type contextKey string

const (
	// runIDKey is the context key for evaluation run IDs.
	runIDKey contextKey = "run_id"
)

// GenerateRunID creates a new unique run ID.
// Returns the first 8 characters of a UUID for readability in logs.
func GenerateRunID() string {
	return uuid.New().String()[:8]
}

// ContextWithRunID returns a new context carrying the given run ID.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext retrieves the run ID from context.
// Returns empty string if not present.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns a logger with context values (run_id) automatically added.
// This is the recommended way to log inside an evaluation run:
//
//	logging.Ctx(ctx).Info().Str("segment_id", id).Msg("segment committed")
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := Logger()
	if runID := RunIDFromContext(ctx); runID != "" {
		logger = logger.With().Str("run_id", runID).Logger()
	}
	return &logger
}
