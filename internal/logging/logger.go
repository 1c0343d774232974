// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

// Package logging provides centralized zerolog-based logging for Segmenta.
//
// All engine packages log through this facade so that output format,
// level and correlation fields are configured in exactly one place:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("segment_id", id).Msg("membership committed")
//	logging.Ctx(ctx).Warn().Err(err).Msg("profile read skipped")
//
// Always terminate log chains with .Msg() or .Send(); a dangling
// chain is silently dropped by zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: trace, debug, info, warn, error, fatal, panic.
	// Default: info
	Level string

	// Format is the output format: json or console.
	// Default: json (recommended for production)
	Format string

	// Caller includes caller file and line number in logs.
	// Default: false (reduces performance overhead)
	Caller bool

	// Timestamp enables timestamps in log output.
	// Default: true
	Timestamp bool

	// Output is the writer for log output.
	// Default: os.Stderr
	Output io.Writer
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Caller:    false,
		Timestamp: true,
		Output:    os.Stderr,
	}
}

var (
	// log is the global logger instance.
	log zerolog.Logger

	// mu protects concurrent initialization.
	mu sync.RWMutex
)

//nolint:gochecknoinits // init ensures logging works before explicit Init() call
func init() {
	cfg := DefaultConfig()
	log = build(cfg)
}

// Init configures the global logger. Call once at application startup,
// before any services are constructed.
func Init(cfg Config) error {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}

	if _, err := parseLevel(cfg.Level); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	log = build(cfg)
	return nil
}

// build constructs a zerolog.Logger from the config.
func build(cfg Config) zerolog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// parseLevel converts a level string to a zerolog level.
func parseLevel(level string) (zerolog.Level, error) {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// With returns a child logger builder carrying the given component name.
// Services should create one logger at construction time:
//
//	logger := logging.With("segmentation-engine")
func With(component string) zerolog.Logger {
	return Logger().With().Str("component", component).Logger()
}

// Trace starts a trace-level log event.
func Trace() *zerolog.Event {
	l := Logger()
	return l.Trace()
}

// Debug starts a debug-level log event.
func Debug() *zerolog.Event {
	l := Logger()
	return l.Debug()
}

// Info starts an info-level log event.
func Info() *zerolog.Event {
	l := Logger()
	return l.Info()
}

// Warn starts a warn-level log event.
func Warn() *zerolog.Event {
	l := Logger()
	return l.Warn()
}

// Error starts an error-level log event.
func Error() *zerolog.Event {
	l := Logger()
	return l.Error()
}

// Fatal starts a fatal-level log event. The program exits after Msg().
func Fatal() *zerolog.Event {
	l := Logger()
	return l.Fatal()
}
