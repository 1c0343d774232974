// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

// Package automation evaluates per-segment automation rules against the
// outcome of an evaluation run and dispatches action requests to the
// external action sink. Rules fire at most once per distinct trigger
// instance per user, and never more often than their cooldown allows.
package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// StateStore records which idempotency tokens have fired and when each
// (rule, user) pair last fired. Both survive restarts so a crash never
// replays an action or shortens a cooldown.
type StateStore interface {
	// TokenSeen reports whether the idempotency token has already fired.
	TokenSeen(ctx context.Context, token string) (bool, error)

	// LastFired returns when the (rule, user) pair last fired, or the
	// zero time if it never has.
	LastFired(ctx context.Context, ruleID, userID string) (time.Time, error)

	// RecordFiring marks the token as fired and updates the pair's last
	// firing time in one write.
	RecordFiring(ctx context.Context, token, ruleID, userID string, at time.Time) error

	// ObserveRuleState tracks the rule's enabled flag across runs so
	// cooldowns freeze while a rule is disabled. It returns the total
	// time the rule has spent disabled, as observed up to now.
	ObserveRuleState(ctx context.Context, ruleID string, enabled bool, now time.Time) (time.Duration, error)
}

const (
	tokenKeyPrefix    = "fired:"
	cooldownKeyPrefix = "lastfire:"
	pauseKeyPrefix    = "pause:"
)

func tokenKey(token string) []byte {
	return []byte(tokenKeyPrefix + token)
}

func cooldownKey(ruleID, userID string) []byte {
	return []byte(cooldownKeyPrefix + ruleID + "|" + userID)
}

func pauseKey(ruleID string) []byte {
	return []byte(pauseKeyPrefix + ruleID)
}

// pauseState accumulates how long a rule has been disabled. An open
// DisabledAt marks a disable span still running.
type pauseState struct {
	DisabledAt *time.Time    `json:"disabled_at,omitempty"`
	Total      time.Duration `json:"total"`
}

// observe applies one enabled-flag observation at now. Returns the
// accumulated disabled duration and whether the state changed.
func (p *pauseState) observe(enabled bool, now time.Time) (time.Duration, bool) {
	if enabled {
		if p.DisabledAt == nil {
			return p.Total, false
		}
		p.Total += now.Sub(*p.DisabledAt)
		p.DisabledAt = nil
		return p.Total, true
	}
	if p.DisabledAt == nil {
		at := now
		p.DisabledAt = &at
		return p.Total, true
	}
	return p.Total + now.Sub(*p.DisabledAt), false
}

// BadgerStateStore implements StateStore on BadgerDB. Fired tokens
// carry a TTL so the store does not grow without bound; the TTL must
// comfortably exceed the longest rule cooldown.
type BadgerStateStore struct {
	db       *badger.DB
	tokenTTL time.Duration
}

// NewBadgerStateStore creates a BadgerDB-backed automation state store.
// tokenTTL of zero retains tokens forever.
func NewBadgerStateStore(db *badger.DB, tokenTTL time.Duration) *BadgerStateStore {
	return &BadgerStateStore{db: db, tokenTTL: tokenTTL}
}

func (s *BadgerStateStore) TokenSeen(ctx context.Context, token string) (bool, error) {
	var seen bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(tokenKey(token))
		if err == nil {
			seen = true
			return nil
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("lookup token: %w", err)
	}
	return seen, nil
}

func (s *BadgerStateStore) LastFired(ctx context.Context, ruleID, userID string) (time.Time, error) {
	var last time.Time
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cooldownKey(ruleID, userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			parsed, err := time.Parse(time.RFC3339Nano, string(val))
			if err != nil {
				return fmt.Errorf("parse last firing time: %w", err)
			}
			last = parsed
			return nil
		})
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("lookup last firing: %w", err)
	}
	return last, nil
}

func (s *BadgerStateStore) RecordFiring(ctx context.Context, token, ruleID, userID string, at time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(tokenKey(token), []byte(at.UTC().Format(time.RFC3339Nano)))
		if s.tokenTTL > 0 {
			entry = entry.WithTTL(s.tokenTTL)
		}
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		return txn.Set(cooldownKey(ruleID, userID), []byte(at.UTC().Format(time.RFC3339Nano)))
	})
}

func (s *BadgerStateStore) ObserveRuleState(ctx context.Context, ruleID string, enabled bool, now time.Time) (time.Duration, error) {
	var paused time.Duration
	err := s.db.Update(func(txn *badger.Txn) error {
		var p pauseState
		item, err := txn.Get(pauseKey(ruleID))
		if err == nil {
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return fmt.Errorf("decode pause state: %w", err)
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		var changed bool
		paused, changed = p.observe(enabled, now)
		if !changed {
			return nil
		}
		data, err := json.Marshal(&p)
		if err != nil {
			return fmt.Errorf("encode pause state: %w", err)
		}
		return txn.Set(pauseKey(ruleID), data)
	})
	if err != nil {
		return 0, fmt.Errorf("observe rule state: %w", err)
	}
	return paused, nil
}

// MemoryStateStore is an in-memory StateStore for tests and preview
// runs.
type MemoryStateStore struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
	fired  map[string]time.Time
	paused map[string]*pauseState
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		tokens: make(map[string]struct{}),
		fired:  make(map[string]time.Time),
		paused: make(map[string]*pauseState),
	}
}

func (s *MemoryStateStore) TokenSeen(ctx context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[token]
	return ok, nil
}

func (s *MemoryStateStore) LastFired(ctx context.Context, ruleID, userID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fired[ruleID+"|"+userID], nil
}

func (s *MemoryStateStore) RecordFiring(ctx context.Context, token, ruleID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = struct{}{}
	s.fired[ruleID+"|"+userID] = at
	return nil
}

func (s *MemoryStateStore) ObserveRuleState(ctx context.Context, ruleID string, enabled bool, now time.Time) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.paused[ruleID]
	if p == nil {
		p = &pauseState{}
		s.paused[ruleID] = p
	}
	paused, _ := p.observe(enabled, now)
	return paused, nil
}
