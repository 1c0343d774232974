// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package segmentation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefix for committed memberships in BadgerDB.
const membershipKeyPrefix = "membership:"

// storedMembership is the durable JSON form of a Membership. Members
// are stored as a sorted slice so the on-disk bytes are deterministic
// for a given membership.
type storedMembership struct {
	Members         []string  `json:"members"`
	CriteriaVersion int       `json:"criteria_version"`
	ComputedAt      time.Time `json:"computed_at"`
}

// BadgerMembershipStore persists committed memberships in BadgerDB so
// restarts diff against real history.
type BadgerMembershipStore struct {
	db *badger.DB
}

// NewBadgerMembershipStore creates a BadgerDB-backed membership store.
func NewBadgerMembershipStore(db *badger.DB) *BadgerMembershipStore {
	return &BadgerMembershipStore{db: db}
}

// SaveMembership replaces the stored membership for a segment.
func (s *BadgerMembershipStore) SaveMembership(ctx context.Context, segmentID string, m *Membership) error {
	stored := storedMembership{
		Members:         make([]string, 0, len(m.Members)),
		CriteriaVersion: m.CriteriaVersion,
		ComputedAt:      m.ComputedAt,
	}
	for id := range m.Members {
		stored.Members = append(stored.Members, id)
	}
	sort.Strings(stored.Members)

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal membership: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(membershipKeyPrefix+segmentID), data)
	})
}

// LoadMemberships reads every stored membership.
func (s *BadgerMembershipStore) LoadMemberships(ctx context.Context) (map[string]*Membership, error) {
	out := make(map[string]*Membership)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(membershipKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			segmentID := strings.TrimPrefix(string(item.Key()), membershipKeyPrefix)

			var stored storedMembership
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return fmt.Errorf("unmarshal membership %s: %w", segmentID, err)
			}

			members := make(map[string]struct{}, len(stored.Members))
			for _, id := range stored.Members {
				members[id] = struct{}{}
			}
			out[segmentID] = &Membership{
				Members:         members,
				CriteriaVersion: stored.CriteriaVersion,
				ComputedAt:      stored.ComputedAt,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
