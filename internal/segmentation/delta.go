// Segmenta - User Segmentation and Automation Engine
// Copyright 2026 EduPulse Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/edupulse/segmenta

package segmentation

import (
	"sort"
	"time"

	"github.com/edupulse/segmenta/internal/models"
)

// diff computes the membership delta between the previous committed
// membership and the newly computed set. Joined and Left come out
// sorted so identical inputs always produce bit-identical deltas.
func diff(segmentID string, prev *Membership, current map[string]struct{}, version int, computedAt time.Time) models.MembershipDelta {
	delta := models.MembershipDelta{
		SegmentID:       segmentID,
		CriteriaVersion: version,
		Size:            len(current),
		ComputedAt:      computedAt,
	}

	var prevMembers map[string]struct{}
	if prev != nil {
		prevMembers = prev.Members
	}

	for id := range current {
		if _, ok := prevMembers[id]; !ok {
			delta.Joined = append(delta.Joined, id)
		}
	}
	for id := range prevMembers {
		if _, ok := current[id]; !ok {
			delta.Left = append(delta.Left, id)
		}
	}

	sort.Strings(delta.Joined)
	sort.Strings(delta.Left)
	return delta
}
