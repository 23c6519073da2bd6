// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "github.com/crew-foundation/crew/lib/config"

// allocate picks the next pool name under the configured policy.
// Returns false when the pool is empty or every name is held.
//
// A name is held when a non-user-origin record carries it, either as
// its confirmed name or as an unconfirmed pending rename. Counting
// pending renames prevents handing the same name to two tabs that
// appear in one snapshot. User-origin records never hold pool names
// even when their name happens to collide with a pool entry.
func (s *Store) allocate() (string, bool) {
	if len(s.pool) == 0 {
		return "", false
	}

	held := make(map[string]bool, len(s.records))
	for _, record := range s.records {
		if record.UserOrigin {
			continue
		}
		if record.PendingRename != "" {
			held[record.PendingRename] = true
		} else {
			held[record.Name] = true
		}
	}

	if s.mode == config.FillGaps {
		for _, name := range s.pool {
			if !held[name] {
				return name, true
			}
		}
		return "", false
	}

	// Sequential: scan forward from the cursor, wrapping once. Freed
	// names behind the cursor are not revisited until the wraparound
	// reaches them.
	start := s.cursor + 1
	for offset := 0; offset < len(s.pool); offset++ {
		index := (start + offset) % len(s.pool)
		if !held[s.pool[index]] {
			s.cursor = index
			return s.pool[index], true
		}
	}
	return "", false
}
