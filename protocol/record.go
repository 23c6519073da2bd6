// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// TabRecord is the snapshot form of one tracked tab, as carried by
// state-sync broadcasts and by the Ack/Resign handoff payloads.
//
// This is the Follower-visible projection: the Authority's internal
// rename-reconciliation state (the pending rename, message
// bookkeeping) never crosses the wire in a snapshot. json tags because
// the same shape appears in format=json query output.
type TabRecord struct {
	// ID is the stable tab identifier. It never changes while the tab
	// lives, no matter how the tab is renamed or reordered.
	ID uint64 `json:"id"`

	// Position is the tab's current slot in the host layout.
	Position int `json:"position"`

	// Name is the tab's current display name.
	Name string `json:"name"`

	// UserOrigin is true when the name came from outside the
	// allocator, either present at creation or applied manually by
	// the user. User-origin names are never touched by the allocator
	// and never return to the pool.
	UserOrigin bool `json:"user_origin"`

	// Status is the tab's current activity status.
	Status Status `json:"status"`
}
