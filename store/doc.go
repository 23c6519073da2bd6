// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the Authority's single source of truth for tracked
// tabs: their names, pending renames, user-origin flags, and activity
// statuses. Exactly one peer (the elected Authority) owns a Store;
// Followers only ever see serialized snapshots of it.
//
// The core operation is [Store.ApplyInventory], driven by each host
// inventory snapshot. It runs the confirm/observe cycle that keeps the
// Authority from fighting its own renames: a rename is issued once,
// marked pending, and confirmed only when a later snapshot shows the
// new name. Until then the tab is left alone, so the Authority never
// treats its own in-flight change as a user rename and never issues
// the same rename twice.
//
// Name allocation has two policies. Sequential advances a cursor
// through the pool and does not look back at freed names until it
// wraps; fill-gaps always takes the first free name in pool order.
// Names held by user-origin records never count as pool-held, and
// user-origin records are never renamed.
package store
