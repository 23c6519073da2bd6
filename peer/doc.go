// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

// Package peer composes the election coordinator, the Authority state
// store, and the external ingest handlers into a single event-driven
// instance. The runtime feeds events in one at a time and applies the
// returned effects; the peer itself never blocks, schedules, or
// writes to the host.
package peer
