// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

// Package bus is the peer group's message transport: a Unix-socket
// hub that assigns each connection a monotonically increasing
// instance ID and fans published envelopes out to every other
// subscriber. Envelopes are length-framed CBOR; delivery is
// best-effort, which the full-snapshot broadcast model tolerates.
package bus
