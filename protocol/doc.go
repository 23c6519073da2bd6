// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the wire vocabulary shared by every crew
// peer: message names, payload types, the activity-status enumeration,
// and the tab-record snapshot format.
//
// Messages arrive from the host as a (name, payload) pair. [Decode]
// turns that pair into exactly one variant of the sealed [Message]
// union at the ingress boundary, so downstream code dispatches with a
// type switch instead of comparing name strings.
//
// Three message families share the bus:
//
//   - Election: leader-ping, leader-ack, leader-claim, leader-resign.
//     Ack and Resign carry a full snapshot of the Authority's records.
//   - State: state-sync, the Authority's full-snapshot broadcast to
//     Followers on every change.
//   - External: status-update and status-query use the textual
//     key=value argument form so shell callers can produce them
//     without a CBOR encoder; tell is CBOR like everything else.
//
// The host feed (inventory snapshots, the pane index, rename actions,
// pane writes) uses the same envelope transport and is decoded here as
// well, keeping a single ingress for the peer event loop.
package protocol
