// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

// Package election decides which crew peer is the Authority.
//
// Every peer starts Unsettled: it broadcasts a leader-ping and arms a
// single-shot timer. If an Authority exists it answers with a
// leader-ack carrying its full state, and the pinger becomes a
// Follower. If the timer fires unanswered, the peer broadcasts a
// leader-claim and becomes the Authority itself.
//
// Simultaneous claims resolve by instance ID: the host hands out
// monotonically increasing IDs, so the highest ID is the newest peer
// and wins. A peer that sees a claim from a higher ID yields and
// re-enters the election; the winner's ack then converts it to a
// Follower. Claims from lower IDs are ignored. The rule is symmetric
// and idempotent: two claims observed in either order reach the same
// outcome, which is all the unordered transport guarantees allow.
//
// An Authority resigns before orderly shutdown, broadcasting its state
// so the next Authority starts from it instead of empty. A crash skips
// the resign: already-applied names survive (the host holds them) but
// statuses reset to unknown when the next election settles. That loss
// is accepted; see the design notes.
//
// The coordinator is a pure state machine: every handler returns
// effects (messages to broadcast, timer operations) for the caller to
// apply. Nothing here touches the wire or the clock directly, so the
// whole protocol is testable without goroutines or real time.
package election
