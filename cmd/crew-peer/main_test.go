// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/crew-foundation/crew/lib/clock"
	"github.com/crew-foundation/crew/peer"
)

// A timer armed before shutdown can fire after the event loop has
// exited, with nothing left draining the event channel. The callback
// must drop the event rather than block.
func TestTimerFiringAfterShutdownDoesNotBlock(t *testing.T) {
	fake := clock.Fake(time.Unix(1700000000, 0))
	r := &runtime{
		clock:       fake,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		timerEvents: make(chan peer.Event),
		timers:      make(map[peer.TimerKind]*clock.Timer),
		quit:        make(chan struct{}),
	}

	r.apply([]peer.Effect{
		peer.EffectStartTimer{Kind: peer.TimerElection, Timeout: 300 * time.Millisecond},
	})
	close(r.quit)

	advanced := make(chan struct{})
	go func() {
		fake.Advance(300 * time.Millisecond)
		close(advanced)
	}()
	select {
	case <-advanced:
	case <-time.After(5 * time.Second):
		t.Fatal("timer callback blocked after the event loop exited")
	}
}
