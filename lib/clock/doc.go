// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, time.AfterFunc, or time.Sleep directly. In production,
// Real() provides the standard library behavior. In tests, Fake()
// provides a deterministic clock that advances only when Advance is
// called.
//
// Crew schedules exactly two kinds of timers through this package: the
// single-shot election timeout and the delayed-Enter keystroke after a
// tell delivery. Both are created with AfterFunc and cancelled with
// Timer.Stop, so the interface is deliberately small. There are no
// tickers.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Runtime struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	r := &Runtime{clock: clock.Real()}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	r := &Runtime{clock: c}
//	c.Advance(300 * time.Millisecond) // fire the election timer
package clock
