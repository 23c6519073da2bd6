// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"time"

	"github.com/crew-foundation/crew/protocol"
)

// Event is one input to the peer event loop. Events arrive one at a
// time; handlers never block and never touch the host directly.
type Event interface{ isEvent() }

// EventInventory carries the host's periodic tab snapshot.
type EventInventory struct {
	Tabs []protocol.TabEntry
}

// EventPaneIndex carries the host's pane-handle to tab-position
// lookup table, refreshed independently of the inventory.
type EventPaneIndex struct {
	Panes map[uint64]int
}

// EventMessage is a decoded bus message from another peer or an
// external requester.
type EventMessage struct {
	// Sender is the bus instance ID of the sending connection, used
	// to drop this peer's own broadcasts and to route replies.
	Sender uint64

	Message protocol.Message
}

// EventTimer fires when a scheduled timer elapses.
type EventTimer struct {
	Kind TimerKind
}

// EventShutdown is the lifecycle signal to resign and stop.
type EventShutdown struct{}

func (EventInventory) isEvent() {}
func (EventPaneIndex) isEvent() {}
func (EventMessage) isEvent()   {}
func (EventTimer) isEvent()     {}
func (EventShutdown) isEvent()  {}

// TimerKind names the peer's cancellable timers.
type TimerKind int

const (
	// TimerElection is the single-shot election timeout.
	TimerElection TimerKind = iota

	// TimerTellEnter delays the Enter keystroke after a delivered
	// tell, so text and keystroke arrive as separate terminal reads.
	TimerTellEnter
)

func (k TimerKind) String() string {
	switch k {
	case TimerElection:
		return "election"
	case TimerTellEnter:
		return "tell-enter"
	default:
		return "invalid"
	}
}

// Effect is one action the runtime applies on the peer's behalf after
// a handler returns.
type Effect interface{ isEffect() }

// EffectPublish broadcasts a message to the peer group.
type EffectPublish struct {
	Message protocol.Message
}

// EffectRename asks the host to rename a tab.
type EffectRename struct {
	TabID uint64
	Name  string
}

// EffectWritePane writes raw bytes to a terminal pane.
type EffectWritePane struct {
	Pane uint64
	Data []byte
}

// EffectStartTimer arms a single-shot timer, superseding any armed
// timer of the same kind.
type EffectStartTimer struct {
	Kind    TimerKind
	Timeout time.Duration
}

// EffectStopTimer cancels the armed timer of the given kind.
type EffectStopTimer struct {
	Kind TimerKind
}

// EffectReply routes diagnostic or query output back to the
// requesting bus connection.
type EffectReply struct {
	To   uint64
	Text string
}

// EffectRender signals that the visible tab state changed.
type EffectRender struct{}

func (EffectPublish) isEffect()    {}
func (EffectRename) isEffect()     {}
func (EffectWritePane) isEffect()  {}
func (EffectStartTimer) isEffect() {}
func (EffectStopTimer) isEffect()  {}
func (EffectReply) isEffect()      {}
func (EffectRender) isEffect()     {}
