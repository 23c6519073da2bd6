// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package election

import (
	"log/slog"
	"time"

	"github.com/crew-foundation/crew/protocol"
)

// Role is a peer's place in the peer group.
type Role int

const (
	// RoleUnsettled means an election is unresolved: the peer has
	// pinged and is waiting for an ack or its timeout.
	RoleUnsettled Role = iota

	// RoleFollower renders broadcast state and mutates nothing.
	RoleFollower

	// RoleAuthority owns the state store and the name allocator.
	RoleAuthority

	// RoleRetired is terminal: the peer has resigned and is shutting
	// down.
	RoleRetired
)

func (r Role) String() string {
	switch r {
	case RoleUnsettled:
		return "unsettled"
	case RoleFollower:
		return "follower"
	case RoleAuthority:
		return "authority"
	case RoleRetired:
		return "retired"
	default:
		return "invalid"
	}
}

// Effect is an action the caller must apply on the coordinator's
// behalf. The coordinator never touches the transport or the clock
// itself.
type Effect interface{ isEffect() }

// Broadcast sends a message to the whole peer group.
type Broadcast struct {
	Message protocol.Message
}

// StartTimer arms the single-shot election timer. Any previously
// armed timer is superseded.
type StartTimer struct {
	Timeout time.Duration
}

// StopTimer cancels the armed election timer.
type StopTimer struct{}

func (Broadcast) isEffect()  {}
func (StartTimer) isEffect() {}
func (StopTimer) isEffect()  {}

// Coordinator runs the election protocol for one peer. All methods
// are called from the single-threaded peer event loop.
type Coordinator struct {
	instanceID uint64
	timeout    time.Duration
	logger     *slog.Logger

	role    Role
	pending bool

	// inherited is the snapshot carried by the last observed resign,
	// adopted if this peer wins the next election.
	inherited    []protocol.TabRecord
	hasInherited bool
}

// New creates a Coordinator in the Unsettled role. Call StartElection
// to begin.
func New(instanceID uint64, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		instanceID: instanceID,
		timeout:    timeout,
		logger:     logger.With("instance_id", instanceID),
		role:       RoleUnsettled,
	}
}

// Role returns the peer's current role.
func (c *Coordinator) Role() Role { return c.role }

// Pending reports whether an election timer is armed.
func (c *Coordinator) Pending() bool { return c.pending }

// InstanceID returns the host-assigned identifier.
func (c *Coordinator) InstanceID() uint64 { return c.instanceID }

// StartElection broadcasts candidacy and arms the timeout. A no-op if
// an election is already pending or the peer has retired.
func (c *Coordinator) StartElection() []Effect {
	if c.pending || c.role == RoleRetired {
		return nil
	}
	c.role = RoleUnsettled
	c.pending = true
	c.logger.Info("starting election")
	return []Effect{
		Broadcast{Message: protocol.Ping{InstanceID: c.instanceID}},
		StartTimer{Timeout: c.timeout},
	}
}

// HandlePing answers a candidate's ping. Only the Authority answers;
// the snapshot closure supplies its current state lazily so followers
// never serialize anything.
func (c *Coordinator) HandlePing(ping protocol.Ping, snapshot func() []protocol.TabRecord) []Effect {
	if ping.InstanceID == c.instanceID || c.role != RoleAuthority {
		return nil
	}
	c.logger.Info("acking ping", "candidate", ping.InstanceID)
	return []Effect{
		Broadcast{Message: protocol.Ack{InstanceID: c.instanceID, Snapshot: snapshot()}},
	}
}

// HandleAck settles a pending election: an Authority exists. Returns
// the snapshot to adopt as the follower cache (nil when the ack was
// stale or self-addressed in a way that changes nothing).
func (c *Coordinator) HandleAck(ack protocol.Ack) ([]protocol.TabRecord, []Effect) {
	if ack.InstanceID == c.instanceID {
		return nil, nil
	}
	// An ack is only meaningful while this peer is mid-election. A
	// late ack (after the timeout already fired, or addressed at a
	// different candidate after this peer settled) is ignored.
	if c.role != RoleUnsettled || !c.pending {
		return nil, nil
	}
	c.pending = false
	c.role = RoleFollower
	c.logger.Info("authority exists, following", "authority", ack.InstanceID)
	return ack.Snapshot, []Effect{StopTimer{}}
}

// HandleTimeout fires when the election timer elapses with no ack.
// Returns true when this peer just became the Authority, along with
// any snapshot inherited from a prior resign (nil means start empty).
func (c *Coordinator) HandleTimeout() (becameAuthority bool, inherited []protocol.TabRecord, effects []Effect) {
	if !c.pending {
		return false, nil, nil
	}
	c.pending = false
	c.role = RoleAuthority

	inherited = nil
	if c.hasInherited {
		inherited = c.inherited
		c.inherited = nil
		c.hasInherited = false
		c.logger.Info("claiming authority with inherited state", "records", len(inherited))
	} else {
		c.logger.Info("claiming authority")
	}

	return true, inherited, []Effect{
		Broadcast{Message: protocol.Claim{InstanceID: c.instanceID}},
	}
}

// HandleClaim applies the tie-break rule. Returns true when this peer
// held authority and yielded it (the caller must clear its store).
//
// The rule must give the same answer no matter the order claims are
// observed in: a higher instance ID always wins, a lower one is
// always ignored.
func (c *Coordinator) HandleClaim(claim protocol.Claim) (yielded bool, effects []Effect) {
	if claim.InstanceID == c.instanceID || claim.InstanceID < c.instanceID {
		return false, nil
	}

	switch {
	case c.role == RoleAuthority:
		// A newer peer claimed. Yield and re-enter the election; the
		// winner's ack will make this peer a Follower with its state.
		c.logger.Info("yielding authority to newer instance", "claimant", claim.InstanceID)
		c.role = RoleUnsettled
		effects = append(effects, c.restartElection()...)
		return true, effects

	case c.pending:
		// Still mid-election and a newer peer has already claimed.
		// Re-ping so the new Authority's ack settles this peer.
		c.logger.Info("newer instance claimed during election", "claimant", claim.InstanceID)
		effects = append(effects, StopTimer{})
		effects = append(effects, c.restartElection()...)
		return false, effects
	}
	return false, nil
}

// HandleResign records the departing Authority's snapshot and
// re-enters the election. The resign is authoritative: it overrides a
// Follower role adopted from an ack moments earlier.
func (c *Coordinator) HandleResign(resign protocol.Resign) []Effect {
	if resign.InstanceID == c.instanceID || c.role == RoleRetired {
		return nil
	}
	if c.role == RoleAuthority {
		// A competing authority resigning is not our leader. Nothing
		// to do; our own claim already settled the group.
		c.logger.Warn("ignoring resign from competing authority", "resigner", resign.InstanceID)
		return nil
	}
	c.logger.Info("authority resigned, starting new election", "resigner", resign.InstanceID)
	c.inherited = resign.Snapshot
	c.hasInherited = true

	c.role = RoleUnsettled
	effects := []Effect{}
	if c.pending {
		effects = append(effects, StopTimer{})
	}
	effects = append(effects, c.restartElection()...)
	return effects
}

// HandleStateSync notes that a state broadcast proves a live
// Authority. A peer still mid-election settles as a Follower without
// waiting for its timer.
func (c *Coordinator) HandleStateSync() []Effect {
	if c.role != RoleUnsettled || !c.pending {
		return nil
	}
	c.pending = false
	c.role = RoleFollower
	c.logger.Info("state broadcast observed, following")
	return []Effect{StopTimer{}}
}

// Resign performs the orderly handoff before shutdown. Only an
// Authority broadcasts; everyone else just retires.
func (c *Coordinator) Resign(snapshot func() []protocol.TabRecord) []Effect {
	role := c.role
	c.role = RoleRetired
	c.pending = false
	if role != RoleAuthority {
		return nil
	}
	c.logger.Info("resigning authority")
	return []Effect{
		Broadcast{Message: protocol.Resign{InstanceID: c.instanceID, Snapshot: snapshot()}},
	}
}

// restartElection is StartElection without the pending guard, for
// transitions that just cleared the previous election.
func (c *Coordinator) restartElection() []Effect {
	c.pending = true
	return []Effect{
		Broadcast{Message: protocol.Ping{InstanceID: c.instanceID}},
		StartTimer{Timeout: c.timeout},
	}
}
