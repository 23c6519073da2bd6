// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package election

import (
	"reflect"
	"testing"
	"time"

	"github.com/crew-foundation/crew/protocol"
)

const timeout = 300 * time.Millisecond

func emptySnapshot() []protocol.TabRecord { return nil }

// effectMessages extracts the broadcast messages from an effect list.
func effectMessages(effects []Effect) []protocol.Message {
	var messages []protocol.Message
	for _, effect := range effects {
		if b, ok := effect.(Broadcast); ok {
			messages = append(messages, b.Message)
		}
	}
	return messages
}

func hasEffect[T Effect](effects []Effect) bool {
	for _, effect := range effects {
		if _, ok := effect.(T); ok {
			return true
		}
	}
	return false
}

func TestFirstPeerClaimsAfterTimeout(t *testing.T) {
	c := New(1, timeout, nil)

	effects := c.StartElection()
	messages := effectMessages(effects)
	if len(messages) != 1 {
		t.Fatalf("StartElection broadcast %d messages, want 1", len(messages))
	}
	if ping, ok := messages[0].(protocol.Ping); !ok || ping.InstanceID != 1 {
		t.Fatalf("StartElection broadcast %#v, want Ping{1}", messages[0])
	}
	if !hasEffect[StartTimer](effects) {
		t.Error("StartElection did not arm the timer")
	}
	if c.Role() != RoleUnsettled || !c.Pending() {
		t.Errorf("role=%v pending=%v, want unsettled/pending", c.Role(), c.Pending())
	}

	became, inherited, effects := c.HandleTimeout()
	if !became {
		t.Fatal("timeout did not produce authority")
	}
	if inherited != nil {
		t.Errorf("inherited = %v, want nil for a fresh election", inherited)
	}
	messages = effectMessages(effects)
	if len(messages) != 1 {
		t.Fatalf("timeout broadcast %d messages, want 1", len(messages))
	}
	if claim, ok := messages[0].(protocol.Claim); !ok || claim.InstanceID != 1 {
		t.Fatalf("timeout broadcast %#v, want Claim{1}", messages[0])
	}
	if c.Role() != RoleAuthority {
		t.Errorf("role = %v, want authority", c.Role())
	}

	// A second timeout (stale timer) is a no-op.
	if became, _, _ := c.HandleTimeout(); became {
		t.Error("stale timeout produced authority again")
	}
}

func TestCandidateFollowsOnAck(t *testing.T) {
	authority := New(1, timeout, nil)
	authority.StartElection()
	authority.HandleTimeout()

	snapshot := []protocol.TabRecord{{ID: 3, Name: "alpha", Status: protocol.StatusWorking}}

	candidate := New(2, timeout, nil)
	candidate.StartElection()

	// The authority answers the candidate's ping with its state.
	effects := authority.HandlePing(protocol.Ping{InstanceID: 2}, func() []protocol.TabRecord { return snapshot })
	messages := effectMessages(effects)
	if len(messages) != 1 {
		t.Fatalf("ping produced %d broadcasts, want 1", len(messages))
	}
	ack, ok := messages[0].(protocol.Ack)
	if !ok {
		t.Fatalf("ping answer = %#v, want Ack", messages[0])
	}

	adopted, effects := candidate.HandleAck(ack)
	if !reflect.DeepEqual(adopted, snapshot) {
		t.Errorf("adopted = %v, want %v", adopted, snapshot)
	}
	if !hasEffect[StopTimer](effects) {
		t.Error("ack did not cancel the election timer")
	}
	if candidate.Role() != RoleFollower {
		t.Errorf("role = %v, want follower", candidate.Role())
	}

	// A duplicate or late ack changes nothing.
	if adopted, _ := candidate.HandleAck(ack); adopted != nil {
		t.Error("late ack was not ignored")
	}
}

func TestAuthorityIgnoresOwnAndFollowerPings(t *testing.T) {
	c := New(5, timeout, nil)
	c.StartElection()
	c.HandleTimeout()

	if effects := c.HandlePing(protocol.Ping{InstanceID: 5}, emptySnapshot); effects != nil {
		t.Error("authority answered its own ping")
	}

	follower := New(4, timeout, nil)
	if effects := follower.HandlePing(protocol.Ping{InstanceID: 5}, emptySnapshot); effects != nil {
		t.Error("non-authority answered a ping")
	}
}

// deliverClaims exchanges the two claims in the given order and then
// lets any restarted election settle through the surviving authority.
func settleClaimRace(t *testing.T, first, second *Coordinator, firstSeesSecondFirst bool) {
	t.Helper()

	claims := map[*Coordinator]protocol.Claim{
		first:  {InstanceID: first.InstanceID()},
		second: {InstanceID: second.InstanceID()},
	}

	order := []*Coordinator{first, second}
	if firstSeesSecondFirst {
		order = []*Coordinator{second, first}
	}
	for _, receiver := range order {
		other := first
		if receiver == first {
			other = second
		}
		_, effects := receiver.HandleClaim(claims[other])
		// A yielded peer re-pings; the surviving authority acks it.
		for _, message := range effectMessages(effects) {
			if ping, ok := message.(protocol.Ping); ok {
				ackEffects := other.HandlePing(ping, emptySnapshot)
				for _, ackMessage := range effectMessages(ackEffects) {
					if ack, ok := ackMessage.(protocol.Ack); ok {
						receiver.HandleAck(ack)
					}
				}
			}
		}
	}
}

func TestTieBreakConvergesOnHigherID(t *testing.T) {
	for _, reversed := range []bool{false, true} {
		name := "lower sees higher claim first"
		if reversed {
			name = "higher sees lower claim first"
		}
		t.Run(name, func(t *testing.T) {
			lower := New(5, timeout, nil)
			higher := New(9, timeout, nil)

			// Both peers time out unanswered and claim simultaneously.
			lower.StartElection()
			higher.StartElection()
			lower.HandleTimeout()
			higher.HandleTimeout()

			settleClaimRace(t, lower, higher, reversed)

			if higher.Role() != RoleAuthority {
				t.Errorf("higher role = %v, want authority", higher.Role())
			}
			if lower.Role() == RoleAuthority {
				t.Errorf("lower role = %v, split brain", lower.Role())
			}
		})
	}
}

func TestAuthorityYieldsToHigherClaim(t *testing.T) {
	c := New(5, timeout, nil)
	c.StartElection()
	c.HandleTimeout()

	yielded, effects := c.HandleClaim(protocol.Claim{InstanceID: 9})
	if !yielded {
		t.Fatal("authority did not yield to a higher claim")
	}
	if c.Role() != RoleUnsettled || !c.Pending() {
		t.Errorf("role=%v pending=%v after yield, want unsettled/pending", c.Role(), c.Pending())
	}
	// The yield re-enters the election.
	foundPing := false
	for _, message := range effectMessages(effects) {
		if _, ok := message.(protocol.Ping); ok {
			foundPing = true
		}
	}
	if !foundPing {
		t.Error("yield did not re-ping")
	}
}

func TestLowerClaimIgnored(t *testing.T) {
	c := New(9, timeout, nil)
	c.StartElection()
	c.HandleTimeout()

	yielded, effects := c.HandleClaim(protocol.Claim{InstanceID: 5})
	if yielded || effects != nil {
		t.Errorf("higher authority reacted to a lower claim: yielded=%v effects=%v", yielded, effects)
	}
	if c.Role() != RoleAuthority {
		t.Errorf("role = %v, want authority", c.Role())
	}
}

func TestResignHandoffPreservesState(t *testing.T) {
	snapshot := []protocol.TabRecord{{ID: 1, Name: "alice", Status: protocol.StatusWorking}}

	departing := New(1, timeout, nil)
	departing.StartElection()
	departing.HandleTimeout()

	survivor := New(2, timeout, nil)
	survivor.StartElection()
	adopted, _ := survivor.HandleAck(protocol.Ack{InstanceID: 1, Snapshot: snapshot})
	if adopted == nil {
		t.Fatal("survivor did not follow the authority")
	}

	effects := departing.Resign(func() []protocol.TabRecord { return snapshot })
	messages := effectMessages(effects)
	if len(messages) != 1 {
		t.Fatalf("resign broadcast %d messages, want 1", len(messages))
	}
	resign, ok := messages[0].(protocol.Resign)
	if !ok {
		t.Fatalf("resign broadcast %#v, want Resign", messages[0])
	}
	if departing.Role() != RoleRetired {
		t.Errorf("departing role = %v, want retired", departing.Role())
	}

	// The resign overrides the survivor's Follower role and re-enters
	// the election.
	survivor.HandleResign(resign)
	if survivor.Role() != RoleUnsettled || !survivor.Pending() {
		t.Fatalf("survivor role=%v pending=%v, want unsettled/pending", survivor.Role(), survivor.Pending())
	}

	became, inherited, _ := survivor.HandleTimeout()
	if !became {
		t.Fatal("survivor did not claim after the resign")
	}
	if !reflect.DeepEqual(inherited, snapshot) {
		t.Errorf("inherited = %v, want %v", inherited, snapshot)
	}

	// The inherited snapshot is consumed: if the survivor later loses
	// authority and wins again, the new claim starts fresh.
	survivor.HandleClaim(protocol.Claim{InstanceID: 99})
	if became, inherited, _ := survivor.HandleTimeout(); !became || inherited != nil {
		t.Errorf("second election inherited %v, want nil", inherited)
	}
}

func TestStateSyncSettlesPendingElection(t *testing.T) {
	c := New(2, timeout, nil)
	c.StartElection()

	effects := c.HandleStateSync()
	if !hasEffect[StopTimer](effects) {
		t.Error("state sync did not cancel the election timer")
	}
	if c.Role() != RoleFollower {
		t.Errorf("role = %v, want follower", c.Role())
	}

	// Settled peers ignore further broadcasts' election significance.
	if effects := c.HandleStateSync(); effects != nil {
		t.Error("settled peer reacted to state sync")
	}
}

func TestFollowerResignIsSilent(t *testing.T) {
	c := New(2, timeout, nil)
	c.StartElection()
	c.HandleAck(protocol.Ack{InstanceID: 1})

	if effects := c.Resign(emptySnapshot); effects != nil {
		t.Errorf("follower resign produced effects: %v", effects)
	}
	if c.Role() != RoleRetired {
		t.Errorf("role = %v, want retired", c.Role())
	}
	// Retired peers do not re-enter elections.
	if effects := c.StartElection(); effects != nil {
		t.Error("retired peer restarted an election")
	}
}
