// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"testing"
	"time"

	"github.com/crew-foundation/crew/lib/config"
	"github.com/crew-foundation/crew/protocol"
)

func newStore(t *testing.T, pool []string, mode config.AllocationMode) *Store {
	t.Helper()
	return New(Options{
		Pool:              pool,
		Mode:              mode,
		PlaceholderPrefix: "Tab",
	})
}

// confirm replays an inventory where every pending rename has taken
// effect, as the host would report after processing the renames.
func confirm(t *testing.T, s *Store, tabs []protocol.TabEntry) {
	t.Helper()
	applied := make([]protocol.TabEntry, len(tabs))
	copy(applied, tabs)
	for i, tab := range applied {
		if record := s.Get(tab.ID); record != nil && record.PendingRename != "" {
			applied[i].Name = record.PendingRename
		}
	}
	if renames, _ := s.ApplyInventory(applied); len(renames) != 0 {
		t.Fatalf("confirmation round issued renames: %v", renames)
	}
}

func TestNewPlaceholderTabGetsPoolName(t *testing.T) {
	s := newStore(t, []string{"alpha", "bravo"}, config.Sequential)

	renames, changed := s.ApplyInventory([]protocol.TabEntry{
		{ID: 1, Position: 0, Name: "Tab #1"},
	})
	if !changed {
		t.Error("ApplyInventory reported no change for a new tab")
	}
	if len(renames) != 1 || renames[0] != (protocol.Rename{TabID: 1, Name: "alpha"}) {
		t.Fatalf("renames = %v, want rename of tab 1 to alpha", renames)
	}

	record := s.Get(1)
	if record == nil {
		t.Fatal("no record created")
	}
	if record.PendingRename != "alpha" {
		t.Errorf("PendingRename = %q, want alpha", record.PendingRename)
	}
	if record.Name != "Tab #1" {
		t.Errorf("Name = %q, want the placeholder until confirmation", record.Name)
	}
	if record.UserOrigin {
		t.Error("pool-named record marked user-origin")
	}
	if record.Status != protocol.StatusUnknown {
		t.Errorf("Status = %q, want unknown", record.Status)
	}
}

func TestPendingRenameIsNotReissued(t *testing.T) {
	s := newStore(t, []string{"alpha"}, config.Sequential)
	tabs := []protocol.TabEntry{{ID: 1, Position: 0, Name: "Tab #1"}}

	if renames, _ := s.ApplyInventory(tabs); len(renames) != 1 {
		t.Fatalf("first round renames = %v, want one", renames)
	}
	// Host has not processed the rename: same placeholder again.
	renames, changed := s.ApplyInventory(tabs)
	if len(renames) != 0 {
		t.Errorf("second round reissued renames: %v", renames)
	}
	if changed {
		t.Error("second round reported a change")
	}
}

func TestRenameConfirmation(t *testing.T) {
	s := newStore(t, []string{"alpha"}, config.Sequential)
	s.ApplyInventory([]protocol.TabEntry{{ID: 1, Position: 0, Name: "Tab #1"}})

	renames, changed := s.ApplyInventory([]protocol.TabEntry{{ID: 1, Position: 0, Name: "alpha"}})
	if len(renames) != 0 {
		t.Errorf("confirmation issued renames: %v", renames)
	}
	if !changed {
		t.Error("confirmation reported no change")
	}

	record := s.Get(1)
	if record.Name != "alpha" || record.PendingRename != "" {
		t.Errorf("record = {Name:%q PendingRename:%q}, want confirmed alpha", record.Name, record.PendingRename)
	}

	// Replaying the confirmed snapshot is a no-op: no rename, no
	// change.
	renames, changed = s.ApplyInventory([]protocol.TabEntry{{ID: 1, Position: 0, Name: "alpha"}})
	if len(renames) != 0 || changed {
		t.Errorf("replay produced renames=%v changed=%v, want none", renames, changed)
	}
}

func TestUserRenameAdopted(t *testing.T) {
	s := newStore(t, []string{"alpha"}, config.Sequential)
	tabs := []protocol.TabEntry{{ID: 1, Position: 0, Name: "Tab #1"}}
	s.ApplyInventory(tabs)
	confirm(t, s, tabs)

	renames, changed := s.ApplyInventory([]protocol.TabEntry{{ID: 1, Position: 0, Name: "build"}})
	if len(renames) != 0 {
		t.Errorf("user rename triggered allocator renames: %v", renames)
	}
	if !changed {
		t.Error("user rename reported no change")
	}
	record := s.Get(1)
	if !record.UserOrigin || record.Name != "build" {
		t.Errorf("record = {Name:%q UserOrigin:%v}, want user-origin build", record.Name, record.UserOrigin)
	}
}

func TestTabNamedFromTheStartIsUserOrigin(t *testing.T) {
	s := newStore(t, []string{"alpha"}, config.Sequential)

	renames, _ := s.ApplyInventory([]protocol.TabEntry{{ID: 1, Position: 0, Name: "scratch"}})
	if len(renames) != 0 {
		t.Errorf("pre-named tab triggered renames: %v", renames)
	}
	record := s.Get(1)
	if record == nil || !record.UserOrigin {
		t.Fatalf("record = %+v, want user-origin", record)
	}
}

func TestMalformedPlaceholderTreatedAsUserOrigin(t *testing.T) {
	s := newStore(t, []string{"alpha"}, config.Sequential)

	renames, _ := s.ApplyInventory([]protocol.TabEntry{{ID: 1, Position: 0, Name: "Tab #x"}})
	if len(renames) != 0 {
		t.Errorf("malformed placeholder triggered renames: %v", renames)
	}
	record := s.Get(1)
	if record == nil || !record.UserOrigin {
		t.Fatalf("record = %+v, want user-origin fallback", record)
	}
}

func TestClosedTabRemoved(t *testing.T) {
	s := newStore(t, []string{"alpha", "bravo"}, config.FillGaps)
	tabs := []protocol.TabEntry{
		{ID: 1, Position: 0, Name: "Tab #1"},
		{ID: 2, Position: 1, Name: "Tab #2"},
	}
	s.ApplyInventory(tabs)
	confirm(t, s, tabs)

	_, changed := s.ApplyInventory([]protocol.TabEntry{{ID: 2, Position: 0, Name: "bravo"}})
	if !changed {
		t.Error("removal reported no change")
	}
	if s.Get(1) != nil {
		t.Error("closed tab still tracked")
	}

	// The freed name is allocatable again under fill-gaps.
	renames, _ := s.ApplyInventory([]protocol.TabEntry{
		{ID: 2, Position: 0, Name: "bravo"},
		{ID: 3, Position: 1, Name: "Tab #3"},
	})
	if len(renames) != 1 || renames[0].Name != "alpha" {
		t.Errorf("renames = %v, want reallocation of alpha", renames)
	}
}

func TestPositionMoveIsAChange(t *testing.T) {
	s := newStore(t, nil, config.Sequential)
	s.ApplyInventory([]protocol.TabEntry{{ID: 1, Position: 0, Name: "scratch"}})

	_, changed := s.ApplyInventory([]protocol.TabEntry{{ID: 1, Position: 3, Name: "scratch"}})
	if !changed {
		t.Error("position move reported no change")
	}
	if s.Get(1).Position != 3 {
		t.Errorf("Position = %d, want 3", s.Get(1).Position)
	}
}

func TestSetStatus(t *testing.T) {
	s := newStore(t, []string{"alpha"}, config.Sequential)
	tabs := []protocol.TabEntry{{ID: 1, Position: 0, Name: "Tab #1"}}
	s.ApplyInventory(tabs)
	confirm(t, s, tabs)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	changed, err := s.SetStatusByName("alpha", protocol.StatusWorking, now)
	if err != nil || !changed {
		t.Fatalf("SetStatusByName = (%v, %v), want (true, nil)", changed, err)
	}
	if s.Get(1).Status != protocol.StatusWorking {
		t.Errorf("Status = %q, want working", s.Get(1).Status)
	}
	if !s.Get(1).StatusUpdatedAt.Equal(now) {
		t.Errorf("StatusUpdatedAt = %v, want %v", s.Get(1).StatusUpdatedAt, now)
	}

	// Same status again: no change, no error.
	changed, err = s.SetStatusByName("alpha", protocol.StatusWorking, now.Add(time.Minute))
	if err != nil || changed {
		t.Errorf("repeat SetStatusByName = (%v, %v), want (false, nil)", changed, err)
	}

	if _, err := s.SetStatusByName("nobody", protocol.StatusIdle, now); err == nil {
		t.Error("SetStatusByName on an unknown name succeeded")
	}
	if _, err := s.SetStatusByID(99, protocol.StatusIdle, now); err == nil {
		t.Error("SetStatusByID on an unknown id succeeded")
	}

	// Status lookups are case-sensitive by name.
	if _, err := s.SetStatusByName("Alpha", protocol.StatusIdle, now); err == nil {
		t.Error("SetStatusByName matched case-insensitively")
	}
}

func TestFindByNameFoldsCaseForTell(t *testing.T) {
	s := newStore(t, nil, config.Sequential)
	s.ApplyInventory([]protocol.TabEntry{{ID: 1, Position: 0, Name: "Alice"}})

	if s.FindByName("alice") == nil {
		t.Error("FindByName did not fold case")
	}
	if s.FindByName("bob") != nil {
		t.Error("FindByName matched a missing name")
	}
}

func TestSnapshotSortedAndExcludesPending(t *testing.T) {
	s := newStore(t, []string{"alpha", "bravo"}, config.Sequential)
	s.ApplyInventory([]protocol.TabEntry{
		{ID: 5, Position: 1, Name: "Tab #5"},
		{ID: 2, Position: 0, Name: "Tab #2"},
	})

	snapshot := s.Snapshot()
	if len(snapshot) != 2 || snapshot[0].ID != 2 || snapshot[1].ID != 5 {
		t.Fatalf("snapshot = %v, want records sorted by ID", snapshot)
	}
	// Pending renames stay internal: the snapshot shows the current
	// (placeholder) names.
	for _, record := range snapshot {
		if record.Name != "Tab #5" && record.Name != "Tab #2" {
			t.Errorf("snapshot leaked a pending name: %q", record.Name)
		}
	}
}

func TestDigestChangesWithState(t *testing.T) {
	s := newStore(t, []string{"alpha"}, config.Sequential)
	before, err := s.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}

	s.ApplyInventory([]protocol.TabEntry{{ID: 1, Position: 0, Name: "Tab #1"}})
	after, err := s.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if before == after {
		t.Error("digest unchanged after a mutation")
	}

	again, err := s.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if after != again {
		t.Error("digest differs for identical state")
	}
}

func TestReplacePreservesHandoffState(t *testing.T) {
	s := newStore(t, []string{"alpha"}, config.Sequential)
	inherited := []protocol.TabRecord{
		{ID: 1, Position: 0, Name: "alice", Status: protocol.StatusWorking},
	}
	s.Replace(inherited)

	record := s.Get(1)
	if record == nil || record.Name != "alice" || record.Status != protocol.StatusWorking {
		t.Fatalf("record = %+v, want inherited alice/working", record)
	}

	snapshot := s.Snapshot()
	if len(snapshot) != 1 || snapshot[0] != inherited[0] {
		t.Errorf("Snapshot() = %v, want %v", snapshot, inherited)
	}
}
