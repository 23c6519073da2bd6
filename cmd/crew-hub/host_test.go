// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/crew-foundation/crew/bus"
	"github.com/crew-foundation/crew/lib/testutil"
	"github.com/crew-foundation/crew/protocol"
)

func startHostFixture(t *testing.T) (*host, *bus.Client) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	socketPath := filepath.Join(testutil.SocketDir(t), "hub.sock")

	hub := &bus.Hub{SocketPath: socketPath, Logger: logger}
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("starting hub: %v", err)
	}
	t.Cleanup(hub.Stop)

	hostClient, err := bus.Dial(context.Background(), socketPath, logger)
	if err != nil {
		t.Fatalf("dialing as host: %v", err)
	}
	t.Cleanup(func() { hostClient.Close() })

	peerClient, err := bus.Dial(context.Background(), socketPath, logger)
	if err != nil {
		t.Fatalf("dialing as peer: %v", err)
	}
	t.Cleanup(func() { peerClient.Close() })

	h := newHost(hostClient, "Tab", 3, time.Hour, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.run(ctx)

	return h, peerClient
}

// awaitInventory drains the peer's inbox until the next inventory
// broadcast arrives.
func awaitInventory(t *testing.T, peerClient *bus.Client) protocol.Inventory {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case inbound, ok := <-peerClient.Inbox():
			if !ok {
				t.Fatal("peer inbox closed")
			}
			if inventory, isInventory := inbound.Message.(protocol.Inventory); isInventory {
				return inventory
			}
		case <-deadline:
			t.Fatal("timed out waiting for inventory broadcast")
		}
	}
}

func TestHostBroadcastsInventoryAndPaneIndex(t *testing.T) {
	_, peerClient := startHostFixture(t)

	var inventory protocol.Inventory
	var paneIndex protocol.PaneIndex
	haveInventory, havePanes := false, false
	deadline := time.After(5 * time.Second)
	for !haveInventory || !havePanes {
		select {
		case inbound := <-peerClient.Inbox():
			switch message := inbound.Message.(type) {
			case protocol.Inventory:
				inventory, haveInventory = message, true
			case protocol.PaneIndex:
				paneIndex, havePanes = message, true
			}
		case <-deadline:
			t.Fatal("timed out waiting for initial broadcast")
		}
	}

	if len(inventory.Tabs) != 3 {
		t.Fatalf("inventory has %d tabs, want 3", len(inventory.Tabs))
	}
	for i, tab := range inventory.Tabs {
		if tab.Position != i {
			t.Errorf("tab %d at position %d, want %d", tab.ID, tab.Position, i)
		}
	}
	if inventory.Tabs[0].Name != "Tab #1" {
		t.Errorf("first tab named %q, want %q", inventory.Tabs[0].Name, "Tab #1")
	}
	if len(paneIndex.Panes) != 3 {
		t.Fatalf("pane index has %d panes, want 3", len(paneIndex.Panes))
	}
	if position, ok := paneIndex.Panes[paneBase+1]; !ok || position != 0 {
		t.Errorf("pane %d at position %d (present %v), want 0", paneBase+1, position, ok)
	}
}

func TestHostAppliesRenameAndRebroadcasts(t *testing.T) {
	_, peerClient := startHostFixture(t)

	awaitInventory(t, peerClient)
	if err := peerClient.Publish(protocol.Rename{TabID: 2, Name: "alice"}); err != nil {
		t.Fatalf("publishing rename: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case inbound := <-peerClient.Inbox():
			inventory, isInventory := inbound.Message.(protocol.Inventory)
			if !isInventory {
				continue
			}
			for _, tab := range inventory.Tabs {
				if tab.ID == 2 && tab.Name == "alice" {
					return
				}
			}
		case <-deadline:
			t.Fatal("rename never reflected in a broadcast")
		}
	}
}
