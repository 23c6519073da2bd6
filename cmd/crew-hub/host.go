// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crew-foundation/crew/bus"
	"github.com/crew-foundation/crew/protocol"
)

// host simulates the terminal host on top of the hub: it owns the tab
// inventory and the pane index, applies rename requests, surfaces
// pane writes, and rebroadcasts its snapshots so late-joining peers
// catch up.
type host struct {
	client   *bus.Client
	logger   *slog.Logger
	prefix   string
	interval time.Duration

	tabs  []hostTab
	panes map[uint64]int
}

type hostTab struct {
	id   uint64
	name string
}

// paneBase offsets pane handles from tab IDs so the two namespaces
// never collide in logs.
const paneBase = 100

func newHost(client *bus.Client, prefix string, tabCount int, interval time.Duration, logger *slog.Logger) *host {
	h := &host{
		client:   client,
		logger:   logger,
		prefix:   prefix,
		interval: interval,
		panes:    make(map[uint64]int),
	}
	for i := 0; i < tabCount; i++ {
		h.addTab()
	}
	return h
}

// addTab appends a tab with the default placeholder label.
func (h *host) addTab() {
	id := uint64(len(h.tabs) + 1)
	h.tabs = append(h.tabs, hostTab{
		id:   id,
		name: fmt.Sprintf("%s #%d", h.prefix, id),
	})
	h.panes[paneBase+id] = len(h.tabs) - 1
}

// run processes rename and pane-write requests and rebroadcasts the
// inventory on every change and on a steady interval.
func (h *host) run(ctx context.Context) error {
	h.broadcast()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.broadcast()
		case inbound, ok := <-h.client.Inbox():
			if !ok {
				return fmt.Errorf("hub connection closed")
			}
			h.handle(inbound)
		}
	}
}

func (h *host) handle(inbound bus.Inbound) {
	switch message := inbound.Message.(type) {
	case protocol.Rename:
		for i := range h.tabs {
			if h.tabs[i].id == message.TabID {
				h.logger.Info("renaming tab",
					"tab_id", message.TabID, "old", h.tabs[i].name, "new", message.Name)
				h.tabs[i].name = message.Name
				h.broadcast()
				return
			}
		}
		h.logger.Warn("rename for unknown tab", "tab_id", message.TabID)

	case protocol.WritePane:
		if _, ok := h.panes[message.Pane]; !ok {
			h.logger.Warn("write to unknown pane", "pane", message.Pane)
			return
		}
		h.logger.Info("pane write",
			"pane", message.Pane, "bytes", len(message.Data), "data", string(message.Data))
	}
}

// broadcast publishes the current inventory and pane index.
func (h *host) broadcast() {
	entries := make([]protocol.TabEntry, len(h.tabs))
	for i, tab := range h.tabs {
		entries[i] = protocol.TabEntry{ID: tab.id, Position: i, Name: tab.name}
	}
	if err := h.client.Publish(protocol.Inventory{Tabs: entries}); err != nil {
		h.logger.Error("publishing inventory", "error", err)
	}
	panes := make(map[uint64]int, len(h.panes))
	for pane, position := range h.panes {
		panes[pane] = position
	}
	if err := h.client.Publish(protocol.PaneIndex{Panes: panes}); err != nil {
		h.logger.Error("publishing pane index", "error", err)
	}
}
