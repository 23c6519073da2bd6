// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/crew-foundation/crew/protocol"
	"github.com/crew-foundation/crew/store"
)

// External ingest: status updates, read-only queries, and cross-tab
// tell delivery. Authority-only; callers have already checked the
// role. Errors never mutate state and are routed back to the
// requester as diagnostic replies.

func (p *Peer) handleStatusUpdate(requester uint64, update protocol.StatusUpdate) []Effect {
	if !update.State.Valid() {
		return p.replyError(requester, fmt.Sprintf("unrecognized status %q", update.State))
	}

	now := p.clock.Now()

	var record *store.Record
	via := "name"
	if update.Pane != nil {
		via = "pane"
		position, ok := p.paneIndex[*update.Pane]
		if !ok {
			p.logStatusError(update, "pane not found", via)
			return p.replyError(requester, fmt.Sprintf("pane %d not found in any tab", *update.Pane))
		}
		record = p.store.FindByPosition(position)
		if record == nil {
			p.logStatusError(update, "unmapped tab position", via)
			return p.replyError(requester, fmt.Sprintf("no tab at position %d", position))
		}
	} else {
		record = p.store.FindByExactName(update.Name)
		if record == nil {
			p.logStatusError(update, "tab not found", via)
			return p.replyError(requester, fmt.Sprintf("tab %q not found", update.Name))
		}
	}

	old := record.Status
	changed, err := p.store.SetStatusByID(record.ID, update.State, now)
	if err != nil {
		return p.replyError(requester, err.Error())
	}
	if p.events != nil {
		p.events.Info("status",
			"name", record.Name, "old", old, "new", update.State,
			"changed", changed, "via", via)
	}
	if !changed {
		return nil
	}
	return p.broadcastState()
}

func (p *Peer) handleStatusQuery(requester uint64, query protocol.StatusQuery) []Effect {
	switch query.Kind {
	case protocol.QueryHelp:
		return []Effect{EffectReply{To: requester, Text: helpText}}
	case protocol.QueryList:
		return []Effect{EffectReply{To: requester, Text: p.renderList(query.JSON)}}
	case protocol.QueryState:
		return []Effect{EffectReply{To: requester, Text: p.renderState()}}
	default:
		return p.replyError(requester, "unknown query")
	}
}

func (p *Peer) renderList(wantJSON bool) string {
	snapshot := p.store.Snapshot()
	if wantJSON {
		data, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return "[]\n"
		}
		return string(data) + "\n"
	}

	var out strings.Builder
	out.WriteString("ID\tName\tStatus\n")
	out.WriteString("--\t----\t------\n")
	for _, record := range snapshot {
		indicator := p.indicators[record.Status]
		if indicator != "" {
			fmt.Fprintf(&out, "%d\t%s\t%s %s\n", record.ID, record.Name, indicator, record.Status)
		} else {
			fmt.Fprintf(&out, "%d\t%s\t%s\n", record.ID, record.Name, record.Status)
		}
	}
	if len(snapshot) == 0 {
		out.WriteString("(no tabs)\n")
	}
	return out.String()
}

// stateEntry is the detailed per-record shape of the state query,
// consumed by coordinating agents.
type stateEntry struct {
	ID              uint64              `json:"id"`
	Position        int                 `json:"pos"`
	Name            string              `json:"name"`
	UserOrigin      bool                `json:"user_origin"`
	Status          protocol.Status     `json:"status"`
	StatusUpdatedAt *time.Time          `json:"status_updated_at"`
	LastMessageTo   *store.MessageStamp `json:"last_msg_to"`
	LastMessageFrom *store.MessageStamp `json:"last_msg_from"`
	Pane            *uint64             `json:"pane"`
}

func (p *Peer) renderState() string {
	records := p.store.Records()
	entries := make([]stateEntry, 0, len(records))
	for _, record := range records {
		entry := stateEntry{
			ID:              record.ID,
			Position:        record.Position,
			Name:            record.Name,
			UserOrigin:      record.UserOrigin,
			Status:          record.Status,
			LastMessageTo:   record.LastMessageTo,
			LastMessageFrom: record.LastMessageFrom,
		}
		if !record.StatusUpdatedAt.IsZero() {
			at := record.StatusUpdatedAt
			entry.StatusUpdatedAt = &at
		}
		if pane, ok := p.paneForPosition(record.Position); ok {
			entry.Pane = &pane
		}
		entries = append(entries, entry)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "[]\n"
	}
	return string(data) + "\n"
}

func (p *Peer) handleTell(requester uint64, tell protocol.Tell) []Effect {
	if tell.To == "" {
		return p.replyError(requester, "missing destination name")
	}
	if tell.Message == "" {
		return p.replyError(requester, "missing message")
	}

	dest := p.store.FindByName(tell.To)
	if dest == nil {
		return p.replyError(requester, fmt.Sprintf("tab %q not found", tell.To))
	}
	pane, ok := p.paneForPosition(dest.Position)
	if !ok {
		return p.replyError(requester, fmt.Sprintf("no terminal pane found in tab %q", dest.Name))
	}

	sender := p.resolveSender(tell.SenderPane)
	id := p.store.NextMessageID()
	now := p.clock.Now()

	appended := strings.NewReplacer(
		"{from}", sender,
		"{to}", dest.Name,
		"{message}", tell.Message,
		"{id}", fmt.Sprintf("%d", id),
	).Replace(p.cfg.Tell.Append)
	formatted := fmt.Sprintf("\n[CREW MESSAGE #%d from %s; to: %s] %s\n%s\n",
		id, sender, dest.Name, tell.Message, appended)

	dest.LastMessageTo = &store.MessageStamp{ID: id, At: now}
	if from := p.store.FindByExactName(sender); from != nil {
		from.LastMessageFrom = &store.MessageStamp{ID: id, At: now}
	}

	if p.events != nil {
		p.events.Info("msg",
			"id", id, "from", sender, "to", dest.Name,
			"pane", pane, "msg", tell.Message)
	}
	p.logger.Info("delivered message",
		"id", id, "from", sender, "to", dest.Name, "pane", pane)

	p.pendingEnter = &pane
	return []Effect{
		EffectWritePane{Pane: pane, Data: []byte(formatted)},
		EffectStartTimer{Kind: TimerTellEnter, Timeout: p.cfg.Tell.Delay},
		EffectReply{To: requester, Text: fmt.Sprintf("msg#%d sent to %s on pane %d\n", id, dest.Name, pane)},
	}
}

// resolveSender maps the sending pane to its tab's display name, with
// fallbacks when the pane is unknown.
func (p *Peer) resolveSender(pane uint64) string {
	if pane == 0 {
		return "unknown"
	}
	if position, ok := p.paneIndex[pane]; ok {
		if record := p.store.FindByPosition(position); record != nil {
			return record.Name
		}
	}
	return fmt.Sprintf("pane %d", pane)
}

func (p *Peer) replyError(requester uint64, text string) []Effect {
	p.logger.Warn("rejected request", "error", text)
	return []Effect{EffectReply{To: requester, Text: "error: " + text + "\n"}}
}

func (p *Peer) logStatusError(update protocol.StatusUpdate, problem, via string) {
	if p.events == nil {
		return
	}
	attrs := []any{"new", update.State, "error", problem, "via", via}
	if update.Pane != nil {
		attrs = append(attrs, "pane", *update.Pane)
	} else {
		attrs = append(attrs, "name", update.Name)
	}
	p.events.Info("status", attrs...)
}

const helpText = `crew status - update tab activity status

Usage:
  crew status --pane PANE_ID STATE
  crew status --name NAME STATE

States:
  unknown   🫥  No status / agent exited
  idle      🥱  Agent idle
  working   🤖  Agent working
  question  🙋  Agent has a question
  sleeping  😴  Agent sleeping/paused
  watching  👀  Agent watching/monitoring
  attention 🔔  Needs attention

Commands:
  crew list            List all tabs
  crew list --json     Output in JSON format
  crew state           Detailed per-tab state (pane info, msg tracking)
  crew tell NAME MSG   Send a message to a named tab

Config (crew.yaml, status_indicators):
  unknown: ""          Hide indicator when unknown
  working: "WRK"       Custom text shown instead of the glyph
`
