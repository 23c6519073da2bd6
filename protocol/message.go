// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/crew-foundation/crew/lib/codec"
)

// Message names. The hub routes envelopes purely by name; peers decode
// the payload according to it.
const (
	// Election family, peer to peer group.
	NameLeaderPing   = "leader-ping"
	NameLeaderAck    = "leader-ack"
	NameLeaderClaim  = "leader-claim"
	NameLeaderResign = "leader-resign"

	// Authority to peer group: full snapshot on every change.
	NameStateSync = "state-sync"

	// External to Authority. Textual key=value payloads so shell
	// callers can produce them directly.
	NameStatusUpdate = "status-update"
	NameStatusQuery  = "status-query"
	NameTell         = "tell"

	// Host feed, host to peers.
	NameInventory = "inventory"
	NamePaneIndex = "pane-index"

	// Peer to host actions.
	NameRename    = "rename"
	NameWritePane = "write-pane"

	// Hub-routed reply to an external requester.
	NameReply = "reply"
)

// ErrUnknownMessage is returned by Decode for names outside the
// protocol vocabulary.
var ErrUnknownMessage = errors.New("protocol: unknown message name")

// Message is the closed union of everything that can arrive at a peer
// or be emitted by one. Exactly the types in this package implement
// it.
type Message interface {
	// MessageName returns the wire name this payload travels under.
	MessageName() string

	isMessage()
}

// Ping announces candidacy: a peer entering an election asks whether
// an Authority already exists.
type Ping struct {
	InstanceID uint64 `cbor:"instance_id"`
}

// Ack is the Authority's answer to a Ping. It carries the full record
// snapshot so the new Follower can render immediately.
type Ack struct {
	InstanceID uint64      `cbor:"instance_id"`
	Snapshot   []TabRecord `cbor:"state"`
}

// Claim declares the sender Authority after an unanswered Ping.
type Claim struct {
	InstanceID uint64 `cbor:"instance_id"`
}

// Resign is the orderly handoff an Authority broadcasts before
// terminating. Survivors inherit the snapshot into the next election.
type Resign struct {
	InstanceID uint64      `cbor:"instance_id"`
	Snapshot   []TabRecord `cbor:"state"`
}

// StateSync is the Authority's full-state broadcast. Always the whole
// collection, never a delta, so a dropped message heals on the next
// change.
type StateSync struct {
	Records []TabRecord `cbor:"tabs"`
}

// StatusUpdate mutates one record's status, addressed either by pane
// handle or by display name. Exactly one of Pane and Name is set.
type StatusUpdate struct {
	// Pane is the terminal pane handle, when addressing by pane.
	Pane *uint64

	// Name is the display name, when addressing by name.
	Name string

	// State is the requested status tag, already validated.
	State Status
}

// QueryKind selects a read-only query operation.
type QueryKind int

const (
	QueryList QueryKind = iota
	QueryHelp
	QueryState
)

// StatusQuery is a read-only introspection request.
type StatusQuery struct {
	Kind QueryKind

	// JSON requests machine-readable output (format=json).
	JSON bool
}

// Tell routes a text message to a named tab's terminal.
type Tell struct {
	// To is the destination tab's display name, matched
	// case-insensitively.
	To string `cbor:"to"`

	// SenderPane is the pane handle of the sending terminal, used to
	// resolve the sender's own tab name. Zero when unknown.
	SenderPane uint64 `cbor:"sender_pane,omitempty"`

	// Message is the text to deliver.
	Message string `cbor:"message"`
}

// Inventory is the host's periodic snapshot of all tabs.
type Inventory struct {
	Tabs []TabEntry `cbor:"tabs"`
}

// TabEntry is one tab as reported by the host.
type TabEntry struct {
	ID       uint64 `cbor:"id"`
	Position int    `cbor:"position"`
	Name     string `cbor:"name"`
}

// PaneIndex is the host's pane-handle to tab-position lookup table,
// refreshed independently of the inventory.
type PaneIndex struct {
	Panes map[uint64]int `cbor:"panes"`
}

// Rename asks the host to rename a tab by its stable ID.
type Rename struct {
	TabID uint64 `cbor:"tab_id"`
	Name  string `cbor:"name"`
}

// WritePane asks the host to write raw bytes to a terminal pane.
type WritePane struct {
	Pane uint64 `cbor:"pane"`
	Data []byte `cbor:"data"`
}

// Reply is diagnostic or query output routed back to an external
// requester.
type Reply struct {
	Text string `cbor:"text"`
}

func (Ping) MessageName() string         { return NameLeaderPing }
func (Ack) MessageName() string          { return NameLeaderAck }
func (Claim) MessageName() string        { return NameLeaderClaim }
func (Resign) MessageName() string       { return NameLeaderResign }
func (StateSync) MessageName() string    { return NameStateSync }
func (StatusUpdate) MessageName() string { return NameStatusUpdate }
func (StatusQuery) MessageName() string  { return NameStatusQuery }
func (Tell) MessageName() string         { return NameTell }
func (Inventory) MessageName() string    { return NameInventory }
func (PaneIndex) MessageName() string    { return NamePaneIndex }
func (Rename) MessageName() string       { return NameRename }
func (WritePane) MessageName() string    { return NameWritePane }
func (Reply) MessageName() string        { return NameReply }

func (Ping) isMessage()         {}
func (Ack) isMessage()          {}
func (Claim) isMessage()        {}
func (Resign) isMessage()       {}
func (StateSync) isMessage()    {}
func (StatusUpdate) isMessage() {}
func (StatusQuery) isMessage()  {}
func (Tell) isMessage()         {}
func (Inventory) isMessage()    {}
func (PaneIndex) isMessage()    {}
func (Rename) isMessage()       {}
func (WritePane) isMessage()    {}
func (Reply) isMessage()        {}

// Decode turns a (name, payload) pair from the wire into exactly one
// Message variant. All validation happens here: downstream code never
// sees a malformed payload or an out-of-vocabulary status tag.
func Decode(name string, payload []byte) (Message, error) {
	switch name {
	case NameLeaderPing:
		return decodeCBOR[Ping](name, payload)
	case NameLeaderAck:
		return decodeCBOR[Ack](name, payload)
	case NameLeaderClaim:
		return decodeCBOR[Claim](name, payload)
	case NameLeaderResign:
		return decodeCBOR[Resign](name, payload)
	case NameStateSync:
		return decodeCBOR[StateSync](name, payload)
	case NameTell:
		return decodeCBOR[Tell](name, payload)
	case NameInventory:
		return decodeCBOR[Inventory](name, payload)
	case NamePaneIndex:
		return decodeCBOR[PaneIndex](name, payload)
	case NameRename:
		return decodeCBOR[Rename](name, payload)
	case NameWritePane:
		return decodeCBOR[WritePane](name, payload)
	case NameReply:
		return decodeCBOR[Reply](name, payload)
	case NameStatusUpdate:
		return decodeStatusUpdate(payload)
	case NameStatusQuery:
		return decodeStatusQuery(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, name)
	}
}

// Encode produces the wire (name, payload) pair for a Message. Inverse
// of Decode for every variant.
func Encode(message Message) (string, []byte, error) {
	name := message.MessageName()
	switch m := message.(type) {
	case StatusUpdate:
		return name, []byte(m.args()), nil
	case StatusQuery:
		return name, []byte(m.args()), nil
	default:
		payload, err := codec.Marshal(message)
		if err != nil {
			return "", nil, fmt.Errorf("protocol: encoding %s: %w", name, err)
		}
		return name, payload, nil
	}
}

func decodeCBOR[T Message](name string, payload []byte) (Message, error) {
	var m T
	if err := codec.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("protocol: decoding %s: %w", name, err)
	}
	return m, nil
}

// ParseArgs parses the textual key=value argument form used by the
// external message family: comma-separated entries, each "key=value"
// or a bare "key" (mapped to the empty string).
func ParseArgs(text string) map[string]string {
	args := make(map[string]string)
	for _, entry := range strings.Split(text, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, _ := strings.Cut(entry, "=")
		args[key] = value
	}
	return args
}

func formatArgs(args map[string]string) string {
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if args[key] == "" {
			parts = append(parts, key)
		} else {
			parts = append(parts, key+"="+args[key])
		}
	}
	return strings.Join(parts, ",")
}

func decodeStatusUpdate(payload []byte) (Message, error) {
	args := ParseArgs(string(payload))

	state, ok := args["state"]
	if !ok {
		return nil, fmt.Errorf("protocol: status-update missing state argument")
	}
	status, err := ParseStatus(state)
	if err != nil {
		return nil, err
	}

	update := StatusUpdate{State: status}
	paneArg, hasPane := args["pane"]
	nameArg, hasName := args["name"]
	switch {
	case hasPane:
		pane, err := strconv.ParseUint(paneArg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("protocol: status-update pane %q is not numeric", paneArg)
		}
		update.Pane = &pane
	case hasName && nameArg != "":
		update.Name = nameArg
	default:
		return nil, fmt.Errorf("protocol: status-update needs pane=<id> or name=<name>")
	}
	return update, nil
}

func decodeStatusQuery(payload []byte) (Message, error) {
	args := ParseArgs(string(payload))

	query := StatusQuery{JSON: args["format"] == "json"}
	switch {
	case hasKey(args, "help"):
		query.Kind = QueryHelp
	case hasKey(args, "list"), hasKey(args, "ls"):
		query.Kind = QueryList
	case hasKey(args, "state_query"):
		query.Kind = QueryState
	default:
		return nil, fmt.Errorf("protocol: status-query wants list, help, or state_query (got %q)", string(payload))
	}
	return query, nil
}

func hasKey(args map[string]string, key string) bool {
	_, ok := args[key]
	return ok
}

func (m StatusUpdate) args() string {
	args := map[string]string{"state": string(m.State)}
	if m.Pane != nil {
		args["pane"] = strconv.FormatUint(*m.Pane, 10)
	} else if m.Name != "" {
		args["name"] = m.Name
	}
	return formatArgs(args)
}

func (m StatusQuery) args() string {
	args := map[string]string{}
	switch m.Kind {
	case QueryHelp:
		args["help"] = ""
	case QueryList:
		args["list"] = ""
	case QueryState:
		args["state_query"] = ""
	}
	if m.JSON {
		args["format"] = "json"
	}
	return formatArgs(args)
}
