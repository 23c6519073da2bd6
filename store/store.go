// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/crew-foundation/crew/lib/codec"
	"github.com/crew-foundation/crew/lib/config"
	"github.com/crew-foundation/crew/protocol"
)

// MessageStamp records the last tell message touching a record.
type MessageStamp struct {
	ID uint32    `json:"id"`
	At time.Time `json:"at"`
}

// Record is one tracked tab. Only the Authority holds Records;
// everything a Follower needs travels as protocol.TabRecord.
type Record struct {
	ID       uint64
	Position int
	Name     string

	// PendingRename is the name issued to the host but not yet
	// observed back in an inventory snapshot. Empty when no rename is
	// in flight. Never serialized.
	PendingRename string

	// UserOrigin marks names that did not come from the pool. The
	// allocator never touches these records and their names never
	// return to the pool.
	UserOrigin bool

	Status protocol.Status

	// StatusUpdatedAt is when Status last changed. Zero when the
	// status has never been set explicitly.
	StatusUpdatedAt time.Time

	// LastMessageTo and LastMessageFrom track tell traffic for the
	// detailed state query.
	LastMessageTo   *MessageStamp
	LastMessageFrom *MessageStamp
}

// Options configures a Store.
type Options struct {
	// Pool is the ordered name allocation pool.
	Pool []string

	// Mode selects the allocation policy.
	Mode config.AllocationMode

	// PlaceholderPrefix identifies the host's default tab labels:
	// "<PlaceholderPrefix> #<N>".
	PlaceholderPrefix string

	// Logger receives structured diagnostics. Nil means slog.Default.
	Logger *slog.Logger
}

// Store is the Authority's record collection plus the allocator
// cursor. All access is from the single-threaded peer event loop, so
// there is no locking.
type Store struct {
	logger      *slog.Logger
	pool        []string
	mode        config.AllocationMode
	placeholder *regexp.Regexp
	prefix      string

	records map[uint64]*Record

	// cursor is the pool index of the last sequential allocation, or
	// -1 before the first one.
	cursor int

	nextMessageID uint32
}

// New creates an empty Store.
func New(options Options) *Store {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:      logger,
		pool:        options.Pool,
		mode:        options.Mode,
		prefix:      options.PlaceholderPrefix,
		placeholder: regexp.MustCompile(`^` + regexp.QuoteMeta(options.PlaceholderPrefix) + ` #(\d+)$`),
		records:     make(map[uint64]*Record),
		cursor:      -1,
	}
}

// Len returns the number of tracked records.
func (s *Store) Len() int { return len(s.records) }

// Get returns the record with the given ID, or nil.
func (s *Store) Get(id uint64) *Record { return s.records[id] }

// ApplyInventory reconciles the store against a host inventory
// snapshot. It returns the rename actions to issue and whether any
// record changed (creation, confirmation, user rename, move, or
// removal).
//
// The cycle per tab:
//
//   - placeholder label, unknown ID: allocate a name, create the
//     record with the rename pending. Pool exhaustion leaves the tab
//     untracked so a later snapshot retries.
//   - placeholder label, rename pending: the host has not processed
//     the rename yet. Wait; issuing it again would loop.
//   - named label matching the pending rename: confirmation. Adopt
//     the name, clear the pending marker.
//   - named label, no pending match: the name came from the user (or
//     was present from the start). Track it as user-origin and never
//     touch it again.
//
// Tabs absent from the snapshot are dropped; pool-origin names become
// allocatable again under fill-gaps.
func (s *Store) ApplyInventory(tabs []protocol.TabEntry) (renames []protocol.Rename, changed bool) {
	seen := make(map[uint64]bool, len(tabs))

	for _, tab := range tabs {
		seen[tab.ID] = true
		record := s.records[tab.ID]

		if record == nil {
			if rename, created := s.admit(tab); created {
				changed = true
				if rename != nil {
					renames = append(renames, *rename)
				}
			}
			continue
		}

		if record.PendingRename != "" {
			if tab.Name == record.PendingRename {
				s.logger.Info("rename confirmed",
					"tab_id", tab.ID, "name", tab.Name, "position", tab.Position)
				record.Name = tab.Name
				record.PendingRename = ""
				record.Position = tab.Position
				changed = true
			}
			// Not reflected yet: leave the record alone this round.
		} else if record.Name != tab.Name {
			// Renamed outside the allocator. The name is the user's
			// now.
			s.logger.Info("tab renamed by user",
				"tab_id", tab.ID, "old", record.Name, "new", tab.Name)
			record.Name = tab.Name
			record.UserOrigin = true
			changed = true
		}

		if record.Position != tab.Position {
			record.Position = tab.Position
			changed = true
		}
	}

	for id, record := range s.records {
		if seen[id] {
			continue
		}
		delete(s.records, id)
		changed = true
		if record.UserOrigin {
			s.logger.Info("tab closed", "tab_id", id, "name", record.Name, "user_origin", true)
		} else {
			s.logger.Info("tab closed, name returns to pool", "tab_id", id, "name", record.Name)
		}
	}

	return renames, changed
}

// admit handles a tab the store has never seen. Returns the rename to
// issue (nil for user-origin tabs) and whether a record was created.
func (s *Store) admit(tab protocol.TabEntry) (*protocol.Rename, bool) {
	if match := s.placeholder.FindStringSubmatch(tab.Name); match != nil {
		// The placeholder number is the host's stable identifier for
		// the tab. It normally agrees with the feed's ID field; a
		// disagreement means the label was forged or recycled, which
		// is worth a trace but not a different outcome.
		if number, err := strconv.ParseUint(match[1], 10, 64); err != nil || number != tab.ID {
			s.logger.Warn("placeholder number disagrees with tab id",
				"tab_id", tab.ID, "label", tab.Name)
		}
		name, ok := s.allocate()
		if !ok {
			s.logger.Warn("name pool exhausted, leaving tab unnamed", "tab_id", tab.ID)
			return nil, false
		}
		s.logger.Info("allocating name for new tab",
			"tab_id", tab.ID, "placeholder", tab.Name, "name", name)
		s.records[tab.ID] = &Record{
			ID:            tab.ID,
			Position:      tab.Position,
			Name:          tab.Name,
			PendingRename: name,
			Status:        protocol.StatusUnknown,
		}
		return &protocol.Rename{TabID: tab.ID, Name: name}, true
	}

	// Anything that is not a well-formed placeholder is treated as a
	// name of the user's choosing. That includes labels that carry the
	// placeholder prefix but fail the numeric parse.
	if strings.HasPrefix(tab.Name, s.prefix+" #") {
		s.logger.Warn("placeholder label failed to parse, treating as user-named",
			"tab_id", tab.ID, "name", tab.Name)
	} else {
		s.logger.Info("new tab with user name", "tab_id", tab.ID, "name", tab.Name)
	}
	s.records[tab.ID] = &Record{
		ID:         tab.ID,
		Position:   tab.Position,
		Name:       tab.Name,
		UserOrigin: true,
		Status:     protocol.StatusUnknown,
	}
	return nil, true
}

// SetStatusByID updates one record's status. Returns whether the
// status actually changed.
func (s *Store) SetStatusByID(id uint64, status protocol.Status, now time.Time) (bool, error) {
	record := s.records[id]
	if record == nil {
		return false, fmt.Errorf("store: no tab with id %d", id)
	}
	return s.setStatus(record, status, now), nil
}

// SetStatusByName updates the status of the record with the given
// display name. The match is exact and case-sensitive.
func (s *Store) SetStatusByName(name string, status protocol.Status, now time.Time) (bool, error) {
	record := s.findByName(name, false)
	if record == nil {
		return false, fmt.Errorf("store: no tab named %q", name)
	}
	return s.setStatus(record, status, now), nil
}

func (s *Store) setStatus(record *Record, status protocol.Status, now time.Time) bool {
	if record.Status == status {
		return false
	}
	s.logger.Info("status changed",
		"tab_id", record.ID, "name", record.Name,
		"old", record.Status, "new", status)
	record.Status = status
	record.StatusUpdatedAt = now
	return true
}

// FindByPosition returns the record occupying the given layout
// position, or nil.
func (s *Store) FindByPosition(position int) *Record {
	for _, record := range s.records {
		if record.Position == position {
			return record
		}
	}
	return nil
}

// FindByName returns the record with the given display name matched
// case-insensitively (tell addressing), or nil.
func (s *Store) FindByName(name string) *Record {
	return s.findByName(name, true)
}

// FindByExactName is FindByName with a case-sensitive match.
func (s *Store) FindByExactName(name string) *Record {
	return s.findByName(name, false)
}

func (s *Store) findByName(name string, fold bool) *Record {
	for _, record := range s.records {
		if record.Name == name {
			return record
		}
		if fold && strings.EqualFold(record.Name, name) {
			return record
		}
	}
	return nil
}

// NextMessageID returns a fresh tell message ID. IDs are monotonic
// within one Authority term.
func (s *Store) NextMessageID() uint32 {
	s.nextMessageID++
	return s.nextMessageID
}

// Snapshot returns the Follower-visible projection of every record,
// sorted by ID. PendingRename stays Authority-internal.
func (s *Store) Snapshot() []protocol.TabRecord {
	snapshot := make([]protocol.TabRecord, 0, len(s.records))
	for _, record := range s.records {
		snapshot = append(snapshot, protocol.TabRecord{
			ID:         record.ID,
			Position:   record.Position,
			Name:       record.Name,
			UserOrigin: record.UserOrigin,
			Status:     record.Status,
		})
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return snapshot
}

// Records returns the live records sorted by position, for the
// detailed state query.
func (s *Store) Records() []*Record {
	records := make([]*Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Position < records[j].Position })
	return records
}

// Digest hashes the deterministic encoding of the current snapshot.
// The broadcast path compares digests to skip state-sync sends that
// would carry identical bytes.
func (s *Store) Digest() ([32]byte, error) {
	data, err := codec.Marshal(s.Snapshot())
	if err != nil {
		return [32]byte{}, fmt.Errorf("store: encoding snapshot for digest: %w", err)
	}
	return blake3.Sum256(data), nil
}

// Replace reinitializes the store from an inherited snapshot (leader
// handoff). The allocator cursor restarts; sequential allocation
// resumes from the top of the pool but still skips names in use.
func (s *Store) Replace(records []protocol.TabRecord) {
	s.records = make(map[uint64]*Record, len(records))
	for _, record := range records {
		s.records[record.ID] = &Record{
			ID:         record.ID,
			Position:   record.Position,
			Name:       record.Name,
			UserOrigin: record.UserOrigin,
			Status:     record.Status,
		}
	}
	s.cursor = -1
}

// Clear drops every record (authority yielded to a higher instance).
func (s *Store) Clear() {
	s.records = make(map[uint64]*Record)
	s.cursor = -1
}
