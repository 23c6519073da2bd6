// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "fmt"

// Status is a tab's activity status, reported out-of-band by the agent
// running inside the tab. The vocabulary is closed and case-sensitive;
// anything else is rejected at the parse boundary.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusIdle      Status = "idle"
	StatusWorking   Status = "working"
	StatusQuestion  Status = "question"
	StatusSleeping  Status = "sleeping"
	StatusWatching  Status = "watching"
	StatusAttention Status = "attention"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{
	StatusUnknown,
	StatusIdle,
	StatusWorking,
	StatusQuestion,
	StatusSleeping,
	StatusWatching,
	StatusAttention,
}

// defaultIndicators maps each status to its built-in indicator glyph.
var defaultIndicators = map[Status]string{
	StatusUnknown:   "🫥",
	StatusIdle:      "🥱",
	StatusWorking:   "🤖",
	StatusQuestion:  "🙋",
	StatusSleeping:  "😴",
	StatusWatching:  "👀",
	StatusAttention: "🔔",
}

// ParseStatus validates a status tag. Unrecognized tags are rejected,
// never coerced.
func ParseStatus(tag string) (Status, error) {
	s := Status(tag)
	if !s.Valid() {
		return "", fmt.Errorf("protocol: unrecognized status %q", tag)
	}
	return s, nil
}

// Valid reports whether s is a member of the closed status vocabulary.
func (s Status) Valid() bool {
	_, ok := defaultIndicators[s]
	return ok
}

// Indicator returns the built-in indicator glyph for s.
func (s Status) Indicator() string {
	return defaultIndicators[s]
}

// MarshalText implements encoding.TextMarshaler, so a Status encodes
// as its tag in both CBOR and JSON.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("protocol: cannot encode invalid status %q", string(s))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unrecognized tags
// fail the decode of the whole containing message.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
