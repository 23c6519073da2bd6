// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted for the config file
// path when no --config flag is given.
const EnvVar = "CREW_CONFIG"

// AllocationMode selects the name allocator policy.
type AllocationMode string

const (
	// Sequential advances a cursor through the pool on every
	// allocation; freed names are not revisited until the cursor
	// wraps around.
	Sequential AllocationMode = "sequential"
	// FillGaps always allocates the first pool name, in pool order,
	// not currently in use.
	FillGaps AllocationMode = "fill-gaps"
)

// defaultNames is the built-in allocation pool, used when the config
// file does not provide one.
var defaultNames = []string{
	"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf",
	"hotel", "india", "juliet", "kilo", "lima", "mike", "november",
	"oscar", "papa", "quebec", "romeo", "sierra", "tango", "uniform",
	"victor", "whiskey", "xray", "yankee", "zulu",
}

// Config is the master configuration for a crew peer.
type Config struct {
	// Names is the ordered allocation pool. Tabs receive these names
	// in pool order as they appear.
	Names []string `yaml:"names"`

	// Mode selects the allocation policy: "sequential" (default) or
	// "fill-gaps".
	Mode AllocationMode `yaml:"mode"`

	// PlaceholderPrefix is the prefix of the host's default tab label.
	// A tab named "<PlaceholderPrefix> #<N>" is considered unnamed and
	// eligible for pool allocation.
	PlaceholderPrefix string `yaml:"placeholder_prefix"`

	// ElectionTimeout is how long a peer waits for an Ack after
	// broadcasting a leader-ping before claiming authority.
	ElectionTimeout time.Duration `yaml:"election_timeout"`

	// HubSocket is the path of the hub's Unix domain socket.
	HubSocket string `yaml:"hub_socket"`

	// EventLog is the path of the Authority's append-only JSON-lines
	// event log. Empty disables event logging.
	EventLog string `yaml:"event_log"`

	// StatusIndicators overrides the indicator glyph shown for a
	// status. A key present with an empty value suppresses the
	// indicator for that status entirely; an absent key keeps the
	// built-in default.
	StatusIndicators map[string]string `yaml:"status_indicators"`

	// Tell configures cross-tab message delivery.
	Tell TellConfig `yaml:"tell"`
}

// TellConfig configures cross-tab message delivery.
type TellConfig struct {
	// Append is a template appended to every delivered message.
	// Substitutions: {from}, {to}, {message}, {id}.
	Append string `yaml:"append"`

	// Delay is the pause between writing the message text and the
	// trailing Enter keystroke, so they arrive as separate reads on
	// the receiving terminal.
	Delay time.Duration `yaml:"delay"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Names:             append([]string(nil), defaultNames...),
		Mode:              Sequential,
		PlaceholderPrefix: "Tab",
		ElectionTimeout:   300 * time.Millisecond,
		HubSocket:         "/tmp/crew-hub.sock",
		Tell: TellConfig{
			Append: "Reply by running: crew tell {from} \"your reply here\"",
			Delay:  250 * time.Millisecond,
		},
	}
}

// Load reads the config file at path, applying defaults for absent
// fields. An empty path falls back to the CREW_CONFIG environment
// variable; if that is also empty, the defaults are returned. There is
// no search-path discovery: configuration comes from exactly one
// place.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Mode {
	case Sequential, FillGaps:
	default:
		return fmt.Errorf("unknown allocation mode %q (want %q or %q)", c.Mode, Sequential, FillGaps)
	}
	if c.ElectionTimeout <= 0 {
		return fmt.Errorf("election_timeout must be positive, got %v", c.ElectionTimeout)
	}
	if c.PlaceholderPrefix == "" {
		return fmt.Errorf("placeholder_prefix must not be empty")
	}
	seen := make(map[string]bool, len(c.Names))
	for _, name := range c.Names {
		if name == "" {
			return fmt.Errorf("allocation pool contains an empty name")
		}
		if seen[name] {
			return fmt.Errorf("allocation pool contains %q twice", name)
		}
		seen[name] = true
	}
	return nil
}
