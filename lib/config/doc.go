// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for crew binaries.
//
// Configuration is loaded from a single YAML file specified by:
//   - the CREW_CONFIG environment variable, or
//   - the --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This keeps
// configuration deterministic and auditable, with no hidden overrides.
// When neither source names a file, the built-in defaults apply.
package config
