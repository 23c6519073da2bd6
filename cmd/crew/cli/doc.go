// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the crew command-line framework: the command
// tree, hub sessions for one-shot requests, and the agent hook
// installer.
package cli
