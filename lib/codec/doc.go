// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides crew's standard CBOR encoding configuration.
//
// Crew uses two serialization formats with a clear boundary:
//
//   - CBOR for everything on the wire: bus envelopes, election
//     messages, state-sync snapshots, status updates.
//   - JSON only at the operator edge: format=json query output, the
//     Authority's event log, and hook settings files.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical snapshot always produces identical bytes. The store's
// broadcast path relies on this to hash a snapshot and skip redundant
// state-sync sends.
//
// Wire types carry `cbor` struct tags when they are CBOR-only, and
// `json` tags when they also appear in CLI output (fxamacker/cbor
// reads `json` tags as a fallback). Never both on the same field.
package codec
