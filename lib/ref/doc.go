// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated value types for Matrix identifiers.
//
// Raw identifier strings from the homeserver (user IDs, room IDs,
// event IDs) are parsed into these types at the transport boundary, so
// code above the boundary never handles unvalidated identifier
// strings. All types are immutable values; the zero value of each is
// not valid and is detectable with IsZero.
package ref
