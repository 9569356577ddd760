// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package redact masks secret material in outbound text.
//
// Masking runs in two explicit stages with documented precedence:
//
//  1. Exact known-value substitution. Registered secret values are
//     replaced verbatim, longest value first so that a short secret
//     that happens to be a substring of a longer one cannot corrupt
//     the longer match.
//  2. Pattern-based fallback. Token-shaped strings (API keys, bearer
//     tokens, access tokens) that were never registered are caught by
//     a fixed set of regular expressions.
//
// Mask is idempotent: masking already-masked text returns it
// unchanged, and text without matches is returned as-is.
package redact
