// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package redact

import (
	"regexp"
	"sort"
	"strings"
)

// Placeholder replaces every masked secret in outbound text.
const Placeholder = "[REDACTED]"

// minimumSecretLength guards against registering trivial values whose
// substitution would shred ordinary prose (e.g., a one-character
// "secret" appearing in every word).
const minimumSecretLength = 6

// tokenPatterns catches token-shaped strings that were never
// registered as known values. Each pattern anchors on a recognizable
// credential prefix so ordinary prose is never matched.
var tokenPatterns = []*regexp.Regexp{
	// Anthropic / OpenAI style API keys.
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`),
	// GitHub tokens (classic and fine-grained).
	regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{20,}`),
	// AWS access key IDs.
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	// Slack tokens.
	regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}`),
	// Matrix access tokens (Synapse "syt_" prefix).
	regexp.MustCompile(`\bsyt_[A-Za-z0-9_]{10,}`),
	// Bearer credentials in header-style text.
	regexp.MustCompile(`\bBearer\s+[A-Za-z0-9._~+/-]{16,}=*`),
	// PEM private key material.
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
}

// Masker replaces known secret values and token-shaped patterns with
// Placeholder. A Masker is immutable after construction — it holds a
// snapshot of the known values at the time New was called — and is
// safe for concurrent use.
type Masker struct {
	// values is sorted longest-first so exact substitution of a long
	// secret always wins over a shorter secret that is its substring.
	values []string
}

// New creates a Masker from a snapshot of known secret values. Values
// shorter than six characters are dropped: substituting them would
// mangle unrelated text far more often than it would protect anything.
// Duplicates are collapsed.
func New(values []string) *Masker {
	seen := make(map[string]struct{}, len(values))
	kept := make([]string, 0, len(values))
	for _, value := range values {
		if len(value) < minimumSecretLength {
			continue
		}
		if _, duplicate := seen[value]; duplicate {
			continue
		}
		seen[value] = struct{}{}
		kept = append(kept, value)
	}

	sort.Slice(kept, func(i, j int) bool {
		if len(kept[i]) != len(kept[j]) {
			return len(kept[i]) > len(kept[j])
		}
		return kept[i] < kept[j]
	})

	return &Masker{values: kept}
}

// Mask replaces every occurrence of a known secret value, then every
// token-shaped pattern match, with Placeholder. Text with no matches
// is returned unchanged (same string, no allocation).
func (m *Masker) Mask(text string) string {
	if text == "" {
		return text
	}

	// Stage one: exact known values, longest first.
	for _, value := range m.values {
		if strings.Contains(text, value) {
			text = strings.ReplaceAll(text, value, Placeholder)
		}
	}

	// Stage two: pattern fallback for unregistered tokens.
	for _, pattern := range tokenPatterns {
		text = pattern.ReplaceAllString(text, Placeholder)
	}

	return text
}
