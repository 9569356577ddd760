// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O helpers. Response body reads are
// bounded at MaxResponseSize to prevent unbounded memory allocation from
// a misbehaving server. These helpers are for JSON API responses, not
// streaming transfers, which should be read incrementally with io.Copy.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize is the bound on API response body reads: 256 MB. This
// exists solely to prevent a pathological response from exhausting system
// memory; legitimate responses are orders of magnitude smaller.
const MaxResponseSize int64 = 256 << 20

// ReadResponse reads an API response body up to MaxResponseSize bytes.
// Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads an API response body (up to MaxResponseSize bytes)
// and JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}
