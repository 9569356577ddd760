// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent runs the backend agent CLI and exposes its stream-json
// output as a typed event stream. The orchestrator pulls events one at
// a time; the stream is finite until cancelled.
package agent

import (
	"encoding/json"
	"time"
)

// Kind classifies backend stream events. The set is closed: unknown
// event shapes are logged and skipped by the stream reader rather than
// surfaced with an open-ended kind.
type Kind string

const (
	// KindAssistantText is a prose fragment from the assistant.
	KindAssistantText Kind = "assistant_text"

	// KindToolUse is a tool invocation by the assistant.
	KindToolUse Kind = "tool_use"

	// KindResultSuccess is the terminal event of a successful turn,
	// carrying the final result text.
	KindResultSuccess Kind = "result_success"

	// KindResultError is the terminal event of a failed turn.
	KindResultError Kind = "result_error"
)

// Event is one entry in the backend's output stream. Exactly one of
// the payload pointers matching Kind is set.
type Event struct {
	Timestamp time.Time
	Kind      Kind

	// SessionID is the backend-assigned session identifier, present on
	// events that carry one. The first non-empty value observed in a
	// turn becomes the session handle for later resumption.
	SessionID string

	Text    *TextEvent
	ToolUse *ToolUseEvent
	Result  *ResultEvent
}

// TextEvent carries an assistant prose fragment.
type TextEvent struct {
	Text string
}

// ToolUseEvent carries a tool invocation. Input is the raw tool input
// object; callers decode the fields they understand and fall back to a
// generic rendering otherwise.
type ToolUseEvent struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ResultEvent carries the terminal outcome of a turn.
type ResultEvent struct {
	// Subtype is the backend's result classification
	// (e.g., "success", "error_during_execution").
	Subtype string

	// Result is the final result text on success, or the error
	// description on failure.
	Result string

	IsError bool

	// Usage metrics reported by the backend, zero when absent.
	CostUSD      float64
	DurationMS   int64
	InputTokens  int64
	OutputTokens int64
	NumTurns     int
}

// IsTerminal reports whether the event ends the stream's logical turn.
func (e Event) IsTerminal() bool {
	return e.Kind == KindResultSuccess || e.Kind == KindResultError
}
