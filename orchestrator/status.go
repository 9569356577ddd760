// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

// Status is a turn phase shown in the message header and mirrored as a
// reaction marker on the user's message.
type Status struct {
	// Emoji opens the status header and doubles as the reaction key.
	Emoji string
	// Text is the italicized status label.
	Text string
}

var (
	StatusThinking  = Status{Emoji: "🤔", Text: "Thinking"}
	StatusWorking   = Status{Emoji: "⚙️", Text: "Working"}
	StatusDone      = Status{Emoji: "✅", Text: "Done"}
	StatusError     = Status{Emoji: "❌", Text: "Error"}
	StatusCancelled = Status{Emoji: "🚫", Text: "Cancelled"}
)

// Aggregate todo markers. These decorate the user's message according
// to overall task-list state and reuse the reaction channel.
var (
	MarkerTodoDone     = "✅"
	MarkerTodoProgress = "🔄"
	MarkerTodoPending  = "📋"
)
