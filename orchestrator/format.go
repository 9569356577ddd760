// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/courier-chat/courier/agent"
)

// Truncation limits for tool previews. Diff sides are tight because an
// edit can rewrite whole files; the reader needs the gist, not the file.
const (
	diffSideLimit     = 200
	writePreviewLimit = 300
)

// todoToolName is the structured task-list tool. Its invocations are
// diverted to the progress tracker and never rendered as content.
const todoToolName = "TodoWrite"

// FormatToolUse renders a tool invocation as one content part. Unknown
// tools, and known tools with malformed input, degrade to a generic
// one-line notice rather than failing the turn.
func FormatToolUse(toolUse *agent.ToolUseEvent) string {
	switch toolUse.Name {
	case "Edit", "MultiEdit":
		if text, ok := formatEdit(toolUse.Input); ok {
			return text
		}
	case "Write", "Create":
		if text, ok := formatWrite(toolUse.Input); ok {
			return text
		}
	case "Read":
		if text, ok := formatRead(toolUse.Input); ok {
			return text
		}
	case "Bash":
		if text, ok := formatBash(toolUse.Input); ok {
			return text
		}
	}
	return fmt.Sprintf("🔧 Using tool: %s", toolUse.Name)
}

// editHunk is one old/new replacement within an edit invocation.
type editHunk struct {
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
}

func formatEdit(input json.RawMessage) (string, bool) {
	var edit struct {
		FilePath string     `json:"file_path"`
		editHunk            // single-hunk form
		Edits    []editHunk `json:"edits"` // multi-hunk form
	}
	if err := json.Unmarshal(input, &edit); err != nil || edit.FilePath == "" {
		return "", false
	}

	hunks := edit.Edits
	if len(hunks) == 0 {
		if edit.OldString == "" && edit.NewString == "" {
			return "", false
		}
		hunks = []editHunk{edit.editHunk}
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "✏️ Editing `%s`", edit.FilePath)
	for _, hunk := range hunks {
		builder.WriteString("\n```diff\n")
		for _, line := range strings.Split(truncate(hunk.OldString, diffSideLimit), "\n") {
			builder.WriteString("-")
			builder.WriteString(line)
			builder.WriteString("\n")
		}
		for _, line := range strings.Split(truncate(hunk.NewString, diffSideLimit), "\n") {
			builder.WriteString("+")
			builder.WriteString(line)
			builder.WriteString("\n")
		}
		builder.WriteString("```")
	}
	return builder.String(), true
}

func formatWrite(input json.RawMessage) (string, bool) {
	var write struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(input, &write); err != nil || write.FilePath == "" {
		return "", false
	}
	return fmt.Sprintf("📄 Writing `%s`\n```\n%s\n```", write.FilePath, truncate(write.Content, writePreviewLimit)), true
}

func formatRead(input json.RawMessage) (string, bool) {
	var read struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(input, &read); err != nil || read.FilePath == "" {
		return "", false
	}
	return fmt.Sprintf("📖 Reading `%s`", read.FilePath), true
}

func formatBash(input json.RawMessage) (string, bool) {
	var bash struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input, &bash); err != nil || bash.Command == "" {
		return "", false
	}
	return fmt.Sprintf("💻 Running\n```\n%s\n```", bash.Command), true
}

// truncate cuts text at limit bytes on a rune boundary with an
// ellipsis marker.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
