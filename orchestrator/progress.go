// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TodoStatus is the lifecycle state of one task-list item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// TodoItem is one entry in the agent's structured task list.
type TodoItem struct {
	Content string     `json:"content"`
	Status  TodoStatus `json:"status"`
}

// ParseTodoInput decodes the task-list tool's input object. The tool
// sends {"todos": [{"content": ..., "status": ...}, ...]}.
func ParseTodoInput(input json.RawMessage) ([]TodoItem, error) {
	var payload struct {
		Todos []TodoItem `json:"todos"`
	}
	if err := json.Unmarshal(input, &payload); err != nil {
		return nil, fmt.Errorf("orchestrator: parsing todo input: %w", err)
	}
	return payload.Todos, nil
}

// Significant reports whether the transition from old to new changes
// anything a reader would notice: the item count, or any item's status.
// Comparison is positional; content edits alone are not significant, so
// cosmetic re-sends of an unchanged list don't re-render.
func Significant(old, new []TodoItem) bool {
	if len(old) != len(new) {
		return true
	}
	for i := range new {
		if old[i].Status != new[i].Status {
			return true
		}
	}
	return false
}

// DiffSummary describes items whose status changed between two lists,
// one line per change, or "" when nothing changed status. Items present
// only in the new list count as changes from nothing.
func DiffSummary(old, new []TodoItem) string {
	var lines []string
	for i, item := range new {
		if i < len(old) && old[i].Status == item.Status {
			continue
		}
		switch item.Status {
		case TodoCompleted:
			lines = append(lines, fmt.Sprintf("☑️ Completed: %s", item.Content))
		case TodoInProgress:
			lines = append(lines, fmt.Sprintf("▶️ Started: %s", item.Content))
		default:
			lines = append(lines, fmt.Sprintf("➕ Queued: %s", item.Content))
		}
	}
	return strings.Join(lines, "\n")
}

// RenderChecklist renders the task list as one glyph-prefixed line per
// item, in input order.
func RenderChecklist(todos []TodoItem) string {
	var builder strings.Builder
	builder.WriteString("📝 *Tasks*\n")
	for _, item := range todos {
		builder.WriteString(statusGlyph(item.Status))
		builder.WriteString(" ")
		builder.WriteString(item.Content)
		builder.WriteString("\n")
	}
	return strings.TrimRight(builder.String(), "\n")
}

func statusGlyph(status TodoStatus) string {
	switch status {
	case TodoCompleted:
		return "✅"
	case TodoInProgress:
		return "🔄"
	default:
		return "⬜"
	}
}

// AggregateMarker maps overall task-list state to a reaction marker:
// all completed → done, any in-progress → progress, otherwise pending.
func AggregateMarker(todos []TodoItem) string {
	if len(todos) == 0 {
		return MarkerTodoPending
	}
	allDone := true
	for _, item := range todos {
		if item.Status == TodoInProgress {
			return MarkerTodoProgress
		}
		if item.Status != TodoCompleted {
			allDone = false
		}
	}
	if allDone {
		return MarkerTodoDone
	}
	return MarkerTodoPending
}
