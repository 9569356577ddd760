// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"encoding/json"
	"strings"
	"testing"
)

func todos(statuses ...TodoStatus) []TodoItem {
	items := make([]TodoItem, 0, len(statuses))
	for i, status := range statuses {
		items = append(items, TodoItem{Content: "task " + string(rune('a'+i)), Status: status})
	}
	return items
}

func TestSignificant(t *testing.T) {
	tests := []struct {
		name string
		old  []TodoItem
		new  []TodoItem
		want bool
	}{
		{"identical", todos(TodoPending, TodoInProgress), todos(TodoPending, TodoInProgress), false},
		{"status change", todos(TodoPending, TodoInProgress), todos(TodoPending, TodoCompleted), true},
		{"item added", todos(TodoPending), todos(TodoPending, TodoPending), true},
		{"item removed", todos(TodoPending, TodoPending), todos(TodoPending), true},
		{"both empty", nil, nil, false},
		{"first list", nil, todos(TodoPending), true},
		{
			"content edit only",
			[]TodoItem{{Content: "old words", Status: TodoPending}},
			[]TodoItem{{Content: "new words", Status: TodoPending}},
			false,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Significant(test.old, test.new); got != test.want {
				t.Errorf("Significant = %v, want %v", got, test.want)
			}
		})
	}
}

func TestDiffSummary(t *testing.T) {
	t.Run("no changes", func(t *testing.T) {
		list := todos(TodoPending, TodoCompleted)
		if got := DiffSummary(list, list); got != "" {
			t.Errorf("DiffSummary = %q, want empty", got)
		}
	})

	t.Run("transitions", func(t *testing.T) {
		old := todos(TodoPending, TodoPending)
		new := todos(TodoInProgress, TodoCompleted)
		got := DiffSummary(old, new)
		if !strings.Contains(got, "Started: task a") {
			t.Errorf("missing started line: %q", got)
		}
		if !strings.Contains(got, "Completed: task b") {
			t.Errorf("missing completed line: %q", got)
		}
	})

	t.Run("new items", func(t *testing.T) {
		got := DiffSummary(nil, todos(TodoPending))
		if !strings.Contains(got, "Queued: task a") {
			t.Errorf("DiffSummary = %q", got)
		}
	})
}

func TestRenderChecklist(t *testing.T) {
	got := RenderChecklist([]TodoItem{
		{Content: "write the parser", Status: TodoCompleted},
		{Content: "wire the renderer", Status: TodoInProgress},
		{Content: "add tests", Status: TodoPending},
	})

	lines := strings.Split(got, "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines: %q", len(lines), got)
	}
	if lines[1] != "✅ write the parser" {
		t.Errorf("completed line = %q", lines[1])
	}
	if lines[2] != "🔄 wire the renderer" {
		t.Errorf("in-progress line = %q", lines[2])
	}
	if lines[3] != "⬜ add tests" {
		t.Errorf("pending line = %q", lines[3])
	}
}

func TestAggregateMarker(t *testing.T) {
	tests := []struct {
		name string
		list []TodoItem
		want string
	}{
		{"all completed", todos(TodoCompleted, TodoCompleted), MarkerTodoDone},
		{"any in progress", todos(TodoCompleted, TodoInProgress), MarkerTodoProgress},
		{"pending remainder", todos(TodoCompleted, TodoPending), MarkerTodoPending},
		{"empty list", nil, MarkerTodoPending},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := AggregateMarker(test.list); got != test.want {
				t.Errorf("AggregateMarker = %q, want %q", got, test.want)
			}
		})
	}
}

func TestParseTodoInput(t *testing.T) {
	input := json.RawMessage(`{"todos":[{"content":"first","status":"pending"},{"content":"second","status":"in_progress"}]}`)
	items, err := ParseTodoInput(input)
	if err != nil {
		t.Fatalf("ParseTodoInput: %v", err)
	}
	if len(items) != 2 || items[0].Content != "first" || items[1].Status != TodoInProgress {
		t.Errorf("items = %+v", items)
	}

	if _, err := ParseTodoInput(json.RawMessage(`"not an object"`)); err == nil {
		t.Fatal("expected error for malformed input")
	}
}
