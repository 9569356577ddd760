// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/courier-chat/courier/agent"
	"github.com/courier-chat/courier/lib/clock"
	"github.com/courier-chat/courier/lib/redact"
	"github.com/courier-chat/courier/lib/ref"
)

// scriptedSource replays a fixed event sequence. onNext, when set,
// runs before each pull — tests use it to supersede the execution
// mid-stream.
type scriptedSource struct {
	events []agent.Event
	onNext func(pull int)
	pulls  int
}

func (s *scriptedSource) Next(ctx context.Context) (agent.Event, error) {
	if s.onNext != nil {
		s.onNext(s.pulls)
	}
	s.pulls++
	if err := ctx.Err(); err != nil {
		return agent.Event{}, err
	}
	if len(s.events) == 0 {
		return agent.Event{}, io.EOF
	}
	event := s.events[0]
	s.events = s.events[1:]
	return event, nil
}

func textEvent(text string) agent.Event {
	return agent.Event{Kind: agent.KindAssistantText, Text: &agent.TextEvent{Text: text}}
}

func toolEvent(name, input string) agent.Event {
	return agent.Event{Kind: agent.KindToolUse, ToolUse: &agent.ToolUseEvent{Name: name, Input: json.RawMessage(input)}}
}

func successEvent(result, sessionID string) agent.Event {
	return agent.Event{
		Kind:      agent.KindResultSuccess,
		SessionID: sessionID,
		Result:    &agent.ResultEvent{Subtype: "success", Result: result},
	}
}

type turnFixture struct {
	surface    *fakeSurface
	registry   *Registry
	dispatcher *Dispatcher
	session    *Session
	execution  *Execution
	renderer   *Renderer
	key        SessionKey
	user       ref.EventID
}

func newTurnFixture(t *testing.T, secrets []string) *turnFixture {
	t.Helper()
	surface := newFakeSurface()
	fake := clock.Fake(time.Unix(1000, 0))
	registry := NewRegistry(RegistryConfig{Clock: fake})
	masker := redact.New(secrets)
	key := testKey("$thread:example.com")
	return &turnFixture{
		surface:  surface,
		registry: registry,
		dispatcher: NewDispatcher(DispatcherConfig{
			Surface:  surface,
			Masker:   masker,
			Registry: registry,
			Clock:    fake,
		}),
		session:   registry.Resolve(key),
		execution: registry.StartExecution(key),
		renderer: NewRenderer(RendererConfig{
			Surface: surface,
			Masker:  masker,
			Room:    key.Room,
			Thread:  key.Thread,
		}),
		key:  key,
		user: ref.MustParseEventID("$user-msg:example.com"),
	}
}

func (f *turnFixture) run(events *scriptedSource) {
	f.dispatcher.RunTurn(context.Background(), TurnParams{
		Key:         f.key,
		Session:     f.session,
		Execution:   f.execution,
		Renderer:    f.renderer,
		Events:      events,
		UserMessage: f.user,
	})
}

func TestRunTurnHappyPath(t *testing.T) {
	fixture := newTurnFixture(t, nil)
	fixture.run(&scriptedSource{events: []agent.Event{
		textEvent("Step 1 done."),
		toolEvent("Read", `{"file_path":"main.go"}`),
		textEvent("Step 2 done."),
		successEvent("Everything finished.", "sess-42"),
	}})

	if len(fixture.surface.posted) != 1 {
		t.Fatalf("posted %d messages, want 1", len(fixture.surface.posted))
	}
	final := fixture.surface.finalBody(fixture.surface.posted[0].id)
	if !strings.HasPrefix(final, "✅ *Done*") {
		t.Errorf("final message = %q, want Done header", final)
	}
	for _, want := range []string{"Step 1 done.", "Reading `main.go`", "Step 2 done.", "Everything finished."} {
		if !strings.Contains(final, want) {
			t.Errorf("final message missing %q: %q", want, final)
		}
	}

	// Marker sequence: thinking, working (first tool), done — each
	// replacement redacts the previous marker.
	keys := make([]string, 0, len(fixture.surface.reactions))
	for _, reaction := range fixture.surface.reactions {
		keys = append(keys, reaction.key)
		if reaction.target != fixture.user.String() {
			t.Errorf("marker on %q, want the user message", reaction.target)
		}
	}
	if strings.Join(keys, " ") != "🤔 ⚙️ ✅" {
		t.Errorf("marker sequence = %v", keys)
	}
	if len(fixture.surface.redacted) != 2 {
		t.Errorf("redacted %d stale markers, want 2", len(fixture.surface.redacted))
	}

	if fixture.session.BackendID() != "sess-42" {
		t.Errorf("BackendID = %q", fixture.session.BackendID())
	}
}

func TestRunTurnSuppressesDuplicateResult(t *testing.T) {
	fixture := newTurnFixture(t, nil)
	fixture.run(&scriptedSource{events: []agent.Event{
		textEvent("The answer is 42."),
		successEvent("The answer is 42.", ""),
	}})

	final := fixture.surface.finalBody(fixture.surface.posted[0].id)
	if got := strings.Count(final, "The answer is 42."); got != 1 {
		t.Errorf("result echoed %d times, want 1: %q", got, final)
	}
}

func TestRunTurnKeepsNovelResult(t *testing.T) {
	fixture := newTurnFixture(t, nil)
	fixture.run(&scriptedSource{events: []agent.Event{
		textEvent("Working through it."),
		successEvent("Here is the summary.", ""),
	}})

	final := fixture.surface.finalBody(fixture.surface.posted[0].id)
	if !strings.Contains(final, "Here is the summary.") {
		t.Errorf("novel result text missing: %q", final)
	}
}

func TestRunTurnBackendError(t *testing.T) {
	fixture := newTurnFixture(t, nil)
	fixture.run(&scriptedSource{events: []agent.Event{
		textEvent("Starting."),
		{Kind: agent.KindResultError, Result: &agent.ResultEvent{Subtype: "error_during_execution", Result: "tool crashed", IsError: true}},
	}})

	final := fixture.surface.finalBody(fixture.surface.posted[0].id)
	if !strings.HasPrefix(final, "❌ *Error*") {
		t.Errorf("final message = %q, want Error header", final)
	}
	if !strings.Contains(final, "tool crashed") {
		t.Errorf("failure description missing: %q", final)
	}
	last := fixture.surface.reactions[len(fixture.surface.reactions)-1]
	if last.key != "❌" {
		t.Errorf("final marker = %q", last.key)
	}
}

func TestRunTurnCancellation(t *testing.T) {
	fixture := newTurnFixture(t, nil)
	source := &scriptedSource{
		events: []agent.Event{
			textEvent("First fragment."),
			textEvent("Second fragment."),
			textEvent("Never applied."),
		},
	}
	source.onNext = func(pull int) {
		if pull == 2 {
			// A new message for the key supersedes this turn.
			fixture.registry.StartExecution(fixture.key)
		}
	}
	fixture.run(source)

	final := fixture.surface.finalBody(fixture.surface.posted[0].id)
	if !strings.HasPrefix(final, "🚫 *Cancelled*") {
		t.Errorf("final message = %q, want Cancelled header", final)
	}
	if got := strings.Count(final, "Cancelled"); got != 1 {
		t.Errorf("Cancelled stamped %d times, want exactly 1", got)
	}
	if strings.Contains(final, "Never applied.") {
		t.Error("events after cancellation must have no effect")
	}
	last := fixture.surface.reactions[len(fixture.surface.reactions)-1]
	if last.key != "🚫" {
		t.Errorf("final marker = %q", last.key)
	}
}

func TestRunTurnTodoDiversion(t *testing.T) {
	todoInput := `{"todos":[{"content":"parse","status":"in_progress"},{"content":"render","status":"pending"}]}`

	fixture := newTurnFixture(t, nil)
	fixture.run(&scriptedSource{events: []agent.Event{
		toolEvent("TodoWrite", todoInput),
		toolEvent("TodoWrite", todoInput), // cosmetic repeat
		successEvent("done", ""),
	}})

	// Status message + task list + diff notice.
	var taskList, notices int
	for _, message := range fixture.surface.posted {
		switch {
		case strings.Contains(message.body, "📝 *Tasks*"):
			taskList++
		case strings.Contains(message.body, "Started: parse"):
			notices++
		}
	}
	if taskList != 1 {
		t.Errorf("task list posted %d times, want 1 (repeat is insignificant)", taskList)
	}
	if notices != 1 {
		t.Errorf("diff notices = %d, want 1", notices)
	}

	// The task list is never a content part of the status message.
	status := fixture.surface.finalBody(fixture.surface.posted[0].id)
	if strings.Contains(status, "📝 *Tasks*") {
		t.Errorf("task list leaked into the status message: %q", status)
	}

	// In-progress items yield the progress marker before the final done.
	var sawProgress bool
	for _, reaction := range fixture.surface.reactions {
		if reaction.key == MarkerTodoProgress {
			sawProgress = true
		}
	}
	if !sawProgress {
		t.Error("aggregate progress marker never applied")
	}
}

func TestRunTurnTodoUpdateInPlace(t *testing.T) {
	fixture := newTurnFixture(t, nil)
	fixture.run(&scriptedSource{events: []agent.Event{
		toolEvent("TodoWrite", `{"todos":[{"content":"parse","status":"in_progress"}]}`),
		toolEvent("TodoWrite", `{"todos":[{"content":"parse","status":"completed"}]}`),
		successEvent("done", ""),
	}})

	todoID := fixture.session.TodoMessage()
	if todoID.IsZero() {
		t.Fatal("task-list message never recorded")
	}
	if edits := fixture.surface.edits[todoID.String()]; len(edits) != 1 {
		t.Errorf("task list edited %d times, want 1 in-place update", len(edits))
	}
}

func TestRunTurnMarkerFailureLogsSessionKey(t *testing.T) {
	surface := newFakeSurface()
	surface.failReactions = true
	fake := clock.Fake(time.Unix(1000, 0))
	registry := NewRegistry(RegistryConfig{Clock: fake})
	masker := redact.New(nil)
	key := testKey("$thread:example.com")

	var logBuffer bytes.Buffer
	dispatcher := NewDispatcher(DispatcherConfig{
		Surface:  surface,
		Masker:   masker,
		Registry: registry,
		Clock:    fake,
		Logger:   slog.New(slog.NewTextHandler(&logBuffer, nil)),
	})

	dispatcher.RunTurn(context.Background(), TurnParams{
		Key:       key,
		Session:   registry.Resolve(key),
		Execution: registry.StartExecution(key),
		Renderer: NewRenderer(RendererConfig{
			Surface: surface,
			Masker:  masker,
			Room:    key.Room,
			Thread:  key.Thread,
		}),
		Events:      &scriptedSource{},
		UserMessage: ref.MustParseEventID("$user-msg:example.com"),
	})

	logs := logBuffer.String()
	found := false
	for _, line := range strings.Split(strings.TrimSpace(logs), "\n") {
		if !strings.Contains(line, "applying marker failed") {
			continue
		}
		found = true
		if !strings.Contains(line, "session_key=") {
			t.Errorf("marker failure logged without the session key: %s", line)
		}
	}
	if !found {
		t.Fatalf("expected a marker failure warning, got:\n%s", logs)
	}
}

func TestRunTurnMasksEverything(t *testing.T) {
	fixture := newTurnFixture(t, []string{"sk-verysecretvalue"})
	fixture.run(&scriptedSource{events: []agent.Event{
		textEvent("the key is sk-verysecretvalue"),
		toolEvent("Bash", `{"command":"export KEY=sk-verysecretvalue"}`),
		successEvent("stored sk-verysecretvalue", ""),
	}})

	fixture.surface.mu.Lock()
	defer fixture.surface.mu.Unlock()
	for _, message := range fixture.surface.posted {
		if strings.Contains(message.body, "sk-verysecretvalue") {
			t.Errorf("secret leaked in post: %q", message.body)
		}
	}
	for _, bodies := range fixture.surface.edits {
		for _, body := range bodies {
			if strings.Contains(body, "sk-verysecretvalue") {
				t.Errorf("secret leaked in edit: %q", body)
			}
		}
	}
}
