// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/courier-chat/courier/agent"
	"github.com/courier-chat/courier/lib/clock"
	"github.com/courier-chat/courier/lib/redact"
	"github.com/courier-chat/courier/lib/ref"
	"github.com/courier-chat/courier/messaging"
)

// EventSource is a lazily-pulled backend event stream. agent.Stream
// satisfies it; tests substitute scripted sources.
type EventSource interface {
	Next(ctx context.Context) (agent.Event, error)
}

// TranscriptAppender records turn events for later inspection.
// transcript.Writer satisfies it.
type TranscriptAppender interface {
	Append(record any) error
}

// Dispatcher consumes a turn's backend event stream and drives the
// renderer, progress tracking, and status markers in response.
type Dispatcher struct {
	surface  Surface
	masker   *redact.Masker
	registry *Registry
	clock    clock.Clock
	logger   *slog.Logger
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Surface  Surface
	Masker   *redact.Masker
	Registry *Registry
	// Clock stamps session activity. If nil, the real clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	timepiece := config.Clock
	if timepiece == nil {
		timepiece = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		surface:  config.Surface,
		masker:   config.Masker,
		registry: config.Registry,
		clock:    timepiece,
		logger:   logger,
	}
}

// TurnParams carries everything one turn needs.
type TurnParams struct {
	Key       SessionKey
	Session   *Session
	Execution *Execution
	Renderer  *Renderer
	Events    EventSource

	// UserMessage is the inbound message status markers decorate.
	UserMessage ref.EventID

	// Cleanup removes the turn's ephemeral inputs (staged attachment
	// files). Runs on every exit path. Nil when there is nothing to
	// clean.
	Cleanup func()

	// Transcript records turn events when non-nil.
	Transcript TranscriptAppender
}

// RunTurn drives one turn to a terminal state. ctx bounds transport
// calls and outlives the execution's cancellation context on purpose:
// a superseded turn must still stamp its last message "Cancelled".
//
// The terminal status header is published exactly once per turn.
func (d *Dispatcher) RunTurn(ctx context.Context, params TurnParams) {
	if params.Cleanup != nil {
		defer params.Cleanup()
	}

	logger := d.logger.With("session_key", params.Key.String())

	d.applyMarker(ctx, params, StatusThinking.Emoji, logger)
	if err := params.Renderer.Publish(ctx, StatusThinking); err != nil {
		logger.Warn("posting initial status failed", "error", err)
	}

	var prose []string
	var failure string
	working := false

	for {
		if params.Execution.Cancelled() {
			d.finishCancelled(ctx, params, logger)
			return
		}

		event, err := params.Events.Next(params.Execution.Context())
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if params.Execution.Cancelled() {
				d.finishCancelled(ctx, params, logger)
				return
			}
			failure = err.Error()
			break
		}

		params.Session.SetBackendID(event.SessionID)
		params.Session.Touch(d.clock.Now())
		d.record(params, event, logger)

		switch event.Kind {
		case agent.KindAssistantText:
			prose = append(prose, event.Text.Text)
			params.Renderer.AppendPart(event.Text.Text)
			d.publishWorking(ctx, params, logger)

		case agent.KindToolUse:
			if event.ToolUse.Name == todoToolName {
				d.handleTodoUpdate(ctx, params, event.ToolUse, logger)
				continue
			}
			if !working {
				working = true
				d.applyMarker(ctx, params, StatusWorking.Emoji, logger)
			}
			params.Renderer.AppendPart(FormatToolUse(event.ToolUse))
			d.publishWorking(ctx, params, logger)

		case agent.KindResultSuccess:
			if text := event.Result.Result; text != "" && !alreadyEmitted(prose, text) {
				params.Renderer.AppendPart(text)
			}

		case agent.KindResultError:
			failure = event.Result.Result
			if failure == "" {
				failure = event.Result.Subtype
			}
		}
	}

	if failure != "" {
		d.finishError(ctx, params, failure, logger)
		return
	}
	d.finishDone(ctx, params, logger)
}

// publishWorking pushes a Working render, tolerating transport errors:
// a failed update never aborts the turn.
func (d *Dispatcher) publishWorking(ctx context.Context, params TurnParams, logger *slog.Logger) {
	if err := params.Renderer.Publish(ctx, StatusWorking); err != nil {
		logger.Warn("publishing update failed", "error", err)
	}
}

func (d *Dispatcher) finishDone(ctx context.Context, params TurnParams, logger *slog.Logger) {
	if err := params.Renderer.Publish(ctx, StatusDone); err != nil {
		logger.Warn("publishing final status failed", "error", err)
	}
	d.applyMarker(ctx, params, StatusDone.Emoji, logger)
	d.registry.ScheduleCleanup(params.Key)
	logger.Info("turn completed")
}

func (d *Dispatcher) finishError(ctx context.Context, params TurnParams, failure string, logger *slog.Logger) {
	params.Renderer.AppendPart(fmt.Sprintf("⚠️ Agent failed: %s", failure))
	if err := params.Renderer.Publish(ctx, StatusError); err != nil {
		logger.Warn("publishing error status failed", "error", err)
	}
	d.applyMarker(ctx, params, StatusError.Emoji, logger)
	d.registry.ScheduleCleanup(params.Key)
	logger.Warn("turn failed", "failure", failure)
}

func (d *Dispatcher) finishCancelled(ctx context.Context, params TurnParams, logger *slog.Logger) {
	if err := params.Renderer.Publish(ctx, StatusCancelled); err != nil {
		logger.Warn("publishing cancelled status failed", "error", err)
	}
	d.applyMarker(ctx, params, StatusCancelled.Emoji, logger)
	logger.Info("turn cancelled by superseding message")
}

// handleTodoUpdate diverts the structured task-list tool to the
// progress tracker: update the persistent task-list message, post a
// diff notice, recompute the aggregate marker. Insignificant updates
// are dropped entirely. Malformed input degrades to the generic tool
// rendering.
func (d *Dispatcher) handleTodoUpdate(ctx context.Context, params TurnParams, toolUse *agent.ToolUseEvent, logger *slog.Logger) {
	todos, err := ParseTodoInput(toolUse.Input)
	if err != nil {
		logger.Warn("malformed todo input", "error", err)
		params.Renderer.AppendPart(FormatToolUse(&agent.ToolUseEvent{Name: toolUse.Name}))
		d.publishWorking(ctx, params, logger)
		return
	}

	old := params.Session.Todos()
	if !Significant(old, todos) {
		return
	}
	params.Session.SetTodos(todos)

	checklist := messaging.WithFormatting(messaging.NewTextMessage(d.masker.Mask(RenderChecklist(todos))))
	if existing := params.Session.TodoMessage(); !existing.IsZero() {
		if _, err := d.surface.EditMessage(ctx, params.Key.Room, existing, checklist); err != nil {
			logger.Warn("updating task list failed, posting fresh", "error", err)
			d.postTodoMessage(ctx, params, todos, logger)
		}
	} else {
		d.postTodoMessage(ctx, params, todos, logger)
	}

	if summary := DiffSummary(old, todos); summary != "" {
		notice := messaging.WithFormatting(messaging.NewThreadReply(params.Key.Thread, d.masker.Mask(summary)))
		if _, err := d.surface.SendMessage(ctx, params.Key.Room, notice); err != nil {
			logger.Warn("posting progress notice failed", "error", err)
		}
	}

	d.applyMarker(ctx, params, AggregateMarker(todos), logger)
}

func (d *Dispatcher) postTodoMessage(ctx context.Context, params TurnParams, todos []TodoItem, logger *slog.Logger) {
	content := messaging.WithFormatting(messaging.NewThreadReply(params.Key.Thread, d.masker.Mask(RenderChecklist(todos))))
	eventID, err := d.surface.SendMessage(ctx, params.Key.Room, content)
	if err != nil {
		logger.Warn("posting task list failed", "error", err)
		return
	}
	params.Session.SetTodoMessage(eventID)
}

// applyMarker swaps the status reaction on the user's message: remove
// the stale marker, add the new one. A failed removal is logged and
// tolerated; at most one marker ends up applied. Re-applying the
// current marker is a no-op.
func (d *Dispatcher) applyMarker(ctx context.Context, params TurnParams, marker string, logger *slog.Logger) {
	currentKey, currentEvent, target := params.Session.Reaction()
	if currentKey == marker && target == params.UserMessage {
		return
	}

	if !currentEvent.IsZero() {
		if _, err := d.surface.RedactEvent(ctx, params.Key.Room, currentEvent, "status changed"); err != nil {
			logger.Warn("removing stale marker failed", "marker", currentKey, "error", err)
		}
	}

	eventID, err := d.surface.SendReaction(ctx, params.Key.Room, params.UserMessage, marker)
	if err != nil {
		logger.Warn("applying marker failed", "marker", marker, "error", err)
		params.Session.SetReaction("", ref.EventID{}, ref.EventID{})
		return
	}
	params.Session.SetReaction(marker, eventID, params.UserMessage)
}

// record appends the event to the turn transcript when recording.
func (d *Dispatcher) record(params TurnParams, event agent.Event, logger *slog.Logger) {
	if params.Transcript == nil {
		return
	}
	if err := params.Transcript.Append(event); err != nil {
		logger.Warn("transcript append failed", "error", err)
	}
}

// alreadyEmitted reports whether the final result text already appeared
// verbatim inside previously streamed prose. Exact containment only:
// partial rewrites by the backend are treated as new content.
func alreadyEmitted(prose []string, result string) bool {
	for _, part := range prose {
		if strings.Contains(part, result) {
			return true
		}
	}
	return false
}
