// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/courier-chat/courier/lib/redact"
	"github.com/courier-chat/courier/lib/ref"
	"github.com/courier-chat/courier/messaging"
)

// MessageCeiling is the hard per-message size limit in bytes. Rendered
// text above the ceiling triggers an overflow split onto a new message.
const MessageCeiling = 39000

// partSeparator joins content parts within one message.
const partSeparator = "\n\n---\n\n"

// Renderer accumulates content parts for one turn and keeps exactly one
// outbound message progressively updated with them, splitting onto a
// new message when the rendered text would exceed the ceiling.
//
// Every string leaving the Renderer passes through the masker first.
// That boundary is never bypassed, including for status and error text.
type Renderer struct {
	surface Surface
	masker  *redact.Masker
	logger  *slog.Logger
	room    ref.RoomID
	thread  ref.EventID
	ceiling int

	parts  []string
	active ref.EventID
}

// RendererConfig configures a Renderer for one turn.
type RendererConfig struct {
	Surface Surface
	Masker  *redact.Masker
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	Room   ref.RoomID
	// Thread is the thread root the turn's messages reply into.
	Thread ref.EventID
	// Ceiling overrides MessageCeiling; zero means the default.
	Ceiling int
}

// NewRenderer creates a Renderer with no posted message and no parts.
func NewRenderer(config RendererConfig) *Renderer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ceiling := config.Ceiling
	if ceiling <= 0 {
		ceiling = MessageCeiling
	}
	return &Renderer{
		surface: config.Surface,
		masker:  config.Masker,
		logger:  logger,
		room:    config.Room,
		thread:  config.Thread,
		ceiling: ceiling,
	}
}

// AppendPart buffers one content part for the active message.
func (r *Renderer) AppendPart(text string) {
	r.parts = append(r.parts, text)
}

// Parts returns the buffered content parts of the active message.
func (r *Renderer) Parts() []string {
	return r.parts
}

// ActiveMessage returns the ID of the message currently being updated,
// zero before the first publish.
func (r *Renderer) ActiveMessage() ref.EventID {
	return r.active
}

// Render produces the full message text for a status: the status header
// alone when no parts are buffered, otherwise the header followed by
// all parts joined with the visible separator.
func (r *Renderer) Render(status Status) string {
	header := fmt.Sprintf("%s *%s*", status.Emoji, status.Text)
	if len(r.parts) == 0 {
		return header
	}
	return header + "\n\n" + strings.Join(r.parts, partSeparator)
}

// Publish pushes the current render to the chat surface. The first call
// posts a new message and records its identity; later calls update it
// in place. When the rendered text exceeds the ceiling and more than
// one part is buffered, the last part is split off onto a fresh message
// which becomes the active target. A single part over the ceiling on
// its own is accepted as-is rather than sub-split.
func (r *Renderer) Publish(ctx context.Context, status Status) error {
	if r.active.IsZero() {
		eventID, err := r.post(ctx, r.Render(status))
		if err != nil {
			return err
		}
		r.active = eventID
		return nil
	}

	text := r.Render(status)
	if len(text) > r.ceiling && len(r.parts) > 1 {
		return r.overflowSplit(ctx, status)
	}
	return r.update(ctx, r.active, text)
}

// overflowSplit detaches the last part, finalizes the current message
// with the remaining parts, and posts the detached part as a new
// message that becomes the active target. Incremental appends keep the
// remainder under the ceiling by construction.
func (r *Renderer) overflowSplit(ctx context.Context, status Status) error {
	detached := r.parts[len(r.parts)-1]
	r.parts = r.parts[:len(r.parts)-1]

	if err := r.update(ctx, r.active, r.Render(status)); err != nil {
		// The old message keeps its previous contents; the detached
		// part still moves to the new message so nothing is lost.
		r.logger.Warn("finalizing overflowed message failed", "error", err)
	}

	r.parts = []string{detached}
	eventID, err := r.post(ctx, r.Render(status))
	if err != nil {
		return err
	}
	r.active = eventID
	return nil
}

// post sends a new thread reply, masking the text at the boundary.
func (r *Renderer) post(ctx context.Context, text string) (ref.EventID, error) {
	content := messaging.WithFormatting(messaging.NewThreadReply(r.thread, r.masker.Mask(text)))
	eventID, err := r.surface.SendMessage(ctx, r.room, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("orchestrator: posting message: %w", err)
	}
	return eventID, nil
}

// update edits an existing message in place, masking at the boundary.
func (r *Renderer) update(ctx context.Context, target ref.EventID, text string) error {
	content := messaging.WithFormatting(messaging.NewTextMessage(r.masker.Mask(text)))
	if _, err := r.surface.EditMessage(ctx, r.room, target, content); err != nil {
		return fmt.Errorf("orchestrator: updating message: %w", err)
	}
	return nil
}
