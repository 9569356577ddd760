// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/courier-chat/courier/lib/ref"
)

// MessageContent is the content body of a Matrix message event
// (m.room.message). Threads are first-class: set RelatesTo to send
// messages within a thread. Set FormattedBody (with FormatCustomHTML)
// to attach an HTML rendering alongside the plain-text body.
type MessageContent struct {
	MsgType       string          `json:"msgtype"`
	Body          string          `json:"body"`
	Format        string          `json:"format,omitempty"`
	FormattedBody string          `json:"formatted_body,omitempty"`
	Mentions      *Mentions       `json:"m.mentions,omitempty"`
	RelatesTo     *RelatesTo      `json:"m.relates_to,omitempty"`
	NewContent    *MessageContent `json:"m.new_content,omitempty"`
}

// FormatCustomHTML is the format value for HTML formatted bodies.
const FormatCustomHTML = "org.matrix.custom.html"

// Mentions identifies users referenced in a message, in the Matrix
// m.mentions format.
type Mentions struct {
	UserIDs []string `json:"user_ids,omitempty"`
}

// RelatesTo expresses relationships between events. For thread replies,
// RelType is "m.thread" and EventID is the thread root. For edits,
// RelType is "m.replace" and EventID is the edited event. For reactions,
// RelType is "m.annotation" and Key carries the reaction glyph.
type RelatesTo struct {
	RelType       string      `json:"rel_type"`
	EventID       ref.EventID `json:"event_id"`
	Key           string      `json:"key,omitempty"`
	IsFallingBack bool        `json:"is_falling_back,omitempty"`
	InReplyTo     *InReplyTo  `json:"m.in_reply_to,omitempty"`
}

// InReplyTo references a specific event being replied to within a thread.
type InReplyTo struct {
	EventID ref.EventID `json:"event_id"`
}

// ReactionContent is the content body of an m.reaction event. The
// annotation key is the reaction glyph shown on the target event.
type ReactionContent struct {
	RelatesTo RelatesTo `json:"m.relates_to"`
}

// NewTextMessage creates a plain text message with no thread context.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
	}
}

// NewThreadReply creates a message that replies within an existing
// thread. threadRootID is the event ID of the thread's root message.
// The in_reply_to fallback points at the root so clients without
// thread support render the reply in context.
func NewThreadReply(threadRootID ref.EventID, body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
		RelatesTo: &RelatesTo{
			RelType:       "m.thread",
			EventID:       threadRootID,
			IsFallingBack: true,
			InReplyTo: &InReplyTo{
				EventID: threadRootID,
			},
		},
	}
}

// NewEdit creates a replacement for a previously sent message. Per the
// Matrix edit convention the top-level body carries a "* " fallback for
// clients that don't understand m.replace, and m.new_content carries
// the real replacement.
func NewEdit(targetID ref.EventID, replacement MessageContent) MessageContent {
	// The replacement content must not itself carry a relation.
	replacement.RelatesTo = nil
	return MessageContent{
		MsgType:       replacement.MsgType,
		Body:          "* " + replacement.Body,
		Format:        replacement.Format,
		FormattedBody: replacement.FormattedBody,
		NewContent:    &replacement,
		RelatesTo: &RelatesTo{
			RelType: "m.replace",
			EventID: targetID,
		},
	}
}

// NewReaction creates an m.reaction annotation on the target event.
func NewReaction(targetID ref.EventID, key string) ReactionContent {
	return ReactionContent{
		RelatesTo: RelatesTo{
			RelType: "m.annotation",
			EventID: targetID,
			Key:     key,
		},
	}
}

// Event represents a Matrix event from the server.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           string         `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
	Unsigned       *EventUnsigned `json:"unsigned,omitempty"`
}

// EventUnsigned holds optional unsigned data attached to events.
type EventUnsigned struct {
	Age           int64  `json:"age,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// ThreadRoot returns the thread root event ID when the event is a
// threaded message, or the zero EventID when it is not.
func (e Event) ThreadRoot() ref.EventID {
	relates, ok := e.Content["m.relates_to"].(map[string]any)
	if !ok {
		return ref.EventID{}
	}
	if relType, _ := relates["rel_type"].(string); relType != "m.thread" {
		return ref.EventID{}
	}
	raw, _ := relates["event_id"].(string)
	root, err := ref.ParseEventID(raw)
	if err != nil {
		return ref.EventID{}
	}
	return root
}

// MessageBody returns the plain-text body of an m.room.message event,
// or "" when the event has no body.
func (e Event) MessageBody() string {
	body, _ := e.Content["body"].(string)
	return body
}

// SyncOptions controls a single /sync call.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (distinguishes "not set" from "0")
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership state.
// Map keys are room IDs; encoding/json uses ref.RoomID's TextUnmarshaler
// for validation at deserialization.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom `json:"join,omitempty"`
	Invite map[ref.RoomID]struct{}   `json:"invite,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// SendEventResponse holds the event ID returned by a send or redact.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse identifies the account behind an access token.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// JoinedRoomsResponse lists the rooms the account has joined.
type JoinedRoomsResponse struct {
	JoinedRooms []ref.RoomID `json:"joined_rooms"`
}

// RedactRequest is the body of a redaction call.
type RedactRequest struct {
	Reason string `json:"reason,omitempty"`
}
