// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator mediates between the chat surface and the
// streaming agent backend. It owns session identity, per-turn
// cancellation, progressive message rendering under a size ceiling,
// todo progress tracking, and status reactions.
package orchestrator

import (
	"fmt"

	"github.com/courier-chat/courier/lib/ref"
)

// SessionKey identifies at most one live execution: one user, in one
// room, in one thread. For messages outside a thread the message's own
// event ID serves as the thread identity, so each top-level message
// starts its own conversation.
type SessionKey struct {
	User   ref.UserID
	Room   ref.RoomID
	Thread ref.EventID
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.User, k.Room, k.Thread)
}
