// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"

	"github.com/courier-chat/courier/lib/ref"
	"github.com/courier-chat/courier/messaging"
)

// Surface is the slice of the chat transport the orchestrator uses:
// post, update, react, and take down. messaging.DirectSession satisfies
// it; tests substitute a fake.
type Surface interface {
	SendMessage(ctx context.Context, room ref.RoomID, content messaging.MessageContent) (ref.EventID, error)
	EditMessage(ctx context.Context, room ref.RoomID, target ref.EventID, content messaging.MessageContent) (ref.EventID, error)
	SendReaction(ctx context.Context, room ref.RoomID, target ref.EventID, key string) (ref.EventID, error)
	RedactEvent(ctx context.Context, room ref.RoomID, target ref.EventID, reason string) (ref.EventID, error)
}
