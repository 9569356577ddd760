// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/courier-chat/courier/lib/ref"
)

// SyncFilter configures what events a RoomWatcher receives from /sync.
// The watched rooms are always included automatically.
//
// A nil *SyncFilter means "all events from the watched rooms".
type SyncFilter struct {
	// TimelineTypes restricts timeline events to these Matrix event types
	// (e.g., "m.room.message"). An empty slice means all timeline types.
	TimelineTypes []string

	// TimelineLimit caps the number of timeline events per /sync response.
	// Zero means no explicit limit (server default).
	TimelineLimit int

	// ExcludeState suppresses state events from the /sync response.
	ExcludeState bool
}

// buildInlineFilter constructs the inline JSON filter string for /sync.
// The filter always scopes to the given rooms; presence and account
// data are suppressed unconditionally.
func buildInlineFilter(roomIDs []ref.RoomID, filter *SyncFilter) string {
	rooms := make([]string, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		rooms = append(rooms, roomID.String())
	}
	roomFilter := map[string]any{
		"rooms": rooms,
	}

	if filter != nil {
		if len(filter.TimelineTypes) > 0 {
			timeline := map[string]any{"types": filter.TimelineTypes}
			if filter.TimelineLimit > 0 {
				timeline["limit"] = filter.TimelineLimit
			}
			roomFilter["timeline"] = timeline
		} else if filter.TimelineLimit > 0 {
			roomFilter["timeline"] = map[string]any{"limit": filter.TimelineLimit}
		}

		if filter.ExcludeState {
			roomFilter["state"] = map[string]any{"types": []string{}}
		}
	}

	top := map[string]any{
		"room":         roomFilter,
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}

	data, _ := json.Marshal(top)
	return string(data)
}

// RoomWatcher captures a position in the Matrix /sync stream across a
// set of rooms. Create one with WatchRooms, then call Next to receive
// events arriving after the checkpoint, in order.
//
// All waiting uses Matrix /sync long-polling: the server holds the
// connection until new events arrive, then returns immediately. There
// is no client-side polling interval.
//
// RoomWatcher is not safe for concurrent use by multiple goroutines.
type RoomWatcher struct {
	session   *DirectSession
	logger    *slog.Logger
	filter    string  // inline JSON /sync filter
	nextBatch string  // sync token at the captured position
	pending   []Event // events received but not yet consumed
}

// WatchRooms captures the current position in the Matrix /sync stream.
// The returned RoomWatcher only sees events arriving after this call.
//
// This performs an immediate /sync (timeout=0) to obtain the current
// next_batch token without blocking. The token anchors all subsequent
// long-poll calls. Pass nil for the filter to receive all event types.
func WatchRooms(ctx context.Context, session *DirectSession, roomIDs []ref.RoomID, filter *SyncFilter) (*RoomWatcher, error) {
	if len(roomIDs) == 0 {
		return nil, fmt.Errorf("messaging: WatchRooms requires at least one room")
	}
	for _, roomID := range roomIDs {
		if roomID.IsZero() {
			return nil, fmt.Errorf("messaging: WatchRooms requires non-zero room IDs")
		}
	}
	inlineFilter := buildInlineFilter(roomIDs, filter)
	response, err := session.Sync(ctx, SyncOptions{
		SetTimeout: true,
		Timeout:    0,
		Filter:     inlineFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("messaging: initial sync for room watch: %w", err)
	}
	return &RoomWatcher{
		session:   session,
		logger:    session.client.logger,
		filter:    inlineFilter,
		nextBatch: response.NextBatch,
	}, nil
}

// maxSyncRetries is the number of consecutive /sync failures allowed
// before Next returns an error. Each retry uses a 1-second server-side
// timeout so the HTTP round-trip itself provides backoff.
const maxSyncRetries = 5

// longPollTimeout is the server-side long-poll hold time in
// milliseconds for normal /sync calls. 30 seconds matches the Matrix
// client-server spec recommendation.
const longPollTimeout = 30000

// retryTimeout is the server-side timeout in milliseconds used after a
// /sync error. Short so the retry completes quickly.
const retryTimeout = 1000

// Next blocks until the next event arrives in a watched room. Events
// delivered in one /sync batch are buffered and returned one at a time
// in arrival order, with room IDs filled in from the sync section keys.
//
// Bounded by ctx. On transient /sync errors, retries up to 5 times
// with a 1-second server timeout, dropping idle connections so the
// next attempt opens a fresh socket.
func (w *RoomWatcher) Next(ctx context.Context) (Event, error) {
	var syncRetries int

	for {
		if len(w.pending) > 0 {
			event := w.pending[0]
			w.pending = w.pending[1:]
			return event, nil
		}

		// On retry after a sync error, use a short server-side timeout
		// so the HTTP round-trip itself provides backoff. On first
		// attempt or after success, use the normal long-poll hold.
		syncTimeout := longPollTimeout
		if syncRetries > 0 {
			syncTimeout = retryTimeout
		}
		response, err := w.session.Sync(ctx, SyncOptions{
			Since:      w.nextBatch,
			SetTimeout: true,
			Timeout:    syncTimeout,
			Filter:     w.filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return Event{}, fmt.Errorf("messaging: context cancelled waiting for events: %w", ctx.Err())
			}
			syncRetries++
			// TCP-level errors often indicate a poisoned connection in
			// Go's HTTP pool. Drop idle connections so the next attempt
			// opens a fresh socket.
			w.session.CloseIdleConnections()
			if syncRetries > maxSyncRetries {
				return Event{}, fmt.Errorf("messaging: sync failed %d consecutive times: %w", syncRetries, err)
			}
			w.logger.Debug("room watcher sync error, retrying",
				"attempt", syncRetries,
				"max_attempts", maxSyncRetries,
				"error", err,
			)
			continue
		}
		syncRetries = 0
		w.nextBatch = response.NextBatch

		for roomID, joined := range response.Rooms.Join {
			// State events come before timeline events to match the
			// server's ordering within a room section.
			for _, event := range joined.State.Events {
				event.RoomID = roomID
				w.pending = append(w.pending, event)
			}
			for _, event := range joined.Timeline.Events {
				event.RoomID = roomID
				w.pending = append(w.pending, event)
			}
		}
	}
}
