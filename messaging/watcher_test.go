// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/courier-chat/courier/lib/ref"
)

// fakeSyncServer serves a scripted sequence of /sync responses. The
// first call (the watcher's checkpoint sync) always returns an empty
// batch; subsequent calls walk the script.
type fakeSyncServer struct {
	t         *testing.T
	responses []map[string]any
	calls     int
}

func (f *fakeSyncServer) handler(writer http.ResponseWriter, request *http.Request) {
	if request.URL.Path != "/_matrix/client/v3/sync" {
		f.t.Errorf("unexpected path: %s", request.URL.Path)
		writer.WriteHeader(http.StatusNotFound)
		return
	}
	call := f.calls
	f.calls++

	if call == 0 {
		json.NewEncoder(writer).Encode(map[string]any{"next_batch": "s0"})
		return
	}
	index := call - 1
	if index >= len(f.responses) {
		// Nothing scripted: return an empty batch.
		json.NewEncoder(writer).Encode(map[string]any{"next_batch": "s" + strconv.Itoa(call)})
		return
	}
	json.NewEncoder(writer).Encode(f.responses[index])
}

func timelineBatch(batch string, room string, bodies ...string) map[string]any {
	events := make([]map[string]any, 0, len(bodies))
	for i, body := range bodies {
		events = append(events, map[string]any{
			"event_id": "$" + batch + "-" + strconv.Itoa(i) + ":example.com",
			"type":     "m.room.message",
			"sender":   "@user:example.com",
			"content":  map[string]any{"msgtype": "m.text", "body": body},
		})
	}
	return map[string]any{
		"next_batch": batch,
		"rooms": map[string]any{
			"join": map[string]any{
				room: map[string]any{
					"timeline": map[string]any{"events": events},
				},
			},
		},
	}
}

func TestRoomWatcher(t *testing.T) {
	room := ref.MustParseRoomID("!ops:example.com")

	t.Run("delivers batched events in order", func(t *testing.T) {
		fake := &fakeSyncServer{t: t, responses: []map[string]any{
			timelineBatch("s1", room.String(), "first", "second"),
			timelineBatch("s2", room.String(), "third"),
		}}
		server := httptest.NewServer(http.HandlerFunc(fake.handler))
		defer server.Close()

		watcher, err := WatchRooms(context.Background(), testSession(t, server), []ref.RoomID{room}, nil)
		if err != nil {
			t.Fatalf("WatchRooms: %v", err)
		}

		for i, want := range []string{"first", "second", "third"} {
			event, err := watcher.Next(context.Background())
			if err != nil {
				t.Fatalf("Next #%d: %v", i, err)
			}
			if event.MessageBody() != want {
				t.Errorf("event #%d body = %q, want %q", i, event.MessageBody(), want)
			}
			if event.RoomID != room {
				t.Errorf("event #%d room = %q, want %q", i, event.RoomID, room)
			}
		}
	})

	t.Run("skips empty batches", func(t *testing.T) {
		fake := &fakeSyncServer{t: t, responses: []map[string]any{
			{"next_batch": "s1"},
			{"next_batch": "s2"},
			timelineBatch("s3", room.String(), "eventually"),
		}}
		server := httptest.NewServer(http.HandlerFunc(fake.handler))
		defer server.Close()

		watcher, err := WatchRooms(context.Background(), testSession(t, server), []ref.RoomID{room}, nil)
		if err != nil {
			t.Fatalf("WatchRooms: %v", err)
		}
		event, err := watcher.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if event.MessageBody() != "eventually" {
			t.Errorf("body = %q", event.MessageBody())
		}
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		fake := &fakeSyncServer{t: t}
		server := httptest.NewServer(http.HandlerFunc(fake.handler))
		defer server.Close()

		watcher, err := WatchRooms(context.Background(), testSession(t, server), []ref.RoomID{room}, nil)
		if err != nil {
			t.Fatalf("WatchRooms: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := watcher.Next(ctx); err == nil {
			t.Fatal("expected error from cancelled context")
		}
	})

	t.Run("requires room IDs", func(t *testing.T) {
		fake := &fakeSyncServer{t: t}
		server := httptest.NewServer(http.HandlerFunc(fake.handler))
		defer server.Close()

		if _, err := WatchRooms(context.Background(), testSession(t, server), nil, nil); err == nil {
			t.Fatal("expected error for empty room list")
		}
	})
}

func TestBuildInlineFilter(t *testing.T) {
	room := ref.MustParseRoomID("!ops:example.com")
	raw := buildInlineFilter([]ref.RoomID{room}, &SyncFilter{
		TimelineTypes: []string{"m.room.message"},
		TimelineLimit: 20,
		ExcludeState:  true,
	})

	var filter map[string]any
	if err := json.Unmarshal([]byte(raw), &filter); err != nil {
		t.Fatalf("filter is not valid JSON: %v", err)
	}

	roomSection, _ := filter["room"].(map[string]any)
	if roomSection == nil {
		t.Fatalf("missing room section in %s", raw)
	}
	rooms, _ := roomSection["rooms"].([]any)
	if len(rooms) != 1 || rooms[0] != room.String() {
		t.Errorf("rooms = %v", rooms)
	}
	timeline, _ := roomSection["timeline"].(map[string]any)
	if timeline == nil || timeline["limit"] != float64(20) {
		t.Errorf("timeline = %v", timeline)
	}
	state, _ := roomSection["state"].(map[string]any)
	if state == nil {
		t.Error("ExcludeState should produce an empty state types filter")
	}

	presence, _ := filter["presence"].(map[string]any)
	if types, _ := presence["types"].([]any); len(types) != 0 {
		t.Errorf("presence types = %v, want empty", types)
	}
}
