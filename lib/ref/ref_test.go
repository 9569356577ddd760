// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"testing"
)

func TestParseUserID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		u, err := ParseUserID("@alice:example.org")
		if err != nil {
			t.Fatalf("ParseUserID failed: %v", err)
		}
		if u.String() != "@alice:example.org" {
			t.Errorf("unexpected string: %s", u)
		}
		if u.Localpart() != "alice" {
			t.Errorf("unexpected localpart: %s", u.Localpart())
		}
		if u.IsZero() {
			t.Error("parsed user ID should not be zero")
		}
	})

	t.Run("invalid", func(t *testing.T) {
		invalid := []string{"", "alice", "@alice", "@:example.org", "@alice:"}
		for _, raw := range invalid {
			if _, err := ParseUserID(raw); err == nil {
				t.Errorf("expected error for %q", raw)
			}
		}
	})
}

func TestParseRoomID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r, err := ParseRoomID("!room:example.org")
		if err != nil {
			t.Fatalf("ParseRoomID failed: %v", err)
		}
		if r.String() != "!room:example.org" {
			t.Errorf("unexpected string: %s", r)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		invalid := []string{"", "room", "!room", "!:example.org", "!room:"}
		for _, raw := range invalid {
			if _, err := ParseRoomID(raw); err == nil {
				t.Errorf("expected error for %q", raw)
			}
		}
	})
}

func TestParseEventID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		e, err := ParseEventID("$abc123")
		if err != nil {
			t.Fatalf("ParseEventID failed: %v", err)
		}
		if e.String() != "$abc123" {
			t.Errorf("unexpected string: %s", e)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{"", "abc", "$"} {
			if _, err := ParseEventID(raw); err == nil {
				t.Errorf("expected error for %q", raw)
			}
		}
	})
}

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		User  UserID  `json:"user"`
		Room  RoomID  `json:"room"`
		Event EventID `json:"event"`
	}

	original := payload{
		User:  MustParseUserID("@bob:example.org"),
		Room:  MustParseRoomID("!r:example.org"),
		Event: MustParseEventID("$e1"),
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded payload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip mismatch: %+v != %+v", decoded, original)
	}
}

func TestUnmarshalRejectsInvalid(t *testing.T) {
	var u UserID
	if err := json.Unmarshal([]byte(`"not-a-user"`), &u); err == nil {
		t.Error("expected error unmarshaling invalid user ID")
	}
	var r RoomID
	if err := json.Unmarshal([]byte(`"not-a-room"`), &r); err == nil {
		t.Error("expected error unmarshaling invalid room ID")
	}
}
