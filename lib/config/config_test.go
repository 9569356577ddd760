// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/courier-chat/courier/lib/ref"
)

const validConfig = `
homeserver: https://matrix.example.com
access_token_path: /run/secrets/courier-token
rooms:
  - "!ops:example.com"
  - "!dev:example.com"
agent:
  binary: claude
  extra_args: ["--verbose"]
  work_dir: /srv/courier/work
transcript_dir: /var/log/courier/transcripts
session_idle_timeout: 10m
log_level: debug
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "courier.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Homeserver != "https://matrix.example.com" {
		t.Errorf("Homeserver = %q", cfg.Homeserver)
	}
	if len(cfg.Rooms) != 2 {
		t.Fatalf("Rooms = %v, want 2 entries", cfg.Rooms)
	}
	if got := cfg.RoomIDs()[0].String(); got != "!ops:example.com" {
		t.Errorf("RoomIDs()[0] = %q", got)
	}
	if cfg.Agent.Binary != "claude" {
		t.Errorf("Agent.Binary = %q", cfg.Agent.Binary)
	}
	if cfg.IdleTimeout() != 10*time.Minute {
		t.Errorf("IdleTimeout = %s, want 10m", cfg.IdleTimeout())
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel = %v, want debug", cfg.SlogLevel())
	}
}

func TestLoadFileDefaults(t *testing.T) {
	minimal := `
homeserver: https://matrix.example.com
access_token_path: /run/secrets/courier-token
rooms: ["!ops:example.com"]
`
	cfg, err := LoadFile(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Agent.Binary != "claude" {
		t.Errorf("Agent.Binary = %q, want default claude", cfg.Agent.Binary)
	}
	if cfg.IdleTimeout() != 5*time.Minute {
		t.Errorf("IdleTimeout = %s, want default 5m", cfg.IdleTimeout())
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("SlogLevel = %v, want default info", cfg.SlogLevel())
	}
}

func TestLoadFileRejectsUnknownFields(t *testing.T) {
	bad := validConfig + "\nnot_a_real_field: true\n"
	if _, err := LoadFile(writeConfig(t, bad)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing homeserver", func(c *Config) { c.Homeserver = "" }, "homeserver"},
		{"missing token path", func(c *Config) { c.AccessTokenPath = "" }, "access_token_path"},
		{"no rooms", func(c *Config) { c.Rooms = nil }, "room"},
		{"bad room id", func(c *Config) { c.Rooms = []string{"ops:example.com"} }, "rooms[0]"},
		{"missing agent binary", func(c *Config) { c.Agent.Binary = "" }, "agent.binary"},
		{"bad timeout", func(c *Config) { c.SessionIdleTimeout = "never" }, "session_idle_timeout"},
		{"negative timeout", func(c *Config) { c.SessionIdleTimeout = "-1m" }, "positive"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := LoadFile(writeConfig(t, validConfig))
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			test.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error %q does not mention %q", err, test.wantErr)
			}
		})
	}
}

func TestLoadRequiresEnvironment(t *testing.T) {
	t.Setenv("COURIER_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error with COURIER_CONFIG unset")
	}

	path := writeConfig(t, validConfig)
	t.Setenv("COURIER_CONFIG", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Homeserver == "" {
		t.Error("loaded config is empty")
	}
}

func TestServesRoom(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !cfg.ServesRoom(cfg.RoomIDs()[0]) {
		t.Error("ServesRoom should accept a configured room")
	}
	if cfg.ServesRoom(ref.MustParseRoomID("!other:example.com")) {
		t.Error("ServesRoom should reject an unconfigured room")
	}
}
