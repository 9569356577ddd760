// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Courier configuration from a YAML file.
//
// The config file is the single source of truth. There are no fallback
// search paths and environment variables never override file values; the
// only implicit input is the COURIER_CONFIG variable naming the file when
// no --config flag is given. This keeps deployments deterministic and
// auditable.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/courier-chat/courier/lib/ref"
)

// Config is the complete Courier configuration.
type Config struct {
	// Homeserver is the base URL of the Matrix homeserver,
	// e.g. "https://matrix.example.com".
	Homeserver string `yaml:"homeserver"`

	// AccessTokenPath is the path to a file containing the bot account's
	// access token. The token itself never appears in the config file.
	AccessTokenPath string `yaml:"access_token_path"`

	// Rooms lists the room IDs Courier serves. A message in any other
	// room is ignored.
	Rooms []string `yaml:"rooms"`

	// Agent configures the backend agent process.
	Agent AgentConfig `yaml:"agent"`

	// TranscriptDir is the directory where per-turn transcripts are
	// written. Empty disables transcript recording.
	TranscriptDir string `yaml:"transcript_dir"`

	// AttachmentDir is the root directory for downloaded attachment
	// staging. Default: a per-process directory under os.TempDir().
	AttachmentDir string `yaml:"attachment_dir"`

	// SessionIdleTimeout is how long a session may sit with no active
	// turn before its state is discarded, as a Go duration string.
	// Default: "5m".
	SessionIdleTimeout string `yaml:"session_idle_timeout"`

	// SecretFiles lists paths to files whose contents are registered
	// with the output redactor in addition to the access token.
	SecretFiles []string `yaml:"secret_files"`

	// LogLevel is one of "debug", "info", "warn", "error". Default: info.
	LogLevel string `yaml:"log_level"`
}

// AgentConfig configures the backend agent subprocess.
type AgentConfig struct {
	// Binary is the agent executable. Default: "claude" (found in PATH).
	Binary string `yaml:"binary"`

	// ExtraArgs are appended to the generated argument list on every
	// invocation.
	ExtraArgs []string `yaml:"extra_args"`

	// WorkDir is the working directory agent processes run in.
	// Default: the Courier process's working directory.
	WorkDir string `yaml:"work_dir"`

	// Model is passed through to the agent as --model when set.
	Model string `yaml:"model"`
}

// Default returns the default configuration. Defaults exist to give every
// field a usable zero-value, not as a substitute for the config file - the
// file is required.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Binary: "claude",
		},
		SessionIdleTimeout: "5m",
		LogLevel:           "info",
	}
}

// Load loads configuration from the COURIER_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// If COURIER_CONFIG is not set, this fails; there is no search path.
func Load() (*Config, error) {
	path := os.Getenv("COURIER_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("config: COURIER_CONFIG environment variable not set; " +
			"set it to the path of your courier.yaml, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path and validates it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent and that
// all required fields are present.
func (c *Config) Validate() error {
	if c.Homeserver == "" {
		return fmt.Errorf("homeserver is required")
	}
	if c.AccessTokenPath == "" {
		return fmt.Errorf("access_token_path is required")
	}
	if len(c.Rooms) == 0 {
		return fmt.Errorf("at least one room is required")
	}
	for i, room := range c.Rooms {
		if _, err := ref.ParseRoomID(room); err != nil {
			return fmt.Errorf("rooms[%d]: %w", i, err)
		}
	}
	if c.Agent.Binary == "" {
		return fmt.Errorf("agent.binary is required")
	}
	if d, err := time.ParseDuration(c.SessionIdleTimeout); err != nil {
		return fmt.Errorf("session_idle_timeout: %w", err)
	} else if d <= 0 {
		return fmt.Errorf("session_idle_timeout must be positive, got %s", c.SessionIdleTimeout)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
	return nil
}

// SlogLevel returns the configured log level as a slog.Level.
// Validate must have succeeded first.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IdleTimeout returns the parsed session idle timeout.
// Validate must have succeeded first.
func (c *Config) IdleTimeout() time.Duration {
	d, err := time.ParseDuration(c.SessionIdleTimeout)
	if err != nil {
		panic(fmt.Sprintf("config: invalid session_idle_timeout %q: %v", c.SessionIdleTimeout, err))
	}
	return d
}

// RoomIDs returns the configured room list as parsed identifiers.
// Validate must have succeeded first.
func (c *Config) RoomIDs() []ref.RoomID {
	rooms := make([]ref.RoomID, 0, len(c.Rooms))
	for _, room := range c.Rooms {
		rooms = append(rooms, ref.MustParseRoomID(room))
	}
	return rooms
}

// ServesRoom reports whether the given room is in the configured room list.
func (c *Config) ServesRoom(room ref.RoomID) bool {
	for _, candidate := range c.Rooms {
		if candidate == room.String() {
			return true
		}
	}
	return false
}
