// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
)

// Driver launches backend agent turns as subprocesses.
type Driver struct {
	// Binary is the agent executable, found in PATH when not absolute.
	Binary string

	// ExtraArgs are appended to the generated argument list.
	ExtraArgs []string

	// Model is passed as --model when non-empty.
	Model string

	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// TurnOptions configures one agent turn.
type TurnOptions struct {
	// Prompt is the user's composed request.
	Prompt string

	// WorkDir is the working directory for the agent process.
	WorkDir string

	// SessionID resumes an existing backend session when non-empty.
	SessionID string
}

// Turn is a running agent subprocess and its event stream.
type Turn struct {
	command *exec.Cmd
	stdout  io.ReadCloser
	stream  *Stream
	logger  *slog.Logger
}

// Start spawns an agent process with stream-json output. The process
// inherits the parent environment and writes its stderr through.
//
// ctx bounds process startup only; cancellation of a running turn is
// cooperative via Interrupt, not via killing the process group, so the
// agent can finish its current tool call and flush state.
func (d *Driver) Start(ctx context.Context, options TurnOptions) (*Turn, error) {
	if d.Binary == "" {
		return nil, fmt.Errorf("agent: driver Binary is required")
	}
	if options.Prompt == "" {
		return nil, fmt.Errorf("agent: prompt is required")
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	arguments := d.buildArguments(options)
	command := exec.CommandContext(ctx, d.Binary, arguments...)
	command.Dir = options.WorkDir
	command.Stderr = os.Stderr

	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agent: creating stdout pipe: %w", err)
	}

	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("agent: starting %s: %w", d.Binary, err)
	}

	logger.Info("agent turn started",
		"binary", d.Binary,
		"work_dir", options.WorkDir,
		"resumed_session", options.SessionID != "",
	)

	return &Turn{
		command: command,
		stdout:  stdout,
		stream:  NewStream(stdout, logger),
		logger:  logger,
	}, nil
}

// buildArguments assembles the CLI argument list for a turn. The
// prompt travels as the final positional argument.
func (d *Driver) buildArguments(options TurnOptions) []string {
	arguments := []string{
		"--output-format", "stream-json",
		"--print",
		"--verbose",
	}
	if options.SessionID != "" {
		arguments = append(arguments, "--resume", options.SessionID)
	}
	if d.Model != "" {
		arguments = append(arguments, "--model", d.Model)
	}
	arguments = append(arguments, d.ExtraArgs...)
	arguments = append(arguments, options.Prompt)
	return arguments
}

// Events returns the turn's event stream.
func (t *Turn) Events() *Stream {
	return t.stream
}

// Interrupt sends SIGINT to the agent, which finishes its current tool
// call and exits gracefully.
func (t *Turn) Interrupt() error {
	if t.command.Process == nil {
		return fmt.Errorf("agent: process not started")
	}
	return t.command.Process.Signal(syscall.SIGINT)
}

// Wait reaps the process after the stream is exhausted. An exit error
// after a terminal result event has been consumed is expected on
// interrupted turns; callers decide whether it matters.
func (t *Turn) Wait() error {
	if err := t.command.Wait(); err != nil {
		return fmt.Errorf("agent: process exited: %w", err)
	}
	return nil
}
