// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// courier is a Matrix bot that bridges chat rooms to a streaming agent
// backend. Each thread is an independent session: messages become agent
// turns, streamed output is merged into progressively-updated replies,
// and a new message in a thread supersedes its in-flight turn.
//
// Configuration comes from a single YAML file named by --config or the
// COURIER_CONFIG environment variable; there are no fallback search
// paths. The Matrix access token is read from a separate file so the
// config itself carries no secrets.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/courier-chat/courier/agent"
	"github.com/courier-chat/courier/lib/config"
	"github.com/courier-chat/courier/lib/process"
	"github.com/courier-chat/courier/lib/redact"
	"github.com/courier-chat/courier/lib/secret"
	"github.com/courier-chat/courier/messaging"
	"github.com/courier-chat/courier/orchestrator"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	flagSet := pflag.NewFlagSet("courier", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to courier.yaml (default: $COURIER_CONFIG)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	token, err := secret.ReadFromPath(cfg.AccessTokenPath)
	if err != nil {
		return fmt.Errorf("reading access token: %w", err)
	}

	// The access token itself must never reach a chat message, so it
	// seeds the redactor alongside any operator-listed secret files.
	secretValues := []string{token.String()}
	for _, path := range cfg.SecretFiles {
		value, err := secret.ReadFromPath(path)
		if err != nil {
			return fmt.Errorf("reading secret file: %w", err)
		}
		secretValues = append(secretValues, value.String())
		value.Close()
	}
	masker := redact.New(secretValues)

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	session, err := client.SessionFromToken(ctx, token)
	if err != nil {
		return err
	}
	defer session.Close()

	rooms := cfg.RoomIDs()
	for _, room := range rooms {
		if _, err := session.JoinRoom(ctx, room); err != nil {
			logger.Warn("joining room failed", "room_id", room, "error", err)
		}
	}

	attachmentDir := cfg.AttachmentDir
	if attachmentDir == "" {
		attachmentDir, err = os.MkdirTemp("", "courier-attachments-")
		if err != nil {
			return fmt.Errorf("creating attachment directory: %w", err)
		}
		defer os.RemoveAll(attachmentDir)
	}
	if cfg.TranscriptDir != "" {
		if err := os.MkdirAll(cfg.TranscriptDir, 0o700); err != nil {
			return fmt.Errorf("creating transcript directory: %w", err)
		}
	}

	registry := orchestrator.NewRegistry(orchestrator.RegistryConfig{
		IdleTimeout: cfg.IdleTimeout(),
		Logger:      logger,
	})
	driver := &agent.Driver{
		Binary:    cfg.Agent.Binary,
		ExtraArgs: cfg.Agent.ExtraArgs,
		Model:     cfg.Agent.Model,
		Logger:    logger,
	}

	courier := orchestrator.New(orchestrator.Config{
		Session:       session,
		Registry:      registry,
		Driver:        driver,
		Masker:        masker,
		Rooms:         rooms,
		WorkDir:       cfg.Agent.WorkDir,
		AttachmentDir: attachmentDir,
		TranscriptDir: cfg.TranscriptDir,
		Logger:        logger,
	})

	if err := courier.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("courier shut down")
	return nil
}
