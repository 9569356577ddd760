// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/courier-chat/courier/agent"
	"github.com/courier-chat/courier/lib/attach"
	"github.com/courier-chat/courier/lib/clock"
	"github.com/courier-chat/courier/lib/redact"
	"github.com/courier-chat/courier/lib/ref"
	"github.com/courier-chat/courier/lib/transcript"
	"github.com/courier-chat/courier/messaging"
)

// Orchestrator routes inbound chat events into agent turns. Each
// SessionKey gets a single logical worker: a new message for a key
// supersedes its in-flight turn, while independent keys run
// concurrently.
type Orchestrator struct {
	session    *messaging.DirectSession
	registry   *Registry
	dispatcher *Dispatcher
	driver     *agent.Driver
	masker     *redact.Masker
	clock      clock.Clock
	logger     *slog.Logger

	workDir       string
	attachmentDir string
	transcriptDir string
	rooms         []ref.RoomID
	self          ref.UserID
}

// Config configures an Orchestrator.
type Config struct {
	// Session is the authenticated transport session. Its identity is
	// used to ignore the bot's own messages.
	Session *messaging.DirectSession
	// Registry tracks sessions and execution exclusivity.
	Registry *Registry
	// Driver launches backend turns.
	Driver *agent.Driver
	// Masker redacts every outbound text.
	Masker *redact.Masker
	// Rooms are the rooms Courier serves.
	Rooms []ref.RoomID
	// WorkDir is the agent's working directory.
	WorkDir string
	// AttachmentDir is the staging root for downloaded attachments.
	AttachmentDir string
	// TranscriptDir enables turn transcripts when non-empty.
	TranscriptDir string
	// Clock drives timestamps and cleanup. If nil, the real clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// New creates an Orchestrator and its dispatcher.
func New(config Config) *Orchestrator {
	timepiece := config.Clock
	if timepiece == nil {
		timepiece = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dispatcher := NewDispatcher(DispatcherConfig{
		Surface:  config.Session,
		Masker:   config.Masker,
		Registry: config.Registry,
		Clock:    timepiece,
		Logger:   logger,
	})
	return &Orchestrator{
		session:       config.Session,
		registry:      config.Registry,
		dispatcher:    dispatcher,
		driver:        config.Driver,
		masker:        config.Masker,
		clock:         timepiece,
		logger:        logger,
		workDir:       config.WorkDir,
		attachmentDir: config.AttachmentDir,
		transcriptDir: config.TranscriptDir,
		rooms:         config.Rooms,
		self:          config.Session.UserID(),
	}
}

// Run watches the configured rooms and handles message events until
// ctx is cancelled. The watcher's checkpoint sync means only messages
// arriving after startup are processed.
func (o *Orchestrator) Run(ctx context.Context) error {
	watcher, err := messaging.WatchRooms(ctx, o.session, o.rooms, &messaging.SyncFilter{
		TimelineTypes: []string{"m.room.message"},
		ExcludeState:  true,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: starting room watch: %w", err)
	}
	o.logger.Info("orchestrator running", "rooms", len(o.rooms), "user_id", o.self)

	for {
		event, err := watcher.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("orchestrator: room watch: %w", err)
		}
		o.HandleEvent(ctx, event)
	}
}

// HandleEvent inspects one timeline event and, when it is a user
// message, starts a turn for its session key. Returns immediately; the
// turn runs on its own goroutine.
func (o *Orchestrator) HandleEvent(ctx context.Context, event messaging.Event) {
	if event.Type != "m.room.message" || event.Sender == o.self {
		return
	}
	content := event.Content
	if relates, ok := content["m.relates_to"].(map[string]any); ok {
		if relType, _ := relates["rel_type"].(string); relType == "m.replace" || relType == "m.annotation" {
			// Edits and reactions are not new requests.
			return
		}
	}
	body := event.MessageBody()
	if strings.TrimSpace(body) == "" && content["url"] == nil {
		return
	}

	thread := event.ThreadRoot()
	if thread.IsZero() {
		thread = event.EventID
	}
	key := SessionKey{User: event.Sender, Room: event.RoomID, Thread: thread}

	session := o.registry.Resolve(key)
	session.Touch(o.clock.Now())
	execution := o.registry.StartExecution(key)

	go o.runTurn(ctx, key, session, execution, event)
}

// runTurn stages attachments, composes the prompt, launches the agent,
// and hands the stream to the dispatcher.
func (o *Orchestrator) runTurn(ctx context.Context, key SessionKey, session *Session, execution *Execution, event messaging.Event) {
	defer o.registry.EndExecution(execution)
	logger := o.logger.With("session_key", key.String())

	store := attach.NewStore(filepath.Join(o.attachmentDir, fmt.Sprintf("turn-%d", o.clock.Now().UnixNano())), logger)
	prompt := o.composePrompt(ctx, event, store, logger)

	turn, err := o.driver.Start(ctx, agent.TurnOptions{
		Prompt:    prompt,
		WorkDir:   o.workDir,
		SessionID: session.BackendID(),
	})
	if err != nil {
		logger.Error("starting agent failed", "error", err)
		o.reportStartFailure(ctx, key, event, err)
		store.Cleanup()
		return
	}

	// A superseding turn signals the execution context; pass the signal
	// on to the agent so it winds down instead of streaming into the void.
	stopInterrupt := context.AfterFunc(execution.Context(), func() {
		if err := turn.Interrupt(); err != nil {
			logger.Debug("interrupting superseded agent failed", "error", err)
		}
	})
	defer stopInterrupt()

	recorder, closeRecorder := o.openTranscript(logger)

	renderer := NewRenderer(RendererConfig{
		Surface: o.session,
		Masker:  o.masker,
		Logger:  logger,
		Room:    key.Room,
		Thread:  key.Thread,
	})

	o.dispatcher.RunTurn(ctx, TurnParams{
		Key:         key,
		Session:     session,
		Execution:   execution,
		Renderer:    renderer,
		Events:      turn.Events(),
		UserMessage: event.EventID,
		Cleanup: func() {
			store.Cleanup()
			closeRecorder()
		},
		Transcript: recorder,
	})

	if err := turn.Wait(); err != nil {
		logger.Debug("agent process exit", "error", err)
	}
}

// composePrompt builds the agent prompt from the message body plus a
// reference line per staged attachment. Download failures are logged
// and the attachment skipped; the turn proceeds on the text alone.
func (o *Orchestrator) composePrompt(ctx context.Context, event messaging.Event, store *attach.Store, logger *slog.Logger) string {
	prompt := event.MessageBody()

	mxcURI, _ := event.Content["url"].(string)
	if mxcURI == "" {
		return prompt
	}
	filename, _ := event.Content["filename"].(string)
	if filename == "" {
		filename = event.MessageBody()
	}

	data, err := o.session.DownloadMedia(ctx, mxcURI)
	if err != nil {
		logger.Warn("downloading attachment failed", "uri", mxcURI, "error", err)
		return prompt
	}
	path, err := store.Save(filename, data)
	if err != nil {
		logger.Warn("staging attachment failed", "error", err)
		return prompt
	}
	return fmt.Sprintf("%s\n\nAttached file: %s", prompt, path)
}

// reportStartFailure tells the user the agent never started. Best
// effort; the failure is already logged.
func (o *Orchestrator) reportStartFailure(ctx context.Context, key SessionKey, event messaging.Event, startErr error) {
	body := o.masker.Mask(fmt.Sprintf("%s *%s*\n\n⚠️ Could not start the agent: %v", StatusError.Emoji, StatusError.Text, startErr))
	content := messaging.WithFormatting(messaging.NewThreadReply(key.Thread, body))
	if _, err := o.session.SendMessage(ctx, key.Room, content); err != nil {
		o.logger.Warn("reporting start failure failed", "error", err)
	}
}

// openTranscript creates a per-turn transcript writer when recording
// is enabled. The returned close function is safe to call regardless.
func (o *Orchestrator) openTranscript(logger *slog.Logger) (TranscriptAppender, func()) {
	if o.transcriptDir == "" {
		return nil, func() {}
	}
	path := filepath.Join(o.transcriptDir, fmt.Sprintf("turn-%d.cbor.zst", o.clock.Now().UnixNano()))
	writer, err := transcript.NewWriter(path)
	if err != nil {
		logger.Warn("opening transcript failed", "path", path, "error", err)
		return nil, func() {}
	}
	return writer, func() {
		if err := writer.Close(); err != nil {
			logger.Warn("closing transcript failed", "error", err)
		}
	}
}
