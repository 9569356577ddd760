// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/courier-chat/courier/lib/clock"
	"github.com/courier-chat/courier/lib/ref"
)

// Session holds per-conversation state that outlives a single turn:
// the backend session handle, the accumulated todo list and its
// persistent message, the applied reaction marker, and the activity
// timestamp that drives idle cleanup.
//
// Fields are guarded by the session's own mutex: the key's single
// active execution and the cleanup timer goroutine both touch them.
type Session struct {
	mu sync.Mutex

	backendID     string
	lastActivity  time.Time
	todos         []TodoItem
	todoMessageID ref.EventID

	// One status marker at a time. reactionEventID is the marker's own
	// event, needed for removal; reactionTarget is the user message it
	// decorates.
	reactionKey     string
	reactionEventID ref.EventID
	reactionTarget  ref.EventID
}

// BackendID returns the backend-assigned session identifier, empty
// until the first successful exchange.
func (s *Session) BackendID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backendID
}

// SetBackendID records the backend session handle. The first non-empty
// value wins; the backend does not reassign identifiers mid-session.
func (s *Session) SetBackendID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backendID == "" && id != "" {
		s.backendID = id
	}
}

// Touch records activity, deferring any pending idle cleanup.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

// Todos returns the current todo list snapshot.
func (s *Session) Todos() []TodoItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.todos
}

// SetTodos replaces the todo list snapshot.
func (s *Session) SetTodos(todos []TodoItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = todos
}

// TodoMessage returns the persistent task-list message ID, zero when
// none has been posted.
func (s *Session) TodoMessage() ref.EventID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.todoMessageID
}

// SetTodoMessage records the persistent task-list message ID.
func (s *Session) SetTodoMessage(id ref.EventID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todoMessageID = id
}

// Reaction returns the applied marker key, the marker's event ID, and
// the user message it decorates.
func (s *Session) Reaction() (key string, eventID, target ref.EventID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reactionKey, s.reactionEventID, s.reactionTarget
}

// SetReaction records the currently-applied marker.
func (s *Session) SetReaction(key string, eventID, target ref.EventID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reactionKey = key
	s.reactionEventID = eventID
	s.reactionTarget = target
}

// clearEphemeral drops todo and reaction state after the idle window.
// The backend session handle survives so a late follow-up message can
// still resume the conversation.
func (s *Session) clearEphemeral() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = nil
	s.todoMessageID = ref.EventID{}
	s.reactionKey = ""
	s.reactionEventID = ref.EventID{}
	s.reactionTarget = ref.EventID{}
}

// idleSince reports how long the session has been inactive at now.
func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// Execution is one user turn. It owns the cancellation context that a
// superseding turn signals; the dispatcher checks it cooperatively at
// each event pull.
type Execution struct {
	key    SessionKey
	ctx    context.Context
	cancel context.CancelFunc
}

// Context returns the execution's cancellation context.
func (e *Execution) Context() context.Context {
	return e.ctx
}

// Cancelled reports whether a superseding turn has signalled this one.
func (e *Execution) Cancelled() bool {
	return e.ctx.Err() != nil
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// IdleTimeout is the inactivity window after which a session's
	// ephemeral state is cleared.
	IdleTimeout time.Duration
	// Clock drives cleanup timers. If nil, the real clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Registry is the keyed store of live sessions and their executions.
// It enforces the exclusivity invariant: at most one execution per
// SessionKey, with a new turn cancelling the previous one.
type Registry struct {
	mu          sync.Mutex
	sessions    map[SessionKey]*Session
	executions  map[SessionKey]*Execution
	idleTimeout time.Duration
	clock       clock.Clock
	logger      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(config RegistryConfig) *Registry {
	timepiece := config.Clock
	if timepiece == nil {
		timepiece = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idleTimeout := config.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Minute
	}
	return &Registry{
		sessions:    make(map[SessionKey]*Session),
		executions:  make(map[SessionKey]*Execution),
		idleTimeout: idleTimeout,
		clock:       timepiece,
		logger:      logger,
	}
}

// Resolve creates or returns the session for a key. Never fails.
func (r *Registry) Resolve(key SessionKey) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[key]
	if !ok {
		session = &Session{lastActivity: r.clock.Now()}
		r.sessions[key] = session
	}
	return session
}

// StartExecution cancels and removes any execution registered under
// the key, then registers and returns a new one. Cancellation is a
// signal, not forced termination: the superseded turn observes it at
// its next event pull.
func (r *Registry) StartExecution(key SessionKey) *Execution {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.executions[key]; ok {
		prior.cancel()
		delete(r.executions, key)
		r.logger.Info("superseded in-flight turn", "session_key", key.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	execution := &Execution{key: key, ctx: ctx, cancel: cancel}
	r.executions[key] = execution
	return execution
}

// EndExecution unregisters the execution. Idempotent: a turn that was
// already superseded finds someone else's execution (or none) under
// its key and leaves it alone.
func (r *Registry) EndExecution(execution *Execution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.executions[execution.key]; ok && current == execution {
		delete(r.executions, execution.key)
	}
	execution.cancel()
}

// ScheduleCleanup arms a one-shot timer that clears the session's todo
// and reaction state after the idle window. A new message before the
// timer fires defers cleanup implicitly via the activity timestamp; the
// timer itself is never cancelled.
//
// Sessions holding a backend ID stay registered so a later message in
// the thread resumes the same backend conversation; sessions that never
// obtained one are dropped entirely.
func (r *Registry) ScheduleCleanup(key SessionKey) {
	session := r.Resolve(key)
	r.clock.AfterFunc(r.idleTimeout, func() {
		if session.idleSince(r.clock.Now()) < r.idleTimeout {
			return
		}
		session.clearEphemeral()
		if session.BackendID() == "" {
			r.mu.Lock()
			if r.sessions[key] == session {
				delete(r.sessions, key)
			}
			r.mu.Unlock()
		}
		r.logger.Debug("cleared idle session state", "session_key", key.String())
	})
}
