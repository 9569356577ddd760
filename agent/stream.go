// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Stream reads the backend's stream-json stdout line by line and emits
// typed events lazily. Each line is a JSON object with a "type" field;
// one assistant line can carry several content blocks and therefore
// yield several events.
//
// Stream is not safe for concurrent use.
type Stream struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	pending []Event
}

// NewStream wraps the backend's stdout. The line buffer allows up to
// 1 MB per line; tool inputs with large file contents routinely exceed
// the bufio default.
func NewStream(stdout io.Reader, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Stream{
		scanner: scanner,
		logger:  logger,
	}
}

// Next returns the next event from the stream. Cancellation is checked
// before each read from the backend; a cancelled context returns
// ctx.Err() without consuming further output. At end of stream Next
// returns io.EOF. Lines that don't parse, and event types outside the
// closed set, are logged and skipped.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	for {
		if len(s.pending) > 0 {
			event := s.pending[0]
			s.pending = s.pending[1:]
			return event, nil
		}

		if err := ctx.Err(); err != nil {
			return Event{}, err
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Event{}, fmt.Errorf("agent: reading stream: %w", err)
			}
			return Event{}, io.EOF
		}

		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		events, err := parseStreamLine(line)
		if err != nil {
			s.logger.Warn("skipping malformed stream line", "error", err)
			continue
		}
		s.pending = append(s.pending, events...)
	}
}

// streamEnvelope is the common wrapper on every stream-json line.
type streamEnvelope struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
}

// assistantLine is the shape of {"type":"assistant",...} lines. The
// nested message carries an ordered list of content blocks.
type assistantLine struct {
	Message struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// resultLine is the shape of {"type":"result",...} lines.
type resultLine struct {
	Result     string  `json:"result"`
	IsError    bool    `json:"is_error"`
	CostUSD    float64 `json:"total_cost_usd"`
	DurationMS int64   `json:"duration_ms"`
	NumTurns   int     `json:"num_turns"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// parseStreamLine converts one stream-json line into zero or more
// events. Lines of known type but irrelevant content (system init,
// user-echo lines, empty assistant messages) yield no events and no
// error.
func parseStreamLine(line []byte) ([]Event, error) {
	var envelope streamEnvelope
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, fmt.Errorf("parsing envelope: %w", err)
	}

	now := time.Now()

	switch envelope.Type {
	case "assistant":
		var assistant assistantLine
		if err := json.Unmarshal(line, &assistant); err != nil {
			return nil, fmt.Errorf("parsing assistant line: %w", err)
		}
		var events []Event
		for _, block := range assistant.Message.Content {
			switch block.Type {
			case "text":
				if block.Text == "" {
					continue
				}
				events = append(events, Event{
					Timestamp: now,
					Kind:      KindAssistantText,
					SessionID: envelope.SessionID,
					Text:      &TextEvent{Text: block.Text},
				})
			case "tool_use":
				events = append(events, Event{
					Timestamp: now,
					Kind:      KindToolUse,
					SessionID: envelope.SessionID,
					ToolUse: &ToolUseEvent{
						ID:    block.ID,
						Name:  block.Name,
						Input: append(json.RawMessage(nil), block.Input...),
					},
				})
			}
			// Thinking and other block types are not rendered.
		}
		return events, nil

	case "result":
		var result resultLine
		if err := json.Unmarshal(line, &result); err != nil {
			return nil, fmt.Errorf("parsing result line: %w", err)
		}
		kind := KindResultSuccess
		if result.IsError {
			kind = KindResultError
		}
		return []Event{{
			Timestamp: now,
			Kind:      kind,
			SessionID: envelope.SessionID,
			Result: &ResultEvent{
				Subtype:      envelope.Subtype,
				Result:       result.Result,
				IsError:      result.IsError,
				CostUSD:      result.CostUSD,
				DurationMS:   result.DurationMS,
				NumTurns:     result.NumTurns,
				InputTokens:  result.Usage.InputTokens,
				OutputTokens: result.Usage.OutputTokens,
			},
		}}, nil

	case "system", "user":
		// Init lines and tool-result echoes are consumed for their
		// side channel value only; nothing to render.
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown stream event type %q", envelope.Type)
	}
}
