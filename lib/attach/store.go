// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package attach stores ephemeral inbound attachments for a single
// turn. Files are written into the turn's working directory under
// content-addressed names (BLAKE3 digest of the content plus the
// original extension), so re-sent attachments dedupe naturally and
// filenames never collide or carry untrusted path components. The
// whole set is removed by the turn's deferred cleanup.
package attach

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// Store collects the attachments saved for one turn and removes them
// on Cleanup. Store is not safe for concurrent use — each turn owns
// its own.
type Store struct {
	directory string
	logger    *slog.Logger
	saved     []string
}

// NewStore creates a store rooted at directory. The directory is
// created on first Save, so a turn with no attachments leaves nothing
// behind. If logger is nil, slog.Default() is used.
func NewStore(directory string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		directory: directory,
		logger:    logger,
	}
}

// Save writes content to a content-addressed file in the store's
// directory and returns the absolute path. originalName contributes
// only its extension — the rest of the name is the hex BLAKE3 digest,
// so a hostile filename cannot escape the directory.
func (s *Store) Save(originalName string, content []byte) (string, error) {
	digest := blake3.Sum256(content)
	name := hex.EncodeToString(digest[:16]) + filepath.Ext(filepath.Base(originalName))
	path := filepath.Join(s.directory, name)

	// A file with this name has identical content. Record it for
	// cleanup but skip the write.
	if _, err := os.Stat(path); err == nil {
		s.saved = append(s.saved, path)
		return path, nil
	}

	if err := os.MkdirAll(s.directory, 0o700); err != nil {
		return "", fmt.Errorf("attach: creating %s: %w", s.directory, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("attach: writing %s: %w", path, err)
	}
	s.saved = append(s.saved, path)
	return path, nil
}

// Paths returns the saved file paths in save order.
func (s *Store) Paths() []string {
	paths := make([]string, len(s.saved))
	copy(paths, s.saved)
	return paths
}

// Cleanup removes every saved file and the store directory. Removal
// failures are logged and skipped — cleanup is best-effort and must
// never fail a turn. Idempotent: a second call finds nothing to
// remove.
func (s *Store) Cleanup() {
	for _, path := range s.saved {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing attachment", "path", path, "error", err)
		}
	}
	if len(s.saved) > 0 {
		if err := os.Remove(s.directory); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing attachment directory", "path", s.directory, "error", err)
		}
	}
	s.saved = nil
}
