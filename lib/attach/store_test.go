// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package attach

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAndCleanup(t *testing.T) {
	directory := t.TempDir()
	store := NewStore(directory, nil)

	path, err := store.Save("notes.txt", []byte("attachment body"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.HasSuffix(path, ".txt") {
		t.Errorf("extension not preserved: %s", path)
	}
	if !strings.HasPrefix(path, directory) {
		t.Errorf("file outside store directory: %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if string(content) != "attachment body" {
		t.Errorf("unexpected content: %q", content)
	}

	store.Cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file survived cleanup")
	}

	// Second cleanup is a no-op.
	store.Cleanup()
}

func TestSaveCreatesTurnDirectory(t *testing.T) {
	// Stores are rooted at per-turn subdirectories that do not exist
	// yet when the turn starts.
	directory := filepath.Join(t.TempDir(), "turn-12345")
	store := NewStore(directory, nil)

	path, err := store.Save("notes.txt", []byte("first save in a fresh turn"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("saved file missing: %v", err)
	}

	store.Cleanup()
	if _, err := os.Stat(directory); !os.IsNotExist(err) {
		t.Error("turn directory survived cleanup")
	}
}

func TestSaveDedupesIdenticalContent(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	first, err := store.Save("a.png", []byte("same bytes"))
	if err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	second, err := store.Save("b.png", []byte("same bytes"))
	if err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	if first != second {
		t.Errorf("identical content produced different paths: %s vs %s", first, second)
	}
}

func TestSaveIgnoresHostileFilename(t *testing.T) {
	directory := t.TempDir()
	store := NewStore(directory, nil)

	path, err := store.Save("../../etc/passwd", []byte("content"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.HasPrefix(path, directory) {
		t.Errorf("hostile name escaped the directory: %s", path)
	}
}
