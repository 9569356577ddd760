// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
)

type record struct {
	Kind string `cbor:"kind"`
	Text string `cbor:"text"`
}

func TestWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turn.cbor.zst")

	writer, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	written := []record{
		{Kind: "prose", Text: "Step 1 done."},
		{Kind: "tool", Text: "Read main.go"},
		{Kind: "result", Text: "All steps complete."},
	}
	for _, r := range written {
		if err := writer.Append(r); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	var read []record
	for {
		var r record
		err := reader.Next(&r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		read = append(read, r)
	}

	if len(read) != len(written) {
		t.Fatalf("read %d records, want %d", len(read), len(written))
	}
	for index := range written {
		if read[index] != written[index] {
			t.Errorf("record %d mismatch: %+v != %+v", index, read[index], written[index])
		}
	}
}

func TestAppendAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turn.cbor.zst")
	writer, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	writer.Close()

	if err := writer.Append(record{Kind: "prose"}); err == nil {
		t.Error("expected error appending to closed writer")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turn.cbor.zst")
	writer, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
