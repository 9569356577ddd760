// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript persists the event stream of a single turn as a
// zstd-compressed sequence of CBOR records. Transcripts are diagnostic
// artifacts: writes must never fail a turn, so callers log append
// errors and continue. One file per turn, named by the caller.
package transcript

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/courier-chat/courier/lib/codec"
)

// Writer appends CBOR records to a zstd-compressed transcript file.
// Writer is not safe for concurrent use — each turn owns its own.
type Writer struct {
	file       *os.File
	compressor *zstd.Encoder
	encoder    *cbor.Encoder
	closed     bool
}

// NewWriter creates a transcript file at path, truncating any previous
// content. The file is written with zstd's default level — transcripts
// are text-heavy and compress well without burning CPU.
func NewWriter(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transcript: creating %s: %w", path, err)
	}

	compressor, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("transcript: creating zstd writer: %w", err)
	}

	return &Writer{
		file:       file,
		compressor: compressor,
		encoder:    codec.NewEncoder(compressor),
	}, nil
}

// Append encodes one record onto the transcript.
func (w *Writer) Append(record any) error {
	if w.closed {
		return fmt.Errorf("transcript: append to closed writer")
	}
	if err := w.encoder.Encode(record); err != nil {
		return fmt.Errorf("transcript: encoding record: %w", err)
	}
	return nil
}

// Close flushes the compressor and closes the file. Idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var firstError error
	if err := w.compressor.Close(); err != nil {
		firstError = fmt.Errorf("transcript: flushing zstd: %w", err)
	}
	if err := w.file.Close(); err != nil && firstError == nil {
		firstError = fmt.Errorf("transcript: closing file: %w", err)
	}
	return firstError
}

// Reader decodes records from a transcript file in append order.
type Reader struct {
	file         *os.File
	decompressor *zstd.Decoder
	decoder      *cbor.Decoder
}

// NewReader opens a transcript file for reading.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: opening %s: %w", path, err)
	}

	decompressor, err := zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("transcript: creating zstd reader: %w", err)
	}

	return &Reader{
		file:         file,
		decompressor: decompressor,
		decoder:      codec.NewDecoder(decompressor.IOReadCloser()),
	}, nil
}

// Next decodes the next record into out. Returns io.EOF when the
// transcript is exhausted.
func (r *Reader) Next(out any) error {
	err := r.decoder.Decode(out)
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("transcript: decoding record: %w", err)
	}
	return nil
}

// Close releases the decompressor and closes the file.
func (r *Reader) Close() error {
	r.decompressor.Close()
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("transcript: closing file: %w", err)
	}
	return nil
}
