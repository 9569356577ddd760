// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdown is the shared converter for formatted message bodies. GFM
// covers the constructs agents actually emit: fenced code blocks,
// tables, strikethrough, task lists.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// RenderMarkdown converts a Markdown body to the HTML used in
// formatted_body.
func RenderMarkdown(body string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("messaging: markdown conversion failed: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// WithFormatting returns the content with an HTML formatted_body
// rendered from the plain-text body. On conversion failure the content
// is returned unformatted; the plain body is always authoritative.
func WithFormatting(content MessageContent) MessageContent {
	rendered, err := RenderMarkdown(content.Body)
	if err != nil {
		return content
	}
	content.Format = FormatCustomHTML
	content.FormattedBody = rendered
	return content
}
