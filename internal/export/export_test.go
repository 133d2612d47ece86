// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemtalk/internal/model"
)

var fixedNow = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func testOptions(dir string) *Options {
	opts := DefaultOptions()
	opts.OutputDir = dir
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

func sampleConversation() model.Conversation {
	at := time.Date(2025, 3, 4, 5, 0, 0, 0, time.UTC)
	conv := model.NewConversation(at)
	conv.Title = "How do *goroutines* work: a primer"
	conv.Messages = []model.Message{
		model.NewMessage(model.RoleUser, "How do goroutines work?", at),
		model.NewMessage(model.RoleAssistant, "They are **lightweight** threads.\n\nScheduled by the runtime.", at.Add(time.Second)),
		model.NewMessage(model.RoleUser, "<script>alert(1)</script>", at.Add(2*time.Second)),
		model.NewErrorMessage("Error: request timed out", at.Add(3*time.Second)),
	}
	return conv
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format string
		ext    string
	}{
		{"md", ".md"},
		{"markdown", ".md"},
		{"JSON", ".json"},
		{".html", ".html"},
		{"htm", ".html"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			exp, err := ForFormat(tt.format, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.ext, exp.FileExtension())
		})
	}

	_, err := ForFormat("pdf", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "md, json, html")
}

func TestEmptyConversationRejected(t *testing.T) {
	conv := model.NewConversation(fixedNow)
	for _, format := range Formats {
		exp, err := ForFormat(format, nil)
		require.NoError(t, err)
		_, err = exp.Export(conv)
		assert.ErrorIs(t, err, ErrEmptyConversation, format)
	}
}

// =============================================================================
// MARKDOWN
// =============================================================================

func TestMarkdownExport(t *testing.T) {
	out, err := NewMarkdownExporter(testOptions("")).Export(sampleConversation())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\n"))
	assert.Contains(t, md, `title: "How do *goroutines* work: a primer"`)
	assert.Contains(t, md, "messages: 4\n")
	assert.Contains(t, md, "exported: 2025-03-04T05:06:07Z\n")
	assert.Contains(t, md, `# How do \*goroutines\* work: a primer`)
	assert.Contains(t, md, "### You <sub>05:00:00</sub>")
	assert.Contains(t, md, "### Gemini <sub>05:00:01</sub>")
	assert.Contains(t, md, "They are **lightweight** threads.")
	assert.Contains(t, md, "### Error <sub>05:00:03</sub>\n\n> Error: request timed out")
	assert.Contains(t, md, "*Exported from gemtalk on March 4, 2025 at 5:06 AM*")
}

func TestMarkdownExportWithoutMetadata(t *testing.T) {
	opts := testOptions("")
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false

	out, err := NewMarkdownExporter(opts).Export(sampleConversation())
	require.NoError(t, err)
	md := string(out)

	assert.False(t, strings.HasPrefix(md, "---"))
	assert.Contains(t, md, "### You\n\n")
	assert.NotContains(t, md, "<sub>")
}

func TestEscapeYAML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain title", "plain title"},
		{"key: value", `"key: value"`},
		{`say "hi"`, `"say \"hi\""`},
		{"two\nlines", `"two\nlines"`},
		{" padded", `" padded"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeYAML(tt.in), tt.in)
	}
}

// =============================================================================
// JSON
// =============================================================================

func TestJSONExportDecodesToConversation(t *testing.T) {
	conv := sampleConversation()
	out, err := NewJSONExporter(testOptions("")).Export(conv)
	require.NoError(t, err)

	var back model.Conversation
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, conv.ID, back.ID)
	assert.Equal(t, conv.Title, back.Title)
	require.Len(t, back.Messages, 4)
	assert.True(t, back.Messages[3].IsError)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(out, &raw))
	assert.Equal(t, "gemtalk", raw["generator"])
	assert.Equal(t, "2025-03-04T05:06:07Z", raw["exportedAt"])
}

// =============================================================================
// HTML
// =============================================================================

func TestHTMLExportEscapesContent(t *testing.T) {
	out, err := NewHTMLExporter(testOptions("")).Export(sampleConversation())
	require.NoError(t, err)
	page := string(out)

	assert.Contains(t, page, "<!DOCTYPE html>")
	assert.NotContains(t, page, "<script>alert(1)</script>")
	assert.Contains(t, page, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.Contains(t, page, `class="message error"`)
	assert.Contains(t, page, `class="message assistant"`)
	assert.Contains(t, page, "<p>Scheduled by the runtime.</p>")
	assert.Contains(t, page, "4 messages")
}

func TestParagraphs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, paragraphs("\n a \n\n\n\nb\n"))
	assert.Nil(t, paragraphs("  "))
}

// =============================================================================
// FILES
// =============================================================================

func TestToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	opts := testOptions(dir)

	path, err := ToFile(sampleConversation(), NewMarkdownExporter(opts), opts)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "conversation_How_do_-goroutines-_work-_a_primer_20250304_050607.md"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# How do")
}

func TestToFileEmptyConversationWritesNothing(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)

	_, err := ToFile(model.NewConversation(fixedNow), NewJSONExporter(opts), opts)
	require.ErrorIs(t, err, ErrEmptyConversation)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"simple", "simple"},
		{"with spaces\tand tabs", "with_spaces_and_tabs"},
		{`a/b\c:d*e?f"g<h>i|j`, "a-b-c-d-e-f-g-h-i-j"},
		{"", "conversation"},
		{"ctrl\x01char", "ctrl-char"},
		{"日本語のタイトル", "日本語のタイトル"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}

	long := strings.Repeat("é", 80)
	assert.Equal(t, 50, len([]rune(sanitizeFilename(long))))
}
