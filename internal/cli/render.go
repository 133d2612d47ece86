// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// newMarkdownRenderer builds a glamour renderer sized to the terminal.
func newMarkdownRenderer(width int) (*glamour.TermRenderer, error) {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithColorProfile(ColorProfile()),
		glamour.WithWordWrap(width-2),
	)
}

// renderMarkdown renders content for terminal display. The original text is
// returned when rendering fails.
func renderMarkdown(content string, width int) string {
	r, err := newMarkdownRenderer(width)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

// displayResponse writes a reply, rendering markdown only on a terminal so
// piped output stays byte-exact.
func displayResponse(w io.Writer, reply string) {
	if isTerminalWriter(w) && ColorsEnabled() {
		fmt.Fprint(w, renderMarkdown(reply, TerminalWidth()))
		return
	}
	fmt.Fprint(w, reply)
	if !strings.HasSuffix(reply, "\n") {
		fmt.Fprintln(w)
	}
}
