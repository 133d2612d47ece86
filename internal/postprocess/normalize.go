// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package postprocess

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// PATTERNS
// =============================================================================

var (
	boldPattern  = regexp.MustCompile(`(?i)<(?:b|strong)>(.*?)</(?:b|strong)>`)
	breakPattern = regexp.MustCompile(`(?i)<br\s*/?>`)

	// Only things shaped like real tags. "a < b" and "<-chan" survive.
	tagPattern = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9-]*(?:\s[^<>]*)?/?>`)

	fencePattern = regexp.MustCompile("```(\\w+)?\\n([\\s\\S]*?)```")
)

// HardBreak is the markdown hard line break emitted for <br> tags.
const HardBreak = "  \n"

// maxPasses bounds the rewrite loops. Nested constructs such as "<<b>i>"
// expose a new tag after a strip, so the rules run until nothing changes.
const maxPasses = 8

// =============================================================================
// NORMALIZE
// =============================================================================

// Normalize converts raw model output into normalized markdown.
func Normalize(raw string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = raw
		}
	}()

	if raw == "" {
		return raw
	}

	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = norm.NFC.String(text)

	// Stripping a tag can join backticks into a new fence or a base letter
	// with a combining mark, so the passes repeat until the text is stable.
	for i := 0; i < maxPasses; i++ {
		next := norm.NFC.String(rewrite(text))
		if next == text {
			break
		}
		text = next
	}
	return text
}

// rewrite runs one pass of fence formatting and tag rewriting.
func rewrite(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))

	last := 0
	for _, loc := range fencePattern.FindAllStringSubmatchIndex(text, -1) {
		sb.WriteString(rewriteTags(text[last:loc[0]]))

		lang := ""
		if loc[2] >= 0 {
			lang = text[loc[2]:loc[3]]
		}
		sb.WriteString(formatFence(lang, text[loc[4]:loc[5]]))
		last = loc[1]
	}
	sb.WriteString(rewriteTags(text[last:]))
	return sb.String()
}

// rewriteTags applies the bold, break and strip rules to prose outside fences.
func rewriteTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	for i := 0; i < maxPasses; i++ {
		next := boldPattern.ReplaceAllString(s, "**$1**")
		next = breakPattern.ReplaceAllString(next, HardBreak)
		next = tagPattern.ReplaceAllString(next, "")
		if next == s {
			break
		}
		s = next
	}
	return s
}

func formatFence(lang, code string) string {
	return "```" + lang + "\n" + strings.TrimSpace(code) + "\n```"
}
