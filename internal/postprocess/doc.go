// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package postprocess turns raw model output into markdown ready for rendering.
//
// Normalize is a pure function. It rewrites bold and line-break tags into
// markdown, strips any other HTML-like tags while keeping their inner text,
// and re-emits fenced code blocks with trimmed bodies. Code inside fences is
// left alone by the tag rules. Normalize is idempotent and never panics; on an
// internal failure it returns its input unchanged.
package postprocess
