// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the process logger.
//
// Output goes to stderr, to a size-rotated file, or both. The full-screen
// chat UI owns the terminal, so it logs to file only.
package logging
