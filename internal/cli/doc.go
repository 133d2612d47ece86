// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the gemtalk command tree.
//
// Commands:
//
//	gemtalk                      interactive chat (TUI on a terminal, REPL otherwise)
//	gemtalk chat [--plain]       same as above
//	gemtalk ask PROMPT [--json]  one-shot question, prompt may come from stdin
//	gemtalk conversations ...    list, show, rename, delete, clear, export
//	gemtalk config ...           show, init, path
//	gemtalk models [--json]      models known for the configured provider
//	gemtalk version
//
// Persistent flags --config, --model, --log-level and --ephemeral apply to
// every command. Errors are mapped to process exit codes by ExitCode.
package cli
