// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversations to Markdown, JSON or HTML files.
//
// # Usage
//
//	exp, err := export.ForFormat("md", export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.ToFile(conv, exp, opts)
//
// Error messages stored in a conversation are exported too, marked as
// errors, so an export is a faithful copy of what the user saw.
package export
