// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini implements gateway.Backend on the Google Generative AI SDK.
//
// Each Generate call starts a fresh chat session seeded with the rolling
// history, sends the prompt and joins the text parts of the first candidate.
// Provider errors are mapped onto gateway kinds (auth, quota, timeout).
package gemini
