// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides a gateway.Backend for OpenAI-compatible endpoints.
//
// The default endpoint is OpenRouter, which can route to Gemini models as
// well as others. Requests go through github.com/sashabaranov/go-openai with
// OpenRouter attribution headers, transient failures (429 and 5xx) are
// retried with exponential backoff, and errors are mapped onto gateway kinds.
//
// # Usage
//
//	client := cloud.NewOpenRouterClient(apiKey).
//	    WithModel("google/gemini-2.0-flash-001").
//	    WithMaxRetries(2)
//	gw := gateway.New(client)
package cloud
