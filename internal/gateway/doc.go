// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway sends prompts to a remote model and classifies failures.
//
// A Gateway wraps one Backend (Gemini, or any OpenAI-compatible endpoint).
// The rolling exchange History is an explicit value owned by the caller and
// passed to every Run, so two controllers never share hidden state.
//
// # Errors
//
// Every failure is returned as *Error with a Kind. The sentinels ErrAuth,
// ErrQuota, ErrTimeout, ErrCancelled, ErrInvalidInput and ErrUnknown match
// with errors.Is, and KindOf classifies any error.
//
// # Usage
//
//	gw := gateway.New(backend, gateway.WithRateLimit(30))
//	hist := gateway.NewHistory(gateway.DefaultHistoryLimit)
//	reply, err := gw.Run(ctx, "Hello", hist, true)
//	if errors.Is(err, gateway.ErrQuota) {
//	    ...
//	}
package gateway
