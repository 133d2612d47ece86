// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/gemtalk/internal/config"
	"github.com/jeranaias/gemtalk/internal/gateway"
	"github.com/jeranaias/gemtalk/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitQuotaError    = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8

	// ExitInterrupted follows the shell convention for SIGINT.
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError is a bad invocation: wrong arguments or conflicting flags.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return e.Reason
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Reason: fmt.Sprintf(format, args...)}
}

// CommandError wraps a failure with the command that hit it.
type CommandError struct {
	Command string
	Action  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func wrapError(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// ExitCode maps err to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	var verrs config.ValidationErrors
	var verr config.ValidationError
	switch {
	case errors.As(err, &usage):
		return ExitUsageError
	case errors.Is(err, config.ErrMissingAPIKey),
		errors.As(err, &verrs),
		errors.As(err, &verr),
		errors.Is(err, storage.ErrUnknownBackend):
		return ExitConfigError
	case errors.Is(err, storage.ErrConversationNotFound):
		return ExitNotFoundError
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	}

	switch gateway.KindOf(err) {
	case gateway.KindAuth:
		return ExitAuthError
	case gateway.KindQuota:
		return ExitQuotaError
	case gateway.KindTimeout:
		return ExitTimeoutError
	case gateway.KindCancelled:
		return ExitInterrupted
	case gateway.KindInvalidInput:
		return ExitUsageError
	}
	return ExitGeneralError
}

// displayError prints err in the standard format.
func displayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("Error:"), err.Error())
}
