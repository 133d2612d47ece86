// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// ERROR KINDS
// =============================================================================

// Kind classifies a gateway failure.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindAuth         Kind = "auth"
	KindQuota        Kind = "quota"
	KindTimeout      Kind = "timeout"
	KindCancelled    Kind = "cancelled"
	KindUnknown      Kind = "unknown"
)

// Sentinel errors, one per Kind.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrAuth         = errors.New("authentication failed")
	ErrQuota        = errors.New("quota exceeded")
	ErrTimeout      = errors.New("request timed out")
	ErrCancelled    = errors.New("request cancelled")
	ErrUnknown      = errors.New("request failed")
)

// Default user-facing messages per kind.
const (
	MsgInvalidInput = "Please enter a prompt"
	MsgAuth         = "API key issue. Please check your configuration."
	MsgQuota        = "API quota exceeded. Please try again later."
	MsgTimeout      = "Request timed out. Please try again."
	MsgCancelled    = "Request was cancelled"
)

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidInput:
		return ErrInvalidInput
	case KindAuth:
		return ErrAuth
	case KindQuota:
		return ErrQuota
	case KindTimeout:
		return ErrTimeout
	case KindCancelled:
		return ErrCancelled
	default:
		return ErrUnknown
	}
}

func (k Kind) defaultMessage() string {
	switch k {
	case KindInvalidInput:
		return MsgInvalidInput
	case KindAuth:
		return MsgAuth
	case KindQuota:
		return MsgQuota
	case KindTimeout:
		return MsgTimeout
	case KindCancelled:
		return MsgCancelled
	default:
		return "Unknown error"
	}
}

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// =============================================================================
// ERROR TYPE
// =============================================================================

// Error is the classified failure returned by Run and by backends.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// NewError creates an Error. An empty msg uses the kind's default message.
func NewError(kind Kind, msg string, err error) *Error {
	if msg == "" {
		msg = kind.defaultMessage()
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Error implements the error interface. It returns the user-facing message.
func (e *Error) Error() string {
	return e.Msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Detail returns the message plus the underlying cause, for logs.
func (e *Error) Detail() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// KindOf classifies err. It returns "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	for _, k := range []Kind{KindInvalidInput, KindAuth, KindQuota, KindTimeout, KindCancelled} {
		if errors.Is(err, k.sentinel()) {
			return k
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindUnknown
}

// AsError converts any error into *Error, keeping an existing classification.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	kind := KindOf(err)
	msg := ""
	if kind == KindUnknown {
		msg = err.Error()
	}
	return NewError(kind, msg, err)
}

// FromContext classifies a context that has ended, using its cause.
func FromContext(ctx context.Context) *Error {
	cause := context.Cause(ctx)
	if cause == nil {
		return nil
	}
	switch {
	case errors.Is(cause, ErrTimeout), errors.Is(cause, context.DeadlineExceeded):
		return NewError(KindTimeout, "", cause)
	default:
		return NewError(KindCancelled, "", cause)
	}
}

// ClassifyMessage guesses a kind from a provider error message.
func ClassifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "api key"),
		strings.Contains(lower, "api_key"),
		strings.Contains(lower, "unauthenticated"),
		strings.Contains(lower, "permission denied"):
		return KindAuth
	case strings.Contains(lower, "quota"),
		strings.Contains(lower, "resource_exhausted"),
		strings.Contains(lower, "resourceexhausted"),
		strings.Contains(lower, "rate limit"):
		return KindQuota
	}
	return KindUnknown
}

// ClassifyStatus maps an HTTP status code to a kind.
func ClassifyStatus(code int) Kind {
	switch code {
	case 401, 403:
		return KindAuth
	case 402, 429:
		return KindQuota
	case 408, 504:
		return KindTimeout
	}
	return KindUnknown
}
