// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
	"time"
)

// =============================================================================
// TITLE TESTS
// =============================================================================

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"short", "Hello", "Hello"},
		{"trimmed", "  Hello  ", "Hello"},
		{"exact length", strings.Repeat("a", 30), strings.Repeat("a", 30)},
		{"long", strings.Repeat("a", 31), strings.Repeat("a", 30) + "..."},
		{"trailing space before cut", strings.Repeat("a", 29) + " bcd", strings.Repeat("a", 29) + "..."},
		{"multibyte", strings.Repeat("é", 40), strings.Repeat("é", 30) + "..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveTitle(tc.prompt, 30); got != tc.want {
				t.Errorf("DeriveTitle(%q) = %q, want %q", tc.prompt, got, tc.want)
			}
		})
	}
}

func TestConversation_TitleDerivedOnce(t *testing.T) {
	at := Now()
	conv := NewConversation(at)
	if !conv.IsUntitled() {
		t.Fatalf("new conversation title = %q", conv.Title)
	}

	conv = conv.WithMessage(NewErrorMessage("boom", at), DefaultTitleLength)
	if !conv.IsUntitled() {
		t.Errorf("assistant message changed title to %q", conv.Title)
	}

	conv = conv.WithMessage(NewMessage(RoleUser, "first prompt", at), DefaultTitleLength)
	if conv.Title != "first prompt" {
		t.Errorf("Title = %q, want %q", conv.Title, "first prompt")
	}

	conv = conv.WithMessage(NewMessage(RoleUser, "second prompt", at), DefaultTitleLength)
	if conv.Title != "first prompt" {
		t.Errorf("Title changed to %q", conv.Title)
	}
}

func TestConversation_RenamedStaysRenamed(t *testing.T) {
	conv := NewConversation(Now())
	conv.Title = "Mine"
	conv = conv.WithMessage(NewMessage(RoleUser, "prompt", Now()), DefaultTitleLength)
	if conv.Title != "Mine" {
		t.Errorf("Title = %q, want Mine", conv.Title)
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_WithMessageDoesNotAlias(t *testing.T) {
	base := NewConversation(Now())
	a := base.WithMessage(NewMessage(RoleUser, "a", Now()), 30)
	b := a.WithMessage(NewMessage(RoleUser, "b", Now()), 30)

	if len(base.Messages) != 0 || len(a.Messages) != 1 || len(b.Messages) != 2 {
		t.Fatalf("lengths = %d %d %d", len(base.Messages), len(a.Messages), len(b.Messages))
	}
	if a.Messages[0].Content != "a" || b.Messages[1].Content != "b" {
		t.Error("unexpected message contents")
	}
}

func TestConversation_LastMessageAndPrompts(t *testing.T) {
	at := Now()
	conv := NewConversation(at).
		WithMessage(NewMessage(RoleUser, "q1", at), 30).
		WithMessage(NewMessage(RoleAssistant, "a1", at), 30).
		WithMessage(NewMessage(RoleUser, "q2", at), 30)

	last, ok := conv.LastMessage(RoleAssistant)
	if !ok || last.Content != "a1" {
		t.Errorf("LastMessage(assistant) = %+v, %v", last, ok)
	}
	if _, ok := NewConversation(at).LastMessage(RoleUser); ok {
		t.Error("LastMessage on empty conversation returned ok")
	}

	prompts := conv.UserPrompts()
	if len(prompts) != 2 || prompts[0] != "q1" || prompts[1] != "q2" {
		t.Errorf("UserPrompts() = %v", prompts)
	}
}

func TestNormalize(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	in := time.Date(2025, 1, 2, 3, 4, 5, 123456789, loc)
	got := Normalize(in)
	if got.Location() != time.UTC {
		t.Errorf("location = %v", got.Location())
	}
	if got.Nanosecond() != 123000000 {
		t.Errorf("nanos = %d", got.Nanosecond())
	}
	if !got.Equal(in.Truncate(time.Millisecond)) {
		t.Error("Normalize changed the instant")
	}
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestLookupModel(t *testing.T) {
	info, ok := LookupModel(DefaultModel)
	if !ok {
		t.Fatalf("default model %q missing from registry", DefaultModel)
	}
	if info.Provider != ProviderGemini {
		t.Errorf("Provider = %s", info.Provider)
	}
	if _, ok := LookupModel("no-such-model"); ok {
		t.Error("unknown model found")
	}
}

func TestModelsFor(t *testing.T) {
	models := ModelsFor(ProviderGemini)
	if len(models) < 2 {
		t.Fatalf("got %d gemini models", len(models))
	}
	for i := 1; i < len(models); i++ {
		if models[i-1].ID > models[i].ID {
			t.Error("ModelsFor not sorted")
		}
	}
}
