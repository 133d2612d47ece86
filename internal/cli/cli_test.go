// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemtalk/internal/config"
	"github.com/jeranaias/gemtalk/internal/gateway"
	"github.com/jeranaias/gemtalk/internal/storage"
)

// =============================================================================
// HARNESS
// =============================================================================

type fakeBackend struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (f *fakeBackend) generate(_ context.Context, _ []gateway.Turn, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.reply(prompt)
}

func (f *fakeBackend) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// setup isolates config and storage under a temp dir and stubs the backend.
func setup(t *testing.T) (*fakeBackend, string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(config.EnvGeminiKey, "test-key")
	t.Setenv("GEMTALK_TYPEWRITER_DELAY_MS", "0")
	t.Setenv("NO_COLOR", "1")

	fb := &fakeBackend{reply: func(p string) (string, error) { return "Echo: " + p, nil }}
	prev := backendFactory
	backendFactory = func(context.Context, *config.Config, zerolog.Logger) (gateway.Backend, error) {
		return gateway.BackendFunc(fb.generate), nil
	}
	t.Cleanup(func() { backendFactory = prev })
	return fb, filepath.Join(dir, "gemtalk")
}

// run executes the command tree with stdin and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func listConversations(t *testing.T, args ...string) []conversationSummary {
	t.Helper()
	out, err := run(t, "", append([]string{"conversations", "list", "--json"}, args...)...)
	require.NoError(t, err)
	var list []conversationSummary
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	return list
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_PrintsReply(t *testing.T) {
	fb, _ := setup(t)

	out, err := run(t, "", "ask", "What", "is", "Go?")
	require.NoError(t, err)
	assert.Equal(t, "Echo: What is Go?\n", out)
	assert.Equal(t, []string{"What is Go?"}, fb.seen())
}

func TestAsk_ReadsStdin(t *testing.T) {
	fb, _ := setup(t)

	_, err := run(t, "piped question\n", "ask")
	require.NoError(t, err)
	assert.Equal(t, []string{"piped question"}, fb.seen())

	_, err = run(t, "some diff", "ask", "Review", "this")
	require.NoError(t, err)
	assert.Equal(t, "Review this\n\nsome diff", fb.seen()[1])
}

func TestAsk_NoPrompt(t *testing.T) {
	fb, _ := setup(t)

	_, err := run(t, "", "ask")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))
	assert.Empty(t, fb.seen())
}

func TestAsk_JSON(t *testing.T) {
	setup(t)

	out, err := run(t, "", "ask", "--json", "-m", "gemini-1.5-pro", "hi")
	require.NoError(t, err)

	var res askResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "succeeded", res.State)
	assert.Equal(t, "Echo: hi", res.Reply)
	assert.Equal(t, "gemini-1.5-pro", res.Model)
	assert.NotEmpty(t, res.ConversationID)
	assert.Nil(t, res.Error)
}

func TestAsk_BackendFailure(t *testing.T) {
	fb, _ := setup(t)
	fb.reply = func(string) (string, error) {
		return "", gateway.NewError(gateway.KindQuota, "", errors.New("429"))
	}

	out, err := run(t, "", "ask", "--json", "hi")
	require.Error(t, err)
	assert.Equal(t, ExitQuotaError, ExitCode(err))
	assert.Equal(t, gateway.MsgQuota, err.Error())

	var res askResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "failed", res.State)
	require.NotNil(t, res.Error)
	assert.Equal(t, "quota", res.Error.Kind)

	// The failure is kept in the conversation.
	list := listConversations(t)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Messages)
}

func TestAsk_MissingAPIKey(t *testing.T) {
	setup(t)
	t.Setenv(config.EnvGeminiKey, "")
	backendFactory = newBackend

	_, err := run(t, "", "ask", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestAsk_Continue(t *testing.T) {
	setup(t)

	_, err := run(t, "", "ask", "first")
	require.NoError(t, err)
	_, err = run(t, "", "ask", "--continue", "second")
	require.NoError(t, err)

	list := listConversations(t)
	require.Len(t, list, 1)
	assert.Equal(t, 4, list[0].Messages)
	assert.Equal(t, "first", list[0].Title)

	_, err = run(t, "", "ask", "third")
	require.NoError(t, err)
	list = listConversations(t)
	require.Len(t, list, 2)
	assert.Equal(t, "third", list[0].Title)
	assert.True(t, list[0].Active)
}

func TestAsk_Ephemeral(t *testing.T) {
	setup(t)

	out, err := run(t, "", "--ephemeral", "ask", "hi")
	require.NoError(t, err)
	assert.Contains(t, out, "Echo: hi")
	for _, c := range listConversations(t) {
		assert.Zero(t, c.Messages)
	}
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestConversations_ShowRenameDelete(t *testing.T) {
	setup(t)
	_, err := run(t, "", "ask", "tell me about channels")
	require.NoError(t, err)

	list := listConversations(t)
	require.Len(t, list, 1)
	id := list[0].ID
	prefix := id[:6]

	out, err := run(t, "", "conversations", "show", prefix)
	require.NoError(t, err)
	assert.Contains(t, out, "tell me about channels")
	assert.Contains(t, out, "You:")
	assert.Contains(t, out, "Gemini:")
	assert.Contains(t, out, "Echo: tell me about channels")

	out, err = run(t, "", "conv", "show", "--raw", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"lastModified"`)

	_, err = run(t, "", "conv", "rename", prefix, "Channel", "notes")
	require.NoError(t, err)
	assert.Equal(t, "Channel notes", listConversations(t)[0].Title)

	_, err = run(t, "", "conv", "delete", id)
	require.NoError(t, err)
	for _, c := range listConversations(t) {
		assert.NotEqual(t, id, c.ID)
	}

	_, err = run(t, "", "conv", "show", id)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)
	assert.Equal(t, ExitNotFoundError, ExitCode(err))
}

func TestConversations_ArgErrors(t *testing.T) {
	setup(t)

	_, err := run(t, "", "conv", "show")
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, err = run(t, "", "conv", "rename", "abc")
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, err = run(t, "", "conv", "list", "--bogus")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestConversations_ClearAsksFirst(t *testing.T) {
	setup(t)
	_, err := run(t, "", "ask", "keep me")
	require.NoError(t, err)

	out, err := run(t, "n\n", "conv", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted")
	assert.Equal(t, "keep me", listConversations(t)[0].Title)

	out, err = run(t, "", "conv", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "All conversations deleted")
	for _, c := range listConversations(t) {
		assert.Zero(t, c.Messages)
	}
}

func TestConversations_Export(t *testing.T) {
	setup(t)
	_, err := run(t, "", "ask", "export me")
	require.NoError(t, err)
	id := listConversations(t)[0].ID
	outDir := t.TempDir()

	out, err := run(t, "", "conv", "export", id, "--format", "json", "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported to")

	matches, err := filepath.Glob(filepath.Join(outDir, "conversation_export_me_*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"generator": "gemtalk"`)

	out, err = run(t, "", "conv", "export", id, "--format", "md", "--stdout")
	require.NoError(t, err)
	assert.Contains(t, out, "# export me")

	_, err = run(t, "", "conv", "export", id, "--format", "pdf")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

// =============================================================================
// CONFIG AND MODELS
// =============================================================================

func TestConfig_InitShowPath(t *testing.T) {
	_, dir := setup(t)
	want := filepath.Join(dir, "config.toml")

	out, err := run(t, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, want+"\n", out)

	_, err = run(t, "", "config", "init")
	require.NoError(t, err)
	assert.FileExists(t, want)

	_, err = run(t, "", "config", "init")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, err = run(t, "", "config", "init", "--force")
	require.NoError(t, err)

	out, err = run(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "test-key")
}

func TestConfig_InvalidFile(t *testing.T) {
	setup(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[session]\nhistory_limit = 1\n"), 0o600))

	_, err := run(t, "", "--config", path, "config", "show")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestModels(t *testing.T) {
	setup(t)

	out, err := run(t, "", "models")
	require.NoError(t, err)
	assert.Contains(t, out, "gemini-2.0-flash")

	out, err = run(t, "", "models", "--json")
	require.NoError(t, err)
	var models []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &models))
	require.NotEmpty(t, models)
	for _, m := range models {
		assert.NotContains(t, m.ID, "/", "openrouter models listed for gemini")
	}
}

func TestVersion(t *testing.T) {
	setup(t)

	out, err := run(t, "", "version", "--json")
	require.NoError(t, err)
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

// =============================================================================
// REPL
// =============================================================================

func TestChatPlain_REPL(t *testing.T) {
	fb, _ := setup(t)

	script := strings.Join([]string{
		"hello there",
		"/rename Greeting",
		"/list",
		"/status",
		"/bogus",
		"/new",
		"second chat",
		"/history",
		"/quit",
		"never sent",
	}, "\n")
	out, err := run(t, script, "chat", "--plain")
	require.NoError(t, err)

	assert.Equal(t, []string{"hello there", "second chat"}, fb.seen())
	assert.Contains(t, out, "Echo: hello there")
	assert.Contains(t, out, "Renamed")
	assert.Contains(t, out, "Greeting")
	assert.Contains(t, out, "unknown command /bogus")
	assert.Contains(t, out, "Started a new conversation")
	assert.Contains(t, out, "Echo: second chat")

	list := listConversations(t)
	require.Len(t, list, 2)
	assert.Equal(t, "second chat", list[0].Title)
	assert.Equal(t, "Greeting", list[1].Title)
}

func TestChatPlain_OpenAndDelete(t *testing.T) {
	setup(t)
	_, err := run(t, "", "ask", "older")
	require.NoError(t, err)
	_, err = run(t, "", "ask", "newer")
	require.NoError(t, err)
	list := listConversations(t)
	require.Len(t, list, 2)
	older := list[1].ID

	script := fmt.Sprintf("/open %s\n/delete\n/open nope\n", older[:8])
	out, err := run(t, script, "chat", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "Opened older")
	assert.Contains(t, out, "Echo: older")
	assert.Contains(t, out, "Conversation deleted")
	assert.Contains(t, out, "conversation not found")

	list = listConversations(t)
	require.Len(t, list, 1)
	assert.Equal(t, "newer", list[0].Title)
}

func TestChatPlain_FailureShown(t *testing.T) {
	fb, _ := setup(t)
	fb.reply = func(string) (string, error) {
		return "", gateway.NewError(gateway.KindAuth, "", nil)
	}

	out, err := run(t, "hi\n", "chat", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, gateway.MsgAuth)
}

// =============================================================================
// HELPERS
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"general", errors.New("boom"), ExitGeneralError},
		{"usage", usageErrorf("bad"), ExitUsageError},
		{"missing key", fmt.Errorf("wrap: %w", config.ErrMissingAPIKey), ExitConfigError},
		{"validation", fmt.Errorf("invalid config: %w", config.ValidationErrors{{Field: "a", Message: "b"}}), ExitConfigError},
		{"not found", wrapError("conversations", "show", storage.ErrConversationNotFound), ExitNotFoundError},
		{"auth", gateway.NewError(gateway.KindAuth, "", nil), ExitAuthError},
		{"quota", gateway.NewError(gateway.KindQuota, "", nil), ExitQuotaError},
		{"timeout", gateway.NewError(gateway.KindTimeout, "", nil), ExitTimeoutError},
		{"cancelled", gateway.NewError(gateway.KindCancelled, "", nil), ExitInterrupted},
		{"context", context.Canceled, ExitInterrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestReadPrompt(t *testing.T) {
	got, err := readPrompt(strings.NewReader(""), []string{" a ", "b"})
	require.NoError(t, err)
	assert.Equal(t, "a  b", got)

	got, err = readPrompt(strings.NewReader("  only stdin \n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "only stdin", got)

	got, err = readPrompt(nil, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "just now", relativeTime(now.Add(-10*time.Second), now))
	assert.Equal(t, "5m ago", relativeTime(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", relativeTime(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d ago", relativeTime(now.Add(-50*time.Hour), now))
	assert.Equal(t, "Jan 2, 2025", relativeTime(time.Date(2025, 1, 2, 12, 0, 0, 0, time.Local), now))
}

func TestWriteConversationList_Empty(t *testing.T) {
	var buf bytes.Buffer
	writeConversationList(&buf, nil, "", 80)
	assert.Contains(t, buf.String(), "No conversations yet")
}
