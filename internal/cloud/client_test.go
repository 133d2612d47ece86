// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemtalk/internal/gateway"
)

const testKey = "sk-or-test-abcdefghijklmnopqrstuvwxyz0123456789"

const okBody = `{
	"id": "test-id",
	"model": "test-model",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "Hi **there**"},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// =============================================================================
// GENERATE TESTS
// =============================================================================

func TestGenerate_Success(t *testing.T) {
	var got openai.ChatCompletionRequest
	var headers http.Header
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		headers = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(okBody))
	})

	client := NewOpenRouterClient(testKey).WithBaseURL(server.URL).WithModel("test-model")
	history := []gateway.Turn{
		{Role: gateway.TurnUser, Text: "earlier"},
		{Role: gateway.TurnModel, Text: "reply"},
	}

	reply, err := client.Generate(context.Background(), history, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi **there**", reply)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, openai.ChatMessageRoleUser, got.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, got.Messages[1].Role)
	assert.Equal(t, "Hello", got.Messages[2].Content)

	assert.Equal(t, "Bearer "+testKey, headers.Get("Authorization"))
	assert.Equal(t, "gemtalk", headers.Get("X-Title"))
	assert.NotEmpty(t, headers.Get("HTTP-Referer"))
}

func TestGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   gateway.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"No auth credentials found","code":401}}`, gateway.KindAuth},
		{"credits", http.StatusPaymentRequired, `{"error":{"message":"Insufficient credits","code":402}}`, gateway.KindQuota},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"Rate limit exceeded","code":429}}`, gateway.KindQuota},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"model not found","code":400}}`, gateway.KindUnknown},
		{"unparseable", http.StatusBadGateway, `<html>bad gateway</html>`, gateway.KindUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})

			client := NewOpenRouterClient(testKey).WithBaseURL(server.URL).WithMaxRetries(0)
			_, err := client.Generate(context.Background(), nil, "hi")
			require.Error(t, err)
			assert.Equal(t, tc.want, gateway.KindOf(err))
		})
	}
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		w.Write([]byte(okBody))
	})

	client := NewOpenRouterClient(testKey).WithBaseURL(server.URL).WithMaxRetries(1)
	reply, err := client.Generate(context.Background(), nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hi **there**", reply)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerate_HonorsContext(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	client := NewOpenRouterClient(testKey).WithBaseURL(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, nil, "hi")
	assert.Equal(t, gateway.KindTimeout, gateway.KindOf(err))
}

func TestGenerate_EmptyChoices(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","choices":[]}`))
	})

	client := NewOpenRouterClient(testKey).WithBaseURL(server.URL)
	_, err := client.Generate(context.Background(), nil, "hi")
	assert.Equal(t, gateway.KindUnknown, gateway.KindOf(err))
}

func TestGenerate_NotConfigured(t *testing.T) {
	_, err := NewOpenRouterClient("  ").Generate(context.Background(), nil, "hi")
	assert.True(t, errors.Is(err, gateway.ErrAuth))
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestClientMethodChaining(t *testing.T) {
	client := NewOpenRouterClient(testKey).
		WithBaseURL("https://example.com/v1/").
		WithModel("m").
		WithMaxRetries(5).
		WithSiteName("x")

	assert.Equal(t, "https://example.com/v1", client.baseURL)
	assert.Equal(t, "m", client.Model())
	assert.Equal(t, 5, client.maxRetries)
	assert.Equal(t, "openai/m", client.Name())
}

func TestAPIKeyMasked(t *testing.T) {
	masked := NewOpenRouterClient(testKey).APIKeyMasked()
	assert.NotContains(t, masked, "abcdef")
	assert.Contains(t, masked, "REDACTED")
	assert.Equal(t, "[not set]", NewOpenRouterClient("").APIKeyMasked())
}

func TestIsRetryable(t *testing.T) {
	client := NewOpenRouterClient(testKey)

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error 500", &openai.APIError{HTTPStatusCode: 500}, true},
		{"request error 503", &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("x")}, true},
		{"client error 400", &openai.APIError{HTTPStatusCode: 400}, false},
		{"auth failed", &openai.APIError{HTTPStatusCode: 401}, false},
		{"context canceled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := client.isRetryable(tc.err); got != tc.retryable {
				t.Errorf("isRetryable(%v) = %v, expected %v", tc.err, got, tc.retryable)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	client := NewOpenRouterClient(testKey)

	assert.Equal(t, 500*time.Millisecond, client.calculateBackoff(0))
	assert.Equal(t, time.Second, client.calculateBackoff(1))
	assert.Equal(t, 2*time.Second, client.calculateBackoff(2))
	assert.Equal(t, 10*time.Second, client.calculateBackoff(10))
}
