// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeranaias/gemtalk/internal/gateway"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "gemini-2.0-flash", cfg.Model)
	assert.InDelta(t, 0.9, cfg.Temperature, 1e-6)
	assert.InDelta(t, 0.95, cfg.TopP, 1e-6)
	assert.Equal(t, int32(40), cfg.TopK)
	assert.Equal(t, int32(8192), cfg.MaxOutputTokens)
	assert.Equal(t, "text/plain", cfg.ResponseMIMEType)
}

func TestConfigureModel(t *testing.T) {
	m := configureModel(&genai.GenerativeModel{}, DefaultConfig())

	require.NotNil(t, m.Temperature)
	assert.InDelta(t, 0.9, *m.Temperature, 1e-6)
	require.NotNil(t, m.TopK)
	assert.Equal(t, int32(40), *m.TopK)
	require.Len(t, m.SafetySettings, 4)
	for _, s := range m.SafetySettings {
		assert.Equal(t, genai.HarmBlockMediumAndAbove, s.Threshold)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(context.Background(), DefaultConfig())
	assert.True(t, errors.Is(err, gateway.ErrAuth))
}

func TestToContents(t *testing.T) {
	got := toContents([]gateway.Turn{
		{Role: gateway.TurnUser, Text: "q"},
		{Role: gateway.TurnModel, Text: "a"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "model", got[1].Role)
	assert.Equal(t, genai.Text("a"), got[1].Parts[0])

	assert.Nil(t, toContents(nil))
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("Hi "), genai.Text("there")}},
		}},
	}
	assert.Equal(t, "Hi there", responseText(resp))
	assert.Equal(t, "", responseText(nil))
	assert.Equal(t, "", responseText(&genai.GenerateContentResponse{}))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want gateway.Kind
	}{
		{"googleapi 403", &googleapi.Error{Code: 403, Message: "forbidden"}, gateway.KindAuth},
		{"googleapi 429", &googleapi.Error{Code: 429, Message: "slow down"}, gateway.KindQuota},
		{"googleapi 400 bad key", &googleapi.Error{Code: 400, Message: "API key not valid"}, gateway.KindAuth},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota"), gateway.KindQuota},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "nope"), gateway.KindAuth},
		{"deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), gateway.KindTimeout},
		{"message fallback", errors.New("API key expired"), gateway.KindAuth},
		{"blocked", &genai.BlockedError{}, gateway.KindUnknown},
		{"other", errors.New("EOF"), gateway.KindUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyError(tc.err)
			assert.Equal(t, tc.want, got.Kind)
			assert.True(t, errors.Is(got, tc.err))
		})
	}
}
