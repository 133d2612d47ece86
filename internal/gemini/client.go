// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeranaias/gemtalk/internal/gateway"
	"github.com/jeranaias/gemtalk/internal/model"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config holds generation settings for the Gemini backend.
type Config struct {
	APIKey           string
	Model            string
	Endpoint         string
	Temperature      float32
	TopP             float32
	TopK             int32
	MaxOutputTokens  int32
	ResponseMIMEType string
	SafetyThreshold  genai.HarmBlockThreshold
}

// DefaultConfig returns the stock generation settings.
func DefaultConfig() Config {
	return Config{
		Model:            model.DefaultModel,
		Temperature:      0.9,
		TopP:             0.95,
		TopK:             40,
		MaxOutputTokens:  8192,
		ResponseMIMEType: "text/plain",
		SafetyThreshold:  genai.HarmBlockMediumAndAbove,
	}
}

var safetyCategories = []genai.HarmCategory{
	genai.HarmCategoryHarassment,
	genai.HarmCategoryHateSpeech,
	genai.HarmCategorySexuallyExplicit,
	genai.HarmCategoryDangerousContent,
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a gateway.Backend that talks to the Gemini API.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
	cfg    Config
}

// New creates a Client. The API key is required.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, gateway.NewError(gateway.KindAuth, "API key is missing", nil)
	}
	if cfg.Model == "" {
		cfg.Model = model.DefaultModel
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Client{
		client: client,
		model:  configureModel(client.GenerativeModel(cfg.Model), cfg),
		cfg:    cfg,
	}, nil
}

func configureModel(m *genai.GenerativeModel, cfg Config) *genai.GenerativeModel {
	m.SetTemperature(cfg.Temperature)
	m.SetTopP(cfg.TopP)
	m.SetTopK(cfg.TopK)
	m.SetMaxOutputTokens(cfg.MaxOutputTokens)
	m.ResponseMIMEType = cfg.ResponseMIMEType

	m.SafetySettings = make([]*genai.SafetySetting, 0, len(safetyCategories))
	for _, c := range safetyCategories {
		m.SafetySettings = append(m.SafetySettings, &genai.SafetySetting{
			Category:  c,
			Threshold: cfg.SafetyThreshold,
		})
	}
	return m
}

// Name implements gateway.Backend.
func (c *Client) Name() string {
	return "gemini/" + c.cfg.Model
}

// Generate implements gateway.Backend.
func (c *Client) Generate(ctx context.Context, history []gateway.Turn, prompt string) (string, error) {
	cs := c.model.StartChat()
	cs.History = toContents(history)

	resp, err := cs.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyError(err)
	}
	text := responseText(resp)
	if text == "" {
		return "", gateway.NewError(gateway.KindUnknown, "Empty response from model", nil)
	}
	return text, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// =============================================================================
// CONVERSION
// =============================================================================

func toContents(history []gateway.Turn) []*genai.Content {
	if len(history) == 0 {
		return nil
	}
	out := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		role := "user"
		if t.Role == gateway.TurnModel {
			role = "model"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	return out
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

// =============================================================================
// ERRORS
// =============================================================================

func classifyError(err error) *gateway.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return gateway.NewError(gateway.KindTimeout, "", err)
	}
	if errors.Is(err, context.Canceled) {
		return gateway.NewError(gateway.KindCancelled, "", err)
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return gateway.NewError(gateway.KindUnknown, "Response blocked by safety settings", err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if kind := gateway.ClassifyStatus(apiErr.Code); kind != gateway.KindUnknown {
			return gateway.NewError(kind, "", err)
		}
		if apiErr.Code == http.StatusBadRequest && gateway.ClassifyMessage(apiErr.Message) == gateway.KindAuth {
			return gateway.NewError(gateway.KindAuth, "", err)
		}
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return gateway.NewError(gateway.KindAuth, "", err)
		case codes.ResourceExhausted:
			return gateway.NewError(gateway.KindQuota, "", err)
		case codes.DeadlineExceeded:
			return gateway.NewError(gateway.KindTimeout, "", err)
		case codes.Canceled:
			return gateway.NewError(gateway.KindCancelled, "", err)
		}
	}

	if kind := gateway.ClassifyMessage(err.Error()); kind != gateway.KindUnknown {
		return gateway.NewError(kind, "", err)
	}
	return gateway.NewError(gateway.KindUnknown, err.Error(), err)
}
