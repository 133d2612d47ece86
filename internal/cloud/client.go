// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/gemtalk/internal/gateway"
	"github.com/jeranaias/gemtalk/internal/model"
)

// Configuration constants for the OpenAI-compatible API.
const (
	// DefaultOpenRouterURL is the base URL for OpenRouter API.
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

	// DefaultModel is the model requested when none is set.
	DefaultModel = model.DefaultOpenRouterModel

	// DefaultMaxRetries is the default number of retry attempts for transient errors.
	DefaultMaxRetries = 2

	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 10 * time.Second
)

// =============================================================================
// CLIENT
// =============================================================================

// OpenRouterClient sends chat completions to an OpenAI-compatible endpoint.
// Configure it with the With* methods before first use.
type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	siteURL    string
	siteName   string

	temperature float32
	topP        float32
	maxTokens   int

	httpClient *http.Client
	logger     zerolog.Logger

	client *openai.Client
}

// NewOpenRouterClient creates a client with the given API key.
func NewOpenRouterClient(apiKey string) *OpenRouterClient {
	return &OpenRouterClient{
		apiKey:      strings.TrimSpace(apiKey),
		baseURL:     DefaultOpenRouterURL,
		model:       DefaultModel,
		maxRetries:  DefaultMaxRetries,
		siteURL:     "https://github.com/jeranaias/gemtalk",
		siteName:    "gemtalk",
		temperature: 0.9,
		topP:        0.95,
		maxTokens:   8192,
		httpClient:  &http.Client{},
		logger:      zerolog.Nop(),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *OpenRouterClient) WithBaseURL(url string) *OpenRouterClient {
	if url != "" {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
	c.client = nil
	return c
}

// WithModel sets the model to request.
func (c *OpenRouterClient) WithModel(model string) *OpenRouterClient {
	if model != "" {
		c.model = model
	}
	return c
}

// WithMaxRetries sets the maximum number of retry attempts.
func (c *OpenRouterClient) WithMaxRetries(maxRetries int) *OpenRouterClient {
	if maxRetries >= 0 {
		c.maxRetries = maxRetries
	}
	return c
}

// WithSampling sets temperature, top-p and the reply token limit.
func (c *OpenRouterClient) WithSampling(temperature, topP float32, maxTokens int) *OpenRouterClient {
	c.temperature = temperature
	c.topP = topP
	c.maxTokens = maxTokens
	return c
}

// WithSiteName sets the X-Title attribution header.
func (c *OpenRouterClient) WithSiteName(name string) *OpenRouterClient {
	c.siteName = name
	c.client = nil
	return c
}

// WithHTTPClient sets the HTTP client used for requests.
func (c *OpenRouterClient) WithHTTPClient(hc *http.Client) *OpenRouterClient {
	if hc != nil {
		c.httpClient = hc
	}
	c.client = nil
	return c
}

// WithLogger sets the logger.
func (c *OpenRouterClient) WithLogger(l zerolog.Logger) *OpenRouterClient {
	c.logger = l
	return c
}

// Model returns the configured model.
func (c *OpenRouterClient) Model() string {
	return c.model
}

// IsConfigured returns true if the client has an API key configured.
func (c *OpenRouterClient) IsConfigured() bool {
	return c.apiKey != ""
}

// APIKeyMasked returns a masked version of the API key for display.
func (c *OpenRouterClient) APIKeyMasked() string {
	if c.apiKey == "" {
		return "[not set]"
	}
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(c.apiKey), c.keyFingerprint())
}

func (c *OpenRouterClient) keyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// Name implements gateway.Backend.
func (c *OpenRouterClient) Name() string {
	return "openai/" + c.model
}

func (c *OpenRouterClient) api() *openai.Client {
	if c.client != nil {
		return c.client
	}
	cfg := openai.DefaultConfig(c.apiKey)
	cfg.BaseURL = c.baseURL

	hc := *c.httpClient
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = &headerTransport{base: base, siteURL: c.siteURL, siteName: c.siteName}
	cfg.HTTPClient = &hc

	c.client = openai.NewClientWithConfig(cfg)
	return c.client
}

// headerTransport adds OpenRouter attribution headers.
type headerTransport struct {
	base     http.RoundTripper
	siteURL  string
	siteName string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.siteURL != "" {
		req.Header.Set("HTTP-Referer", t.siteURL)
	}
	if t.siteName != "" {
		req.Header.Set("X-Title", t.siteName)
	}
	return t.base.RoundTrip(req)
}

// =============================================================================
// GENERATE
// =============================================================================

// Generate implements gateway.Backend.
func (c *OpenRouterClient) Generate(ctx context.Context, history []gateway.Turn, prompt string) (string, error) {
	if !c.IsConfigured() {
		return "", gateway.NewError(gateway.KindAuth, "API key is missing", nil)
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toMessages(history, prompt),
		Temperature: c.temperature,
		TopP:        c.topP,
		MaxTokens:   c.maxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt - 1)
			c.logger.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("retrying chat completion")
			select {
			case <-ctx.Done():
				return "", classifyError(ctx.Err())
			case <-time.After(delay):
			}
		}

		start := time.Now()
		resp, err := c.api().CreateChatCompletion(ctx, req)
		if err == nil {
			c.logger.Debug().Str("model", resp.Model).Dur("duration", time.Since(start)).Msg("chat completion")
			if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
				return "", gateway.NewError(gateway.KindUnknown, "Empty response from model", nil)
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			break
		}
	}
	return "", classifyError(lastErr)
}

func toMessages(history []gateway.Turn, prompt string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == gateway.TurnModel {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
}

// =============================================================================
// ERRORS AND RETRIES
// =============================================================================

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// classifyError converts go-openai errors into gateway errors.
func classifyError(err error) *gateway.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return gateway.NewError(gateway.KindTimeout, "", err)
	case errors.Is(err, context.Canceled):
		return gateway.NewError(gateway.KindCancelled, "", err)
	}

	if kind := gateway.ClassifyStatus(statusOf(err)); kind != gateway.KindUnknown {
		return gateway.NewError(kind, "", err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		if kind := gateway.ClassifyMessage(apiErr.Message); kind != gateway.KindUnknown {
			return gateway.NewError(kind, "", err)
		}
		return gateway.NewError(gateway.KindUnknown, apiErr.Message, err)
	}
	return gateway.NewError(gateway.KindUnknown, err.Error(), err)
}

// isRetryable determines if an error should trigger a retry.
func (c *OpenRouterClient) isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code := statusOf(err)
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}

// calculateBackoff returns the delay to wait before the next retry.
func (c *OpenRouterClient) calculateBackoff(attempt int) time.Duration {
	// Exponential backoff: 500ms, 1000ms, 2000ms, etc.
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
