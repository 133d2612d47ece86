// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/jeranaias/gemtalk/internal/model"
	"github.com/jeranaias/gemtalk/internal/storage"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete gemtalk configuration.
type Config struct {
	Model      ModelConfig      `toml:"model" envPrefix:"MODEL_"`
	Session    SessionConfig    `toml:"session" envPrefix:"SESSION_"`
	Typewriter TypewriterConfig `toml:"typewriter" envPrefix:"TYPEWRITER_"`
	Storage    StorageConfig    `toml:"storage" envPrefix:"STORAGE_"`
	Log        LogConfig        `toml:"log" envPrefix:"LOG_"`
	Metrics    MetricsConfig    `toml:"metrics" envPrefix:"METRICS_"`
	Tracing    TracingConfig    `toml:"tracing" envPrefix:"TRACING_"`
	RateLimit  RateLimitConfig  `toml:"ratelimit" envPrefix:"RATELIMIT_"`
}

// ModelConfig selects the backend and its generation settings.
type ModelConfig struct {
	// Provider is "gemini" (Google Generative Language API) or
	// "openrouter" (any OpenAI-compatible endpoint).
	Provider        string  `toml:"provider" env:"PROVIDER"`
	Name            string  `toml:"name" env:"NAME"`
	APIKey          string  `toml:"api_key" env:"API_KEY"`
	BaseURL         string  `toml:"base_url" env:"BASE_URL"`
	Temperature     float32 `toml:"temperature" env:"TEMPERATURE"`
	TopP            float32 `toml:"top_p" env:"TOP_P"`
	TopK            int32   `toml:"top_k" env:"TOP_K"`
	MaxOutputTokens int32   `toml:"max_output_tokens" env:"MAX_OUTPUT_TOKENS"`
}

// SessionConfig controls the request lifecycle.
type SessionConfig struct {
	RequestTimeoutSecs int  `toml:"request_timeout_secs" env:"REQUEST_TIMEOUT_SECS"`
	HistoryLimit       int  `toml:"history_limit" env:"HISTORY_LIMIT"`
	TitleLength        int  `toml:"title_length" env:"TITLE_LENGTH"`
	UseHistory         bool `toml:"use_history" env:"USE_HISTORY"`
}

// TypewriterConfig controls progressive reveal.
type TypewriterConfig struct {
	// DelayMs is the per-character delay. 0 reveals instantly.
	DelayMs        int `toml:"delay_ms" env:"DELAY_MS"`
	ChunkThreshold int `toml:"chunk_threshold" env:"CHUNK_THRESHOLD"`
	ChunkSize      int `toml:"chunk_size" env:"CHUNK_SIZE"`
}

// StorageConfig selects the conversation store backend.
type StorageConfig struct {
	Backend string `toml:"backend" env:"BACKEND"`
	// Path overrides the backend location (empty = inside Dir()).
	Path string `toml:"path" env:"PATH"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"`
	// File enables a rotated log file (empty = stderr only).
	File string `toml:"file" env:"FILE"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:9464" (empty = disabled).
	Addr string `toml:"addr" env:"ADDR"`
}

// TracingConfig controls OpenTelemetry request spans.
type TracingConfig struct {
	// Exporter is "none", "stdout" (pretty JSON to the log sink) or "otlp".
	Exporter string `toml:"exporter" env:"EXPORTER"`
	// Endpoint is the OTLP/HTTP collector, e.g. "localhost:4318".
	Endpoint    string  `toml:"endpoint" env:"ENDPOINT"`
	ServiceName string  `toml:"service_name" env:"SERVICE_NAME"`
	SampleRatio float64 `toml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// Tracing exporters.
const (
	TracingNone   = "none"
	TracingStdout = "stdout"
	TracingOTLP   = "otlp"
)

// RateLimitConfig caps outgoing requests.
type RateLimitConfig struct {
	// RequestsPerMinute of 0 disables the limiter.
	RequestsPerMinute int `toml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
}

// Providers.
const (
	ProviderGemini     = string(model.ProviderGemini)
	ProviderOpenRouter = string(model.ProviderOpenRouter)
)

// Environment.
const (
	EnvPrefix        = "GEMTALK_"
	EnvGeminiKey     = "GEMINI_API_KEY"
	EnvOpenRouterKey = "OPENROUTER_API_KEY"
)

// ErrMissingAPIKey is returned by RequireAPIKey when no key is configured.
var ErrMissingAPIKey = errors.New("API key is missing")

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:        ProviderGemini,
			Name:            model.DefaultModel,
			Temperature:     0.9,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 8192,
		},
		Session: SessionConfig{
			RequestTimeoutSecs: 30,
			HistoryLimit:       20,
			TitleLength:        model.DefaultTitleLength,
			UseHistory:         true,
		},
		Typewriter: TypewriterConfig{
			DelayMs:        20,
			ChunkThreshold: 5000,
			ChunkSize:      500,
		},
		Storage: StorageConfig{
			Backend: storage.BackendFile,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Tracing: TracingConfig{
			Exporter:    TracingNone,
			ServiceName: "gemtalk",
			SampleRatio: 1,
		},
	}
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Model.Provider == "" {
		cfg.Model.Provider = defaults.Model.Provider
	}
	if cfg.Model.Name == "" {
		if cfg.Model.Provider == ProviderOpenRouter {
			cfg.Model.Name = model.DefaultOpenRouterModel
		} else {
			cfg.Model.Name = defaults.Model.Name
		}
	}
	if cfg.Session.RequestTimeoutSecs == 0 {
		cfg.Session.RequestTimeoutSecs = defaults.Session.RequestTimeoutSecs
	}
	if cfg.Session.HistoryLimit == 0 {
		cfg.Session.HistoryLimit = defaults.Session.HistoryLimit
	}
	if cfg.Session.TitleLength == 0 {
		cfg.Session.TitleLength = defaults.Session.TitleLength
	}
	if cfg.Typewriter.ChunkThreshold == 0 {
		cfg.Typewriter.ChunkThreshold = defaults.Typewriter.ChunkThreshold
	}
	if cfg.Typewriter.ChunkSize == 0 {
		cfg.Typewriter.ChunkSize = defaults.Typewriter.ChunkSize
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = defaults.Tracing.Exporter
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = defaults.Tracing.ServiceName
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = defaults.Tracing.SampleRatio
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the gemtalk configuration directory.
func Dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gemtalk"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".gemtalk"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// StoragePath resolves where the configured backend keeps its data.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	switch c.Storage.Backend {
	case storage.BackendBolt:
		return filepath.Join(dir, "gemtalk.db"), nil
	case storage.BackendSQLite:
		return filepath.Join(dir, "gemtalk.sqlite"), nil
	default:
		return dir, nil
	}
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the default config file if it exists, otherwise starts from
// defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return LoadFromPath(path)
	}

	cfg := base()
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// base is Default with the model name unset, so fillDefaults can pick one
// that matches whichever provider ends up selected.
func base() *Config {
	cfg := Default()
	cfg.Model.Name = ""
	return cfg
}

func decodeFile(path string) (*Config, error) {
	cfg := base()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// LoadDotEnv loads .env from the working directory and the config directory.
// Variables already set in the environment win. Missing files are skipped.
func LoadDotEnv() error {
	candidates := []string{".env"}
	if dir, err := Dir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg as TOML to path with owner-only permissions.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# gemtalk configuration file")
	fmt.Fprintln(&buf, "# Environment variables prefixed GEMTALK_ override these values.")
	fmt.Fprintln(&buf, "")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidationErrors listing
// every problem found.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch c.Model.Provider {
	case ProviderGemini, ProviderOpenRouter:
	default:
		add("model.provider", "invalid provider '%s', must be one of: gemini, openrouter", c.Model.Provider)
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		add("model.name", "must not be empty")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		add("model.temperature", "must be between 0 and 2, got %g", c.Model.Temperature)
	}
	if c.Model.TopP < 0 || c.Model.TopP > 1 {
		add("model.top_p", "must be between 0 and 1, got %g", c.Model.TopP)
	}
	if c.Model.TopK < 0 {
		add("model.top_k", "must not be negative")
	}
	if c.Model.MaxOutputTokens < 0 {
		add("model.max_output_tokens", "must not be negative")
	}

	if c.Session.RequestTimeoutSecs < 1 || c.Session.RequestTimeoutSecs > 600 {
		add("session.request_timeout_secs", "must be between 1 and 600, got %d", c.Session.RequestTimeoutSecs)
	}
	if c.Session.HistoryLimit < 2 {
		add("session.history_limit", "must be at least 2, got %d", c.Session.HistoryLimit)
	}
	if c.Session.TitleLength < 1 {
		add("session.title_length", "must be at least 1, got %d", c.Session.TitleLength)
	}

	if c.Typewriter.DelayMs < 0 {
		add("typewriter.delay_ms", "must not be negative")
	}
	if c.Typewriter.ChunkThreshold < 1 {
		add("typewriter.chunk_threshold", "must be positive")
	}
	if c.Typewriter.ChunkSize < 1 {
		add("typewriter.chunk_size", "must be positive")
	}

	if !slices.Contains(storage.Backends, c.Storage.Backend) {
		add("storage.backend", "invalid backend '%s', must be one of: %s", c.Storage.Backend, strings.Join(storage.Backends, ", "))
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		add("log.level", "invalid level '%s'", c.Log.Level)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		add("log.format", "invalid format '%s', must be one of: console, json", c.Log.Format)
	}

	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			add("metrics.addr", "invalid listen address '%s': %v", c.Metrics.Addr, err)
		}
	}

	switch c.Tracing.Exporter {
	case TracingNone, TracingStdout:
	case TracingOTLP:
		if strings.TrimSpace(c.Tracing.Endpoint) == "" {
			add("tracing.endpoint", "required when exporter is otlp")
		}
	default:
		add("tracing.exporter", "invalid exporter '%s', must be one of: none, stdout, otlp", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		add("tracing.sample_ratio", "must be between 0 and 1, got %g", c.Tracing.SampleRatio)
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		add("ratelimit.requests_per_minute", "must not be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RequireAPIKey fails with ErrMissingAPIKey when no key is configured for
// the selected provider.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Model.APIKey) != "" {
		return nil
	}
	fallback := EnvGeminiKey
	if c.Model.Provider == ProviderOpenRouter {
		fallback = EnvOpenRouterKey
	}
	return fmt.Errorf("%w: set [model] api_key, %sMODEL_API_KEY or %s", ErrMissingAPIKey, EnvPrefix, fallback)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies GEMTALK_* variables, e.g. GEMTALK_MODEL_NAME or
// GEMTALK_TYPEWRITER_DELAY_MS. When no key is set the provider's
// conventional variable is consulted.
func (c *Config) ApplyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	if c.Model.APIKey == "" {
		switch c.Model.Provider {
		case ProviderOpenRouter:
			c.Model.APIKey = os.Getenv(EnvOpenRouterKey)
		default:
			c.Model.APIKey = os.Getenv(EnvGeminiKey)
		}
	}
	return nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// RequestTimeout returns the per-request ceiling.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Session.RequestTimeoutSecs) * time.Second
}

// RevealDelay returns the typewriter per-character delay.
func (c *Config) RevealDelay() time.Duration {
	return time.Duration(c.Typewriter.DelayMs) * time.Millisecond
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the config as TOML with the API key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Model.APIKey != "" {
		safe.Model.APIKey = "[REDACTED]"
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(safe); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}
