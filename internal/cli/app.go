// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jeranaias/gemtalk/internal/cloud"
	"github.com/jeranaias/gemtalk/internal/config"
	"github.com/jeranaias/gemtalk/internal/gateway"
	"github.com/jeranaias/gemtalk/internal/gemini"
	"github.com/jeranaias/gemtalk/internal/logging"
	"github.com/jeranaias/gemtalk/internal/model"
	"github.com/jeranaias/gemtalk/internal/server"
	"github.com/jeranaias/gemtalk/internal/session"
	"github.com/jeranaias/gemtalk/internal/storage"
	"github.com/jeranaias/gemtalk/internal/telemetry"
	"github.com/jeranaias/gemtalk/internal/typewriter"
)

// shutdownTimeout bounds the metrics server drain and span flush on exit.
const shutdownTimeout = 3 * time.Second

// traceFile receives stdout-exported spans when the terminal is taken.
const traceFile = "gemtalk-traces.log"

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	model      string
	logLevel   string
	ephemeral  bool
}

// appMode selects which parts of the App are built.
type appMode int

const (
	// modeStore opens config, logging and storage only.
	modeStore appMode = iota
	// modeSession adds the backend, gateway and controller.
	modeSession
)

// App is the wired application for one command invocation.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     zerolog.Logger
	Metrics    *telemetry.Metrics
	Tracing    *telemetry.Tracing
	Store      *storage.ConversationStore
	Backend    gateway.Backend
	Controller *session.Controller

	server      *server.Server
	logCloser   io.Closer
	traceCloser io.Closer
}

// backendFactory builds the model backend. Tests replace it.
var backendFactory = newBackend

// newBackend builds the backend for the configured provider.
func newBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (gateway.Backend, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	switch cfg.Model.Provider {
	case config.ProviderOpenRouter:
		client := cloud.NewOpenRouterClient(cfg.Model.APIKey).
			WithModel(cfg.Model.Name).
			WithSampling(cfg.Model.Temperature, cfg.Model.TopP, int(cfg.Model.MaxOutputTokens)).
			WithLogger(logger)
		if cfg.Model.BaseURL != "" {
			client = client.WithBaseURL(cfg.Model.BaseURL)
		}
		return client, nil
	default:
		gc := gemini.DefaultConfig()
		gc.APIKey = cfg.Model.APIKey
		gc.Model = cfg.Model.Name
		gc.Endpoint = cfg.Model.BaseURL
		gc.Temperature = cfg.Model.Temperature
		gc.TopP = cfg.Model.TopP
		gc.TopK = cfg.Model.TopK
		gc.MaxOutputTokens = cfg.Model.MaxOutputTokens
		client, err := gemini.New(ctx, gc)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// =============================================================================
// CONFIG LOADING
// =============================================================================

// loadConfig reads .env files, the config file and the flag overrides.
func loadConfig(opts *globalOptions) (*config.Config, string, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, "", err
	}

	path := opts.configPath
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		if path, err = config.Path(); err != nil {
			return nil, "", err
		}
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, path, err
	}

	if opts.model != "" {
		cfg.Model.Name = opts.model
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.ephemeral {
		cfg.Storage.Backend = storage.BackendMemory
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

// =============================================================================
// APP WIRING
// =============================================================================

// openOptions tunes openApp for the calling command.
type openOptions struct {
	mode appMode
	// fileLogOnly keeps log lines off the terminal, for the TUI.
	fileLogOnly bool
	stderr      io.Writer
}

// openApp wires config, logging, storage and, in modeSession, the request
// pipeline. The caller must Close the App.
func openApp(ctx context.Context, opts *globalOptions, oo openOptions) (*App, error) {
	cfg, path, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logOpts := logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Stderr: oo.stderr,
	}
	if oo.fileLogOnly {
		logOpts.Quiet = true
		if logOpts.File == "" {
			if dir, err := config.Dir(); err == nil {
				logOpts.File = filepath.Join(dir, "gemtalk.log")
			}
		}
	}
	logger, logCloser, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:     cfg,
		ConfigPath: path,
		Logger:     logger,
		Metrics:    telemetry.New(),
		logCloser:  logCloser,
	}

	storePath, err := cfg.StoragePath()
	if err != nil {
		app.Close()
		return nil, err
	}
	kv, err := storage.OpenKV(cfg.Storage.Backend, storePath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}
	app.Store = storage.NewConversationStore(kv,
		storage.WithLogger(logger.With().Str("component", "storage").Logger()),
		storage.WithTitleLength(cfg.Session.TitleLength),
		storage.WithOnCreate(func(model.Conversation) { app.Metrics.ConversationCreated() }),
		storage.WithPersistErrorHook(app.Metrics.PersistFailed),
	)
	logger.Debug().
		Str("backend", cfg.Storage.Backend).
		Str("path", storePath).
		Int("conversations", app.Store.Len()).
		Msg("storage opened")

	if oo.mode == modeStore {
		return app, nil
	}

	backend, err := backendFactory(ctx, cfg, logger.With().Str("component", "backend").Logger())
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Backend = backend

	if err := app.openTracing(ctx, oo); err != nil {
		app.Close()
		return nil, err
	}

	gw := gateway.New(backend,
		gateway.WithRateLimit(cfg.RateLimit.RequestsPerMinute),
		gateway.WithTracer(app.Tracing.Tracer("github.com/jeranaias/gemtalk/internal/gateway")),
		gateway.WithLogger(logger.With().Str("component", "gateway").Logger()),
	)
	engine := typewriter.New(typewriter.WithChunking(cfg.Typewriter.ChunkThreshold, cfg.Typewriter.ChunkSize))
	app.Controller = session.New(app.Store, gw, engine,
		session.WithTimeout(cfg.RequestTimeout()),
		session.WithRevealDelay(cfg.RevealDelay()),
		session.WithHistory(gateway.NewHistory(cfg.Session.HistoryLimit)),
		session.WithHistoryReplay(cfg.Session.UseHistory),
		session.WithLogger(logger.With().Str("component", "session").Logger()),
		session.WithMetrics(app.Metrics),
	)

	if cfg.Metrics.Addr != "" {
		app.server = server.New(cfg.Metrics.Addr, app.Metrics,
			server.WithVersion(Version),
			server.WithBackend(backend.Name()),
			server.WithHealth(app.Store),
			server.WithLogger(logger.With().Str("component", "server").Logger()),
		)
		if err := app.server.Start(); err != nil {
			app.server = nil
			app.Close()
			return nil, err
		}
		logger.Info().Str("addr", app.server.Addr()).Msg("metrics endpoint listening")
	}

	return app, nil
}

// openTracing builds the span exporter from the tracing section. With the
// terminal owned by the TUI, stdout spans go to a rotated file instead.
func (a *App) openTracing(ctx context.Context, oo openOptions) error {
	tc := a.Config.Tracing
	w := oo.stderr
	if tc.Exporter == config.TracingStdout && oo.fileLogOnly {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		file := &lumberjack.Logger{
			Filename:   filepath.Join(dir, traceFile),
			MaxSize:    10,
			MaxBackups: 2,
		}
		a.traceCloser = file
		w = file
	}

	tr, err := telemetry.NewTracing(ctx, telemetry.TracingOptions{
		Exporter:    tc.Exporter,
		Endpoint:    tc.Endpoint,
		ServiceName: tc.ServiceName,
		Version:     Version,
		SampleRatio: tc.SampleRatio,
		Writer:      w,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	a.Tracing = tr
	otel.SetTracerProvider(tr.Provider())
	a.Logger.Debug().Str("exporter", tc.Exporter).Msg("tracing configured")
	return nil
}

// Close releases everything openApp acquired. It is safe to call on a
// partially built App.
func (a *App) Close() error {
	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, a.server.Shutdown(ctx))
		cancel()
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if c, ok := a.Backend.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.Tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, a.Tracing.Shutdown(ctx))
		cancel()
	}
	if a.traceCloser != nil {
		errs = append(errs, a.traceCloser.Close())
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
	}
	return errors.Join(errs...)
}
