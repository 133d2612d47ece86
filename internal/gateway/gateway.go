// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/jeranaias/gemtalk/internal/gateway"

// =============================================================================
// BACKEND
// =============================================================================

// Backend produces a full reply for prompt given the prior turns. It must
// honor ctx cancellation and abort its transport when ctx ends.
type Backend interface {
	Generate(ctx context.Context, history []Turn, prompt string) (string, error)
	Name() string
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, history []Turn, prompt string) (string, error)

// Generate calls f.
func (f BackendFunc) Generate(ctx context.Context, history []Turn, prompt string) (string, error) {
	return f(ctx, history, prompt)
}

// Name implements Backend.
func (f BackendFunc) Name() string {
	return "func"
}

// =============================================================================
// GATEWAY
// =============================================================================

// Gateway is a stateless adapter in front of a Backend.
type Gateway struct {
	backend Backend
	limiter *rate.Limiter
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRateLimit allows at most perMinute requests per minute, burst 1.
// Zero or negative disables limiting.
func WithRateLimit(perMinute int) Option {
	return func(g *Gateway) {
		if perMinute > 0 {
			g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		}
	}
}

// WithLimiter sets an explicit limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(g *Gateway) {
		g.limiter = l
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// New creates a Gateway over backend.
func New(backend Backend, opts ...Option) *Gateway {
	g := &Gateway{
		backend: backend,
		tracer:  otel.Tracer(tracerName),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Backend returns the wrapped backend.
func (g *Gateway) Backend() Backend {
	return g.backend
}

// Run sends prompt to the backend. With useHistory the current window of hist
// is sent along and, on success, the exchange is appended to it. Failures are
// always returned as *Error.
func (g *Gateway) Run(ctx context.Context, prompt string, hist *History, useHistory bool) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", NewError(KindInvalidInput, "", nil)
	}

	ctx, span := g.tracer.Start(ctx, "gateway.run", trace.WithAttributes(
		attribute.String("backend", g.backend.Name()),
		attribute.Bool("use_history", useHistory),
		attribute.Int("prompt.length", len(prompt)),
	))
	defer span.End()

	reply, err := g.run(ctx, prompt, hist, useHistory)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.kind", string(KindOf(err))))
		g.logger.Debug().Str("backend", g.backend.Name()).Str("kind", string(KindOf(err))).Msg(err.Detail())
		return "", err
	}
	span.SetAttributes(attribute.Int("reply.length", len(reply)))
	return reply, nil
}

func (g *Gateway) run(ctx context.Context, prompt string, hist *History, useHistory bool) (string, *Error) {
	if ctx.Err() != nil {
		return "", FromContext(ctx)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", FromContext(ctx)
			}
			return "", NewError(KindQuota, "Local rate limit reached. Please wait a moment.", err)
		}
	}

	var turns []Turn
	if useHistory && hist != nil {
		turns = hist.Snapshot()
	}

	reply, err := g.backend.Generate(ctx, turns, prompt)
	if ctx.Err() != nil {
		// The caller has given up; a late reply must not enter the history.
		return "", FromContext(ctx)
	}
	if err != nil {
		return "", AsError(err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", NewError(KindUnknown, "Empty response from model", nil)
	}

	if useHistory && hist != nil {
		hist.Append(prompt, reply)
	}
	return reply, nil
}
