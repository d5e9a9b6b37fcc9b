// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

// Package logging builds the process slog.Logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// Redacted replaces the value of any attribute whose key names a secret.
const Redacted = "[REDACTED]"

var secretKeys = map[string]bool{
	"password":     true,
	"new_password": true,
	"token":        true,
	"otp":          true,
	"secret":       true,
}

// Options configures New.
type Options struct {
	Service string
	Version string
	// Format is "json" (default) or "text".
	Format string
	// Level is a slog level name; empty means info.
	Level  string
	Writer io.Writer
}

// serviceHandler stamps service, version and the active span on records.
type serviceHandler struct {
	slog.Handler
	service string
	version string
}

func (h *serviceHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", span.TraceID().String()),
			slog.String("span_id", span.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r) //nolint:wrapcheck // handler passthrough
}

func (h *serviceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &serviceHandler{Handler: h.Handler.WithAttrs(attrs), service: h.service, version: h.version}
}

func (h *serviceHandler) WithGroup(name string) slog.Handler {
	return &serviceHandler{Handler: h.Handler.WithGroup(name), service: h.service, version: h.version}
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, Redacted)
	}
	return a
}

// New builds a logger from opts.
func New(opts Options) (*slog.Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	var level slog.Level
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, oops.Code("LOG_LEVEL_INVALID").With("level", opts.Level).Wrap(err)
		}
	}
	handlerOpts := &slog.HandlerOptions{Level: level, ReplaceAttr: redact}

	var base slog.Handler
	switch opts.Format {
	case "", "json":
		base = slog.NewJSONHandler(w, handlerOpts)
	case "text":
		base = slog.NewTextHandler(w, handlerOpts)
	default:
		return nil, oops.Code("LOG_FORMAT_INVALID").With("format", opts.Format).Errorf("log format must be json or text")
	}

	return slog.New(&serviceHandler{Handler: base, service: opts.Service, version: opts.Version}), nil
}

// SetDefault builds a logger and installs it as slog's default.
func SetDefault(opts Options) (*slog.Logger, error) {
	logger, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
