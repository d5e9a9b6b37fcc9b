// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

// Package errutil extracts oops metadata for logging and tests.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// Code returns the oops code attached to err, or "" if there is none.
func Code(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok {
			return code
		}
	}
	return ""
}

// Attrs returns slog attributes for err: the message, and for oops errors
// the code and merged context.
func Attrs(err error) []any {
	attrs := []any{"error", err.Error()}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return attrs
	}
	if code := Code(err); code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}

// LogError logs err at error level with its oops code and context.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, Attrs(err)...)
}
