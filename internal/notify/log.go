// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/authio/authio/internal/auth"
)

// LogNotifier writes messages to a logger instead of sending them. Bodies
// carry live reset links and codes, so they are only logged, at debug
// level, when the notifier is built with logBodies set.
type LogNotifier struct {
	logger    *slog.Logger
	logBodies bool
}

var _ auth.Notifier = (*LogNotifier)(nil)

// NewLogNotifier returns a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger, logBodies bool) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger, logBodies: logBodies}
}

// Send logs the recipient and subject.
func (n *LogNotifier) Send(ctx context.Context, to, subject, body string) error {
	n.logger.InfoContext(ctx, "mail not sent, log driver active",
		"to", to,
		"subject", subject,
		"body_bytes", len(body))
	if n.logBodies {
		n.logger.DebugContext(ctx, "undelivered mail body", "to", to, "body", body)
	}
	return nil
}
