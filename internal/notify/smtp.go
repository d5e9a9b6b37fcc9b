// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

// Package notify delivers credential mail.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/wneessen/go-mail"

	"github.com/authio/authio/internal/auth"
)

// SMTP defaults. Port 465 is implicit TLS.
const (
	DefaultSMTPPort     = 465
	DefaultSMTPUsername = "apikey"
	DefaultSMTPTimeout  = 10 * time.Second
	DefaultMaxRetries   = 2
	DefaultRetryBase    = 250 * time.Millisecond
)

// SMTPConfig configures an SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// ImplicitTLS dials TLS directly. When false the client upgrades with
	// STARTTLS if the server offers it.
	ImplicitTLS bool

	Timeout    time.Duration
	MaxRetries uint64
	RetryBase  time.Duration
}

// sender is the part of *mail.Client the notifier drives.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPNotifier sends HTML mail through an authenticated SMTP relay.
type SMTPNotifier struct {
	client     sender
	from       string
	maxRetries uint64
	retryBase  time.Duration
	logger     *slog.Logger
}

var _ auth.Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier validates cfg and builds the SMTP client.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("sender address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultSMTPPort
	}
	if cfg.Username == "" {
		cfg.Username = DefaultSMTPUsername
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.ImplicitTLS {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}
	if cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("SMTP_CONFIG_INVALID").With("host", cfg.Host).Wrap(err)
	}
	return newSMTPNotifier(client, cfg, logger), nil
}

func newSMTPNotifier(client sender, cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = DefaultRetryBase
	}
	return &SMTPNotifier{
		client:     client,
		from:       cfg.From,
		maxRetries: cfg.MaxRetries,
		retryBase:  base,
		logger:     logger,
	}
}

// Send builds one HTML message and delivers it, retrying transient
// failures with exponential backoff.
func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return oops.Code("MAIL_ADDRESS_INVALID").With("field", "from").Wrap(err)
	}
	if err := msg.To(to); err != nil {
		return oops.Code("MAIL_ADDRESS_INVALID").With("field", "to").Wrap(err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)

	backoff := retry.WithMaxRetries(n.maxRetries, retry.NewExponential(n.retryBase))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := n.client.DialAndSendWithContext(ctx, msg)
		if err == nil {
			return nil
		}
		if permanent(err) {
			return err
		}
		n.logger.WarnContext(ctx, "mail delivery attempt failed",
			"attempt", attempt,
			"subject", subject,
			"error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("attempts", attempt).
			With("subject", subject).
			Wrap(err)
	}

	n.logger.DebugContext(ctx, "mail delivered", "subject", subject, "attempts", attempt)
	return nil
}

// permanent reports SMTP rejections that retrying cannot fix, such as a
// 5xx reply to RCPT TO.
func permanent(err error) bool {
	var sendErr *mail.SendError
	return errors.As(err, &sendErr) && !sendErr.IsTemp()
}
