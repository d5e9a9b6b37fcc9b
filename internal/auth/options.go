// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package auth

import (
	"log/slog"
	"strings"
	"time"
)

// DefaultResetBaseURL is used to build reset links when none is configured.
const DefaultResetBaseURL = "http://localhost:8080"

// Recorder receives operation outcomes for metrics. Implementations must be
// safe for concurrent use.
type Recorder interface {
	RecordOperation(operation, outcome string)
	RecordNotification(kind, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, string)    {}
func (nopRecorder) RecordNotification(string, string) {}

// Option configures the credential services.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	now          func() time.Time
	secrets      SecretGenerator
	recorder     Recorder
	resetTTL     time.Duration
	otpTTL       time.Duration
	resetBaseURL string
	saveBackoff  time.Duration
}

func newOptions(opts []Option) options {
	o := options{
		logger:       slog.Default(),
		now:          time.Now,
		secrets:      CryptoSecrets{},
		recorder:     nopRecorder{},
		resetTTL:     ResetTokenExpiry,
		otpTTL:       VerificationExpiry,
		resetBaseURL: DefaultResetBaseURL,
		saveBackoff:  defaultSaveBackoff,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSecretGenerator replaces CryptoSecrets.
func WithSecretGenerator(g SecretGenerator) Option {
	return func(o *options) {
		if g != nil {
			o.secrets = g
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithResetTTL overrides ResetTokenExpiry.
func WithResetTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.resetTTL = d
		}
	}
}

// WithVerificationTTL overrides VerificationExpiry.
func WithVerificationTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.otpTTL = d
		}
	}
}

// WithResetBaseURL sets the public URL that reset links are built on.
func WithResetBaseURL(base string) Option {
	return func(o *options) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			o.resetBaseURL = base
		}
	}
}

// WithConflictBackoff sets the initial wait before reloading an identity
// that another writer saved first.
func WithConflictBackoff(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.saveBackoff = d
		}
	}
}

// outcome maps an operation result to a metrics label.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return Kind(err)
}
