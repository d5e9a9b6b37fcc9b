// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package main

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/authio/authio/internal/auth"
	"github.com/authio/authio/internal/auth/memory"
	"github.com/authio/authio/internal/auth/postgres"
	"github.com/authio/authio/internal/auth/redisstore"
	"github.com/authio/authio/internal/config"
	"github.com/authio/authio/internal/notify"
	"github.com/authio/authio/internal/observability"
	"github.com/authio/authio/internal/store"
)

// readinessTimeout bounds a store readiness check.
const readinessTimeout = 2 * time.Second

// backend is an opened credential store with its readiness check and cleanup.
type backend struct {
	store auth.CredentialStore
	ready observability.ReadinessChecker
	close func()
}

// StoreOpener opens the configured credential store.
type StoreOpener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error)

// NotifierFactory builds the configured notifier.
type NotifierFactory func(cfg *config.Config, logger *slog.Logger) (auth.Notifier, error)

// ServeDeps contains injectable dependencies for the serve command.
// Nil fields use their default implementations.
type ServeDeps struct {
	// OpenStore opens the credential store.
	// Default: openStore
	OpenStore StoreOpener

	// NewNotifier builds the notifier.
	// Default: newNotifier
	NewNotifier NotifierFactory

	// Listen creates the HTTP API listener.
	// Default: net.Listen
	Listen func(network, address string) (net.Listener, error)
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.OpenStore == nil {
		out.OpenStore = openStore
	}
	if out.NewNotifier == nil {
		out.NewNotifier = newNotifier
	}
	if out.Listen == nil {
		out.Listen = net.Listen
	}
	return &out
}

// openStore connects the driver named by cfg.Store.Driver.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		logger.Warn("using the in-memory credential store; data is lost on exit")
		return &backend{store: memory.New(), close: func() {}}, nil

	case config.StorePostgres:
		pool, err := store.Connect(ctx, cfg.Store.DatabaseURL, store.PoolConfig{})
		if err != nil {
			return nil, err
		}
		return &backend{
			store: postgres.NewIdentityRepository(pool),
			ready: func(ctx context.Context) bool { return store.Healthy(ctx, pool, readinessTimeout) },
			close: pool.Close,
		}, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		s := redisstore.New(client, cfg.Store.Redis.Prefix)
		if err := s.Ping(ctx); err != nil {
			_ = client.Close() //nolint:errcheck // connect error takes precedence
			return nil, oops.Code("STORE_CONNECT_FAILED").With("addr", cfg.Store.Redis.Addr).Wrap(err)
		}
		return &backend{
			store: s,
			ready: func(ctx context.Context) bool { return s.Ping(ctx) == nil },
			close: func() {
				if err := client.Close(); err != nil {
					logger.Warn("closing redis client failed", "error", err)
				}
			},
		}, nil
	}
	return nil, oops.Code("CONFIG_INVALID").With("key", "store.driver").Errorf("unknown store driver %q", cfg.Store.Driver)
}

// newNotifier builds the notifier named by cfg.Mail.Driver.
func newNotifier(cfg *config.Config, logger *slog.Logger) (auth.Notifier, error) {
	switch cfg.Mail.Driver {
	case config.MailLog:
		return notify.NewLogNotifier(logger, cfg.Mail.LogBody), nil
	case config.MailSMTP:
		return notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:        cfg.Mail.Host,
			Port:        cfg.Mail.Port,
			Username:    cfg.Mail.Username,
			Password:    cfg.Mail.Password,
			From:        cfg.Mail.From,
			ImplicitTLS: cfg.Mail.ImplicitTLS,
			Timeout:     cfg.Mail.Timeout,
			MaxRetries:  cfg.Mail.MaxRetries,
		}, logger)
	}
	return nil, oops.Code("CONFIG_INVALID").With("key", "mail.driver").Errorf("unknown mail driver %q", cfg.Mail.Driver)
}
