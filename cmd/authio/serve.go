// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authio/authio/internal/auth"
	"github.com/authio/authio/internal/config"
	"github.com/authio/authio/internal/httpapi"
	"github.com/authio/authio/internal/observability"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand. Nil deps use defaults.
func NewServeCmd(root *rootOptions, deps *ServeDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API with the metrics and health server, and the
periodic expired-credential sweep when sweep.interval is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd, deps)
		},
	}
}

// runServe wires and runs the server until ctx is done or a listener fails.
func runServe(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	logger.Info("starting authio",
		"http_addr", cfg.Server.HTTPAddr,
		"store", cfg.Store.Driver,
		"mail", cfg.Mail.Driver)

	be, err := deps.OpenStore(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open credential store").Wrap(err)
	}
	defer be.close()

	notifier, err := deps.NewNotifier(cfg, logger)
	if err != nil {
		return oops.With("operation", "build notifier").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithResetTTL(cfg.Reset.TTL),
		auth.WithVerificationTTL(cfg.Verification.TTL),
		auth.WithResetBaseURL(cfg.Server.PublicURL),
	}

	var obsServer *observability.Server
	if cfg.Server.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.Server.MetricsAddr, logger, be.ready)
		opts = append(opts, auth.WithRecorder(obsServer.Metrics()))
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
	}

	handler, err := buildAPI(cfg, logger, be.store, notifier, opts)
	if err != nil {
		stopObservability(obsServer, logger)
		return err
	}

	var sweeper *auth.Sweeper
	if cfg.Sweep.Interval > 0 {
		if sweeper, err = auth.NewSweeper(be.store, opts...); err != nil {
			stopObservability(obsServer, logger)
			return err
		}
	}

	listener, err := deps.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.Server.HTTPAddr).Wrap(err)
	}
	apiServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	apiErrCh := make(chan error, 1)
	go func() {
		defer close(apiErrCh)
		if err := apiServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			apiErrCh <- err
		}
	}()

	var wg sync.WaitGroup
	if sweeper != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			//nolint:errcheck // the interval is validated by config
			sweeper.Run(ctx, cfg.Sweep.Interval)
		}()
	}

	cmd.Printf("authio listening on %s\n", listener.Addr())
	logger.Info("authio ready", "http_addr", listener.Addr().String())

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-apiErrCh:
		if ok {
			logger.Error("http server error, triggering shutdown", "error", err)
			runErr = oops.Code("HTTP_SERVE_FAILED").Wrap(err)
		}
	}
	cancel()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	stopObservability(obsServer, logger)
	wg.Wait()

	logger.Info("shutdown complete")
	return runErr
}

// buildAPI assembles the credential services and the HTTP handler.
func buildAPI(cfg *config.Config, logger *slog.Logger, store auth.CredentialStore, notifier auth.Notifier, opts []auth.Option) (http.Handler, error) {
	sessions, err := auth.NewSessionManager(auth.SessionConfig{
		Secret: []byte(cfg.Session.Secret),
		TTL:    cfg.Session.TTL,
		Issuer: cfg.Session.Issuer,
	})
	if err != nil {
		return nil, err
	}
	hasher := auth.NewArgon2idHasher()

	authSvc, err := auth.NewAuthService(store, hasher, sessions, opts...)
	if err != nil {
		return nil, err
	}
	resets, err := auth.NewPasswordResetService(store, hasher, notifier, opts...)
	if err != nil {
		return nil, err
	}
	verify, err := auth.NewVerificationService(store, notifier, opts...)
	if err != nil {
		return nil, err
	}
	admin, err := auth.NewAdminService(store, opts...)
	if err != nil {
		return nil, err
	}

	api, err := httpapi.New(httpapi.Deps{
		Auth:     authSvc,
		Resets:   resets,
		Verify:   verify,
		Admin:    admin,
		Sessions: sessions,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return api.Routes(), nil
}

func stopObservability(s *observability.Server, logger *slog.Logger) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports a serve error. It
// returns when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, server string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		logger.Error("server error, triggering shutdown", "server", server, "error", err)
		cancel()
	case <-ctx.Done():
	}
}
