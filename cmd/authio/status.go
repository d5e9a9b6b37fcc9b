// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package main

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const statusTimeout = 5 * time.Second

// NewStatusCmd creates the status subcommand, which checks a running
// server's readiness endpoint on server.metrics_addr.
func NewStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a running authio server is ready",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Server.MetricsAddr == "" {
				return oops.Code("CONFIG_INVALID").
					With("key", "server.metrics_addr").
					Errorf("status needs the metrics address of the running server")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, statusTimeout)
			defer cancel()
			return checkReadiness(ctx, cmd, http.DefaultClient, cfg.Server.MetricsAddr)
		},
	}
}

func checkReadiness(ctx context.Context, cmd *cobra.Command, client *http.Client, addr string) error {
	url := "http://" + addr + "/healthz/readiness"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return oops.Code("STATUS_REQUEST_INVALID").With("url", url).Wrap(err)
	}

	resp, err := client.Do(req)
	if err != nil {
		cmd.Printf("authio at %s: unreachable\n", addr)
		return oops.Code("STATUS_UNREACHABLE").With("addr", addr).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck // body is informational
	state := strings.TrimSpace(string(body))
	cmd.Printf("authio at %s: %s\n", addr, state)

	if resp.StatusCode != http.StatusOK {
		return oops.Code("STATUS_NOT_READY").With("addr", addr).With("status", resp.StatusCode).Errorf("server is not ready")
	}
	return nil
}
