// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/authio/authio/internal/config"
	"github.com/authio/authio/internal/logging"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configFile string
}

// NewRootCmd creates the root command for the authio CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	return newRootCmd(opts,
		NewServeCmd(opts, nil),
		NewMigrateCmd(opts, nil),
		NewSweepCmd(opts, nil),
		NewAdminCmd(opts, nil),
		NewStatusCmd(opts),
		NewConfigCmd(opts),
	)
}

func newRootCmd(opts *rootOptions, subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authio",
		Short: "authio - identity credential service",
		Long: `authio signs users in with stateless session tokens, runs the
password reset flow and verifies email addresses with one-time codes.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/authio/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())
	cmd.AddCommand(subcommands...)

	return cmd
}

// loadConfig reads the layered configuration for cmd.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(o.configFile, cmd.Flags())
}

// newLogger builds the process logger and installs it as the default.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	return logging.SetDefault(logging.Options{
		Service: "authio",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
}
