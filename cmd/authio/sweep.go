// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/authio/authio/internal/auth"
)

// NewSweepCmd creates the sweep subcommand. A nil opener uses openStore.
func NewSweepCmd(root *rootOptions, open StoreOpener) *cobra.Command {
	if open == nil {
		open = openStore
	}
	return &cobra.Command{
		Use:   "sweep",
		Short: "Clear expired reset tokens and verification codes once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateStore(); err != nil {
				return err
			}
			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}

			be, err := open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer be.close()

			sweeper, err := auth.NewSweeper(be.store, auth.WithLogger(logger))
			if err != nil {
				return err
			}
			n, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("purged expired credentials from %d identities\n", n)
			return nil
		},
	}
}
