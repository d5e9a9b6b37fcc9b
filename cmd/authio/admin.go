// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/authio/authio/internal/auth"
)

// NewAdminCmd creates the admin subcommand, which grants or revokes the
// admin flag of an identity by email. A nil opener uses openStore.
func NewAdminCmd(root *rootOptions, open StoreOpener) *cobra.Command {
	if open == nil {
		open = openStore
	}
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin privileges",
	}
	cmd.AddCommand(
		setAdminCmd(root, open, "grant", "Grant admin privileges to the identity with this email", true),
		setAdminCmd(root, open, "revoke", "Revoke admin privileges from the identity with this email", false),
	)
	return cmd
}

func setAdminCmd(root *rootOptions, open StoreOpener, use, short string, isAdmin bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			identity, err := be.store.FindByEmail(cmd.Context(), auth.NormalizeEmail(args[0]))
			if err != nil {
				return err
			}
			admins, err := auth.NewAdminService(be.store, auth.WithLogger(logger))
			if err != nil {
				return err
			}
			updated, err := admins.Update(cmd.Context(), identity.ID, auth.IdentityUpdate{IsAdmin: &isAdmin})
			if err != nil {
				return err
			}
			cmd.Printf("%s admin=%t\n", updated.Email, updated.IsAdmin)
			return nil
		},
	}
}
