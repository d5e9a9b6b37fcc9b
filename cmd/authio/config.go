// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/authio/authio/internal/config"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and check configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			cmd.Println(string(schema))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load the layered configuration and check it can start a server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.Println("configuration is valid")
			return nil
		},
	})

	return cmd
}
