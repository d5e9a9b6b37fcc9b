// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authio/authio/internal/store"
)

// schemaMigrator is the part of *store.Migrator the migrate commands use.
type schemaMigrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Status() (*store.MigrationStatus, error)
	Close() error
}

// MigratorFactory opens a migrator for a database URL.
type MigratorFactory func(databaseURL string) (schemaMigrator, error)

func defaultMigratorFactory(databaseURL string) (schemaMigrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate command group. A nil factory uses
// store.NewMigrator.
func NewMigrateCmd(root *rootOptions, factory MigratorFactory) *cobra.Command {
	if factory == nil {
		factory = defaultMigratorFactory
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, root, factory, func(m schemaMigrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printStatus(cmd, m)
			})
		},
	})

	var steps int
	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (one by default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !all && steps < 1 {
				return oops.Code("INVALID_STEPS").Errorf("--steps must be at least 1, got %d", steps)
			}
			return withMigrator(cmd, root, factory, func(m schemaMigrator) error {
				var err error
				if all {
					err = m.Down()
				} else {
					err = m.Steps(-steps)
				}
				if err != nil {
					return err
				}
				return printStatus(cmd, m)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	down.Flags().BoolVar(&all, "all", false, "roll back every migration, dropping all identity data")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, root, factory, func(m schemaMigrator) error {
				return printStatus(cmd, m)
			})
		},
	})

	return cmd
}

func withMigrator(cmd *cobra.Command, root *rootOptions, factory MigratorFactory, fn func(schemaMigrator) error) error {
	cfg, err := root.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Store.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").
			With("key", "store.database_url").
			Errorf("a database URL is required (store.database_url or DATABASE_URL)")
	}

	m, err := factory(cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
		}
	}()
	return fn(m)
}

func printStatus(cmd *cobra.Command, m schemaMigrator) error {
	status, err := m.Status()
	if err != nil {
		return err
	}

	current := "none"
	if status.Version > 0 {
		current = fmt.Sprintf("%d", status.Version)
		if status.Name != "" {
			current += " (" + status.Name + ")"
		}
	}
	cmd.Printf("version: %s\n", current)
	if status.Dirty {
		cmd.Println("dirty: true (a migration failed part way; fix the schema and force the version)")
	}

	if len(status.Pending) == 0 {
		cmd.Println("pending: none")
		return nil
	}
	pending := make([]string, len(status.Pending))
	for i, v := range status.Pending {
		pending[i] = fmt.Sprintf("%d", v)
	}
	cmd.Printf("pending: %s\n", strings.Join(pending, ", "))
	return nil
}
