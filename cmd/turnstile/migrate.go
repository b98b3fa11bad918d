// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"bufio"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/turnstile/turnstile/internal/config"
	"github.com/turnstile/turnstile/internal/store"
)

// migrateConfig holds configuration for the migrate subcommand.
type migrateConfig struct {
	down  bool
	steps int
	force int
	yes   bool
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	mcfg := &migrateConfig{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply pending database migrations. With --down, roll back all
migrations instead. --steps applies a relative number of migrations
(negative rolls back). --force sets the recorded version without running
anything; use it only to recover from a dirty state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, args, mcfg)
		},
	}

	cmd.Flags().BoolVar(&mcfg.down, "down", false, "roll back all migrations (destructive)")
	cmd.Flags().IntVar(&mcfg.steps, "steps", 0, "apply a relative number of migrations")
	cmd.Flags().IntVar(&mcfg.force, "force", -1, "set migration version without running migrations")
	cmd.Flags().BoolVar(&mcfg.yes, "yes", false, "skip the confirmation prompt for destructive operations")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string, mcfg *migrateConfig) error {
	cfg, err := config.Load(resolveConfigPath(), nil)
	if err != nil {
		return err
	}

	migrator, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck // close error after a completed run is not actionable

	switch {
	case mcfg.force >= 0:
		if err := migrator.Force(mcfg.force); err != nil {
			return err
		}
		cmd.Printf("Forced migration version to %d\n", mcfg.force)

	case mcfg.down:
		if !mcfg.yes && !confirmDestructive(cmd) {
			cmd.Println("Aborted")
			return nil
		}
		cmd.Println("Rolling back all migrations...")
		if err := migrator.Down(); err != nil {
			return err
		}
		cmd.Println("Rollback complete")

	case mcfg.steps != 0:
		if err := migrator.Steps(mcfg.steps); err != nil {
			return err
		}
		cmd.Printf("Applied %d migration step(s)\n", mcfg.steps)

	default:
		cmd.Println("Running migrations...")
		if err := migrator.Up(); err != nil {
			return err
		}
		cmd.Println("Migrations completed successfully")
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return oops.With("operation", "read final version").Wrap(err)
	}
	cmd.Printf("Current version: %d (dirty: %t)\n", version, dirty)
	return nil
}

// confirmDestructive prompts before an operation that drops data.
// Only an exact "yes" proceeds.
func confirmDestructive(cmd *cobra.Command) bool {
	cmd.Print("This drops all tables and data. Type 'yes' to continue: ")
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	return strings.TrimSpace(line) == "yes"
}
