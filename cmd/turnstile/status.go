// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/turnstile/turnstile/internal/config"
	"github.com/turnstile/turnstile/internal/store"
)

// statusTimeout bounds the database probe.
const statusTimeout = 10 * time.Second

// Status holds the health information reported by the status command.
type Status struct {
	Database          string `json:"database"`
	MigrationVersion  uint   `json:"migration_version"`
	MigrationDirty    bool   `json:"migration_dirty"`
	PendingMigrations int    `json:"pending_migrations"`
	Error             string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// newStatusCmd creates the status subcommand with all flags configured.
func newStatusCmd() *cobra.Command {
	scfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database and migration status",
		Long:  `Check database connectivity and report the migration state.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, scfg)
		},
	}

	cmd.Flags().BoolVar(&scfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, scfg *statusConfig) error {
	cfg, err := config.Load(resolveConfigPath(), nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()

	status := queryStatus(ctx, cfg.Database.URL)

	var output string
	if scfg.jsonOutput {
		output, err = formatStatusJSON(status)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
	} else {
		output = formatStatusTable(status)
	}

	cmd.Println(output)
	return nil
}

// queryStatus probes the database and migration state. Failures are
// reported in the Status rather than returned; the command output is the
// diagnostic.
func queryStatus(ctx context.Context, databaseURL string) Status {
	status := Status{Database: "unreachable"}

	pool, err := store.Connect(ctx, databaseURL)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer pool.Close()
	status.Database = "ok"

	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer migrator.Close() //nolint:errcheck // probe only, close error is noise

	version, dirty, err := migrator.Version()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.MigrationVersion = version
	status.MigrationDirty = dirty

	pending, err := migrator.PendingMigrations()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.PendingMigrations = len(pending)

	return status
}

// formatStatusJSON renders the status as indented JSON.
func formatStatusJSON(status Status) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal status: %w", err)
	}
	return string(data), nil
}

// formatStatusTable renders the status as an aligned table.
func formatStatusTable(status Status) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "DATABASE\t%s\n", status.Database)
	fmt.Fprintf(w, "MIGRATION VERSION\t%d\n", status.MigrationVersion)
	fmt.Fprintf(w, "MIGRATION DIRTY\t%t\n", status.MigrationDirty)
	fmt.Fprintf(w, "PENDING MIGRATIONS\t%d\n", status.PendingMigrations)
	if status.Error != "" {
		fmt.Fprintf(w, "ERROR\t%s\n", status.Error)
	}

	_ = w.Flush()
	return strings.TrimRight(sb.String(), "\n")
}
