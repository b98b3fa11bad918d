// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/turnstile/turnstile/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// resolveConfigPath returns the --config flag value, falling back to the
// XDG config file when the flag is unset. Empty means defaults plus env.
func resolveConfigPath() string {
	if configFile != "" {
		return configFile
	}
	return xdg.ConfigFile()
}

// NewRootCmd creates the root command for the Turnstile CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "turnstile",
		Short: "Turnstile - access layer for the event check-in platform",
		Long: `Turnstile is the credential-gated access layer for the event
check-in platform: sessions, login, password resets, and audit logging.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}
