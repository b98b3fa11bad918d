// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/turnstile/turnstile/internal/auth"
	authpg "github.com/turnstile/turnstile/internal/auth/postgres"
	"github.com/turnstile/turnstile/internal/config"
	"github.com/turnstile/turnstile/internal/store"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	timeout   time.Duration
	email     string
	firstName string
	lastName  string
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	scfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the initial admin account",
		Long: `Creates the first admin account so the system can be logged into.
The password comes from the TURNSTILE_ADMIN_PASSWORD environment variable.
This command is idempotent - it will not create duplicates if run multiple times.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args, scfg)
		},
	}

	cmd.Flags().DurationVar(&scfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().StringVar(&scfg.email, "email", "admin@example.com", "admin account email")
	cmd.Flags().StringVar(&scfg.firstName, "first-name", "Admin", "admin first name")
	cmd.Flags().StringVar(&scfg.lastName, "last-name", "", "admin last name")

	return cmd
}

func runSeed(cmd *cobra.Command, _ []string, scfg *seedConfig) error {
	cfg, err := config.Load(resolveConfigPath(), nil)
	if err != nil {
		return err
	}

	password := os.Getenv("TURNSTILE_ADMIN_PASSWORD")
	if err := auth.ValidatePassword(password, password); err != nil {
		return oops.Code("SEED_FAILED").
			With("operation", "validate admin password").
			Wrap(err)
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), scfg.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	hash, err := auth.NewArgon2idHasher().Hash(password)
	if err != nil {
		return oops.Code("SEED_FAILED").With("operation", "hash admin password").Wrap(err)
	}

	admin, err := auth.NewUser(scfg.email, hash, scfg.firstName, auth.RoleAdmin)
	if err != nil {
		return oops.Code("SEED_FAILED").With("operation", "construct admin user").Wrap(err)
	}
	admin.LastName = scfg.lastName

	users := authpg.NewUserRepository(pool)
	if err := users.Create(ctx, admin); err != nil {
		// The case-insensitive unique index on email makes re-runs collide
		// here; that is the idempotency check.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			cmd.Println("Admin account already exists, skipping seed")
			slog.Info("admin account already seeded", "email", scfg.email)
			return nil
		}
		return oops.Code("SEED_FAILED").With("operation", "create admin user").Wrap(err)
	}

	cmd.Printf("Created admin account: %s\n", scfg.email)
	slog.Info("created admin account", "id", admin.ID, "email", admin.Email)
	return nil
}
