// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/turnstile/turnstile/internal/audit"
	"github.com/turnstile/turnstile/internal/auth"
	authpg "github.com/turnstile/turnstile/internal/auth/postgres"
	"github.com/turnstile/turnstile/internal/config"
	"github.com/turnstile/turnstile/internal/logging"
	"github.com/turnstile/turnstile/internal/mail"
	"github.com/turnstile/turnstile/internal/observability"
	"github.com/turnstile/turnstile/internal/store"
	"github.com/turnstile/turnstile/internal/web"
	"github.com/turnstile/turnstile/pkg/errutil"
)

// cleanupInterval is how often the idle-session sweep runs. Expiry is
// also enforced lazily on every request; the sweep just keeps the table
// from accumulating rows for clients that never came back.
const cleanupInterval = 10 * time.Minute

// shutdownTimeout bounds graceful shutdown of the HTTP servers.
const shutdownTimeout = 15 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the access layer HTTP server",
		Long: `Start the HTTP server exposing login, logout, session introspection,
CSRF tokens, and the password reset flow.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigPath(), cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("turnstile", version, cfg.Log.Format, cfg.Log.Level)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		if err := runAutoMigrate(cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	auditLog := audit.NewLog(audit.NewPostgresStore(pool), logger)
	defer auditLog.Close() //nolint:errcheck // drained on shutdown, nothing to report

	mailer, err := buildMailer(cfg)
	if err != nil {
		return err
	}

	users := authpg.NewUserRepository(pool)
	sessions := authpg.NewSessionRepository(pool)
	resets := authpg.NewResetRepository(pool)
	hasher := auth.NewArgon2idHasher()

	authSvc, err := auth.NewServiceWithLogger(users, sessions, hasher, auditLog, logger)
	if err != nil {
		return err
	}

	resetSvc, err := auth.NewResetServiceWithLogger(users, resets, hasher, mailer, auditLog, cfg.BaseURL, logger)
	if err != nil {
		return err
	}

	server, err := web.NewServer(web.Config{
		Env:          cfg.Env,
		CookieName:   cfg.Cookie.Name,
		CookieDomain: cfg.Cookie.Domain,
	}, authSvc, resetSvc, logger)
	if err != nil {
		return err
	}

	obs := observability.NewServer(cfg.Observability.Addr, func() bool {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Ping(pingCtx) == nil
	})
	obsErrCh, err := obs.Start()
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	httpErrCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", "addr", cfg.HTTP.Addr, "env", cfg.Env)
		if serveErr := httpSrv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			httpErrCh <- serveErr
		}
	}()

	go runCleanupLoop(ctx, authSvc, obs.Metrics(), logger)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-httpErrCh:
		errutil.LogError(logger, "http server failed", serveErr)
	case obsErr := <-obsErrCh:
		errutil.LogError(logger, "observability server failed", obsErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		errutil.LogError(logger, "http server shutdown failed", err)
	}
	if err := obs.Stop(shutdownCtx); err != nil {
		errutil.LogError(logger, "observability server shutdown failed", err)
	}

	logger.Info("server stopped")
	return nil
}

// runCleanupLoop periodically removes idle sessions.
func runCleanupLoop(ctx context.Context, authSvc *auth.Service, metrics *observability.Metrics, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := authSvc.CleanupIdleSessions(ctx)
			if err != nil {
				errutil.LogError(logger, "idle session cleanup failed", err)
				continue
			}
			if count > 0 {
				metrics.SessionsCleanedTotal.Add(float64(count))
				logger.Info("idle sessions removed", "count", count)
			}
		}
	}
}

// runAutoMigrate applies pending migrations before the server starts.
// Disable with database.auto_migrate when migrations are run out of band.
func runAutoMigrate(databaseURL string, logger *slog.Logger) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck // close error after a completed run is not actionable

	if err := migrator.Up(); err != nil {
		return err
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	logger.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}

// buildMailer constructs the outbound mail transport from config.
func buildMailer(cfg *config.Config) (mail.Mailer, error) {
	switch cfg.Mail.Provider {
	case "smtp":
		return mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
			From:     cfg.Mail.SMTP.From,
		})
	case "mailgun":
		return mail.NewMailgunMailer(mail.MailgunConfig{
			Domain: cfg.Mail.Mailgun.Domain,
			APIKey: cfg.Mail.Mailgun.APIKey,
			From:   cfg.Mail.Mailgun.From,
		})
	case "none":
		return mail.NopMailer{}, nil
	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("provider", cfg.Mail.Provider).
			Errorf("unknown mail provider")
	}
}
