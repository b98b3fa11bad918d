// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnstile/turnstile/internal/config"
	"github.com/turnstile/turnstile/internal/mail"
)

func TestBuildMailer(t *testing.T) {
	t.Run("none builds the nop mailer", func(t *testing.T) {
		cfg := config.Default()

		mailer, err := buildMailer(cfg)
		require.NoError(t, err)
		assert.IsType(t, mail.NopMailer{}, mailer)
	})

	t.Run("smtp builds from config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Mail.Provider = "smtp"
		cfg.Mail.SMTP = config.SMTP{
			Host: "smtp.example.com",
			Port: "587",
			From: "noreply@example.com",
		}

		mailer, err := buildMailer(cfg)
		require.NoError(t, err)
		assert.IsType(t, &mail.SMTPMailer{}, mailer)
	})

	t.Run("smtp config errors surface", func(t *testing.T) {
		cfg := config.Default()
		cfg.Mail.Provider = "smtp"

		_, err := buildMailer(cfg)
		require.Error(t, err)
	})

	t.Run("mailgun builds from config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Mail.Provider = "mailgun"
		cfg.Mail.Mailgun = config.Mailgun{
			Domain: "mg.example.com",
			APIKey: "key",
			From:   "noreply@example.com",
		}

		mailer, err := buildMailer(cfg)
		require.NoError(t, err)
		assert.IsType(t, &mail.MailgunMailer{}, mailer)
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		cfg := config.Default()
		cfg.Mail.Provider = "sendmail"

		_, err := buildMailer(cfg)
		require.Error(t, err)
	})
}
