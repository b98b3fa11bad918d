// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/samber/oops"
)

// SMTPConfig holds connection settings for a plain SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func (c SMTPConfig) validate() error {
	if c.Host == "" || c.Port == "" || c.From == "" {
		return oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host, port, and from address are required")
	}
	return nil
}

// SMTPMailer implements Mailer over net/smtp with PLAIN auth.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer creates an SMTPMailer after validating the config.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &SMTPMailer{cfg: cfg}, nil
}

// Send delivers one HTML message. The context is honored up to the point
// net/smtp takes over; relay timeouts belong to the server config.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("MAIL_SEND_FAILED").Wrap(err)
	}

	headers := []string{
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		fmt.Sprintf("From: %s", m.cfg.From),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
	}
	msg := []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := m.cfg.Host + ":" + m.cfg.Port
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("operation", "smtp send").
			Wrap(err)
	}

	return nil
}

// Compile-time interface check.
var _ Mailer = (*SMTPMailer)(nil)
