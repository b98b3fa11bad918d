// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package mail

import (
	"context"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/samber/oops"
)

// MailgunConfig holds Mailgun API settings.
type MailgunConfig struct {
	Domain string
	APIKey string
	From   string
}

func (c MailgunConfig) validate() error {
	if c.Domain == "" || c.APIKey == "" || c.From == "" {
		return oops.Code("MAIL_CONFIG_INVALID").Errorf("mailgun domain, api key, and from address are required")
	}
	return nil
}

// mailgunSendTimeout bounds one API call when the caller's context has no
// earlier deadline.
const mailgunSendTimeout = 30 * time.Second

// MailgunMailer implements Mailer using the Mailgun API.
type MailgunMailer struct {
	client mailgun.Mailgun
	from   string
}

// NewMailgunMailer creates a MailgunMailer after validating the config.
func NewMailgunMailer(cfg MailgunConfig) (*MailgunMailer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &MailgunMailer{
		client: mailgun.NewMailgun(cfg.Domain, cfg.APIKey),
		from:   cfg.From,
	}, nil
}

// Send delivers one HTML message through the Mailgun API.
func (m *MailgunMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	ctx, cancel := context.WithTimeout(ctx, mailgunSendTimeout)
	defer cancel()

	message := m.client.NewMessage(m.from, subject, "")
	message.SetHTML(htmlBody)
	if err := message.AddRecipient(to); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("operation", "add recipient").
			Wrap(err)
	}

	if _, _, err := m.client.Send(ctx, message); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("operation", "mailgun send").
			Wrap(err)
	}

	return nil
}

// Compile-time interface check.
var _ Mailer = (*MailgunMailer)(nil)
