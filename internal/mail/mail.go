// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package mail provides the outbound email collaborator used by the
// password reset flow. Message rendering is a pure function so it can be
// tested without a transport.
package mail

import (
	"context"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Mailer delivers a single HTML message.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Message is a rendered email ready for a Mailer.
type Message struct {
	Subject  string
	HTMLBody string
}

// resetTemplate is the reset-link email body. Kept deliberately plain;
// transactional mail renders most reliably with minimal markup.
var resetTemplate = template.Must(template.New("reset").Parse(`<html>
<body>
<p>Hello {{.Name}},</p>
<p>We received a request to reset your password for {{.Product}}.</p>
<p><a href="{{.ResetURL}}">Reset your password</a></p>
<p>Or copy and paste this link into your browser:</p>
<p><code>{{.ResetURL}}</code></p>
<p><strong>This link will expire in {{.Expiry}}.</strong></p>
<p>If you didn't request this password reset, please ignore this email.</p>
</body>
</html>
`))

// resetData feeds resetTemplate.
type resetData struct {
	Name     string
	Product  string
	ResetURL string
	Expiry   string
}

// ProductName appears in reset messages.
const ProductName = "the event check-in system"

// ResetMessage renders the password-reset email for a recipient.
// resetURL must be the absolute link embedding the token.
func ResetMessage(name, resetURL string, expiry time.Duration) (Message, error) {
	if name == "" {
		name = "there"
	}

	var body strings.Builder
	err := resetTemplate.Execute(&body, resetData{
		Name:     name,
		Product:  ProductName,
		ResetURL: resetURL,
		Expiry:   formatExpiry(expiry),
	})
	if err != nil {
		return Message{}, oops.Code("MAIL_RENDER_FAILED").Wrap(err)
	}

	return Message{
		Subject:  "Password Reset Request",
		HTMLBody: body.String(),
	}, nil
}

func formatExpiry(d time.Duration) string {
	if d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return strconv.Itoa(hours) + " hours"
	}
	return d.String()
}

// NopMailer discards all messages. Useful in tests and local development.
type NopMailer struct{}

// Send implements Mailer.
func (NopMailer) Send(context.Context, string, string, string) error { return nil }

// Compile-time interface check.
var _ Mailer = NopMailer{}
