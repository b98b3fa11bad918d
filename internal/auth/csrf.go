// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/samber/oops"
)

// CSRFTokenBytes is the size of the per-session CSRF token.
const CSRFTokenBytes = 32

// CSRFToken returns the session's CSRF token, generating and persisting
// one on first use. Repeated calls return the same token until the
// session is destroyed.
func (s *Service) CSRFToken(ctx context.Context, session *Session) (string, error) {
	if session == nil {
		return "", oops.Code("AUTH_UNAUTHENTICATED").Errorf("not authenticated")
	}

	if session.CSRFToken != "" {
		return session.CSRFToken, nil
	}

	tokenBytes := make([]byte, CSRFTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", oops.Code("CSRF_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	token := hex.EncodeToString(tokenBytes)

	if err := s.sessions.UpdateCSRFToken(ctx, session.ID, token); err != nil {
		return "", oops.Code("CSRF_TOKEN_STORE_FAILED").
			With("operation", "update csrf token").
			Wrap(err)
	}

	session.CSRFToken = token
	return token, nil
}

// VerifyCSRF compares a supplied token against the session's in constant
// time. False when the session has no token yet or the values differ.
func (s *Service) VerifyCSRF(session *Session, supplied string) bool {
	if session == nil || session.CSRFToken == "" || supplied == "" {
		return false
	}
	return constantTimeEquals(session.CSRFToken, supplied)
}
