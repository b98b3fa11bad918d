// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/turnstile/turnstile/internal/audit"
	"github.com/turnstile/turnstile/internal/mail"
	"github.com/turnstile/turnstile/pkg/errutil"
)

// ResetService handles the self-service password recovery flow: issuing
// single-use time-bound tokens, validating them, and applying the new
// credential.
type ResetService struct {
	users    UserRepository
	resets   ResetRepository
	hasher   PasswordHasher
	mailer   mail.Mailer
	recorder audit.Recorder
	clock    Clock
	logger   *slog.Logger
	baseURL  string
}

// NewResetService creates a ResetService with the default clock and logger.
// baseURL is the absolute prefix for reset links, e.g. "https://checkin.example.com".
func NewResetService(users UserRepository, resets ResetRepository, hasher PasswordHasher, mailer mail.Mailer, recorder audit.Recorder, baseURL string) (*ResetService, error) {
	return NewResetServiceWithLogger(users, resets, hasher, mailer, recorder, baseURL, slog.Default())
}

// NewResetServiceWithLogger creates a ResetService with an explicit logger.
func NewResetServiceWithLogger(users UserRepository, resets ResetRepository, hasher PasswordHasher, mailer mail.Mailer, recorder audit.Recorder, baseURL string, logger *slog.Logger) (*ResetService, error) {
	if users == nil {
		return nil, oops.Code("RESET_INVALID_DEPS").Errorf("users repository is required")
	}
	if resets == nil {
		return nil, oops.Code("RESET_INVALID_DEPS").Errorf("resets repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("RESET_INVALID_DEPS").Errorf("password hasher is required")
	}
	if mailer == nil {
		return nil, oops.Code("RESET_INVALID_DEPS").Errorf("mailer is required")
	}
	if recorder == nil {
		return nil, oops.Code("RESET_INVALID_DEPS").Errorf("audit recorder is required")
	}
	if logger == nil {
		return nil, oops.Code("RESET_INVALID_DEPS").Errorf("logger is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, oops.Code("RESET_INVALID_DEPS").
			With("base_url", baseURL).
			Errorf("base URL must be absolute")
	}
	return &ResetService{
		users:    users,
		resets:   resets,
		hasher:   hasher,
		mailer:   mailer,
		recorder: recorder,
		clock:    SystemClock(),
		logger:   logger,
		baseURL:  baseURL,
	}, nil
}

// WithClock replaces the wall clock. Intended for tests.
func (s *ResetService) WithClock(clock Clock) *ResetService {
	s.clock = clock
	return s
}

// errInvalidToken is the uniform failure for unknown, expired, and
// already-used tokens. The three cases are indistinguishable by design.
func errInvalidToken() error {
	return oops.Code("RESET_TOKEN_INVALID").Errorf("this password reset link is invalid or has expired")
}

// RequestReset issues a reset token for the account behind email and
// mails the link. Unknown and inactive accounts return nil so the caller
// can always present the same success-shaped outcome. Issuing supersedes
// any prior token for the user.
func (s *ResetService) RequestReset(ctx context.Context, email, ipAddress, userAgent string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// No enumeration: success-shaped outcome, nothing issued.
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	if !user.IsActive {
		return nil
	}

	token, tokenHash, err := GenerateResetToken()
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	reset, err := NewPasswordReset(user.ID, tokenHash, s.clock.Now().Add(ResetTokenExpiry))
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "construct reset").
			Wrap(err)
	}

	if err := s.resets.Upsert(ctx, reset); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "upsert reset").
			Wrap(err)
	}

	message, err := mail.ResetMessage(user.FirstName, s.resetURL(token), ResetTokenExpiry)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "render message").
			Wrap(err)
	}

	if err := s.mailer.Send(ctx, user.Email, message.Subject, message.HTMLBody); err != nil {
		// The token stays issued but is never revealed; the user retries
		// and gets a fresh link.
		errutil.LogError(s.logger, "reset request: mail dispatch failed", err)
		return oops.Code("RESET_DISPATCH_FAILED").
			Errorf("failed to send password reset email")
	}

	userID := user.ID
	s.recorder.Record(ctx, &userID, audit.ActionResetRequest, "password reset requested", ipAddress, userAgent)

	return nil
}

// resetURL builds the absolute link embedding the token.
func (s *ResetService) resetURL(token string) string {
	return s.baseURL + "/password/reset?token=" + url.QueryEscape(token)
}

// ValidateToken resolves a reset token to the owning user ID. Fails with
// one uniform error for unknown, expired, and used tokens.
func (s *ResetService) ValidateToken(ctx context.Context, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, errInvalidToken()
	}

	reset, err := s.resets.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, errInvalidToken()
		}
		return ulid.ULID{}, oops.Code("RESET_VALIDATE_FAILED").
			With("operation", "get reset by token hash").
			Wrap(err)
	}

	if reset.Used || reset.IsExpiredAt(s.clock.Now()) {
		return ulid.ULID{}, errInvalidToken()
	}

	return reset.UserID, nil
}

// CompleteReset applies a new password for the account behind a valid
// token. The policy check runs before any hashing; the token is consumed
// with a single conditional write, so a second attempt with the same
// token fails exactly like an unknown one.
func (s *ResetService) CompleteReset(ctx context.Context, token, newPassword, confirmPassword, ipAddress, userAgent string) error {
	if err := ValidatePassword(newPassword, confirmPassword); err != nil {
		return err
	}

	userID, err := s.ValidateToken(ctx, token)
	if err != nil {
		return err
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_COMPLETE_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	// Claim the token first: the conditional update flips used exactly
	// once, so concurrent completions cannot both get past this point.
	if err := s.resets.Consume(ctx, HashToken(token), s.clock.Now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return errInvalidToken()
		}
		return oops.Code("RESET_COMPLETE_FAILED").
			With("operation", "consume reset").
			Wrap(err)
	}

	if err := s.users.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return oops.Code("RESET_COMPLETE_FAILED").
			With("operation", "update password").
			Wrap(err)
	}

	s.recorder.Record(ctx, &userID, audit.ActionResetComplete, "password successfully reset", ipAddress, userAgent)

	return nil
}
