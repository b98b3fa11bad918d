// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/oops"

	"github.com/turnstile/turnstile/internal/audit"
	"github.com/turnstile/turnstile/pkg/errutil"
)

// Service owns the session state machine and fronts credential
// verification. It is the single entry point pages use for login, logout,
// session resolution and role checks. A session is either Anonymous or
// Authenticated: Login is the only way in, Logout or the idle timeout in
// Resolve the only ways out.
type Service struct {
	users    UserRepository
	sessions SessionRepository
	hasher   PasswordHasher
	recorder audit.Recorder
	clock    Clock
	logger   *slog.Logger
}

// dummyPasswordHash is verified when no matching active user exists, so a
// failed lookup costs the same as a failed password check.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// NewService creates a Service with the default clock and logger.
func NewService(users UserRepository, sessions SessionRepository, hasher PasswordHasher, recorder audit.Recorder) (*Service, error) {
	return NewServiceWithLogger(users, sessions, hasher, recorder, slog.Default())
}

// NewServiceWithLogger creates a Service with an explicit logger.
func NewServiceWithLogger(users UserRepository, sessions SessionRepository, hasher PasswordHasher, recorder audit.Recorder, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("password hasher is required")
	}
	if recorder == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("audit recorder is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("logger is required")
	}
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		recorder: recorder,
		clock:    SystemClock(),
		logger:   logger,
	}, nil
}

// WithClock replaces the wall clock. Intended for tests.
func (s *Service) WithClock(clock Clock) *Service {
	s.clock = clock
	return s
}

// errInvalidCredentials is the uniform failure for every login that does
// not succeed: unknown email, inactive account, wrong password, and
// storage trouble all look identical to the caller.
func errInvalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid email or password")
}

// Login authenticates a user and creates a session.
// Returns the session and its plaintext bearer token.
//
// Fails closed: the caller learns nothing about whether the email exists,
// the account is inactive, or the store misbehaved. Password verification
// runs against a dummy hash when there is no matching active user to keep
// response time flat.
func (s *Service) Login(ctx context.Context, email, password, userAgent, ipAddress string) (*Session, string, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, "", err
	}

	user, lookupErr := s.users.GetByEmail(ctx, email)

	targetHash := dummyPasswordHash
	userUsable := false

	switch {
	case lookupErr == nil && user.IsActive:
		targetHash = user.PasswordHash
		userUsable = true
	case lookupErr != nil && !errors.Is(lookupErr, ErrNotFound):
		// Storage failure: logged internally, then treated exactly like
		// a failed login below.
		errutil.LogError(s.logger, "login: user lookup failed", lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && userUsable {
		errutil.LogError(s.logger, "login: hash verification failed", verifyErr)
		valid = false
	}

	if !userUsable || !valid {
		s.recorder.Record(ctx, nil, audit.ActionLoginFailed,
			fmt.Sprintf("failed login attempt for email: %s", email), ipAddress, userAgent)
		return nil, "", errInvalidCredentials()
	}

	// Transparent upgrade of legacy hashes. Login succeeds regardless.
	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			if updateErr := s.users.UpdatePassword(ctx, user.ID, newHash); updateErr != nil {
				errutil.LogError(s.logger, "login: hash upgrade failed", updateErr)
			}
		}
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		errutil.LogError(s.logger, "login: token generation failed", err)
		return nil, "", errInvalidCredentials()
	}

	session, err := NewSession(user, tokenHash, userAgent, ipAddress, s.clock.Now())
	if err != nil {
		errutil.LogError(s.logger, "login: session construction failed", err)
		return nil, "", errInvalidCredentials()
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		errutil.LogError(s.logger, "login: session create failed", err)
		return nil, "", errInvalidCredentials()
	}

	userID := user.ID
	s.recorder.Record(ctx, &userID, audit.ActionLogin, "successful login", ipAddress, userAgent)

	return session, token, nil
}

// Resolve loads the session for a bearer token, enforcing the idle
// timeout. An expired session is destroyed on sight; a live one gets its
// last-activity stamp refreshed (best effort, last-writer-wins). Must be
// called before any session read, on every request.
func (s *Service) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, oops.Code("SESSION_INVALID").Errorf("invalid session token")
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_INVALID").Errorf("invalid session token")
		}
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	now := s.clock.Now()
	if session.IsIdleExpiredAt(now) {
		s.destroy(ctx, session, "session expired after inactivity")
		return nil, oops.Code("SESSION_EXPIRED").Errorf("session has expired")
	}

	session.LastActivityAt = now
	if err := s.sessions.UpdateLastActivity(ctx, session.ID, now); err != nil {
		errutil.LogError(s.logger, "resolve: last activity update failed", err)
	}

	return session, nil
}

// Logout destroys the session for a bearer token. Safe to call with an
// unknown or empty token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	s.destroy(ctx, session, "user logged out")
	return nil
}

// destroy deletes session state and emits the logout audit entry.
func (s *Service) destroy(ctx context.Context, session *Session, detail string) {
	userID := session.UserID
	s.recorder.Record(ctx, &userID, audit.ActionLogout, detail, session.IPAddress, session.UserAgent)

	if err := s.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
		errutil.LogError(s.logger, "destroy: session delete failed", err)
	}
}

// CleanupIdleSessions deletes sessions whose idle timeout elapsed without
// a request coming in to notice. Returns the number removed. Run it
// periodically; expiry is still enforced lazily in Resolve either way.
func (s *Service) CleanupIdleSessions(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-SessionLifetime)
	count, err := s.sessions.DeleteIdle(ctx, cutoff)
	if err != nil {
		return 0, oops.Code("SESSION_CLEANUP_FAILED").
			With("operation", "delete idle sessions").
			Wrap(err)
	}
	return count, nil
}

// CurrentUser returns the full profile for an authenticated session.
// The profile is cached in session state; refresh forces a refetch. When
// the user store is unavailable the minimal fields cached at login are
// returned instead, with the name split on the first space.
func (s *Service) CurrentUser(ctx context.Context, session *Session, refresh bool) (*Profile, error) {
	if session == nil {
		return nil, oops.Code("AUTH_UNAUTHENTICATED").Errorf("not authenticated")
	}

	if !refresh && session.Profile != nil {
		return session.Profile, nil
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		errutil.LogError(s.logger, "current user: fetch failed", err)
		if session.Profile != nil {
			return session.Profile, nil
		}
		return profileFromSession(session), nil
	}

	profile := ProfileFromUser(user)
	session.Profile = profile
	if err := s.sessions.UpdateProfile(ctx, session.ID, profile); err != nil {
		errutil.LogError(s.logger, "current user: profile cache failed", err)
	}

	return profile, nil
}

// HasAnyRole reports whether the session holds one of the given roles.
// Always false for an anonymous (nil) session.
func (s *Service) HasAnyRole(session *Session, roles ...Role) bool {
	if session == nil {
		return false
	}
	for _, role := range roles {
		if session.Role == role {
			return true
		}
	}
	return false
}

// RequireAuthenticated returns an error when the session is anonymous.
// Callers map it to a redirect-to-login outcome.
func (s *Service) RequireAuthenticated(session *Session) error {
	if session == nil {
		return oops.Code("AUTH_UNAUTHENTICATED").Errorf("not authenticated")
	}
	return nil
}

// RequireRole enforces authentication plus an exact role match. Callers
// map the mismatch to a redirect-to-default outcome.
func (s *Service) RequireRole(session *Session, role Role) error {
	if err := s.RequireAuthenticated(session); err != nil {
		return err
	}
	if session.Role != role {
		return oops.Code("AUTH_FORBIDDEN").
			With("required_role", string(role)).
			Errorf("insufficient role")
	}
	return nil
}
