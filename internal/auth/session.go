// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes = 32 // 32 bytes = 64 hex chars

	// SessionLifetime is the idle timeout: a session is valid only while
	// now - last_activity_at stays within it.
	SessionLifetime = time.Hour
)

// Session is server-side session state bound to a client via an opaque
// bearer token. Only the SHA-256 of the token is stored. Name, Email and
// Role are cached from the user row at login so pages can render without
// a user lookup; Profile caches the full user record on demand.
type Session struct {
	ID             ulid.ULID
	UserID         ulid.ULID
	TokenHash      string
	Name           string
	Email          string
	Role           Role
	CSRFToken      string // empty until lazily generated
	IPAddress      string
	UserAgent      string
	LoginAt        time.Time
	LastActivityAt time.Time
	Profile        *Profile // nil until cached
}

// NewSession creates a validated Session for an authenticated user.
func NewSession(user *User, tokenHash, userAgent, ipAddress string, now time.Time) (*Session, error) {
	if user == nil {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user cannot be nil")
	}
	if user.ID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}

	return &Session{
		ID:             ulid.Make(),
		UserID:         user.ID,
		TokenHash:      tokenHash,
		Name:           user.FullName(),
		Email:          user.Email,
		Role:           user.Role,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		LoginAt:        now,
		LastActivityAt: now,
	}, nil
}

// IsIdleExpiredAt returns true if the session's idle timeout has elapsed at t.
func (s *Session) IsIdleExpiredAt(t time.Time) bool {
	return t.Sub(s.LastActivityAt) > SessionLifetime
}

// GenerateSessionToken creates a secure random token and its hash.
// The plaintext token is sent to the client; only the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashToken(token)

	return token, hash, nil
}

// HashToken computes the hex-encoded SHA-256 of an opaque token.
// Session and reset tokens share this storage scheme.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// constantTimeEquals compares two strings in constant time.
func constantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// UpdateLastActivity stamps the idle-timeout clock for a session.
	UpdateLastActivity(ctx context.Context, id ulid.ULID, at time.Time) error

	// UpdateCSRFToken stores the lazily generated CSRF token.
	UpdateCSRFToken(ctx context.Context, id ulid.ULID, token string) error

	// UpdateProfile caches the full user profile in session state.
	UpdateProfile(ctx context.Context, id ulid.ULID, profile *Profile) error

	// Delete removes a session by ID.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByUser removes all sessions for a user.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error

	// DeleteIdle removes sessions whose last activity is before the cutoff
	// and returns the count of deleted records.
	DeleteIdle(ctx context.Context, cutoff time.Time) (int64, error)
}
