// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/turnstile/turnstile/internal/auth"
)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool poolIface
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool poolIface) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	profileJSON, err := marshalProfile(session.Profile)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "marshal profile").
			Wrap(err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, name, email, role, csrf_token, ip_address, user_agent, profile, login_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		session.ID.String(),
		session.UserID.String(),
		session.TokenHash,
		session.Name,
		session.Email,
		string(session.Role),
		session.CSRFToken,
		session.IPAddress,
		session.UserAgent,
		profileJSON,
		session.LoginAt,
		session.LastActivityAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, name, email, role, csrf_token, ip_address, user_agent, profile, login_at, last_activity_at
		FROM sessions
		WHERE token_hash = $1
	`, tokenHash)

	session, err := r.scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return session, nil
}

// UpdateLastActivity stamps the idle-timeout clock for a session.
func (r *SessionRepository) UpdateLastActivity(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE sessions SET last_activity_at = $2
		WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return oops.Code("SESSION_UPDATE_ACTIVITY_FAILED").
			With("operation", "update last_activity_at").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdateCSRFToken stores the lazily generated CSRF token.
func (r *SessionRepository) UpdateCSRFToken(ctx context.Context, id ulid.ULID, token string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE sessions SET csrf_token = $2
		WHERE id = $1
	`, id.String(), token)
	if err != nil {
		return oops.Code("SESSION_UPDATE_CSRF_FAILED").
			With("operation", "update csrf_token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdateProfile caches the full user profile in session state.
func (r *SessionRepository) UpdateProfile(ctx context.Context, id ulid.ULID, profile *auth.Profile) error {
	profileJSON, err := marshalProfile(profile)
	if err != nil {
		return oops.Code("SESSION_UPDATE_PROFILE_FAILED").
			With("operation", "marshal profile").
			Wrap(err)
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE sessions SET profile = $2
		WHERE id = $1
	`, id.String(), profileJSON)
	if err != nil {
		return oops.Code("SESSION_UPDATE_PROFILE_FAILED").
			With("operation", "update profile").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes all sessions for a user.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE user_id = $1
	`, userID.String())
	if err != nil {
		return oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	// Note: No ErrNotFound if no rows deleted - that's a valid state
	return nil
}

// DeleteIdle removes sessions idle since before the cutoff and returns the count.
func (r *SessionRepository) DeleteIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM sessions WHERE last_activity_at < $1
	`, cutoff)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_IDLE_FAILED").
			With("operation", "delete idle sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// marshalProfile encodes a cached profile for the jsonb column.
// A nil profile maps to SQL NULL.
func marshalProfile(profile *auth.Profile) ([]byte, error) {
	if profile == nil {
		return nil, nil
	}
	return json.Marshal(profile) //nolint:wrapcheck // Callers wrap with context-specific info
}

// scanSession scans a single row into a Session.
// Callers are responsible for handling pgx.ErrNoRows.
func (r *SessionRepository) scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		idStr          string
		userIDStr      string
		tokenHash      string
		name           string
		email          string
		roleStr        string
		csrfToken      string
		ipAddress      string
		userAgent      string
		profileJSON    []byte
		loginAt        time.Time
		lastActivityAt time.Time
	)

	err := row.Scan(&idStr, &userIDStr, &tokenHash, &name, &email, &roleStr, &csrfToken, &ipAddress, &userAgent, &profileJSON, &loginAt, &lastActivityAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "scan session").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", idStr).
			Wrap(err)
	}

	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	role, err := auth.ParseRole(roleStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ROLE").
			With("operation", "parse role").
			With("id", idStr).
			Wrap(err)
	}

	var profile *auth.Profile
	if len(profileJSON) > 0 {
		profile = &auth.Profile{}
		if err := json.Unmarshal(profileJSON, profile); err != nil {
			return nil, oops.Code("SESSION_INVALID_PROFILE").
				With("operation", "unmarshal profile").
				With("id", idStr).
				Wrap(err)
		}
	}

	return &auth.Session{
		ID:             id,
		UserID:         userID,
		TokenHash:      tokenHash,
		Name:           name,
		Email:          email,
		Role:           role,
		CSRFToken:      csrfToken,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		Profile:        profile,
		LoginAt:        loginAt,
		LastActivityAt: lastActivityAt,
	}, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
