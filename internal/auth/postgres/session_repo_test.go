// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnstile/turnstile/internal/auth"
	"github.com/turnstile/turnstile/pkg/errutil"
)

func newSessionRepoMock(t *testing.T) (pgxmock.PgxPoolIface, *SessionRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return mock, NewSessionRepository(mock)
}

func sessionColumns() []string {
	return []string{"id", "user_id", "token_hash", "name", "email", "role", "csrf_token", "ip_address", "user_agent", "profile", "login_at", "last_activity_at"}
}

func testSession(t *testing.T) *auth.Session {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &auth.Session{
		ID:             ulid.Make(),
		UserID:         ulid.Make(),
		TokenHash:      "token-hash",
		Name:           "Jo Smith",
		Email:          "jo@example.com",
		Role:           auth.RoleStaff,
		IPAddress:      "203.0.113.9",
		UserAgent:      "agent",
		LoginAt:        now,
		LastActivityAt: now,
	}
}

func TestSessionRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts with null profile", func(t *testing.T) {
		mock, repo := newSessionRepoMock(t)
		session := testSession(t)

		mock.ExpectExec("INSERT INTO sessions").
			WithArgs(session.ID.String(), session.UserID.String(), session.TokenHash,
				session.Name, session.Email, string(session.Role), session.CSRFToken,
				session.IPAddress, session.UserAgent, pgxmock.AnyArg(),
				session.LoginAt, session.LastActivityAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Create(ctx, session))
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("wraps insert failure", func(t *testing.T) {
		mock, repo := newSessionRepoMock(t)
		session := testSession(t)

		mock.ExpectExec("INSERT INTO sessions").
			WithArgs(session.ID.String(), session.UserID.String(), session.TokenHash,
				session.Name, session.Email, string(session.Role), session.CSRFToken,
				session.IPAddress, session.UserAgent, pgxmock.AnyArg(),
				session.LoginAt, session.LastActivityAt).
			WillReturnError(errors.New("connection refused"))

		err := repo.Create(ctx, session)
		errutil.AssertErrorCode(t, err, "SESSION_CREATE_FAILED")
	})
}

func TestSessionRepository_GetByTokenHash(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := ulid.Make()
	userID := ulid.Make()

	t.Run("returns session without cached profile", func(t *testing.T) {
		mock, repo := newSessionRepoMock(t)

		rows := pgxmock.NewRows(sessionColumns()).
			AddRow(id.String(), userID.String(), "token-hash", "Jo Smith", "jo@example.com",
				"staff", "", "203.0.113.9", "agent", []byte(nil), now, now)
		mock.ExpectQuery("SELECT (.+) FROM sessions").
			WithArgs("token-hash").
			WillReturnRows(rows)

		session, err := repo.GetByTokenHash(ctx, "token-hash")
		require.NoError(t, err)
		assert.Equal(t, id, session.ID)
		assert.Equal(t, userID, session.UserID)
		assert.Equal(t, auth.RoleStaff, session.Role)
		assert.Nil(t, session.Profile)
	})

	t.Run("round-trips a cached profile", func(t *testing.T) {
		mock, repo := newSessionRepoMock(t)

		profileJSON, err := json.Marshal(&auth.Profile{
			ID:    userID,
			Name:  "Jo Smith",
			Email: "jo@example.com",
			Role:  auth.RoleStaff,
		})
		require.NoError(t, err)

		rows := pgxmock.NewRows(sessionColumns()).
			AddRow(id.String(), userID.String(), "token-hash", "Jo Smith", "jo@example.com",
				"staff", "csrf", "203.0.113.9", "agent", profileJSON, now, now)
		mock.ExpectQuery("SELECT (.+) FROM sessions").
			WithArgs("token-hash").
			WillReturnRows(rows)

		session, err := repo.GetByTokenHash(ctx, "token-hash")
		require.NoError(t, err)
		require.NotNil(t, session.Profile)
		assert.Equal(t, "Jo Smith", session.Profile.Name)
		assert.Equal(t, "csrf", session.CSRFToken)
	})

	t.Run("maps no rows to ErrNotFound", func(t *testing.T) {
		mock, repo := newSessionRepoMock(t)

		mock.ExpectQuery("SELECT (.+) FROM sessions").
			WithArgs("no-such-hash").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByTokenHash(ctx, "no-such-hash")
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "SESSION_NOT_FOUND")
	})
}

func TestSessionRepository_Updates(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("UpdateLastActivity stamps the session", func(t *testing.T) {
		mock, repo := newSessionRepoMock(t)

		mock.ExpectExec("UPDATE sessions SET last_activity_at").
			WithArgs(id.String(), now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.UpdateLastActivity(ctx, id, now))
	})

	t.Run("UpdateLastActivity maps zero rows to ErrNotFound", func(t *testing.T) {
		mock, repo := newSessionRepoMock(t)

		mock.ExpectExec("UPDATE sessions SET last_activity_at").
			WithArgs(id.String(), now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdateLastActivity(ctx, id, now)
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("UpdateCSRFToken stores the token", func(t *testing.T) {
		mock, repo := newSessionRepoMock(t)

		mock.ExpectExec("UPDATE sessions SET csrf_token").
			WithArgs(id.String(), "csrf-token").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.UpdateCSRFToken(ctx, id, "csrf-token"))
	})

	t.Run("UpdateProfile caches the profile JSON", func(t *testing.T) {
		mock, repo := newSessionRepoMock(t)

		mock.ExpectExec("UPDATE sessions SET profile").
			WithArgs(id.String(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.UpdateProfile(ctx, id, &auth.Profile{Name: "Jo Smith"}))
	})
}

func TestSessionRepository_Deletes(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	userID := ulid.Make()

	t.Run("Delete removes the session", func(t *testing.T) {
		mock, repo := newSessionRepoMock(t)

		mock.ExpectExec("DELETE FROM sessions WHERE id").
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, repo.Delete(ctx, id))
	})

	t.Run("Delete maps zero rows to ErrNotFound", func(t *testing.T) {
		mock, repo := newSessionRepoMock(t)

		mock.ExpectExec("DELETE FROM sessions WHERE id").
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err := repo.Delete(ctx, id)
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("DeleteByUser tolerates zero rows", func(t *testing.T) {
		mock, repo := newSessionRepoMock(t)

		mock.ExpectExec("DELETE FROM sessions WHERE user_id").
			WithArgs(userID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		require.NoError(t, repo.DeleteByUser(ctx, userID))
	})

	t.Run("DeleteIdle reports the count", func(t *testing.T) {
		mock, repo := newSessionRepoMock(t)
		cutoff := time.Now().Add(-time.Hour)

		mock.ExpectExec("DELETE FROM sessions WHERE last_activity_at").
			WithArgs(cutoff).
			WillReturnResult(pgxmock.NewResult("DELETE", 7))

		count, err := repo.DeleteIdle(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(7), count)
	})
}
