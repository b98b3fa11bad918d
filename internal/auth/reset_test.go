// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnstile/turnstile/internal/auth"
	"github.com/turnstile/turnstile/pkg/errutil"
)

func TestGenerateResetToken(t *testing.T) {
	token, hash, err := auth.GenerateResetToken()
	require.NoError(t, err)

	assert.Len(t, token, auth.ResetTokenBytes*2)
	assert.Equal(t, auth.HashToken(token), hash)
}

func TestNewPasswordReset(t *testing.T) {
	userID := ulid.Make()
	expiry := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("creates unused reset", func(t *testing.T) {
		reset, err := auth.NewPasswordReset(userID, "token-hash", expiry)
		require.NoError(t, err)

		assert.Equal(t, userID, reset.UserID)
		assert.Equal(t, expiry, reset.ExpiresAt)
		assert.False(t, reset.Used)
		assert.False(t, reset.CreatedAt.IsZero())
	})

	t.Run("rejects zero user ID", func(t *testing.T) {
		_, err := auth.NewPasswordReset(ulid.ULID{}, "token-hash", expiry)
		errutil.AssertErrorCode(t, err, "RESET_INVALID_USER")
	})

	t.Run("rejects empty token hash", func(t *testing.T) {
		_, err := auth.NewPasswordReset(userID, "", expiry)
		errutil.AssertErrorCode(t, err, "RESET_INVALID_HASH")
	})

	t.Run("rejects zero expiry", func(t *testing.T) {
		_, err := auth.NewPasswordReset(userID, "token-hash", time.Time{})
		errutil.AssertErrorCode(t, err, "RESET_INVALID_EXPIRY")
	})
}

func TestPasswordReset_IsExpiredAt(t *testing.T) {
	expiry := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	reset := &auth.PasswordReset{ExpiresAt: expiry}

	assert.False(t, reset.IsExpiredAt(expiry.Add(-time.Second)))
	assert.True(t, reset.IsExpiredAt(expiry), "expiry instant itself is expired")
	assert.True(t, reset.IsExpiredAt(expiry.Add(time.Second)))
}
