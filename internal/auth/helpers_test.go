// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/turnstile/turnstile/internal/auth"
)

func zeroULID() ulid.ULID { return ulid.ULID{} }

// fixedClock pins time so expiry logic can be exercised deterministically.
type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

// recorderSpy captures audit entries so tests can assert on what was
// recorded without a real store.
type recorderSpy struct {
	mu      sync.Mutex
	actions []string
	details []string
}

func (r *recorderSpy) Record(_ context.Context, _ *ulid.ULID, action, detail, _, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	r.details = append(r.details, detail)
}

func (r *recorderSpy) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

func newTestUser(t *testing.T, email string) *auth.User {
	t.Helper()
	user, err := auth.NewUser(email, "$argon2id$stored-hash", "Jo", auth.RoleStaff)
	require.NoError(t, err)
	user.LastName = "Smith"
	return user
}
