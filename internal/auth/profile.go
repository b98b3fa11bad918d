// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Profile is the user record shape handed to pages. It is cached in
// session state as JSON, so fields carry tags and stay plain types.
type Profile struct {
	ID        ulid.ULID  `json:"id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	IsActive  bool       `json:"is_active"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// ProfileFromUser builds a Profile from a full user row.
func ProfileFromUser(u *User) *Profile {
	created := u.CreatedAt
	updated := u.UpdatedAt
	return &Profile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Name:      u.FullName(),
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: &created,
		UpdatedAt: &updated,
	}
}

// profileFromSession synthesizes a minimal Profile from the fields cached
// at login. Used as the fallback when the user store is unavailable.
func profileFromSession(s *Session) *Profile {
	first, last := SplitFullName(s.Name)
	return &Profile{
		ID:        s.UserID,
		FirstName: first,
		LastName:  last,
		Name:      s.Name,
		Email:     s.Email,
		Role:      s.Role,
		IsActive:  true,
	}
}
