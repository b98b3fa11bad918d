// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package auth

import (
	"unicode"

	"github.com/samber/oops"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// ValidatePassword checks a new password and its confirmation against the
// acceptance policy. Rules run in order and the first failure wins, so the
// caller always gets one specific, actionable message. Callers must not
// hash a password that failed validation.
func ValidatePassword(password, confirm string) error {
	if password == "" || confirm == "" {
		return oops.Code("AUTH_WEAK_PASSWORD").Errorf("please fill in all fields")
	}
	if password != confirm {
		return oops.Code("AUTH_WEAK_PASSWORD").Errorf("passwords do not match")
	}
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_WEAK_PASSWORD").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters long", MinPasswordLength)
	}

	var hasLower, hasUpper, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLower || !hasUpper || !hasDigit {
		return oops.Code("AUTH_WEAK_PASSWORD").
			Errorf("password must contain at least one uppercase letter, one lowercase letter, and one number")
	}

	return nil
}
