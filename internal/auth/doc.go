// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package auth provides the credential-gated access layer for Turnstile.
//
// # Domain Types
//
// Domain types (User, Session, PasswordReset) should be created using
// their respective constructors:
//   - NewUser - creates a User with validated email and password hash
//   - NewSession - creates a Session with validated user and token hash
//   - NewPasswordReset - creates a PasswordReset with validated user and expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - login, session resolution, logout, CSRF tokens, role checks
//   - ResetService - password reset request, validation, and completion
//
// Services are created with New*Service constructors that validate dependencies.
//
// # Tokens
//
// Session and reset tokens are opaque random values; the client holds the
// plaintext and the database holds only the SHA-256 hash. A session stays
// valid while requests arrive within SessionLifetime of the previous one.
package auth
