// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package web

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/samber/oops"

	"github.com/turnstile/turnstile/internal/observability"
	"github.com/turnstile/turnstile/pkg/errutil"
)

// Utilities

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": msg})
}

func forbidden(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusForbidden, map[string]string{"error": msg})
}

func gone(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusGone, map[string]string{"error": msg})
}

func serverErr(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_server_error"})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// codeOf extracts the oops error code, or "" for plain errors.
func codeOf(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok {
			return code
		}
	}
	return ""
}

// errMessage is the user-facing message of an error. Service errors carry
// messages already scrubbed of internals.
func errMessage(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Error()
	}
	return err.Error()
}

// Handlers

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// handleLogin authenticates credentials and issues the session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid_json")
		return
	}

	session, token, err := s.auth.Login(r.Context(), req.Email, req.Password, r.UserAgent(), clientIP(r))
	if err != nil {
		switch codeOf(err) {
		case "AUTH_INVALID_EMAIL":
			badRequest(w, errMessage(err))
		case "AUTH_INVALID_CREDENTIALS":
			observability.RecordLoginAttempt("failure")
			unauthorized(w, errMessage(err))
		default:
			errutil.LogError(s.logger, "login handler failed", err)
			serverErr(w)
		}
		return
	}

	observability.RecordLoginAttempt("success")
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, sessionResponse{
		Name:  session.Name,
		Email: session.Email,
		Role:  string(session.Role),
	})
}

// handleLogout destroys the session and drops the cookie. Safe to call
// without a session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(s.cfg.CookieName); err == nil {
		token = c.Value
	}

	if err := s.auth.Logout(r.Context(), token); err != nil {
		errutil.LogError(s.logger, "logout failed", err)
	}

	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}

// handleMe returns the current user's profile. ?refresh=1 forces a
// refetch from the user store.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	refresh := r.URL.Query().Get("refresh") == "1"

	profile, err := s.auth.CurrentUser(r.Context(), session, refresh)
	if err != nil {
		unauthorized(w, "not_authenticated")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// handleCSRF returns the session's CSRF token, generating one on first use.
func (s *Server) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := s.auth.CSRFToken(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		errutil.LogError(s.logger, "csrf token failed", err)
		serverErr(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

type forgotRequest struct {
	Email string `json:"email"`
}

// forgotOutcome is returned for every forgot-password request that does
// not hard-fail, known and unknown addresses alike.
const forgotOutcome = "If an account exists for that address, a password reset link has been sent."

// handleForgotPassword starts the reset flow.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid_json")
		return
	}

	err := s.resets.RequestReset(r.Context(), req.Email, clientIP(r), r.UserAgent())
	if err != nil {
		switch codeOf(err) {
		case "AUTH_INVALID_EMAIL":
			badRequest(w, errMessage(err))
		case "RESET_DISPATCH_FAILED":
			errutil.LogError(s.logger, "forgot password: dispatch failed", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": errMessage(err)})
		default:
			errutil.LogError(s.logger, "forgot password failed", err)
			serverErr(w)
		}
		return
	}

	observability.RecordResetEvent("requested")
	writeJSON(w, http.StatusOK, map[string]string{"message": forgotOutcome})
}

// handleValidateReset checks a reset link before the new-password form is
// shown, so a dead link fails fast instead of after typing a password.
func (s *Server) handleValidateReset(w http.ResponseWriter, r *http.Request) {
	_, err := s.resets.ValidateToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		switch codeOf(err) {
		case "RESET_TOKEN_INVALID":
			gone(w, errMessage(err))
		default:
			errutil.LogError(s.logger, "reset validation failed", err)
			serverErr(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

type completeResetRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// handleCompleteReset applies the new password for a valid token.
func (s *Server) handleCompleteReset(w http.ResponseWriter, r *http.Request) {
	var req completeResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid_json")
		return
	}

	err := s.resets.CompleteReset(r.Context(), req.Token, req.Password, req.PasswordConfirm, clientIP(r), r.UserAgent())
	if err != nil {
		switch codeOf(err) {
		case "AUTH_WEAK_PASSWORD":
			badRequest(w, errMessage(err))
		case "RESET_TOKEN_INVALID":
			gone(w, errMessage(err))
		default:
			errutil.LogError(s.logger, "reset completion failed", err)
			serverErr(w)
		}
		return
	}

	observability.RecordResetEvent("completed")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Your password has been reset. You can now log in."})
}

// handleCleanupSessions sweeps idle sessions on demand. The periodic
// janitor does the same thing; this exists for operators.
func (s *Server) handleCleanupSessions(w http.ResponseWriter, r *http.Request) {
	count, err := s.auth.CleanupIdleSessions(r.Context())
	if err != nil {
		errutil.LogError(s.logger, "session cleanup failed", err)
		serverErr(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": count})
}
