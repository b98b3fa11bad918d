// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/turnstile/turnstile/internal/auth"
	"github.com/turnstile/turnstile/pkg/errutil"
)

// middleware is a lightweight wrapper type for composing handlers.
type middleware func(http.Handler) http.Handler

type ctxKey string

const sessionKey ctxKey = "turnstile_session"

// withSessionCtx returns a child context carrying the resolved session.
func withSessionCtx(ctx context.Context, session *auth.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// sessionFrom extracts the resolved session from the context.
// Nil means the request is anonymous.
func sessionFrom(ctx context.Context) *auth.Session {
	if s, ok := ctx.Value(sessionKey).(*auth.Session); ok {
		return s
	}
	return nil
}

// withSession resolves the session cookie and injects the result into the
// request context. Invalid, expired, and missing tokens all continue as
// anonymous; only requireLogin turns that into a 401.
func (s *Server) withSession() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(s.cfg.CookieName); err == nil {
				token = c.Value
			}

			session, err := s.auth.Resolve(r.Context(), token)
			if err != nil {
				if code := codeOf(err); code == "" || code == "SESSION_RESOLVE_FAILED" {
					errutil.LogError(s.logger, "session resolution failed", err)
				}
				// Expired or invalid: drop the stale cookie.
				if token != "" {
					s.clearSessionCookie(w)
				}
				session = nil
			}

			next.ServeHTTP(w, r.WithContext(withSessionCtx(r.Context(), session)))
		})
	}
}

// wantsHTML reports whether the request is a browser navigation rather
// than an API call. Only GETs that explicitly accept text/html qualify.
func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

// requireLogin stops anonymous requests: browser navigations are sent to
// the login page, API calls get a 401.
func (s *Server) requireLogin() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sessionFrom(r.Context()) == nil {
				if wantsHTML(r) {
					http.Redirect(w, r, "/login", http.StatusSeeOther)
					return
				}
				unauthorized(w, "not_authenticated")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireRole stops sessions lacking the exact role: browser navigations
// are sent back to the default page, API calls get a 403.
// Composes after withSession and requireLogin.
func (s *Server) requireRole(role auth.Role) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := s.auth.RequireRole(sessionFrom(r.Context()), role); err != nil {
				if wantsHTML(r) {
					http.Redirect(w, r, "/", http.StatusSeeOther)
					return
				}
				forbidden(w, "insufficient_role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// verifyCSRF checks the X-CSRF-Token header (or csrf_token form field)
// against the session's token. Anonymous requests pass through; there is
// no session state to forge.
func (s *Server) verifyCSRF() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessionFrom(r.Context())
			if session == nil {
				next.ServeHTTP(w, r)
				return
			}

			supplied := r.Header.Get("X-CSRF-Token")
			if supplied == "" {
				supplied = r.PostFormValue("csrf_token")
			}

			if !s.auth.VerifyCSRF(session, supplied) {
				forbidden(w, "invalid_csrf_token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
