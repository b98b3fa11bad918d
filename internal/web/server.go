// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package web exposes the access layer over HTTP: login, logout, session
// introspection, CSRF tokens, and the password reset flow. Sessions ride
// an HttpOnly cookie; all state-changing endpoints demand the session's
// CSRF token.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/turnstile/turnstile/internal/auth"
)

// DefaultCookieName is the session cookie name unless configured otherwise.
const DefaultCookieName = "turnstile_session"

// Config holds HTTP server settings.
type Config struct {
	// Env selects cookie hardening; "prod" and "staging" force Secure.
	Env string

	// CookieName overrides DefaultCookieName when set.
	CookieName string

	// CookieDomain may be empty for host-only cookies.
	CookieDomain string
}

func (c *Config) normalize() {
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
}

// Server mounts the access-layer routes onto a ServeMux. It does not
// listen; callers wrap Handler() in an http.Server.
type Server struct {
	cfg    Config
	auth   *auth.Service
	resets *auth.ResetService
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer creates a Server with all routes mounted.
func NewServer(cfg Config, authSvc *auth.Service, resetSvc *auth.ResetService, logger *slog.Logger) (*Server, error) {
	if authSvc == nil {
		return nil, oops.Code("WEB_INVALID_DEPS").Errorf("auth service is required")
	}
	if resetSvc == nil {
		return nil, oops.Code("WEB_INVALID_DEPS").Errorf("reset service is required")
	}
	if logger == nil {
		return nil, oops.Code("WEB_INVALID_DEPS").Errorf("logger is required")
	}
	cfg.normalize()

	s := &Server{
		cfg:    cfg,
		auth:   authSvc,
		resets: resetSvc,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.mountRoutes()
	return s, nil
}

// mountRoutes binds all public endpoints onto the Server's mux.
func (s *Server) mountRoutes() {
	s.handle("POST", "/login", s.handleLogin)
	s.handle("POST", "/logout", s.handleLogout, s.withSession(), s.verifyCSRF())

	s.handle("GET", "/me", s.handleMe, s.withSession(), s.requireLogin())
	s.handle("GET", "/csrf", s.handleCSRF, s.withSession(), s.requireLogin())

	s.handle("POST", "/admin/sessions/cleanup", s.handleCleanupSessions,
		s.withSession(), s.requireLogin(), s.requireRole(auth.RoleAdmin), s.verifyCSRF())

	s.handle("POST", "/password/forgot", s.handleForgotPassword)
	s.handle("GET", "/password/reset", s.handleValidateReset)
	s.handle("POST", "/password/reset", s.handleCompleteReset)
}

// handle attaches a method-guarded route with optional middlewares.
func (s *Server) handle(method, path string, h http.HandlerFunc, mws ...middleware) {
	var handler http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}

	s.mux.Handle(method+" "+path, handler)
}

// Handler returns the http.Handler with security headers applied.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Credential endpoints must never be cached or leak referrers.
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Content-Type-Options", "nosniff")

		s.mux.ServeHTTP(w, r)
	})
}

func (s *Server) secureCookies() bool {
	return s.cfg.Env == "prod" || s.cfg.Env == "staging"
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   s.cfg.CookieDomain,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secureCookies(),
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.cfg.CookieDomain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secureCookies(),
	})
}
