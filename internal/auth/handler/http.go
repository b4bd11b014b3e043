// Package handler exposes the auth service over HTTP. The refresh token lives
// in an HTTP-only cookie scoped to the auth route prefix; the access token is
// returned in the response body and never set as a cookie.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"authd/internal/auth/service"
	"authd/internal/config"
	"authd/internal/server"
	sessiondomain "authd/internal/session/domain"
	userdomain "authd/internal/user/domain"
)

// Handler serves the /v1/auth routes.
type Handler struct {
	auth *service.AuthService
	cfg  *config.Config
}

// New returns an auth HTTP handler.
func New(auth *service.AuthService, cfg *config.Config) *Handler {
	return &Handler{auth: auth, cfg: cfg}
}

// Mount registers the auth routes on r. authn must be the access-token
// middleware; the session management routes require it, the token exchange
// routes do not.
func (h *Handler) Mount(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/signup", h.signup)
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Get("/sessions", h.listSessions)
			r.Delete("/sessions/{sessionID}", h.revokeSession)
			r.Post("/sessions/revoke-others", h.revokeOthers)
			r.Post("/sessions/revoke-all", h.revokeAll)
		})
	})
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username,omitempty"`
	Roles     []string  `json:"roles"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toUserResponse(u *userdomain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Roles:     u.RoleStrings(),
		Status:    string(u.Status),
		CreatedAt: u.CreatedAt,
	}
}

func toSessionResponse(s *sessiondomain.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		UserAgent: s.UserAgent,
		IPAddress: s.IPAddress,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.auth.Register(r.Context(), req.Email, req.Password, req.Username, r.UserAgent(), clientIP(r))
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.setRefreshCookie(w, res.RefreshToken)
	server.WriteJSON(w, http.StatusCreated, map[string]any{"user": toUserResponse(res.User)})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.auth.AuthenticateWithPassword(r.Context(), req.Email, req.Password, r.UserAgent(), clientIP(r))
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.setRefreshCookie(w, res.RefreshToken)
	server.WriteJSON(w, http.StatusOK, map[string]any{
		"access_token": res.AccessToken,
		"user":         toUserResponse(res.User),
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	raw := h.refreshTokenFrom(r)
	pair, err := h.auth.AuthenticateWithRefreshToken(r.Context(), raw, r.UserAgent(), clientIP(r))
	if err != nil {
		h.clearRefreshCookie(w)
		h.writeAuthError(w, err)
		return
	}
	h.setRefreshCookie(w, pair.RefreshToken)
	server.WriteJSON(w, http.StatusOK, map[string]any{"access_token": pair.AccessToken})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	raw := h.refreshTokenFrom(r)
	if err := h.auth.Logout(r.Context(), raw, r.UserAgent(), clientIP(r)); err != nil {
		log.Printf("auth: logout: %v", err)
	}
	// The cookie is always cleared, even when nothing was deleted.
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	id := server.IdentityFrom(r.Context())
	sessions, err := h.auth.ListSessions(r.Context(), id.UserID)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s))
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	id := server.IdentityFrom(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.auth.RevokeSession(r.Context(), id.UserID, sessionID); err != nil {
		h.writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeOthers(w http.ResponseWriter, r *http.Request) {
	id := server.IdentityFrom(r.Context())
	raw := h.refreshTokenFrom(r)
	if err := h.auth.RevokeOtherSessions(r.Context(), id.UserID, raw, r.UserAgent(), clientIP(r)); err != nil {
		h.writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeAll(w http.ResponseWriter, r *http.Request) {
	id := server.IdentityFrom(r.Context())
	if err := h.auth.RevokeAllSessions(r.Context(), id.UserID); err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) refreshTokenFrom(r *http.Request) string {
	c, err := r.Cookie(h.cfg.RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.RefreshCookieName,
		Value:    token,
		Path:     h.cfg.RefreshCookiePath,
		MaxAge:   int(h.cfg.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.RefreshCookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.RefreshCookieName,
		Value:    "",
		Path:     h.cfg.RefreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.RefreshCookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// writeAuthError maps service sentinels to HTTP statuses. Unknown errors are
// logged and reported as 500 without leaking detail.
func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		server.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		server.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrRefreshTokenInvalid),
		errors.Is(err, service.ErrSessionInvalid),
		errors.Is(err, service.ErrSessionExpired):
		server.WriteError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		server.WriteError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("auth: internal error: %v", err)
		server.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

// clientIP returns the remote address without the port. Deployments behind a
// trusted proxy should enable chi's RealIP middleware so RemoteAddr is rewritten.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
