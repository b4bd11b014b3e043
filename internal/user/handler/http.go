// Package handler exposes profile self-service and admin user management over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"authd/internal/server"
	userdomain "authd/internal/user/domain"
	"authd/internal/user/service"
)

// Handler serves the /v1/users routes.
type Handler struct {
	users *service.UserService
}

// New returns a user HTTP handler.
func New(users *service.UserService) *Handler {
	return &Handler{users: users}
}

// Mount registers the user routes on r. All routes require authentication;
// the admin subtree additionally requires the admin role.
func (h *Handler) Mount(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Route("/v1/users", func(r chi.Router) {
		r.Use(authn)

		r.Get("/me", h.me)
		r.Patch("/me", h.updateMe)
		r.Post("/me/password", h.changePassword)

		r.Group(func(r chi.Router) {
			r.Use(server.RequireAdmin)
			r.Get("/", h.list)
			r.Put("/{userID}/roles", h.setRoles)
			r.Post("/{userID}/disable", h.disable)
		})
	})
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username,omitempty"`
	Roles     []string  `json:"roles"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserResponse(u *userdomain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Roles:     u.RoleStrings(),
		Status:    string(u.Status),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id := server.IdentityFrom(r.Context())
	user, err := h.users.Get(r.Context(), id.UserID)
	if err != nil {
		writeUserError(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}

type updateMeRequest struct {
	Email    *string `json:"email"`
	Username *string `json:"username"`
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	id := server.IdentityFrom(r.Context())
	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), id.UserID, service.ProfileUpdate{
		Email:    req.Email,
		Username: req.Username,
	})
	if err != nil {
		writeUserError(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// changePassword rotates the caller's password. Every session is revoked; the
// refresh cookie is scoped to the auth routes and cannot identify the current
// session here, so the caller logs in again with the new password.
func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	id := server.IdentityFrom(r.Context())
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.users.ChangePassword(r.Context(), id.UserID, service.PasswordChange{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		writeUserError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeUserError(w, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"users": out})
}

type setRolesRequest struct {
	Roles []string `json:"roles"`
}

func (h *Handler) setRoles(w http.ResponseWriter, r *http.Request) {
	var req setRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.users.SetRoles(r.Context(), chi.URLParam(r, "userID"), req.Roles)
	if err != nil {
		writeUserError(w, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}

func (h *Handler) disable(w http.ResponseWriter, r *http.Request) {
	id := server.IdentityFrom(r.Context())
	if err := h.users.Disable(r.Context(), id.UserID, chi.URLParam(r, "userID")); err != nil {
		writeUserError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		server.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		server.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrWrongPassword):
		server.WriteError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrNothingToApply),
		errors.Is(err, service.ErrSelfDisable):
		server.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("users: internal error: %v", err)
		server.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
