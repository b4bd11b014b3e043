package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"authd/internal/security"
	userdomain "authd/internal/user/domain"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller extracted from a verified access token.
type Identity struct {
	UserID string
	Roles  []string
}

// IsAdmin reports whether the identity carries the admin role.
func (id *Identity) IsAdmin() bool {
	for _, r := range id.Roles {
		if r == string(userdomain.RoleAdmin) {
			return true
		}
	}
	return false
}

// IdentityFrom returns the caller identity stored by Authenticate, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// WithIdentity returns a context carrying the identity. Exported for handler tests.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Authenticate verifies the Bearer access token and stores the caller identity
// in the request context. Requests without a valid token get 401.
func Authenticate(tokens *security.TokenProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				WriteError(w, http.StatusUnauthorized, "missing access token")
				return
			}
			claims, err := tokens.Verify(raw)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "invalid access token")
				return
			}
			id := &Identity{UserID: claims.Subject, Roles: claims.Roles}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAdmin rejects authenticated callers that lack the admin role.
// Must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFrom(r.Context())
		if id == nil {
			WriteError(w, http.StatusUnauthorized, "missing access token")
			return
		}
		if !id.IsAdmin() {
			WriteError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error body {"error": msg} with the given status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}
