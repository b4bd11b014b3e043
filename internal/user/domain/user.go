package domain

import (
	"errors"
	"fmt"
	"time"
)

// Role is a fixed, enumerated user role. Role values from storage are validated
// at the service boundary, never trusted as free-form strings.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates a raw role value. Returns an error for unknown roles.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User is the core identity record. Users are disabled rather than hard-deleted.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Roles        []Role
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate validates the user for persistence. A user without roles is a
// data-integrity error at creation time, not a runtime branch.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if len(u.Roles) == 0 {
		return errors.New("user must have at least one role")
	}
	for _, r := range u.Roles {
		if _, err := ParseRole(string(r)); err != nil {
			return err
		}
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RoleStrings returns the roles as plain strings for token claims.
func (u *User) RoleStrings() []string {
	out := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		out[i] = string(r)
	}
	return out
}

// ParseRoles validates a list of raw role values. The list must be non-empty
// and every entry must be a known role.
func ParseRoles(raw []string) ([]Role, error) {
	if len(raw) == 0 {
		return nil, errors.New("user must have at least one role")
	}
	out := make([]Role, 0, len(raw))
	for _, s := range raw {
		r, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
