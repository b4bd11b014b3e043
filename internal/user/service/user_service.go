// Package service implements user profile and administration operations on top
// of the credential store.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"authd/internal/audit"
	"authd/internal/security"
	userdomain "authd/internal/user/domain"
	userrepo "authd/internal/user/repository"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already in use")
	ErrInvalidRole    = errors.New("invalid role")
	ErrWrongPassword  = errors.New("current password is incorrect")
	ErrSelfDisable    = errors.New("cannot disable your own account")
	ErrWeakPassword   = errors.New("password must be at least 6 characters")
	ErrNothingToApply = errors.New("no fields to update")
)

// SessionRevoker is the slice of the session store the user service needs:
// password changes and account disables invalidate existing sessions.
type SessionRevoker interface {
	DeleteAllByUser(ctx context.Context, userID string) error
	DeleteAllByUserExcept(ctx context.Context, userID, keepID string) error
}

// ProfileUpdate carries the mutable self-service profile fields. Nil pointers
// mean "leave unchanged".
type ProfileUpdate struct {
	Email    *string
	Username *string
}

// PasswordChange carries a password rotation request. CurrentSessionID, when
// set, survives the revocation of the user's other sessions.
type PasswordChange struct {
	CurrentPassword  string
	NewPassword      string
	CurrentSessionID string
}

// UserService implements profile self-service and admin user management.
type UserService struct {
	users    userrepo.Repository
	sessions SessionRevoker
	hasher   *security.Hasher
	audit    audit.AuditLogger
}

// NewUserService returns a UserService. auditLogger may be nil.
func NewUserService(users userrepo.Repository, sessions SessionRevoker, hasher *security.Hasher, auditLogger audit.AuditLogger) *UserService {
	return &UserService{users: users, sessions: sessions, hasher: hasher, audit: auditLogger}
}

// Get returns the user by id, or ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, userID string) (*userdomain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// List returns all users. Admin only; the handler enforces the role.
func (s *UserService) List(ctx context.Context) ([]*userdomain.User, error) {
	return s.users.List(ctx)
}

// UpdateProfile applies the non-nil fields of upd to the user's own profile.
// Email changes are checked for uniqueness.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*userdomain.User, error) {
	if upd.Email == nil && upd.Username == nil {
		return nil, ErrNothingToApply
	}
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email != user.Email {
			existing, err := s.users.GetByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return nil, ErrEmailTaken
			}
			user.Email = email
		}
	}
	if upd.Username != nil {
		user.Username = strings.TrimSpace(*upd.Username)
	}
	user.UpdatedAt = time.Now().UTC()
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword verifies the current password, stores the new hash, and
// revokes every other session so stolen refresh tokens die with the old
// password. The session presenting the change survives.
func (s *UserService) ChangePassword(ctx context.Context, userID string, change PasswordChange) error {
	if len(change.NewPassword) < 6 {
		return ErrWeakPassword
	}
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(change.CurrentPassword)); err != nil {
		return ErrWrongPassword
	}
	hashed, err := s.hasher.Hash([]byte(change.NewPassword))
	if err != nil {
		return err
	}
	user.PasswordHash = hashed
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	if change.CurrentSessionID != "" {
		return s.sessions.DeleteAllByUserExcept(ctx, userID, change.CurrentSessionID)
	}
	return s.sessions.DeleteAllByUser(ctx, userID)
}

// SetRoles replaces the user's roles with the given set. Unknown role values
// and empty sets are rejected before anything is written.
func (s *UserService) SetRoles(ctx context.Context, userID string, roles []string) (*userdomain.User, error) {
	parsed, err := userdomain.ParseRoles(roles)
	if err != nil {
		return nil, ErrInvalidRole
	}
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Roles = parsed
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Disable marks the user disabled and revokes all their sessions. Admins
// cannot disable themselves; actorID is the admin performing the action.
func (s *UserService) Disable(ctx context.Context, actorID, userID string) error {
	if actorID == userID {
		return ErrSelfDisable
	}
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if user.Status == userdomain.UserStatusDisabled {
		return nil
	}
	user.Status = userdomain.UserStatusDisabled
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	if err := s.sessions.DeleteAllByUser(ctx, userID); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.LogEvent(ctx, userID, audit.ActionUserDisabled, "user", "", "disabled by "+actorID)
	}
	return nil
}
