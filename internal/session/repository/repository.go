package repository

import (
	"context"
	"errors"

	"authd/internal/session/domain"
)

// ErrNotFound is returned by Replace when the session being rotated no longer
// exists (already rotated, revoked, or expired by a concurrent request).
var ErrNotFound = errors.New("session not found")

// Repository persists sessions. The refresh-token hash is salted, so there is
// no lookup by hash; callers list one user's sessions and compare hashes. The
// per-user session cap enforced by Create keeps that scan bounded.
type Repository interface {
	// Create inserts the session. If the user already has maxPerUser sessions,
	// the oldest rows are deleted in the same transaction so at most maxPerUser
	// remain.
	Create(ctx context.Context, s *domain.Session, maxPerUser int) error
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// ListByUser returns all sessions for the user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	// Replace atomically deletes the session with oldID and inserts next.
	// Returns ErrNotFound (and inserts nothing) when oldID no longer exists,
	// so a lost rotation race never produces a second live session.
	Replace(ctx context.Context, oldID string, next *domain.Session) error
	// DeleteByID deletes one session. Deleting a missing row is not an error.
	DeleteByID(ctx context.Context, id string) error
	// DeleteAllByUser deletes every session owned by the user.
	DeleteAllByUser(ctx context.Context, userID string) error
	// DeleteAllByUserExcept deletes every session owned by the user except keepID.
	DeleteAllByUserExcept(ctx context.Context, userID, keepID string) error
}
