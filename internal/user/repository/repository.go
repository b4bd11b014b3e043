package repository

import (
	"context"

	"authd/internal/user/domain"
)

// Repository is the credential store: user identity records keyed by id and
// unique email. Get methods return (nil, nil) for missing rows; errors are
// database failures only.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, u *domain.User) error
}
