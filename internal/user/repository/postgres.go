package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"authd/internal/user/domain"
)

// PostgresRepository stores users in the users table. Roles are a text[] column;
// values are validated at the service boundary, not here.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a user repository backed by the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, username, password_hash, roles, status, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

// GetByEmail returns the user with the given email, or nil if not found.
// Emails are stored lowercased; the caller normalizes before lookup.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, username, password_hash, roles, status, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email)
	return scanUser(row)
}

// List returns all users ordered by creation time.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, email, username, password_hash, roles, status, created_at, updated_at
		FROM users
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.User
	for rows.Next() {
		var u domain.User
		var roles []string
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &roles, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Roles = toRoles(roles)
		out = append(out, &u)
	}
	return out, rows.Err()
}

// Create persists the user. The user must have ID set; it is not assigned here.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, username, password_hash, roles, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.Username, u.PasswordHash, fromRoles(u.Roles), string(u.Status), u.CreatedAt, u.UpdatedAt)
	return err
}

// Update overwrites the mutable fields of an existing user record.
func (r *PostgresRepository) Update(ctx context.Context, u *domain.User) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET email = $2, username = $3, password_hash = $4, roles = $5, status = $6, updated_at = $7
		WHERE id = $1
	`, u.ID, u.Email, u.Username, u.PasswordHash, fromRoles(u.Roles), string(u.Status), u.UpdatedAt)
	return err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var roles []string
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &roles, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Roles = toRoles(roles)
	return &u, nil
}

func toRoles(raw []string) []domain.Role {
	out := make([]domain.Role, len(raw))
	for i, s := range raw {
		out[i] = domain.Role(s)
	}
	return out
}

func fromRoles(roles []domain.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
