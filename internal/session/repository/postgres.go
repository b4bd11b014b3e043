package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"authd/internal/session/domain"
)

// PostgresRepository stores sessions in the sessions table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a session repository backed by the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts the session, evicting the user's oldest sessions in the same
// transaction so at most maxPerUser rows remain.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session, maxPerUser int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if maxPerUser > 0 {
		_, err = tx.Exec(ctx, `
			DELETE FROM sessions
			WHERE user_id = $1 AND id IN (
				SELECT id FROM sessions
				WHERE user_id = $1
				ORDER BY created_at DESC, id DESC
				OFFSET $2
			)
		`, s.UserID, maxPerUser-1)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, user_id, refresh_token_hash, user_agent, ip_address, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.UserID, s.RefreshTokenHash, s.UserAgent, s.IPAddress, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, refresh_token_hash, user_agent, ip_address, created_at, expires_at
		FROM sessions
		WHERE id = $1
	`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListByUser returns all sessions for the user, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, refresh_token_hash, user_agent, ip_address, created_at, expires_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Replace deletes the session with oldID and inserts next in one transaction.
// Returns ErrNotFound when oldID is already gone; nothing is inserted then.
func (r *PostgresRepository) Replace(ctx context.Context, oldID string, next *domain.Session) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, oldID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, user_id, refresh_token_hash, user_agent, ip_address, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, next.ID, next.UserID, next.RefreshTokenHash, next.UserAgent, next.IPAddress, next.CreatedAt, next.ExpiresAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteByID deletes one session. Deleting a missing row is not an error.
func (r *PostgresRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteAllByUser deletes every session owned by the user.
func (r *PostgresRepository) DeleteAllByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

// DeleteAllByUserExcept deletes every session owned by the user except keepID.
func (r *PostgresRepository) DeleteAllByUserExcept(ctx context.Context, userID, keepID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1 AND id <> $2`, userID, keepID)
	return err
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.UserAgent, &s.IPAddress, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
