// seed inserts development sample users for local testing.
// Idempotent: skips inserts if the dev admin (admin@example.com) already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"authd/internal/config"
	"authd/internal/db"
	"authd/internal/security"
	userdomain "authd/internal/user/domain"
	userrepo "authd/internal/user/repository"
)

const (
	adminEmail  = "admin@example.com"
	devEmail    = "dev@example.com"
	devPassword = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool)
	existing, err := users.GetByEmail(ctx, adminEmail)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	if existing != nil {
		log.Println("seed: already applied, nothing to do")
		return
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	hash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("seed: %v", err)
	}

	now := time.Now().UTC()
	seedUsers := []*userdomain.User{
		{
			ID:           uuid.New().String(),
			Email:        adminEmail,
			Username:     "admin",
			PasswordHash: hash,
			Roles:        []userdomain.Role{userdomain.RoleUser, userdomain.RoleAdmin},
			Status:       userdomain.UserStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		{
			ID:           uuid.New().String(),
			Email:        devEmail,
			Username:     "dev",
			PasswordHash: hash,
			Roles:        []userdomain.Role{userdomain.RoleUser},
			Status:       userdomain.UserStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
	for _, u := range seedUsers {
		if err := u.Validate(); err != nil {
			log.Fatalf("seed: %v", err)
		}
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("seed: create %s: %v", u.Email, err)
		}
		log.Printf("seed: created %s", u.Email)
	}
}
