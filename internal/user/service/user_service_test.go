package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"authd/internal/security"
	userdomain "authd/internal/user/domain"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*userdomain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*userdomain.User)}
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) List(_ context.Context) ([]*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*userdomain.User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memUserRepo) Create(_ context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) Update(_ context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

// memRevoker records revocation calls without a real session store.
type memRevoker struct {
	mu          sync.Mutex
	revokedAll  []string
	keptCurrent map[string]string
}

func newMemRevoker() *memRevoker {
	return &memRevoker{keptCurrent: make(map[string]string)}
}

func (m *memRevoker) DeleteAllByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokedAll = append(m.revokedAll, userID)
	return nil
}

func (m *memRevoker) DeleteAllByUserExcept(_ context.Context, userID, keepID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keptCurrent[userID] = keepID
	return nil
}

func (m *memRevoker) revokedAllFor(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.revokedAll {
		if id == userID {
			return true
		}
	}
	return false
}

func seedUser(t *testing.T, repo *memUserRepo, hasher *security.Hasher, email, password string, roles ...userdomain.Role) *userdomain.User {
	t.Helper()
	if len(roles) == 0 {
		roles = []userdomain.Role{userdomain.RoleUser}
	}
	hash, err := hasher.Hash([]byte(password))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := time.Now().UTC()
	u := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     "seed",
		PasswordHash: hash,
		Roles:        roles,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("create: %v", err)
	}
	return u
}

func newTestService(t *testing.T) (*UserService, *memUserRepo, *memRevoker, *security.Hasher) {
	t.Helper()
	repo := newMemUserRepo()
	revoker := newMemRevoker()
	hasher := security.NewHasher(4)
	return NewUserService(repo, revoker, hasher, nil), repo, revoker, hasher
}

func strPtr(s string) *string { return &s }

func TestGetUnknownUser(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, repo, _, hasher := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, repo, hasher, "alice@example.com", "s3cret-pass")
	seedUser(t, repo, hasher, "bob@example.com", "s3cret-pass")

	t.Run("email and username", func(t *testing.T) {
		got, err := svc.UpdateProfile(ctx, alice.ID, ProfileUpdate{
			Email:    strPtr(" Alice2@Example.com "),
			Username: strPtr("alice2"),
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.Email != "alice2@example.com" || got.Username != "alice2" {
			t.Errorf("unexpected profile: %q %q", got.Email, got.Username)
		}
	})
	t.Run("taken email", func(t *testing.T) {
		if _, err := svc.UpdateProfile(ctx, alice.ID, ProfileUpdate{Email: strPtr("bob@example.com")}); !errors.Is(err, ErrEmailTaken) {
			t.Fatalf("expected ErrEmailTaken, got %v", err)
		}
	})
	t.Run("no fields", func(t *testing.T) {
		if _, err := svc.UpdateProfile(ctx, alice.ID, ProfileUpdate{}); !errors.Is(err, ErrNothingToApply) {
			t.Fatalf("expected ErrNothingToApply, got %v", err)
		}
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes other sessions", func(t *testing.T) {
		svc, repo, revoker, hasher := newTestService(t)
		alice := seedUser(t, repo, hasher, "alice@example.com", "s3cret-pass")

		err := svc.ChangePassword(ctx, alice.ID, PasswordChange{
			CurrentPassword:  "s3cret-pass",
			NewPassword:      "new-s3cret-pass",
			CurrentSessionID: "sess-1",
		})
		if err != nil {
			t.Fatalf("change password: %v", err)
		}
		if kept := revoker.keptCurrent[alice.ID]; kept != "sess-1" {
			t.Errorf("expected current session kept, got %q", kept)
		}
		updated, _ := repo.GetByID(ctx, alice.ID)
		if hasher.Compare(updated.PasswordHash, []byte("new-s3cret-pass")) != nil {
			t.Error("new password does not verify")
		}
		if hasher.Compare(updated.PasswordHash, []byte("s3cret-pass")) == nil {
			t.Error("old password still verifies")
		}
	})
	t.Run("wrong current password", func(t *testing.T) {
		svc, repo, _, hasher := newTestService(t)
		alice := seedUser(t, repo, hasher, "alice@example.com", "s3cret-pass")

		err := svc.ChangePassword(ctx, alice.ID, PasswordChange{CurrentPassword: "nope", NewPassword: "new-s3cret-pass"})
		if !errors.Is(err, ErrWrongPassword) {
			t.Fatalf("expected ErrWrongPassword, got %v", err)
		}
	})
	t.Run("weak new password", func(t *testing.T) {
		svc, repo, _, hasher := newTestService(t)
		alice := seedUser(t, repo, hasher, "alice@example.com", "s3cret-pass")

		err := svc.ChangePassword(ctx, alice.ID, PasswordChange{CurrentPassword: "s3cret-pass", NewPassword: "short"})
		if !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("expected ErrWeakPassword, got %v", err)
		}
	})
	t.Run("no session id revokes everything", func(t *testing.T) {
		svc, repo, revoker, hasher := newTestService(t)
		alice := seedUser(t, repo, hasher, "alice@example.com", "s3cret-pass")

		err := svc.ChangePassword(ctx, alice.ID, PasswordChange{CurrentPassword: "s3cret-pass", NewPassword: "new-s3cret-pass"})
		if err != nil {
			t.Fatalf("change password: %v", err)
		}
		if !revoker.revokedAllFor(alice.ID) {
			t.Error("expected all sessions revoked")
		}
	})
}

func TestSetRoles(t *testing.T) {
	svc, repo, _, hasher := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, repo, hasher, "alice@example.com", "s3cret-pass")

	got, err := svc.SetRoles(ctx, alice.ID, []string{"user", "admin"})
	if err != nil {
		t.Fatalf("set roles: %v", err)
	}
	if !got.HasRole(userdomain.RoleAdmin) {
		t.Error("expected admin role")
	}

	for _, bad := range [][]string{nil, {}, {"superuser"}, {"user", ""}} {
		if _, err := svc.SetRoles(ctx, alice.ID, bad); !errors.Is(err, ErrInvalidRole) {
			t.Errorf("roles %v: expected ErrInvalidRole, got %v", bad, err)
		}
	}

	// Rejected input must not have clobbered the stored roles.
	stored, _ := repo.GetByID(ctx, alice.ID)
	if !stored.HasRole(userdomain.RoleAdmin) {
		t.Error("stored roles lost after rejected update")
	}
}

func TestDisable(t *testing.T) {
	svc, repo, revoker, hasher := newTestService(t)
	ctx := context.Background()
	admin := seedUser(t, repo, hasher, "admin@example.com", "s3cret-pass", userdomain.RoleAdmin)
	alice := seedUser(t, repo, hasher, "alice@example.com", "s3cret-pass")

	if err := svc.Disable(ctx, admin.ID, admin.ID); !errors.Is(err, ErrSelfDisable) {
		t.Fatalf("expected ErrSelfDisable, got %v", err)
	}

	if err := svc.Disable(ctx, admin.ID, alice.ID); err != nil {
		t.Fatalf("disable: %v", err)
	}
	got, _ := repo.GetByID(ctx, alice.ID)
	if got.Status != userdomain.UserStatusDisabled {
		t.Errorf("expected disabled status, got %q", got.Status)
	}
	if !revoker.revokedAllFor(alice.ID) {
		t.Error("expected sessions revoked on disable")
	}

	// Disabling twice is a no-op.
	if err := svc.Disable(ctx, admin.ID, alice.ID); err != nil {
		t.Fatalf("second disable: %v", err)
	}
}
