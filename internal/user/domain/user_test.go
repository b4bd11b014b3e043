package domain

import (
	"testing"
	"time"
)

func validUser() *User {
	now := time.Now().UTC()
	return &User{
		ID:           "u1",
		Email:        "user@example.com",
		PasswordHash: "$2a$10$hash",
		Roles:        []Role{RoleUser},
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUser_Validate(t *testing.T) {
	u := validUser()
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	u = validUser()
	u.Email = ""
	if err := u.Validate(); err == nil {
		t.Error("missing email should fail")
	}

	u = validUser()
	u.PasswordHash = ""
	if err := u.Validate(); err == nil {
		t.Error("missing password hash should fail")
	}

	u = validUser()
	u.Roles = nil
	if err := u.Validate(); err == nil {
		t.Error("user without roles should fail")
	}

	u = validUser()
	u.Roles = []Role{"superuser"}
	if err := u.Validate(); err == nil {
		t.Error("unknown role should fail")
	}

	u = validUser()
	u.Status = ""
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if u.Status != UserStatusActive {
		t.Errorf("Status = %q, want active default", u.Status)
	}
}

func TestParseRoles(t *testing.T) {
	roles, err := ParseRoles([]string{"user", "admin"})
	if err != nil {
		t.Fatalf("ParseRoles: %v", err)
	}
	if len(roles) != 2 || roles[0] != RoleUser || roles[1] != RoleAdmin {
		t.Errorf("ParseRoles = %v", roles)
	}

	if _, err := ParseRoles(nil); err == nil {
		t.Error("empty role list should fail")
	}
	if _, err := ParseRoles([]string{"user", "root"}); err == nil {
		t.Error("unknown role should fail")
	}
}

func TestUser_HasRole(t *testing.T) {
	u := validUser()
	if !u.HasRole(RoleUser) {
		t.Error("expected RoleUser")
	}
	if u.HasRole(RoleAdmin) {
		t.Error("did not expect RoleAdmin")
	}
}
