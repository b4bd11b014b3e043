package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTokenProvider_IssueAndVerify(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}

	token, expiresAt, err := p.IssueAccess("user-1", []string{"user"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Error("access token should expire in the future")
	}

	claims, err := p.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "user-1")
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "user" {
		t.Errorf("Roles = %v, want [user]", claims.Roles)
	}
	if claims.ID == "" {
		t.Error("expected non-empty jti")
	}
}

func TestTokenProvider_RefreshLongerLived(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	_, accessExp, err := p.IssueAccess("u", nil)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	_, refreshExp, err := p.IssueRefresh("u", nil)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if !refreshExp.After(accessExp) {
		t.Error("refresh token should outlive access token")
	}
}

func TestTokenProvider_TokensAreUnique(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	a, _, err := p.IssueRefresh("u", []string{"user"})
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	b, _, err := p.IssueRefresh("u", []string{"user"})
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if a == b {
		t.Error("two issued tokens must not be identical")
	}
}

func TestTokenProvider_VerifyRejectsUniformly(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, _, err := p.IssueAccess("user-1", []string{"user"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	tampered := token[:len(token)-2] + "xx"

	otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	otherProvider := NewTokenProvider(otherKey, otherKey.Public(), "test-issuer", "test-audience", time.Minute, time.Hour)
	foreign, _, err := otherProvider.IssueAccess("user-1", nil)
	if err != nil {
		t.Fatalf("IssueAccess (foreign key): %v", err)
	}

	testCases := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"empty", ""},
		{"tampered signature", tampered},
		{"signed with another key", foreign},
		{"truncated", strings.Split(token, ".")[0]},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Verify(tc.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify(%q): want ErrInvalidToken, got %v", tc.name, err)
			}
		})
	}
}

func TestTokenProvider_VerifyRejectsExpired(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p := NewTokenProvider(key, key.Public(), "test-issuer", "test-audience", -time.Minute, -time.Minute)
	token, _, err := p.IssueAccess("user-1", nil)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_VerifyRejectsWrongIssuerAudience(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	issuerA := NewTokenProvider(key, key.Public(), "issuer-a", "aud-a", time.Minute, time.Hour)
	issuerB := NewTokenProvider(key, key.Public(), "issuer-b", "aud-a", time.Minute, time.Hour)
	audB := NewTokenProvider(key, key.Public(), "issuer-a", "aud-b", time.Minute, time.Hour)

	token, _, err := issuerA.IssueAccess("user-1", nil)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := issuerB.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong issuer: want ErrInvalidToken, got %v", err)
	}
	if _, err := audB.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong audience: want ErrInvalidToken, got %v", err)
	}
}
