// Package service implements the session manager: signup, password login,
// refresh-token validation and rotation, logout, and session revocation.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"authd/internal/audit"
	"authd/internal/security"
	sessiondomain "authd/internal/session/domain"
	sessionrepo "authd/internal/session/repository"
	userdomain "authd/internal/user/domain"
	userrepo "authd/internal/user/repository"
)

// Sentinel errors for the auth service; the handler maps them to HTTP statuses.
// Bad credentials collapse into one error so callers cannot probe which emails
// exist, and a lost rotation race is indistinguishable from a replayed token.
var (
	// ErrValidation wraps rejected signup input (bad email, weak password).
	ErrValidation             = errors.New("invalid input")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrRefreshTokenInvalid    = errors.New("invalid or expired refresh token")
	ErrSessionInvalid         = errors.New("session invalid or suspicious")
	ErrSessionExpired         = errors.New("session expired")
	ErrSessionNotFound        = errors.New("session not found")
)

// RegisterResult is the outcome of Register. No access token is issued at
// signup; callers exchange the refresh token for one.
type RegisterResult struct {
	User         *userdomain.User
	RefreshToken string
}

// LoginResult is the outcome of AuthenticateWithPassword.
type LoginResult struct {
	User         *userdomain.User
	AccessToken  string
	RefreshToken string
}

// TokenPair is the outcome of a refresh rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService orchestrates the credential store, password hasher, token
// provider, and session store. It holds no per-request state; concurrent
// refresh attempts racing on one token are resolved by whichever session
// replacement commits first.
type AuthService struct {
	users             userrepo.Repository
	sessions          sessionrepo.Repository
	hasher            *security.Hasher
	tokens            *security.TokenProvider
	audit             audit.AuditLogger
	maxSessions       int
	fingerprintStrict bool
}

// NewAuthService returns an AuthService with the given dependencies.
// auditLogger may be nil to disable audit events.
func NewAuthService(
	users userrepo.Repository,
	sessions sessionrepo.Repository,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	auditLogger audit.AuditLogger,
	maxSessions int,
	fingerprintStrict bool,
) *AuthService {
	return &AuthService{
		users:             users,
		sessions:          sessions,
		hasher:            hasher,
		tokens:            tokens,
		audit:             auditLogger,
		maxSessions:       maxSessions,
		fingerprintStrict: fingerprintStrict,
	}
}

// Register creates a user with the default role and an initial session, and
// returns the sanitizable user plus the raw refresh token for the cookie.
// Fails with ErrEmailAlreadyRegistered when the email is taken.
func (s *AuthService) Register(ctx context.Context, email, password, username, userAgent, ipAddress string) (*RegisterResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     strings.TrimSpace(username),
		PasswordHash: hashed,
		Roles:        []userdomain.Role{userdomain.RoleUser},
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	refreshToken, _, err := s.issueSession(ctx, user, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}
	return &RegisterResult{User: user, RefreshToken: refreshToken}, nil
}

// AuthenticateWithPassword verifies email/password, creates a session bound to
// the device fingerprint, and returns an access/refresh token pair. Every
// credential failure is reported as ErrInvalidCredentials.
func (s *AuthService) AuthenticateWithPassword(ctx context.Context, email, password, userAgent, ipAddress string) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		s.logEvent(ctx, "", audit.ActionLoginFailure, "user", ipAddress, email)
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		s.logEvent(ctx, user.ID, audit.ActionLoginFailure, "user", ipAddress, "")
		return nil, ErrInvalidCredentials
	}
	roles, err := trustedRoles(user)
	if err != nil {
		return nil, err
	}
	accessToken, _, err := s.tokens.IssueAccess(user.ID, roles)
	if err != nil {
		return nil, err
	}
	refreshToken, _, err := s.issueSession(ctx, user, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// AuthenticateWithRefreshToken validates the raw refresh token against the
// user's sessions and rotates it: the matched session is deleted and replaced
// by a new one in a single transaction, so the old token is one-shot. A token
// that loses the rotation race fails exactly like an invalid one.
func (s *AuthService) AuthenticateWithRefreshToken(ctx context.Context, rawToken, userAgent, ipAddress string) (*TokenPair, error) {
	user, matched, err := s.matchSession(ctx, rawToken, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}
	roles, err := trustedRoles(user)
	if err != nil {
		return nil, err
	}
	accessToken, _, err := s.tokens.IssueAccess(user.ID, roles)
	if err != nil {
		return nil, err
	}
	newRefresh, refreshExp, err := s.tokens.IssueRefresh(user.ID, roles)
	if err != nil {
		return nil, err
	}
	hash, err := security.HashRefreshToken(newRefresh, s.hasher.Cost)
	if err != nil {
		return nil, err
	}
	next := &sessiondomain.Session{
		ID:               uuid.New().String(),
		UserID:           user.ID,
		RefreshTokenHash: hash,
		UserAgent:        userAgent,
		IPAddress:        ipAddress,
		CreatedAt:        time.Now().UTC(),
		ExpiresAt:        refreshExp,
	}
	if err := s.sessions.Replace(ctx, matched.ID, next); err != nil {
		if errors.Is(err, sessionrepo.ErrNotFound) {
			s.logEvent(ctx, user.ID, audit.ActionRefreshDenied, "session", ipAddress, "rotation race lost or token replayed")
			return nil, ErrSessionInvalid
		}
		return nil, err
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: newRefresh}, nil
}

// Logout deletes the session matching the raw refresh token. An absent or
// already-invalid token is a no-op success: logging out twice is fine.
func (s *AuthService) Logout(ctx context.Context, rawToken, userAgent, ipAddress string) error {
	if rawToken == "" {
		return nil
	}
	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		return nil
	}
	sessions, err := s.sessions.ListByUser(ctx, claims.Subject)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if !security.RefreshTokenMatches(rawToken, sess.RefreshTokenHash) {
			continue
		}
		if !sess.FingerprintMatches(userAgent, ipAddress) {
			s.logEvent(ctx, sess.UserID, audit.ActionFingerprintMismatch, "session", ipAddress, sess.ID)
		}
		return s.sessions.DeleteByID(ctx, sess.ID)
	}
	return nil
}

// ListSessions returns the user's active sessions, newest first.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// RevokeSession deletes one session owned by the user. Fails with
// ErrSessionNotFound when the session does not exist or belongs to someone else.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil || sess.UserID != userID {
		return ErrSessionNotFound
	}
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return err
	}
	s.logEvent(ctx, userID, audit.ActionSessionRevoked, "session", "", sessionID)
	return nil
}

// RevokeAllSessions deletes every session owned by the user.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID string) error {
	if err := s.sessions.DeleteAllByUser(ctx, userID); err != nil {
		return err
	}
	s.logEvent(ctx, userID, audit.ActionSessionRevoked, "session", "", "all")
	return nil
}

// RevokeAllExcept deletes every session owned by the user except keepSessionID.
// Fails with ErrSessionNotFound when the kept session does not exist or belongs
// to someone else.
func (s *AuthService) RevokeAllExcept(ctx context.Context, userID, keepSessionID string) error {
	keep, err := s.sessions.GetByID(ctx, keepSessionID)
	if err != nil {
		return err
	}
	if keep == nil || keep.UserID != userID {
		return ErrSessionNotFound
	}
	if err := s.sessions.DeleteAllByUserExcept(ctx, userID, keepSessionID); err != nil {
		return err
	}
	s.logEvent(ctx, userID, audit.ActionSessionRevoked, "session", "", "all-except:"+keepSessionID)
	return nil
}

// RevokeOtherSessions keeps only the session matching the presented refresh
// token and deletes the rest. The token must belong to userID.
func (s *AuthService) RevokeOtherSessions(ctx context.Context, userID, rawToken, userAgent, ipAddress string) error {
	user, matched, err := s.matchSession(ctx, rawToken, userAgent, ipAddress)
	if err != nil {
		return err
	}
	if user.ID != userID {
		return ErrSessionInvalid
	}
	if err := s.sessions.DeleteAllByUserExcept(ctx, userID, matched.ID); err != nil {
		return err
	}
	s.logEvent(ctx, userID, audit.ActionSessionRevoked, "session", ipAddress, "all-except:"+matched.ID)
	return nil
}

// matchSession verifies the raw refresh token, scans the owner's sessions for
// the matching hash, and enforces expiry and fingerprint policy. The hash
// comparison is the authority; the fingerprint check defends against replay
// from another device.
func (s *AuthService) matchSession(ctx context.Context, rawToken, userAgent, ipAddress string) (*userdomain.User, *sessiondomain.Session, error) {
	if rawToken == "" {
		return nil, nil, ErrRefreshTokenInvalid
	}
	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		return nil, nil, ErrRefreshTokenInvalid
	}
	sessions, err := s.sessions.ListByUser(ctx, claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	if len(sessions) == 0 {
		return nil, nil, ErrSessionInvalid
	}
	var matched *sessiondomain.Session
	for _, sess := range sessions {
		if security.RefreshTokenMatches(rawToken, sess.RefreshTokenHash) {
			matched = sess
			break
		}
	}
	if matched == nil {
		s.logEvent(ctx, claims.Subject, audit.ActionRefreshDenied, "session", ipAddress, "no session matches token")
		return nil, nil, ErrSessionInvalid
	}
	if matched.Expired(time.Now().UTC()) {
		if err := s.sessions.DeleteByID(ctx, matched.ID); err != nil {
			return nil, nil, err
		}
		s.logEvent(ctx, matched.UserID, audit.ActionSessionExpired, "session", ipAddress, matched.ID)
		return nil, nil, ErrSessionExpired
	}
	if !matched.FingerprintMatches(userAgent, ipAddress) {
		s.logEvent(ctx, matched.UserID, audit.ActionFingerprintMismatch, "session", ipAddress, matched.ID)
		if s.fingerprintStrict {
			return nil, nil, ErrSessionInvalid
		}
	}
	user, err := s.users.GetByID(ctx, matched.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil, nil, ErrSessionInvalid
	}
	return user, matched, nil
}

// issueSession mints a refresh token and persists the session row holding its
// salted hash, fingerprint, and the token's own expiry.
func (s *AuthService) issueSession(ctx context.Context, user *userdomain.User, userAgent, ipAddress string) (string, *sessiondomain.Session, error) {
	roles, err := trustedRoles(user)
	if err != nil {
		return "", nil, err
	}
	refreshToken, expiresAt, err := s.tokens.IssueRefresh(user.ID, roles)
	if err != nil {
		return "", nil, err
	}
	hash, err := security.HashRefreshToken(refreshToken, s.hasher.Cost)
	if err != nil {
		return "", nil, err
	}
	sess := &sessiondomain.Session{
		ID:               uuid.New().String(),
		UserID:           user.ID,
		RefreshTokenHash: hash,
		UserAgent:        userAgent,
		IPAddress:        ipAddress,
		CreatedAt:        time.Now().UTC(),
		ExpiresAt:        expiresAt,
	}
	if err := s.sessions.Create(ctx, sess, s.maxSessions); err != nil {
		return "", nil, err
	}
	return refreshToken, sess, nil
}

// trustedRoles re-validates role values read from storage before they are
// minted into token claims.
func trustedRoles(user *userdomain.User) ([]string, error) {
	roles, err := userdomain.ParseRoles(user.RoleStrings())
	if err != nil {
		return nil, fmt.Errorf("user %s has invalid roles: %w", user.ID, err)
	}
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out, nil
}

func (s *AuthService) logEvent(ctx context.Context, userID, action, resource, ipAddress, metadata string) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, userID, action, resource, ipAddress, metadata)
	}
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}
	return nil
}
