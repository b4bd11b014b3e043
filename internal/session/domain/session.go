package domain

import "time"

// Session binds a hashed refresh token to a user and the device fingerprint
// seen when the token was issued. One row exists per live refresh token; the
// raw token is never stored. Rotation, revocation, logout, and expiry all
// delete the row; a session id or hash is never reused.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	UserAgent        string
	IPAddress        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Expired reports whether the session's refresh token has expired at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// FingerprintMatches reports whether the presented user-agent/IP pair matches
// the fingerprint recorded at session creation.
func (s *Session) FingerprintMatches(userAgent, ipAddress string) bool {
	return s.UserAgent == userAgent && s.IPAddress == ipAddress
}
