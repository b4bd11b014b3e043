package security

import (
	"crypto/sha256"

	"golang.org/x/crypto/bcrypt"
)

// Refresh tokens are stored as salted bcrypt hashes so a database leak does not
// expose usable tokens. bcrypt only reads the first 72 bytes of its input and a
// JWT is longer than that (with a shared header prefix), so the token is
// pre-digested with SHA-256 before hashing. The salt makes the hash
// non-deterministic: lookup works by scanning one user's sessions and comparing,
// never by indexing on the hash.

// HashRefreshToken returns a salted hash of the raw refresh token for storage.
func HashRefreshToken(token string, cost int) (string, error) {
	digest := sha256.Sum256([]byte(token))
	b, err := bcrypt.GenerateFromPassword(digest[:], cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RefreshTokenMatches reports whether the raw token matches the stored hash.
// Malformed stored hashes count as a mismatch.
func RefreshTokenMatches(token, storedHash string) bool {
	digest := sha256.Sum256([]byte(token))
	return bcrypt.CompareHashAndPassword([]byte(storedHash), digest[:]) == nil
}
