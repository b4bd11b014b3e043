package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"authd/internal/audit/domain"
	auditrepo "authd/internal/audit/repository"
)

// Event actions recorded by the auth code paths.
const (
	ActionLoginFailure        = "login_failure"
	ActionFingerprintMismatch = "fingerprint_mismatch"
	ActionRefreshDenied       = "refresh_denied"
	ActionSessionExpired      = "session_expired"
	ActionSessionRevoked      = "session_revoked"
	ActionUserDisabled        = "user_disabled"
)

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, ipAddress, metadata string)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo auditrepo.Repository
}

// NewLogger returns an AuditLogger that persists to repo.
func NewLogger(repo auditrepo.Repository) *Logger {
	return &Logger{repo: repo}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, ipAddress, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IPAddress: ipAddress,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: write %s/%s: %v", action, resource, err)
	}
}
