package domain

import "time"

// AuditLog is one security-relevant event: login failures, refresh anomalies,
// session revocations. UserID may be empty when the actor is unknown.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IPAddress string
	Metadata  string
	CreatedAt time.Time
}
