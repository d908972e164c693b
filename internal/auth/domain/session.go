package domain

import "time"

// Session is one refresh-token row. Rotation creates a new row and revokes
// the old one, so the rows for an account form a history, not a pool.
// Revoked rows are retained for reuse detection.
type Session struct {
	ID        string
	AccountID string
	Token     string
	IPAddress string
	UserAgent string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Live reports whether the session's refresh token is still redeemable.
func (s *Session) Live(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}
