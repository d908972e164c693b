package domain

import "time"

// Account is the security subset of the product's user row. Profile fields
// live in the account-management domain and are never touched here.
type Account struct {
	ID                  string
	Email               string
	PasswordHash        string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginIP         string
	LastLoginAt         *time.Time
}

// LockoutState is the derived lockout view of an account.
type LockoutState struct {
	Count       int
	LockedUntil *time.Time
}

// Remaining reports how much of an active lock is left at now. Zero means
// the account is open: either no lock was ever set, or the stored
// locked_until has passed. Expiry is purely time-based; the stored field is
// never cleared by a background job.
func (s LockoutState) Remaining(now time.Time) time.Duration {
	if s.LockedUntil == nil || !now.Before(*s.LockedUntil) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}

// AllowedIP is one allowlist row. Rows are managed by the admin surface and
// read-only here.
type AllowedIP struct {
	ID          string
	IPAddress   string
	Description string
	IsActive    bool
}

// LoginLog is one append-only audit record. AccountID is nil when the
// attempt never resolved to an account.
type LoginLog struct {
	ID        string
	AccountID *string
	Method    string
	IPAddress string
	Success   bool
	CreatedAt time.Time
}
