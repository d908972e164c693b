package domain

//go:generate mockgen -destination=../../mocks/mock_repository.go -package=mocks github.com/pantryledger/auth-service/internal/auth/domain AccountRepository,SessionRepository,AllowedIPRepository,LoginLogRepository,SettingsRepository

import (
	"context"
	"time"
)

// AccountRepository owns the security columns of the accounts table.
// Lookups return (nil, nil) when no row matches.
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)

	// RecordFailedAttempt atomically increments failed_login_attempts and,
	// when the post-increment count reaches threshold, sets locked_until to
	// now+lockFor. It returns the resulting state. The read-modify-write
	// must be a single statement scoped to the account row so that
	// concurrent failures never lose an increment.
	RecordFailedAttempt(ctx context.Context, accountID string, threshold int, lockFor time.Duration) (LockoutState, error)

	ResetFailedAttempts(ctx context.Context, accountID string) error
	UpdateLastLogin(ctx context.Context, accountID, ip string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, accountID, hash string) error
}

// SessionRepository owns refresh-token session rows.
type SessionRepository interface {
	Store(ctx context.Context, s *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)

	// Rotate revokes the old session and inserts its replacement in one
	// transaction. The revoke is conditional on the row still being
	// unrevoked; losing that race returns errors.ErrSessionRevoked and
	// inserts nothing.
	Rotate(ctx context.Context, oldSessionID string, next *Session) error

	Revoke(ctx context.Context, sessionID string) error
	RevokeAllByAccountID(ctx context.Context, accountID string) (int64, error)
	ListByAccountID(ctx context.Context, accountID string) ([]Session, error)
}

// AllowedIPRepository reads the allowlist. Match reports the number of
// active rows and whether ip is one of them in a single round-trip.
type AllowedIPRepository interface {
	Match(ctx context.Context, ip string) (active int, matched bool, err error)
}

// LoginLogRepository appends audit records. Rows are never updated or
// deleted by this service.
type LoginLogRepository interface {
	Insert(ctx context.Context, entry *LoginLog) error
}

// SettingsRepository reads the product's settings table, the authoritative
// source for lockout and token-lifetime tuning. Get returns "" for a
// missing key.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
}
