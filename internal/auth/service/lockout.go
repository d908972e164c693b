package service

import (
	"context"
	"time"

	"github.com/pantryledger/auth-service/internal/auth/domain"
)

// LockoutPolicy drives the per-account failure counter and lock window.
// The counter mutation itself is a single atomic statement in the
// repository, so concurrent attempts against one account serialize on the
// row and never lose an increment; attempts for different accounts never
// contend.
//
// The counter is intentionally not cleared when a lock is set: after the
// window passes, a single success fully resets the account, while a single
// failure re-locks it immediately because the count is still at threshold.
type LockoutPolicy struct {
	accounts  domain.AccountRepository
	threshold int
	duration  time.Duration
}

func NewLockoutPolicy(accounts domain.AccountRepository, threshold int, duration time.Duration) *LockoutPolicy {
	return &LockoutPolicy{accounts: accounts, threshold: threshold, duration: duration}
}

// Remaining reports how long state keeps the account locked at now. Zero
// means the attempt may proceed. Lock expiry is purely time-based; no
// background job ever clears the stored field.
func (p *LockoutPolicy) Remaining(state domain.LockoutState, now time.Time) time.Duration {
	return state.Remaining(now)
}

// OnFailure records one failed attempt and returns the resulting state,
// including any lock this failure just triggered.
func (p *LockoutPolicy) OnFailure(ctx context.Context, accountID string) (domain.LockoutState, error) {
	return p.accounts.RecordFailedAttempt(ctx, accountID, p.threshold, p.duration)
}

// OnSuccess clears the failure counter and any stale lock timestamp.
func (p *LockoutPolicy) OnSuccess(ctx context.Context, accountID string) error {
	return p.accounts.ResetFailedAttempts(ctx, accountID)
}
