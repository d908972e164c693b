package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrIPNotAllowed         = errors.New("ip address not allowed")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountLocked        = errors.New("account temporarily locked")
	ErrSessionUnknown       = errors.New("session not found")
	ErrSessionExpired       = errors.New("session expired")
	ErrSessionRevoked       = errors.New("session already revoked")
	ErrSessionReuseDetected = errors.New("refresh token reuse detected")
	ErrStoreUnavailable     = errors.New("store unavailable")
)

// AccountLockedError carries how long the caller must wait before the
// account accepts login attempts again. It matches ErrAccountLocked under
// errors.Is.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account temporarily locked, retry after %s", e.RetryAfter)
}

func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// SessionReuseError identifies which account's already-rotated token was
// presented again. It matches ErrSessionReuseDetected under errors.Is.
type SessionReuseError struct {
	AccountID string
}

func (e *SessionReuseError) Error() string {
	return "refresh token reuse detected"
}

func (e *SessionReuseError) Is(target error) bool {
	return target == ErrSessionReuseDetected
}
