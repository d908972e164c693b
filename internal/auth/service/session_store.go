package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pantryledger/auth-service/internal/auth/domain"
	autherror "github.com/pantryledger/auth-service/internal/errors"
)

const refreshTokenBytes = 32

// SessionStore owns the lifecycle of refresh-token sessions: issuance,
// lookup, single-use rotation with reuse detection, and revocation.
type SessionStore struct {
	repo domain.SessionRepository
	ttl  time.Duration
	now  func() time.Time
}

func NewSessionStore(repo domain.SessionRepository, ttl time.Duration) *SessionStore {
	return &SessionStore{repo: repo, ttl: ttl, now: time.Now}
}

// Issue creates a new live session with a fresh opaque token and a fixed
// time-to-live from issuance.
func (s *SessionStore) Issue(ctx context.Context, accountID, ip, userAgent string) (*domain.Session, error) {
	token, err := newRefreshToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &domain.Session{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Token:     token,
		IPAddress: ip,
		UserAgent: userAgent,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.repo.Store(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", autherror.ErrStoreUnavailable)
	}
	return sess, nil
}

// Lookup returns the session row for token regardless of liveness, or
// (nil, nil) when the token is unknown. Callers check liveness themselves
// so that a revoked token can be told apart from an unknown one.
func (s *SessionStore) Lookup(ctx context.Context, token string) (*domain.Session, error) {
	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", autherror.ErrStoreUnavailable)
	}
	return sess, nil
}

// Validate checks that sess may still be redeemed. Presenting an
// already-revoked session is treated as theft: every live session for the
// account is revoked and the call fails with a SessionReuseError.
func (s *SessionStore) Validate(ctx context.Context, sess *domain.Session) error {
	if sess.RevokedAt != nil {
		return s.flagReuse(ctx, sess.AccountID)
	}
	if !sess.ExpiresAt.After(s.now()) {
		return autherror.ErrSessionExpired
	}
	return nil
}

// Rotate redeems old, a session fetched via Lookup, for a new one. Refresh
// tokens are single-use: the old session is revoked and a replacement
// issued atomically, so a crash or a concurrent rotation can never leave
// two live sessions for one rotation.
func (s *SessionStore) Rotate(ctx context.Context, old *domain.Session, ip, userAgent string) (*domain.Session, error) {
	if err := s.Validate(ctx, old); err != nil {
		return nil, err
	}

	token, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	next := &domain.Session{
		ID:        uuid.NewString(),
		AccountID: old.AccountID,
		Token:     token,
		IPAddress: ip,
		UserAgent: userAgent,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	err = s.repo.Rotate(ctx, old.ID, next)
	if errors.Is(err, autherror.ErrSessionRevoked) {
		// A concurrent rotation of the same token won the conditional
		// revoke. Exactly one rotation may succeed; this one counts as
		// reuse, not a silent retry.
		return nil, s.flagReuse(ctx, old.AccountID)
	}
	if err != nil {
		return nil, fmt.Errorf("rotate session: %w", autherror.ErrStoreUnavailable)
	}
	return next, nil
}

// Revoke marks one session as revoked. Revoking an already-revoked session
// is a no-op, which keeps logout idempotent.
func (s *SessionStore) Revoke(ctx context.Context, sessionID string) error {
	if err := s.repo.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", autherror.ErrStoreUnavailable)
	}
	return nil
}

// RevokeAll revokes every live session for an account. Used on password
// change and on reuse detection.
func (s *SessionStore) RevokeAll(ctx context.Context, accountID string) (int64, error) {
	n, err := s.repo.RevokeAllByAccountID(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", autherror.ErrStoreUnavailable)
	}
	return n, nil
}

// ListByAccount returns the account's session history, newest first.
func (s *SessionStore) ListByAccount(ctx context.Context, accountID string) ([]domain.Session, error) {
	sessions, err := s.repo.ListByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", autherror.ErrStoreUnavailable)
	}
	return sessions, nil
}

func (s *SessionStore) flagReuse(ctx context.Context, accountID string) error {
	if _, err := s.repo.RevokeAllByAccountID(ctx, accountID); err != nil {
		log.Printf("warn: failed to revoke sessions after reuse detection for account %s: %v", accountID, err)
	}
	return &autherror.SessionReuseError{AccountID: accountID}
}

// newRefreshToken returns a 256-bit random opaque token. Never derived
// from the account id or the clock.
func newRefreshToken() (string, error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
