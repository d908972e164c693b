package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pantryledger/auth-service/config"
	"github.com/pantryledger/auth-service/internal/auth/domain"
	"github.com/pantryledger/auth-service/internal/auth/dto"
	autherror "github.com/pantryledger/auth-service/internal/errors"
	authconstant "github.com/pantryledger/auth-service/pkg/constant"
)

// AuthService orchestrates the login, refresh and logout protocols. It is
// the only entry point other subsystems call.
type AuthService struct {
	accounts     domain.AccountRepository
	sessions     *SessionStore
	guard        *IPAllowlistGuard
	lockout      *LockoutPolicy
	verifier     *CredentialVerifier
	audit        *LoginAuditLog
	tokens       TokenGenerator
	storeTimeout time.Duration
	now          func() time.Time
}

func NewAuthService(
	accounts domain.AccountRepository,
	sessions *SessionStore,
	guard *IPAllowlistGuard,
	lockout *LockoutPolicy,
	verifier *CredentialVerifier,
	audit *LoginAuditLog,
	tokens TokenGenerator,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		accounts:     accounts,
		sessions:     sessions,
		guard:        guard,
		lockout:      lockout,
		verifier:     verifier,
		audit:        audit,
		tokens:       tokens,
		storeTimeout: time.Duration(cfg.StoreTimeoutMS) * time.Millisecond,
		now:          time.Now,
	}
}

// Login runs the full credential protocol: allowlist guard, lockout
// pre-check, credential verification, lockout post-transition, session
// issuance, audit. The response never reveals whether the email exists,
// nor a lock acquired as a result of this very attempt; only a
// pre-existing lock is reported.
func (s *AuthService) Login(ctx context.Context, input dto.LoginInput) (*dto.TokenResponse, error) {
	lookupCtx, cancelLookup := s.withStoreTimeout(ctx)
	defer cancelLookup()

	if err := s.guard.Check(lookupCtx, input.IPAddress); err != nil {
		if errors.Is(err, autherror.ErrIPNotAllowed) {
			s.audit.Record(lookupCtx, nil, authconstant.LoginMethodDeniedIP, input.IPAddress, false)
		}
		return nil, err
	}

	account, err := s.accounts.GetByEmail(lookupCtx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", autherror.ErrStoreUnavailable)
	}
	if account == nil {
		// Burn comparable hashing cost so an unknown email is not
		// distinguishable from a wrong password by timing.
		s.verifier.DummyVerify(input.Password)
		s.audit.Record(lookupCtx, nil, authconstant.LoginMethodPassword, input.IPAddress, false)
		return nil, autherror.ErrInvalidCredentials
	}

	state := domain.LockoutState{Count: account.FailedLoginAttempts, LockedUntil: account.LockedUntil}
	if remaining := s.lockout.Remaining(state, s.now()); remaining > 0 {
		// The credential store is never consulted for a locked account.
		s.audit.Record(lookupCtx, &account.ID, authconstant.LoginMethodPassword, input.IPAddress, false)
		return nil, &autherror.AccountLockedError{RetryAfter: remaining}
	}

	if err := s.verifier.Verify(account.PasswordHash, input.Password); err != nil {
		// The counter update is a security-relevant side effect and must
		// land even if the caller has disconnected.
		if _, lockErr := s.lockout.OnFailure(s.detached(ctx), account.ID); lockErr != nil {
			log.Printf("warn: failed to record failed attempt for account %s: %v", account.ID, lockErr)
		}
		s.audit.Record(lookupCtx, &account.ID, authconstant.LoginMethodPassword, input.IPAddress, false)
		return nil, autherror.ErrInvalidCredentials
	}

	// The hash comparison burns real CPU time; the store timeout bounds
	// round-trips only, so the remaining calls get a fresh budget.
	storeCtx, cancelStore := s.withStoreTimeout(ctx)
	defer cancelStore()

	if err := s.lockout.OnSuccess(s.detached(ctx), account.ID); err != nil {
		return nil, fmt.Errorf("reset failure counter: %w", autherror.ErrStoreUnavailable)
	}

	sess, err := s.sessions.Issue(storeCtx, account.ID, input.IPAddress, input.UserAgent)
	if err != nil {
		return nil, err
	}

	accessToken, _, err := s.tokens.GenerateAccess(account.ID, account.Email)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.UpdateLastLogin(storeCtx, account.ID, input.IPAddress, s.now()); err != nil {
		log.Printf("warn: failed to update last login for account %s: %v", account.ID, err)
	}
	s.audit.Record(storeCtx, &account.ID, authconstant.LoginMethodPassword, input.IPAddress, true)

	return s.tokenResponse(accessToken, sess), nil
}

// Refresh exchanges a refresh token for a new session and access token.
// Rotation is mandatory and single-use; it is never retried here, since a
// retry after an ambiguous timeout could trip reuse detection. Every
// fallible step runs before the rotation commits, so a failure leaves the
// presented token live and the caller can simply try again.
func (s *AuthService) Refresh(ctx context.Context, input dto.RefreshInput) (*dto.TokenResponse, error) {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	old, err := s.sessions.Lookup(ctx, input.RefreshToken)
	if err != nil {
		s.auditRefreshFailure(ctx, input.IPAddress, err)
		return nil, err
	}
	if old == nil {
		s.audit.Record(ctx, nil, authconstant.LoginMethodRefresh, input.IPAddress, false)
		return nil, autherror.ErrSessionUnknown
	}
	if err := s.sessions.Validate(ctx, old); err != nil {
		s.auditRefreshFailure(ctx, input.IPAddress, err)
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, old.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", autherror.ErrStoreUnavailable)
	}
	if account == nil {
		return nil, autherror.ErrSessionUnknown
	}

	accessToken, _, err := s.tokens.GenerateAccess(account.ID, account.Email)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Rotate(ctx, old, input.IPAddress, input.UserAgent)
	if err != nil {
		s.auditRefreshFailure(ctx, input.IPAddress, err)
		return nil, err
	}

	s.audit.Record(ctx, &account.ID, authconstant.LoginMethodRefresh, input.IPAddress, true)

	return s.tokenResponse(accessToken, sess), nil
}

// auditRefreshFailure writes the audit entry for a failed refresh, using
// the dedicated reuse-alert method when the failure is a detected theft.
func (s *AuthService) auditRefreshFailure(ctx context.Context, ip string, err error) {
	var reuse *autherror.SessionReuseError
	if errors.As(err, &reuse) {
		log.Printf("security: refresh token reuse detected for account %s from %s", reuse.AccountID, ip)
		s.audit.Record(ctx, &reuse.AccountID, authconstant.LoginMethodReuseAlert, ip, false)
		return
	}
	s.audit.Record(ctx, nil, authconstant.LoginMethodRefresh, ip, false)
}

// Logout revokes the session behind token. Unknown or already-revoked
// tokens are a no-op: logging out twice is safe.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	sess, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	return s.sessions.Revoke(ctx, sess.ID)
}

// ChangePassword verifies the current secret, stores the new hash and
// revokes every live session for the account.
func (s *AuthService) ChangePassword(ctx context.Context, accountID string, input dto.ChangePasswordInput) error {
	lookupCtx, cancelLookup := s.withStoreTimeout(ctx)
	defer cancelLookup()

	account, err := s.accounts.GetByID(lookupCtx, accountID)
	if err != nil {
		return fmt.Errorf("account lookup: %w", autherror.ErrStoreUnavailable)
	}
	if account == nil {
		return autherror.ErrInvalidCredentials
	}
	if err := s.verifier.Verify(account.PasswordHash, input.CurrentPassword); err != nil {
		return autherror.ErrInvalidCredentials
	}

	hash, err := s.verifier.Hash(input.NewPassword)
	if err != nil {
		return err
	}

	// Verify plus Hash is two full hashing rounds of CPU time; the writes
	// below get their own store budget.
	writeCtx, cancelWrite := s.withStoreTimeout(ctx)
	defer cancelWrite()

	if err := s.accounts.UpdatePasswordHash(writeCtx, accountID, hash); err != nil {
		return fmt.Errorf("update password: %w", autherror.ErrStoreUnavailable)
	}

	if _, err := s.sessions.RevokeAll(writeCtx, accountID); err != nil {
		return err
	}
	return nil
}

// Sessions returns the account's session history for the session
// management surface.
func (s *AuthService) Sessions(ctx context.Context, accountID string) ([]dto.SessionOutput, error) {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	sessions, err := s.sessions.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	out := make([]dto.SessionOutput, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, dto.SessionOutput{
			ID:        sess.ID,
			IPAddress: sess.IPAddress,
			UserAgent: sess.UserAgent,
			CreatedAt: sess.CreatedAt,
			ExpiresAt: sess.ExpiresAt,
			RevokedAt: sess.RevokedAt,
		})
	}
	return out, nil
}

// RevokeAllSessions logs the account out of every device.
func (s *AuthService) RevokeAllSessions(ctx context.Context, accountID string) error {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	_, err := s.sessions.RevokeAll(ctx, accountID)
	return err
}

func (s *AuthService) tokenResponse(accessToken string, sess *domain.Session) *dto.TokenResponse {
	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: sess.Token,
		TokenType:    authconstant.DefaultTokenType,
		ExpiresIn:    int(s.tokens.GetAccessTokenExpiry().Seconds()),
	}
}

func (s *AuthService) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// detached strips the caller's cancellation and deadline, for side effects
// that must complete even if the client disconnects mid-request.
func (s *AuthService) detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
