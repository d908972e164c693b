package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pantryledger/auth-service/internal/auth/domain"
	autherror "github.com/pantryledger/auth-service/internal/errors"
)

// DB is the subset of pgxpool.Pool the repository needs. pgxmock pools
// satisfy it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `
		SELECT id, email, secret_hash, failed_login_attempts, locked_until,
		       COALESCE(last_login_ip, ''), last_login_at
		FROM accounts
		WHERE email = $1
		LIMIT 1;
	`
	return r.scanAccount(r.db.QueryRow(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `
		SELECT id, email, secret_hash, failed_login_attempts, locked_until,
		       COALESCE(last_login_ip, ''), last_login_at
		FROM accounts
		WHERE id = $1
		LIMIT 1;
	`
	return r.scanAccount(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(&account.ID, &account.Email, &account.PasswordHash,
		&account.FailedLoginAttempts, &account.LockedUntil,
		&account.LastLoginIP, &account.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// RecordFailedAttempt is a single UPDATE so the increment and the
// conditional lock write serialize on the account row; concurrent failures
// for one account are all counted. The counter is left at threshold when a
// lock is set.
func (r *PostgresRepository) RecordFailedAttempt(ctx context.Context, accountID string, threshold int, lockFor time.Duration) (domain.LockoutState, error) {
	query := `
		UPDATE accounts
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN now() + make_interval(secs => $3)
		        ELSE locked_until
		    END
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until;
	`
	var state domain.LockoutState
	err := r.db.QueryRow(ctx, query, accountID, threshold, lockFor.Seconds()).
		Scan(&state.Count, &state.LockedUntil)
	if err != nil {
		return domain.LockoutState{}, fmt.Errorf("failed to record failed attempt: %w", err)
	}
	return state, nil
}

func (r *PostgresRepository) ResetFailedAttempts(ctx context.Context, accountID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET failed_login_attempts = 0, locked_until = NULL
		WHERE id = $1
	`, accountID)
	return err
}

func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, accountID, ip string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET last_login_ip = $2, last_login_at = $3
		WHERE id = $1
	`, accountID, ip, at)
	return err
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, accountID, hash string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET secret_hash = $2
		WHERE id = $1
	`, accountID, hash)
	return err
}

func (r *PostgresRepository) Store(ctx context.Context, s *domain.Session) error {
	query := `INSERT INTO sessions (id, account_id, refresh_token, ip_address, user_agent, expires_at, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, query,
		s.ID, s.AccountID, s.Token, s.IPAddress, s.UserAgent, s.ExpiresAt, s.CreatedAt)
	return err
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	query := `
		SELECT id, account_id, refresh_token, ip_address, user_agent, expires_at, created_at, revoked_at
		FROM sessions
		WHERE refresh_token = $1
		LIMIT 1;
	`
	var s domain.Session
	err := r.db.QueryRow(ctx, query, token).Scan(&s.ID, &s.AccountID, &s.Token,
		&s.IPAddress, &s.UserAgent, &s.ExpiresAt, &s.CreatedAt, &s.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// Rotate revokes the old session and inserts its replacement in one
// transaction. The revoke is conditional on the row still being live, so
// two rotations of the same token cannot both commit; the loser gets
// ErrSessionRevoked.
func (r *PostgresRepository) Rotate(ctx context.Context, oldSessionID string, next *domain.Session) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin rotation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = now()
		WHERE id = $1 AND revoked_at IS NULL
	`, oldSessionID)
	if err != nil {
		return fmt.Errorf("failed to revoke old session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return autherror.ErrSessionRevoked
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, account_id, refresh_token, ip_address, user_agent, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, next.ID, next.AccountID, next.Token, next.IPAddress, next.UserAgent, next.ExpiresAt, next.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store new session: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) Revoke(ctx context.Context, sessionID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = now()
		WHERE id = $1 AND revoked_at IS NULL
	`, sessionID)
	return err
}

func (r *PostgresRepository) RevokeAllByAccountID(ctx context.Context, accountID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = now()
		WHERE account_id = $1 AND revoked_at IS NULL AND expires_at > now()
	`, accountID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) ListByAccountID(ctx context.Context, accountID string) ([]domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, refresh_token, ip_address, user_agent, expires_at, created_at, revoked_at
		FROM sessions
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.AccountID, &s.Token, &s.IPAddress,
			&s.UserAgent, &s.ExpiresAt, &s.CreatedAt, &s.RevokedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Match reports the active allowlist size and whether ip is on it, in one
// round-trip. Zero active rows means the allowlist feature is off.
func (r *PostgresRepository) Match(ctx context.Context, ip string) (int, bool, error) {
	var active, matched int
	err := r.db.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE ip_address = $1)
		FROM allowed_ips
		WHERE is_active
	`, ip).Scan(&active, &matched)
	if err != nil {
		return 0, false, fmt.Errorf("failed to match allowed ip: %w", err)
	}
	return active, matched > 0, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, entry *domain.LoginLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO login_logs (id, account_id, login_method, ip_address, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.AccountID, entry.Method, entry.IPAddress, entry.Success, entry.CreatedAt)
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, `
		SELECT value FROM settings WHERE key = $1 LIMIT 1;
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}
