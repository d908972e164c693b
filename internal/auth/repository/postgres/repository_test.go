package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pantryledger/auth-service/internal/auth/domain"
	repo "github.com/pantryledger/auth-service/internal/auth/repository/postgres"
	autherror "github.com/pantryledger/auth-service/internal/errors"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountColumns = []string{
	"id", "email", "secret_hash", "failed_login_attempts", "locked_until",
	"last_login_ip", "last_login_at",
}

var sessionColumns = []string{
	"id", "account_id", "refresh_token", "ip_address", "user_agent",
	"expires_at", "created_at", "revoked_at",
}

func TestGetByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewPostgresRepository(mock)
	ctx := context.Background()
	email := "test@example.com"

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, secret_hash").
			WithArgs(email).
			WillReturnRows(pgxmock.NewRows(accountColumns).
				AddRow("account-1", email, "hash", 2, (*time.Time)(nil), "10.0.0.1", (*time.Time)(nil)))

		account, err := r.GetByEmail(ctx, email)
		require.NoError(t, err)
		require.NotNil(t, account)
		assert.Equal(t, "account-1", account.ID)
		assert.Equal(t, 2, account.FailedLoginAttempts)
		assert.Nil(t, account.LockedUntil)
	})

	t.Run("not found returns nil, nil", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, secret_hash").
			WithArgs(email).
			WillReturnError(pgx.ErrNoRows)

		account, err := r.GetByEmail(ctx, email)
		require.NoError(t, err)
		assert.Nil(t, account)
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, secret_hash").
			WithArgs(email).
			WillReturnError(errors.New("connection refused"))

		account, err := r.GetByEmail(ctx, email)
		assert.Error(t, err)
		assert.Nil(t, account)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailedAttempt(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewPostgresRepository(mock)
	ctx := context.Background()

	t.Run("below threshold", func(t *testing.T) {
		mock.ExpectQuery("UPDATE accounts").
			WithArgs("account-1", 5, (15 * time.Minute).Seconds()).
			WillReturnRows(pgxmock.NewRows([]string{"failed_login_attempts", "locked_until"}).
				AddRow(3, (*time.Time)(nil)))

		state, err := r.RecordFailedAttempt(ctx, "account-1", 5, 15*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 3, state.Count)
		assert.Nil(t, state.LockedUntil)
	})

	t.Run("reaching threshold sets the lock", func(t *testing.T) {
		lockedUntil := time.Now().Add(15 * time.Minute)
		mock.ExpectQuery("UPDATE accounts").
			WithArgs("account-1", 5, (15 * time.Minute).Seconds()).
			WillReturnRows(pgxmock.NewRows([]string{"failed_login_attempts", "locked_until"}).
				AddRow(5, &lockedUntil))

		state, err := r.RecordFailedAttempt(ctx, "account-1", 5, 15*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 5, state.Count)
		require.NotNil(t, state.LockedUntil)
		assert.WithinDuration(t, lockedUntil, *state.LockedUntil, time.Second)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetFailedAttempts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewPostgresRepository(mock)

	mock.ExpectExec("UPDATE accounts").
		WithArgs("account-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, r.ResetFailedAttempts(context.Background(), "account-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLastLogin(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewPostgresRepository(mock)
	at := time.Now()

	mock.ExpectExec("UPDATE accounts").
		WithArgs("account-1", "10.0.0.1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, r.UpdateLastLogin(context.Background(), "account-1", "10.0.0.1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewPostgresRepository(mock)
	now := time.Now()
	sess := &domain.Session{
		ID:        "session-1",
		AccountID: "account-1",
		Token:     "opaque-token",
		IPAddress: "10.0.0.1",
		UserAgent: "test-agent",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sess.ID, sess.AccountID, sess.Token, sess.IPAddress, sess.UserAgent, sess.ExpiresAt, sess.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.Store(context.Background(), sess))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByToken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewPostgresRepository(mock)
	ctx := context.Background()
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, account_id, refresh_token").
			WithArgs("opaque-token").
			WillReturnRows(pgxmock.NewRows(sessionColumns).
				AddRow("session-1", "account-1", "opaque-token", "10.0.0.1", "agent",
					now.Add(time.Hour), now, (*time.Time)(nil)))

		sess, err := r.GetByToken(ctx, "opaque-token")
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, "session-1", sess.ID)
		assert.True(t, sess.Live(now))
	})

	t.Run("unknown token returns nil, nil", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, account_id, refresh_token").
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		sess, err := r.GetByToken(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRotate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewPostgresRepository(mock)
	ctx := context.Background()
	now := time.Now()
	next := &domain.Session{
		ID:        "session-2",
		AccountID: "account-1",
		Token:     "fresh-token",
		IPAddress: "10.0.0.1",
		UserAgent: "agent",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}

	t.Run("revoke and insert commit together", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE sessions").
			WithArgs("session-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("INSERT INTO sessions").
			WithArgs(next.ID, next.AccountID, next.Token, next.IPAddress, next.UserAgent, next.ExpiresAt, next.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		require.NoError(t, r.Rotate(ctx, "session-1", next))
	})

	t.Run("already revoked aborts with ErrSessionRevoked", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE sessions").
			WithArgs("session-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		err := r.Rotate(ctx, "session-1", next)
		assert.ErrorIs(t, err, autherror.ErrSessionRevoked)
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE sessions").
			WithArgs("session-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("INSERT INTO sessions").
			WithArgs(next.ID, next.AccountID, next.Token, next.IPAddress, next.UserAgent, next.ExpiresAt, next.CreatedAt).
			WillReturnError(errors.New("unique violation"))
		mock.ExpectRollback()

		err := r.Rotate(ctx, "session-1", next)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, autherror.ErrSessionRevoked)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevoke(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewPostgresRepository(mock)

	// Second revoke of the same session affects zero rows and is still
	// not an error.
	mock.ExpectExec("UPDATE sessions").
		WithArgs("session-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE sessions").
		WithArgs("session-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, r.Revoke(context.Background(), "session-1"))
	require.NoError(t, r.Revoke(context.Background(), "session-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAllByAccountID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewPostgresRepository(mock)

	mock.ExpectExec("UPDATE sessions").
		WithArgs("account-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := r.RevokeAllByAccountID(context.Background(), "account-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByAccountID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewPostgresRepository(mock)
	now := time.Now()
	revokedAt := now.Add(-time.Minute)

	mock.ExpectQuery("SELECT id, account_id, refresh_token").
		WithArgs("account-1").
		WillReturnRows(pgxmock.NewRows(sessionColumns).
			AddRow("session-2", "account-1", "t2", "10.0.0.2", "agent", now.Add(time.Hour), now, (*time.Time)(nil)).
			AddRow("session-1", "account-1", "t1", "10.0.0.1", "agent", now, now.Add(-time.Hour), &revokedAt))

	sessions, err := r.ListByAccountID(context.Background(), "account-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "session-2", sessions[0].ID)
	assert.NotNil(t, sessions[1].RevokedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewPostgresRepository(mock)
	ctx := context.Background()

	t.Run("no active rows", func(t *testing.T) {
		mock.ExpectQuery("SELECT count").
			WithArgs("198.51.100.9").
			WillReturnRows(pgxmock.NewRows([]string{"count", "count"}).AddRow(0, 0))

		active, matched, err := r.Match(ctx, "198.51.100.9")
		require.NoError(t, err)
		assert.Zero(t, active)
		assert.False(t, matched)
	})

	t.Run("listed address", func(t *testing.T) {
		mock.ExpectQuery("SELECT count").
			WithArgs("203.0.113.5").
			WillReturnRows(pgxmock.NewRows([]string{"count", "count"}).AddRow(2, 1))

		active, matched, err := r.Match(ctx, "203.0.113.5")
		require.NoError(t, err)
		assert.Equal(t, 2, active)
		assert.True(t, matched)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertLoginLog(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewPostgresRepository(mock)
	accountID := "account-1"
	entry := &domain.LoginLog{
		ID:        "log-1",
		AccountID: &accountID,
		Method:    "password",
		IPAddress: "10.0.0.1",
		Success:   true,
		CreatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO login_logs").
		WithArgs(entry.ID, entry.AccountID, entry.Method, entry.IPAddress, entry.Success, entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.Insert(context.Background(), entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSetting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repo.NewPostgresRepository(mock)
	ctx := context.Background()

	t.Run("present", func(t *testing.T) {
		mock.ExpectQuery("SELECT value FROM settings").
			WithArgs("max_login_attempts").
			WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow("7"))

		value, err := r.Get(ctx, "max_login_attempts")
		require.NoError(t, err)
		assert.Equal(t, "7", value)
	})

	t.Run("missing key is empty, not an error", func(t *testing.T) {
		mock.ExpectQuery("SELECT value FROM settings").
			WithArgs("no_such_key").
			WillReturnError(pgx.ErrNoRows)

		value, err := r.Get(ctx, "no_such_key")
		require.NoError(t, err)
		assert.Empty(t, value)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
