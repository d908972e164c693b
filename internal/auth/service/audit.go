package service

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pantryledger/auth-service/internal/auth/domain"
)

// LoginAuditLog appends one record per authentication attempt. Writes are
// best-effort from the caller's point of view: a failed insert never fails
// the authentication decision, but it is counted so monitoring can alert
// on the write-failure rate.
type LoginAuditLog struct {
	repo     domain.LoginLogRepository
	timeout  time.Duration
	failures atomic.Int64
}

func NewLoginAuditLog(repo domain.LoginLogRepository, timeout time.Duration) *LoginAuditLog {
	return &LoginAuditLog{repo: repo, timeout: timeout}
}

// Record appends one audit entry. The write runs on a context detached
// from the caller's cancellation: a client disconnect mid-request must not
// drop the record.
func (l *LoginAuditLog) Record(ctx context.Context, accountID *string, method, ip string, success bool) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	entry := &domain.LoginLog{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Method:    method,
		IPAddress: ip,
		Success:   success,
		CreatedAt: time.Now(),
	}
	if err := l.repo.Insert(writeCtx, entry); err != nil {
		l.failures.Add(1)
		log.Printf("warn: failed to write login audit record (method=%s ip=%s): %v", method, ip, err)
	}
}

// Failures reports how many audit writes have been dropped since startup.
func (l *LoginAuditLog) Failures() int64 {
	return l.failures.Load()
}
