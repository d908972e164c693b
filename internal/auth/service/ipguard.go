package service

import (
	"context"
	"fmt"

	"github.com/pantryledger/auth-service/internal/auth/domain"
	autherror "github.com/pantryledger/auth-service/internal/errors"
)

// IPAllowlistGuard decides whether a source address may attempt
// authentication at all. An empty allowlist (no active rows) disables the
// feature entirely: it must never mean "deny everyone".
type IPAllowlistGuard struct {
	allowed domain.AllowedIPRepository
}

func NewIPAllowlistGuard(allowed domain.AllowedIPRepository) *IPAllowlistGuard {
	return &IPAllowlistGuard{allowed: allowed}
}

// Check returns nil when ip may proceed and ErrIPNotAllowed otherwise.
// Every call reads current rows; the guard owns no state.
func (g *IPAllowlistGuard) Check(ctx context.Context, ip string) error {
	active, matched, err := g.allowed.Match(ctx, ip)
	if err != nil {
		return fmt.Errorf("allowlist lookup: %w", autherror.ErrStoreUnavailable)
	}
	if active == 0 || matched {
		return nil
	}
	return autherror.ErrIPNotAllowed
}
