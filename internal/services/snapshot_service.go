package services

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/refgraph/refgraph-api/internal/config"
	"github.com/refgraph/refgraph-api/internal/contracts"
	"github.com/refgraph/refgraph-api/internal/logger"
)

// AccountSnapshot is the derived, read-only view of an account's on-chain
// state: the contract-ordered referral list and the earnings rendered in the
// native currency's decimal form.
type AccountSnapshot struct {
	Referrals []string `json:"referrals"`
	Earnings  string   `json:"earnings"`
}

// SnapshotService recomputes account snapshots from contract reads. Both
// reads are independently fault tolerant: a failure degrades to the zero
// value so a flaky node never blocks rendering. Nothing is cached; every
// call re-reads the chain.
type SnapshotService struct {
	currency config.NativeCurrency
	logger   *zap.Logger
}

// NewSnapshotService creates a new snapshot service.
func NewSnapshotService(currency config.NativeCurrency) *SnapshotService {
	return &SnapshotService{
		currency: currency,
		logger:   logger.Log,
	}
}

// Read recomputes the full snapshot for the account.
func (s *SnapshotService) Read(ctx context.Context, contract contracts.Activator, account common.Address) AccountSnapshot {
	return AccountSnapshot{
		Referrals: s.Referrals(ctx, contract, account),
		Earnings:  s.Earnings(ctx, contract, account),
	}
}

// Referrals returns the accounts that named this account as their referrer,
// in contract order. Read errors degrade to an empty list.
func (s *SnapshotService) Referrals(ctx context.Context, contract contracts.Activator, account common.Address) []string {
	addrs, err := contract.GetReferrals(ctx, account)
	if err != nil {
		s.logger.Warn("Referral read failed, returning empty list",
			zap.String("account", account.Hex()), zap.Error(err))
		return []string{}
	}
	referrals := make([]string, len(addrs))
	for i, addr := range addrs {
		referrals[i] = addr.Hex()
	}
	return referrals
}

// Earnings returns the account's earnings converted from base units to the
// native currency's decimal form. Read errors degrade to "0".
func (s *SnapshotService) Earnings(ctx context.Context, contract contracts.Activator, account common.Address) string {
	earnings, err := contract.GetEarnings(ctx, account)
	if err != nil {
		s.logger.Warn("Earnings read failed, returning zero",
			zap.String("account", account.Hex()), zap.Error(err))
		return "0"
	}
	return config.FormatDecimal(earnings, s.currency.Decimals)
}
