package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/refgraph/refgraph-api/internal/logger"
	"github.com/refgraph/refgraph-api/internal/store"
)

// ActivationResult describes a submitted activation transaction.
type ActivationResult struct {
	TxHash   string          `json:"tx_hash"`
	Referrer string          `json:"referrer,omitempty"`
	Snapshot AccountSnapshot `json:"snapshot"`
}

// ActivationService drives the one-time activation transaction: referrer
// resolution, fee-bearing submission, and reconciliation of the resulting
// account state.
type ActivationService struct {
	sessions  *SessionService
	snapshots *SnapshotService
	referrals store.ReferralStore
	fee       *big.Int
	logger    *zap.Logger
}

// NewActivationService creates a new activation service. fee is the fixed
// activation fee in base units of the native currency.
func NewActivationService(sessions *SessionService, snapshots *SnapshotService, referrals store.ReferralStore, fee *big.Int) *ActivationService {
	return &ActivationService{
		sessions:  sessions,
		snapshots: snapshots,
		referrals: referrals,
		fee:       fee,
		logger:    logger.Log,
	}
}

// Activate submits the activation transaction for the connected account.
// With no session bound there is nothing to do and Activate returns
// (nil, nil).
//
// An explicit referrer wins and leaves the pending-referral slot untouched;
// otherwise the slot is consumed (taken and cleared) at resolution time, so
// a retry after a failed attempt proceeds without a referrer unless the
// caller supplies one again.
func (s *ActivationService) Activate(ctx context.Context, explicitReferrer string) (*ActivationResult, error) {
	sess, ok := s.sessions.Current()
	if !ok {
		return nil, nil
	}

	referrer := explicitReferrer
	if referrer == "" {
		taken, found, err := s.referrals.Take(ctx)
		if err != nil {
			s.logger.Warn("Failed to read pending referral", zap.Error(err))
		} else if found {
			referrer = taken
		}
	}

	if referrer != "" && !common.IsHexAddress(referrer) {
		s.logger.Error("Activation rejected, malformed referrer",
			zap.String("referrer", referrer))
		return nil, fmt.Errorf("%w: %w: malformed referrer address %q",
			ErrActivationFailed, ErrContractRejected, referrer)
	}

	var (
		tx  *types.Transaction
		err error
	)
	if referrer != "" {
		tx, err = sess.Contract.ActivateAccountWithReferrer(ctx, common.HexToAddress(referrer), s.fee)
	} else {
		tx, err = sess.Contract.ActivateAccount(ctx, s.fee)
	}
	if err != nil {
		s.logger.Error("Activation transaction failed",
			zap.String("account", sess.Account.Hex()),
			zap.String("referrer", referrer),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrActivationFailed, err)
	}

	// Optimistic: local state flips active on acceptance, without waiting
	// for confirmation.
	s.sessions.SetActive(sess.ID, true)

	s.logger.Info("Activation submitted",
		zap.String("account", sess.Account.Hex()),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("referrer", referrer))

	return &ActivationResult{
		TxHash:   tx.Hash().Hex(),
		Referrer: referrer,
		Snapshot: s.snapshots.Read(ctx, sess.Contract, sess.Account),
	}, nil
}
