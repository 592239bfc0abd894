package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ethereum/go-ethereum/common"
	"github.com/refgraph/refgraph-api/internal/contracts"
	"github.com/refgraph/refgraph-api/internal/logger"
	"github.com/refgraph/refgraph-api/internal/store"
	"github.com/refgraph/refgraph-api/internal/wallet"
)

// Session is the current wallet/contract binding. The zero value is the
// empty session. Contract is present if and only if Account is present;
// IsActive mirrors the on-chain flag and is stale between reconciliations.
type Session struct {
	ID       uuid.UUID
	Account  common.Address
	ChainID  *big.Int
	Contract contracts.Activator
	IsActive bool
}

// Connected reports whether a wallet is bound.
func (s Session) Connected() bool {
	return s.Contract != nil
}

// SessionService owns the wallet session lifecycle: connect, disconnect,
// silent restore, and reconciliation of provider push notifications. It is
// the single writer of the session state; every asynchronous step captures
// the state epoch before suspending and commits only if no superseding
// transition happened in between.
type SessionService struct {
	provider wallet.Provider
	binder   contracts.Binder
	sessions store.SessionStore
	logger   *zap.Logger

	mu    sync.Mutex
	sess  Session
	epoch uint64

	connects singleflight.Group
}

// NewSessionService creates a new session service. A nil provider models the
// no-wallet-installed case: Connect fails with ErrProviderUnavailable.
func NewSessionService(provider wallet.Provider, binder contracts.Binder, sessions store.SessionStore) *SessionService {
	return &SessionService{
		provider: provider,
		binder:   binder,
		sessions: sessions,
		logger:   logger.Log,
	}
}

// Current returns a copy of the live session and whether a wallet is bound.
func (s *SessionService) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess, s.sess.Connected()
}

// Connect requests account access from the wallet provider and binds the
// session. Concurrent calls are coalesced into a single provider request.
func (s *SessionService) Connect(ctx context.Context) (Session, error) {
	if s.provider == nil {
		return Session{}, ErrProviderUnavailable
	}
	v, err, _ := s.connects.Do("connect", func() (interface{}, error) {
		return s.doConnect(ctx)
	})
	if err != nil {
		return Session{}, err
	}
	return v.(Session), nil
}

func (s *SessionService) doConnect(ctx context.Context) (Session, error) {
	start := s.currentEpoch()

	accounts, err := s.provider.RequestAccounts(ctx)
	if err == nil && len(accounts) == 0 {
		err = errors.New("wallet returned no accounts")
	}
	if err != nil {
		s.clearIfUnchanged(start)
		return Session{}, fmt.Errorf("%w: %v", ErrConnectionRejected, err)
	}
	account := accounts[0]

	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		s.clearIfUnchanged(start)
		return Session{}, fmt.Errorf("%w: %v", ErrConnectionRejected, err)
	}

	handle, err := s.bindContract(ctx, account, chainID)
	if err != nil {
		s.clearIfUnchanged(start)
		return Session{}, fmt.Errorf("%w: %v", ErrConnectionRejected, err)
	}

	sess := Session{
		ID:       uuid.New(),
		Account:  account,
		ChainID:  chainID,
		Contract: handle,
		IsActive: s.readActiveFlag(ctx, handle, account),
	}

	committed, live := s.commit(start, sess)
	if !committed {
		s.logger.Info("Discarding superseded connect result",
			zap.String("account", account.Hex()))
		return live, nil
	}

	if err := s.sessions.MarkConnected(ctx); err != nil {
		s.logger.Warn("Failed to persist session marker", zap.Error(err))
	}

	s.logger.Info("Wallet connected",
		zap.String("account", account.Hex()),
		zap.Uint64("chain_id", chainID.Uint64()),
		zap.Bool("is_active", sess.IsActive))

	return sess, nil
}

// Disconnect resets the session to its empty state. It is idempotent and
// purely local; wallet providers have no programmatic disconnect.
func (s *SessionService) Disconnect(ctx context.Context) {
	s.mu.Lock()
	wasConnected := s.sess.Connected()
	s.sess = Session{}
	s.epoch++
	s.mu.Unlock()

	if err := s.sessions.ClearConnected(ctx); err != nil {
		s.logger.Warn("Failed to clear session marker", zap.Error(err))
	}
	if wasConnected {
		s.logger.Info("Wallet disconnected")
	}
}

// Restore silently reconnects at startup when a prior session was active.
// A failed restore clears the marker and surfaces no error.
func (s *SessionService) Restore(ctx context.Context) {
	was, err := s.sessions.WasConnected(ctx)
	if err != nil {
		s.logger.Warn("Failed to read session marker", zap.Error(err))
		return
	}
	if !was {
		return
	}
	if _, err := s.Connect(ctx); err != nil {
		s.logger.Info("Silent session restore failed", zap.Error(err))
		if err := s.sessions.ClearConnected(ctx); err != nil {
			s.logger.Warn("Failed to clear session marker", zap.Error(err))
		}
	}
}

// Start consumes provider notifications until ctx is done. It is a no-op
// without a provider.
func (s *SessionService) Start(ctx context.Context) {
	if s.provider == nil {
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-s.provider.Events():
				if !ok {
					return
				}
				s.handleEvent(ctx, ev)
			}
		}
	}()
}

func (s *SessionService) handleEvent(ctx context.Context, ev wallet.Event) {
	switch ev := ev.(type) {
	case wallet.AccountsChangedEvent:
		if len(ev.Accounts) == 0 {
			// The wallet revoked access: an external disconnect.
			s.Disconnect(ctx)
			return
		}
		s.switchAccount(ctx, ev.Accounts[0])
	case wallet.ChainChangedEvent:
		s.switchChain(ctx, ev.ChainID)
	}
}

// switchAccount replaces the session's account and rebinds the contract
// handle; the old handle is invalid the moment the wallet reports a new
// primary account.
func (s *SessionService) switchAccount(ctx context.Context, account common.Address) {
	s.mu.Lock()
	if !s.sess.Connected() || s.sess.Account == account {
		s.mu.Unlock()
		return
	}
	start := s.epoch
	chainID := s.sess.ChainID
	s.mu.Unlock()

	handle, err := s.bindContract(ctx, account, chainID)
	if err != nil {
		s.logger.Error("Failed to rebind contract after account change",
			zap.String("account", account.Hex()), zap.Error(err))
		s.Disconnect(ctx)
		return
	}

	sess := Session{
		ID:       uuid.New(),
		Account:  account,
		ChainID:  chainID,
		Contract: handle,
		IsActive: s.readActiveFlag(ctx, handle, account),
	}
	if committed, _ := s.commit(start, sess); committed {
		s.logger.Info("Wallet account changed", zap.String("account", account.Hex()))
	}
}

// switchChain is a hard state boundary: chain id and contract handle are
// recreated wholesale, never patched in place.
func (s *SessionService) switchChain(ctx context.Context, chainID *big.Int) {
	s.mu.Lock()
	if !s.sess.Connected() || chainID == nil {
		s.mu.Unlock()
		return
	}
	start := s.epoch
	account := s.sess.Account
	s.mu.Unlock()

	handle, err := s.bindContract(ctx, account, chainID)
	if err != nil {
		s.logger.Error("Failed to rebind contract after chain change",
			zap.Uint64("chain_id", chainID.Uint64()), zap.Error(err))
		s.Disconnect(ctx)
		return
	}

	sess := Session{
		ID:       uuid.New(),
		Account:  account,
		ChainID:  chainID,
		Contract: handle,
		IsActive: s.readActiveFlag(ctx, handle, account),
	}
	if committed, _ := s.commit(start, sess); committed {
		s.logger.Info("Chain changed, session rebound",
			zap.Uint64("chain_id", chainID.Uint64()))
	}
}

// SetActive updates the activation flag for the identified session. Results
// arriving for a session that is no longer live are discarded.
func (s *SessionService) SetActive(sessionID uuid.UUID, active bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess.ID != sessionID || !s.sess.Connected() {
		return false
	}
	s.sess.IsActive = active
	s.epoch++
	return true
}

func (s *SessionService) bindContract(ctx context.Context, account common.Address, chainID *big.Int) (contracts.Activator, error) {
	signer, err := s.provider.Signer(ctx, account, chainID)
	if err != nil {
		return nil, err
	}
	return s.binder.Bind(signer)
}

// readActiveFlag is advisory: a failed read degrades to inactive rather than
// blocking the connection.
func (s *SessionService) readActiveFlag(ctx context.Context, handle contracts.Activator, account common.Address) bool {
	active, err := handle.IsAccountActive(ctx, account)
	if err != nil {
		s.logger.Warn("Activation status read failed, defaulting to inactive",
			zap.String("account", account.Hex()), zap.Error(err))
		return false
	}
	return active
}

func (s *SessionService) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// commit installs the session if no superseding transition happened since
// the epoch was captured. It returns whether the commit applied and the
// session that is live afterwards.
func (s *SessionService) commit(start uint64, sess Session) (bool, Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != start {
		return false, s.sess
	}
	s.sess = sess
	s.epoch++
	return true, sess
}

// clearIfUnchanged resets the session after a failed connect unless a
// superseding transition already replaced it.
func (s *SessionService) clearIfUnchanged(start uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != start {
		return
	}
	s.sess = Session{}
	s.epoch++
}
