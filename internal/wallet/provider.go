package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Event is a push notification from the wallet provider. Exactly two kinds
// exist: account-list changes and chain switches.
type Event interface {
	isWalletEvent()
}

// AccountsChangedEvent reports the provider's current authorized account
// list. An empty list means the wallet revoked access entirely.
type AccountsChangedEvent struct {
	Accounts []common.Address
}

// ChainChangedEvent reports that the provider switched to a different chain.
type ChainChangedEvent struct {
	ChainID *big.Int
}

func (AccountsChangedEvent) isWalletEvent() {}
func (ChainChangedEvent) isWalletEvent()    {}

// Provider is the wallet capability the session manager consumes: account
// access, signing, network identity and change notifications. Implementations
// wrap a node RPC endpoint plus a local key store; tests substitute mocks.
type Provider interface {
	// RequestAccounts asks the wallet for account access and returns the
	// authorized addresses, first entry primary.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// ChainID reports the chain the provider is currently connected to.
	ChainID(ctx context.Context) (*big.Int, error)

	// Signer returns transact options bound to the given account on the
	// given chain.
	Signer(ctx context.Context, account common.Address, chainID *big.Int) (*bind.TransactOpts, error)

	// Backend exposes the RPC backend contract bindings are built on.
	Backend() bind.ContractBackend

	// Events delivers account-changed and chain-changed notifications for
	// the lifetime of the provider.
	Events() <-chan Event

	// Close tears down subscriptions and the RPC connection.
	Close() error
}
