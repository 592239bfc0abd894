package wallet

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// chainPollInterval is how often the provider re-reads the node's chain id to
// detect chain switches.
const chainPollInterval = 15 * time.Second

// NodeProvider implements Provider against a node RPC endpoint and a local
// encrypted key store. It is the headless equivalent of an injected browser
// wallet: account access comes from the key store, network identity and
// transaction submission from the RPC node.
type NodeProvider struct {
	client     *ethclient.Client
	ks         *keystore.KeyStore
	passphrase string
	logger     *zap.Logger

	events    chan Event
	quit      chan struct{}
	walletSub event.Subscription
	closeOnce sync.Once
}

// NewNodeProvider dials the RPC endpoint and opens the key store directory.
func NewNodeProvider(rpcURL, keystoreDir, passphrase string, log *zap.Logger) (*NodeProvider, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial RPC endpoint")
	}

	p := &NodeProvider{
		client:     client,
		ks:         keystore.NewKeyStore(keystoreDir, keystore.StandardScryptN, keystore.StandardScryptP),
		passphrase: passphrase,
		logger:     log,
		events:     make(chan Event, 16),
		quit:       make(chan struct{}),
	}

	sink := make(chan accounts.WalletEvent, 16)
	p.walletSub = p.ks.Subscribe(sink)
	go p.watch(sink)

	return p, nil
}

// RequestAccounts returns the key store's account list, first entry primary.
func (p *NodeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	accts := p.ks.Accounts()
	if len(accts) == 0 {
		return nil, errors.New("key store holds no accounts")
	}
	addrs := make([]common.Address, len(accts))
	for i, acct := range accts {
		addrs[i] = acct.Address
	}
	return addrs, nil
}

// ChainID reports the chain id of the connected node.
func (p *NodeProvider) ChainID(ctx context.Context) (*big.Int, error) {
	chainID, err := p.client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read chain id")
	}
	return chainID, nil
}

// Signer unlocks the account and returns transact options bound to it.
func (p *NodeProvider) Signer(ctx context.Context, account common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	acct := accounts.Account{Address: account}
	if err := p.ks.Unlock(acct, p.passphrase); err != nil {
		return nil, errors.Wrap(err, "failed to unlock account")
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(p.ks, acct, chainID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build transactor")
	}
	opts.Context = ctx
	return opts, nil
}

// Backend exposes the RPC client for contract bindings.
func (p *NodeProvider) Backend() bind.ContractBackend {
	return p.client
}

// Events delivers account-changed and chain-changed notifications.
func (p *NodeProvider) Events() <-chan Event {
	return p.events
}

// watch fans key store wallet events and chain-id changes into the event
// channel until Close.
func (p *NodeProvider) watch(sink <-chan accounts.WalletEvent) {
	ticker := time.NewTicker(chainPollInterval)
	defer ticker.Stop()

	var lastChainID *big.Int

	for {
		select {
		case <-p.quit:
			return
		case <-sink:
			// Any arrival or drop changes the account list; report the
			// full current list so the consumer sees the same shape an
			// injected wallet would send.
			addrs, err := p.RequestAccounts(context.Background())
			if err != nil {
				addrs = nil
			}
			p.emit(AccountsChangedEvent{Accounts: addrs})
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			chainID, err := p.client.ChainID(ctx)
			cancel()
			if err != nil {
				p.logger.Warn("Chain id poll failed", zap.Error(err))
				continue
			}
			if lastChainID != nil && lastChainID.Cmp(chainID) != 0 {
				p.emit(ChainChangedEvent{ChainID: chainID})
			}
			lastChainID = chainID
		}
	}
}

// emit never blocks the watch loop; a full channel drops the event.
func (p *NodeProvider) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("Dropping wallet event, consumer not keeping up")
	}
}

// Close unsubscribes from wallet events and closes the RPC connection.
func (p *NodeProvider) Close() error {
	p.closeOnce.Do(func() {
		p.walletSub.Unsubscribe()
		close(p.quit)
		p.client.Close()
	})
	return nil
}
