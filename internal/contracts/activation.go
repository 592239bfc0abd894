package contracts

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// activationABI is the fixed call interface of the deployed referral
// activation contract.
const activationABI = `[
  {"type":"function","name":"isAccountActive","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"activateAccount","stateMutability":"payable","inputs":[],"outputs":[]},
  {"type":"function","name":"activateAccountWithReferrer","stateMutability":"payable","inputs":[{"name":"referrer","type":"address"}],"outputs":[]},
  {"type":"function","name":"getReferrals","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"getEarnings","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// Activator is the bound contract handle a session carries. It is created per
// session, bound to that session's signer, and replaced wholesale whenever
// the account or chain changes.
type Activator interface {
	IsAccountActive(ctx context.Context, account common.Address) (bool, error)
	ActivateAccount(ctx context.Context, fee *big.Int) (*types.Transaction, error)
	ActivateAccountWithReferrer(ctx context.Context, referrer common.Address, fee *big.Int) (*types.Transaction, error)
	GetReferrals(ctx context.Context, account common.Address) ([]common.Address, error)
	GetEarnings(ctx context.Context, account common.Address) (*big.Int, error)
}

// Binder creates signer-bound contract handles.
type Binder interface {
	Bind(signer *bind.TransactOpts) (Activator, error)
}

// Factory builds Activation handles for a fixed contract address on a fixed
// backend.
type Factory struct {
	address common.Address
	backend bind.ContractBackend
	parsed  abi.ABI
}

// NewFactory parses the activation ABI once and returns a handle factory.
func NewFactory(address common.Address, backend bind.ContractBackend) (*Factory, error) {
	parsed, err := abi.JSON(strings.NewReader(activationABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse activation ABI")
	}
	return &Factory{address: address, backend: backend, parsed: parsed}, nil
}

// Bind returns a contract handle whose transactions are signed by the given
// signer.
func (f *Factory) Bind(signer *bind.TransactOpts) (Activator, error) {
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	return &Activation{
		bound:  bind.NewBoundContract(f.address, f.parsed, f.backend, f.backend, f.backend),
		signer: signer,
	}, nil
}

// Activation is the concrete handle over the deployed contract.
type Activation struct {
	bound  *bind.BoundContract
	signer *bind.TransactOpts
}

// IsAccountActive reads the on-chain activation flag for an account.
func (a *Activation) IsAccountActive(ctx context.Context, account common.Address) (bool, error) {
	var out []interface{}
	if err := a.bound.Call(&bind.CallOpts{Context: ctx}, &out, "isAccountActive", account); err != nil {
		return false, errors.Wrap(err, "isAccountActive call failed")
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// ActivateAccount submits the no-referrer activation transaction carrying the
// fee as its value.
func (a *Activation) ActivateAccount(ctx context.Context, fee *big.Int) (*types.Transaction, error) {
	opts := a.transactOpts(ctx, fee)
	tx, err := a.bound.Transact(opts, "activateAccount")
	if err != nil {
		return nil, errors.Wrap(err, "activateAccount transaction failed")
	}
	return tx, nil
}

// ActivateAccountWithReferrer submits the referrer-bearing activation
// transaction carrying the fee as its value.
func (a *Activation) ActivateAccountWithReferrer(ctx context.Context, referrer common.Address, fee *big.Int) (*types.Transaction, error) {
	opts := a.transactOpts(ctx, fee)
	tx, err := a.bound.Transact(opts, "activateAccountWithReferrer", referrer)
	if err != nil {
		return nil, errors.Wrap(err, "activateAccountWithReferrer transaction failed")
	}
	return tx, nil
}

// GetReferrals reads the contract-ordered list of accounts that named this
// account as their referrer.
func (a *Activation) GetReferrals(ctx context.Context, account common.Address) ([]common.Address, error) {
	var out []interface{}
	if err := a.bound.Call(&bind.CallOpts{Context: ctx}, &out, "getReferrals", account); err != nil {
		return nil, errors.Wrap(err, "getReferrals call failed")
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

// GetEarnings reads the account's accumulated earnings in base units.
func (a *Activation) GetEarnings(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []interface{}
	if err := a.bound.Call(&bind.CallOpts{Context: ctx}, &out, "getEarnings", account); err != nil {
		return nil, errors.Wrap(err, "getEarnings call failed")
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (a *Activation) transactOpts(ctx context.Context, fee *big.Int) *bind.TransactOpts {
	opts := *a.signer
	opts.Context = ctx
	opts.Value = fee
	return &opts
}
