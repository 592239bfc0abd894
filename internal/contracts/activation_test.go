package contracts

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contractAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestNewFactory_ParsesABI(t *testing.T) {
	f, err := NewFactory(contractAddr, nil)
	require.NoError(t, err)

	for _, name := range []string{
		"isAccountActive",
		"activateAccount",
		"activateAccountWithReferrer",
		"getReferrals",
		"getEarnings",
	} {
		_, ok := f.parsed.Methods[name]
		assert.True(t, ok, "expected method %s", name)
	}
	assert.Equal(t, "payable", f.parsed.Methods["activateAccount"].StateMutability)
	assert.Equal(t, "payable", f.parsed.Methods["activateAccountWithReferrer"].StateMutability)
	assert.Equal(t, "view", f.parsed.Methods["isAccountActive"].StateMutability)
}

func TestFactory_Bind(t *testing.T) {
	f, err := NewFactory(contractAddr, nil)
	require.NoError(t, err)

	t.Run("requires a signer", func(t *testing.T) {
		handle, err := f.Bind(nil)
		assert.Error(t, err)
		assert.Nil(t, handle)
	})

	t.Run("returns a signer-bound handle", func(t *testing.T) {
		signer := &bind.TransactOpts{From: common.HexToAddress("0x9999999999999999999999999999999999999999")}
		handle, err := f.Bind(signer)
		require.NoError(t, err)
		require.NotNil(t, handle)

		activation, ok := handle.(*Activation)
		require.True(t, ok)
		assert.Same(t, signer, activation.signer)
	})
}

func TestTransactOpts_CarriesFeeWithoutMutatingSigner(t *testing.T) {
	f, err := NewFactory(contractAddr, nil)
	require.NoError(t, err)

	signer := &bind.TransactOpts{From: common.HexToAddress("0x9999999999999999999999999999999999999999")}
	handle, err := f.Bind(signer)
	require.NoError(t, err)
	activation := handle.(*Activation)

	fee := big.NewInt(100000000000000000)
	opts := activation.transactOpts(context.Background(), fee)

	assert.Equal(t, fee, opts.Value)
	assert.NotNil(t, opts.Context)
	assert.Equal(t, signer.From, opts.From)

	// The session signer itself stays untouched.
	assert.Nil(t, signer.Value)
	assert.Nil(t, signer.Context)
}
