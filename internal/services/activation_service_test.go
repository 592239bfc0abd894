package services_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/refgraph/refgraph-api/internal/config"
	"github.com/refgraph/refgraph-api/internal/mocks"
	"github.com/refgraph/refgraph-api/internal/services"
)

var (
	testFee      = big.NewInt(100000000000000000) // 0.1 in 18-decimal base units
	testReferrer = "0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa"
	testTx       = types.NewTx(&types.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000, Value: testFee})
)

// connectedFixture builds a session service bound to a mock contract and
// returns it together with the activation service under test.
func connectedFixture(t *testing.T, ctrl *gomock.Controller, contract *mocks.MockActivator, referrals *mocks.MockReferralStore) (*services.SessionService, *services.ActivationService) {
	t.Helper()

	provider := mocks.NewMockProvider(ctrl)
	binder := mocks.NewMockBinder(ctrl)
	sessions := mocks.NewMockSessionStore(ctrl)

	provider.EXPECT().RequestAccounts(gomock.Any()).Return([]common.Address{testAccount}, nil)
	provider.EXPECT().ChainID(gomock.Any()).Return(testChainID, nil)
	provider.EXPECT().Signer(gomock.Any(), testAccount, testChainID).Return(&bind.TransactOpts{From: testAccount}, nil)
	binder.EXPECT().Bind(gomock.Any()).Return(contract, nil)
	contract.EXPECT().IsAccountActive(gomock.Any(), testAccount).Return(false, nil)
	sessions.EXPECT().MarkConnected(gomock.Any()).Return(nil)

	sessionSvc := services.NewSessionService(provider, binder, sessions)
	_, err := sessionSvc.Connect(context.Background())
	require.NoError(t, err)

	snapshotSvc := services.NewSnapshotService(config.NativeCurrency{Name: "BNB", Symbol: "BNB", Decimals: 18})
	activationSvc := services.NewActivationService(sessionSvc, snapshotSvc, referrals, testFee)
	return sessionSvc, activationSvc
}

// expectSnapshot wires the post-activation snapshot recomputation.
func expectSnapshot(contract *mocks.MockActivator) {
	contract.EXPECT().GetReferrals(gomock.Any(), testAccount).Return([]common.Address{}, nil)
	contract.EXPECT().GetEarnings(gomock.Any(), testAccount).Return(big.NewInt(0), nil)
}

func TestActivationService_NoSessionIsNoOp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sessions := mocks.NewMockSessionStore(ctrl)
	referrals := mocks.NewMockReferralStore(ctrl)

	sessionSvc := services.NewSessionService(nil, nil, sessions)
	snapshotSvc := services.NewSnapshotService(config.NativeCurrency{Symbol: "BNB", Decimals: 18})
	svc := services.NewActivationService(sessionSvc, snapshotSvc, referrals, testFee)

	result, err := svc.Activate(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestActivationService_ConsumesPendingReferral(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	contract := mocks.NewMockActivator(ctrl)
	referrals := mocks.NewMockReferralStore(ctrl)
	sessionSvc, svc := connectedFixture(t, ctrl, contract, referrals)

	referrals.EXPECT().Take(gomock.Any()).Return(testReferrer, true, nil)
	contract.EXPECT().
		ActivateAccountWithReferrer(gomock.Any(), common.HexToAddress(testReferrer), testFee).
		Return(testTx, nil)
	expectSnapshot(contract)

	result, err := svc.Activate(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, testTx.Hash().Hex(), result.TxHash)
	assert.Equal(t, testReferrer, result.Referrer)

	// Active flag flips optimistically, before any confirmation.
	sess, _ := sessionSvc.Current()
	assert.True(t, sess.IsActive)
}

func TestActivationService_NoReferrerPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	contract := mocks.NewMockActivator(ctrl)
	referrals := mocks.NewMockReferralStore(ctrl)
	_, svc := connectedFixture(t, ctrl, contract, referrals)

	referrals.EXPECT().Take(gomock.Any()).Return("", false, nil)
	contract.EXPECT().ActivateAccount(gomock.Any(), testFee).Return(testTx, nil)
	expectSnapshot(contract)

	result, err := svc.Activate(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, result.Referrer)
}

func TestActivationService_ExplicitReferrerLeavesSlotUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	contract := mocks.NewMockActivator(ctrl)
	// No Take expectation: touching the pending slot would fail the test.
	referrals := mocks.NewMockReferralStore(ctrl)
	_, svc := connectedFixture(t, ctrl, contract, referrals)

	explicit := "0xBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBb"
	contract.EXPECT().
		ActivateAccountWithReferrer(gomock.Any(), common.HexToAddress(explicit), testFee).
		Return(testTx, nil)
	expectSnapshot(contract)

	result, err := svc.Activate(context.Background(), explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, result.Referrer)
}

func TestActivationService_FailureLeavesActiveFlagUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	contract := mocks.NewMockActivator(ctrl)
	referrals := mocks.NewMockReferralStore(ctrl)
	sessionSvc, svc := connectedFixture(t, ctrl, contract, referrals)

	// The pending referral is consumed even though the transaction fails.
	referrals.EXPECT().Take(gomock.Any()).Return(testReferrer, true, nil)
	contract.EXPECT().
		ActivateAccountWithReferrer(gomock.Any(), common.HexToAddress(testReferrer), testFee).
		Return(nil, errors.New("execution reverted: insufficient fee"))

	result, err := svc.Activate(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrActivationFailed)
	assert.Contains(t, err.Error(), "insufficient fee")
	assert.Nil(t, result)

	sess, _ := sessionSvc.Current()
	assert.False(t, sess.IsActive)
}

func TestActivationService_RetryAfterFailureHasNoReferrer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	contract := mocks.NewMockActivator(ctrl)
	referrals := mocks.NewMockReferralStore(ctrl)
	_, svc := connectedFixture(t, ctrl, contract, referrals)

	first := referrals.EXPECT().Take(gomock.Any()).Return(testReferrer, true, nil)
	contract.EXPECT().
		ActivateAccountWithReferrer(gomock.Any(), common.HexToAddress(testReferrer), testFee).
		Return(nil, errors.New("nonce too low"))

	// The slot was already consumed, so the retry goes referrer-less.
	referrals.EXPECT().Take(gomock.Any()).Return("", false, nil).After(first)
	contract.EXPECT().ActivateAccount(gomock.Any(), testFee).Return(testTx, nil)
	expectSnapshot(contract)

	_, err := svc.Activate(context.Background(), "")
	require.Error(t, err)

	result, err := svc.Activate(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, result.Referrer)
}

func TestActivationService_MalformedReferrerIsRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	contract := mocks.NewMockActivator(ctrl)
	referrals := mocks.NewMockReferralStore(ctrl)
	sessionSvc, svc := connectedFixture(t, ctrl, contract, referrals)

	referrals.EXPECT().Take(gomock.Any()).Return("not-an-address", true, nil)

	result, err := svc.Activate(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrActivationFailed)
	assert.ErrorIs(t, err, services.ErrContractRejected)
	assert.Nil(t, result)

	sess, _ := sessionSvc.Current()
	assert.False(t, sess.IsActive)
}
