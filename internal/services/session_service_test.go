package services_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/refgraph/refgraph-api/internal/logger"
	"github.com/refgraph/refgraph-api/internal/mocks"
	"github.com/refgraph/refgraph-api/internal/services"
	"github.com/refgraph/refgraph-api/internal/wallet"
)

func init() {
	// Initialize logger for tests
	logger.InitLogger()
}

var (
	testAccount  = common.HexToAddress("0x9999999999999999999999999999999999999999")
	otherAccount = common.HexToAddress("0x8888888888888888888888888888888888888888")
	testChainID  = big.NewInt(56)
)

// expectConnect wires the happy-path provider and binder calls for a single
// connect attempt.
func expectConnect(provider *mocks.MockProvider, binder *mocks.MockBinder, contract *mocks.MockActivator, active bool) {
	provider.EXPECT().RequestAccounts(gomock.Any()).Return([]common.Address{testAccount}, nil)
	provider.EXPECT().ChainID(gomock.Any()).Return(testChainID, nil)
	provider.EXPECT().Signer(gomock.Any(), testAccount, testChainID).Return(&bind.TransactOpts{From: testAccount}, nil)
	binder.EXPECT().Bind(gomock.Any()).Return(contract, nil)
	contract.EXPECT().IsAccountActive(gomock.Any(), testAccount).Return(active, nil)
}

func TestSessionService_Connect(t *testing.T) {
	tests := []struct {
		name        string
		noProvider  bool
		mockSetup   func(provider *mocks.MockProvider, binder *mocks.MockBinder, contract *mocks.MockActivator, sessions *mocks.MockSessionStore)
		wantErr     error
		wantActive  bool
		wantConnect bool
	}{
		{
			name:       "fails without a wallet provider",
			noProvider: true,
			wantErr:    services.ErrProviderUnavailable,
		},
		{
			name: "successfully connects and reads activation flag",
			mockSetup: func(provider *mocks.MockProvider, binder *mocks.MockBinder, contract *mocks.MockActivator, sessions *mocks.MockSessionStore) {
				expectConnect(provider, binder, contract, true)
				sessions.EXPECT().MarkConnected(gomock.Any()).Return(nil)
			},
			wantActive:  true,
			wantConnect: true,
		},
		{
			name: "account request rejection clears the session",
			mockSetup: func(provider *mocks.MockProvider, binder *mocks.MockBinder, contract *mocks.MockActivator, sessions *mocks.MockSessionStore) {
				provider.EXPECT().RequestAccounts(gomock.Any()).Return(nil, errors.New("user rejected request"))
			},
			wantErr: services.ErrConnectionRejected,
		},
		{
			name: "empty account list is a rejection",
			mockSetup: func(provider *mocks.MockProvider, binder *mocks.MockBinder, contract *mocks.MockActivator, sessions *mocks.MockSessionStore) {
				provider.EXPECT().RequestAccounts(gomock.Any()).Return([]common.Address{}, nil)
			},
			wantErr: services.ErrConnectionRejected,
		},
		{
			name: "network read failure is a rejection",
			mockSetup: func(provider *mocks.MockProvider, binder *mocks.MockBinder, contract *mocks.MockActivator, sessions *mocks.MockSessionStore) {
				provider.EXPECT().RequestAccounts(gomock.Any()).Return([]common.Address{testAccount}, nil)
				provider.EXPECT().ChainID(gomock.Any()).Return(nil, errors.New("rpc down"))
			},
			wantErr: services.ErrConnectionRejected,
		},
		{
			name: "advisory activation read failure degrades to inactive",
			mockSetup: func(provider *mocks.MockProvider, binder *mocks.MockBinder, contract *mocks.MockActivator, sessions *mocks.MockSessionStore) {
				provider.EXPECT().RequestAccounts(gomock.Any()).Return([]common.Address{testAccount}, nil)
				provider.EXPECT().ChainID(gomock.Any()).Return(testChainID, nil)
				provider.EXPECT().Signer(gomock.Any(), testAccount, testChainID).Return(&bind.TransactOpts{From: testAccount}, nil)
				binder.EXPECT().Bind(gomock.Any()).Return(contract, nil)
				contract.EXPECT().IsAccountActive(gomock.Any(), testAccount).Return(false, errors.New("read reverted"))
				sessions.EXPECT().MarkConnected(gomock.Any()).Return(nil)
			},
			wantActive:  false,
			wantConnect: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			binder := mocks.NewMockBinder(ctrl)
			contract := mocks.NewMockActivator(ctrl)
			sessions := mocks.NewMockSessionStore(ctrl)

			var provider wallet.Provider
			mockProvider := mocks.NewMockProvider(ctrl)
			if !tt.noProvider {
				provider = mockProvider
			}
			if tt.mockSetup != nil {
				tt.mockSetup(mockProvider, binder, contract, sessions)
			}

			svc := services.NewSessionService(provider, binder, sessions)
			sess, err := svc.Connect(context.Background())

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				_, connected := svc.Current()
				assert.False(t, connected)
				return
			}

			require.NoError(t, err)
			assert.True(t, sess.Connected())
			assert.Equal(t, testAccount, sess.Account)
			assert.Equal(t, testChainID, sess.ChainID)
			assert.Equal(t, tt.wantActive, sess.IsActive)

			current, connected := svc.Current()
			assert.Equal(t, tt.wantConnect, connected)
			// Contract handle present iff account present.
			assert.Equal(t, current.Account != (common.Address{}), current.Contract != nil)
		})
	}
}

func TestSessionService_ConnectThenDisconnect(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	provider := mocks.NewMockProvider(ctrl)
	binder := mocks.NewMockBinder(ctrl)
	contract := mocks.NewMockActivator(ctrl)
	sessions := mocks.NewMockSessionStore(ctrl)

	expectConnect(provider, binder, contract, true)
	sessions.EXPECT().MarkConnected(gomock.Any()).Return(nil)
	sessions.EXPECT().ClearConnected(gomock.Any()).Return(nil)

	svc := services.NewSessionService(provider, binder, sessions)
	_, err := svc.Connect(context.Background())
	require.NoError(t, err)

	svc.Disconnect(context.Background())

	sess, connected := svc.Current()
	assert.False(t, connected)
	assert.Equal(t, services.Session{}, sess)
}

func TestSessionService_DisconnectIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sessions := mocks.NewMockSessionStore(ctrl)
	sessions.EXPECT().ClearConnected(gomock.Any()).Return(nil).Times(2)

	svc := services.NewSessionService(nil, nil, sessions)
	svc.Disconnect(context.Background())
	svc.Disconnect(context.Background())

	_, connected := svc.Current()
	assert.False(t, connected)
}

func TestSessionService_ConcurrentConnectsCoalesce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	provider := mocks.NewMockProvider(ctrl)
	binder := mocks.NewMockBinder(ctrl)
	contract := mocks.NewMockActivator(ctrl)
	sessions := mocks.NewMockSessionStore(ctrl)

	release := make(chan struct{})
	provider.EXPECT().RequestAccounts(gomock.Any()).DoAndReturn(
		func(context.Context) ([]common.Address, error) {
			<-release
			return []common.Address{testAccount}, nil
		}).Times(1)
	provider.EXPECT().ChainID(gomock.Any()).Return(testChainID, nil)
	provider.EXPECT().Signer(gomock.Any(), testAccount, testChainID).Return(&bind.TransactOpts{From: testAccount}, nil)
	binder.EXPECT().Bind(gomock.Any()).Return(contract, nil)
	contract.EXPECT().IsAccountActive(gomock.Any(), testAccount).Return(false, nil)
	sessions.EXPECT().MarkConnected(gomock.Any()).Return(nil)

	svc := services.NewSessionService(provider, binder, sessions)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Connect(context.Background())
			assert.NoError(t, err)
		}()
	}

	// Let both calls reach the manager boundary before the provider answers.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	_, connected := svc.Current()
	assert.True(t, connected)
}

func TestSessionService_SupersededConnectIsDiscarded(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	provider := mocks.NewMockProvider(ctrl)
	binder := mocks.NewMockBinder(ctrl)
	contract := mocks.NewMockActivator(ctrl)
	sessions := mocks.NewMockSessionStore(ctrl)

	entered := make(chan struct{})
	release := make(chan struct{})
	provider.EXPECT().RequestAccounts(gomock.Any()).DoAndReturn(
		func(context.Context) ([]common.Address, error) {
			close(entered)
			<-release
			return []common.Address{testAccount}, nil
		})
	provider.EXPECT().ChainID(gomock.Any()).Return(testChainID, nil)
	provider.EXPECT().Signer(gomock.Any(), testAccount, testChainID).Return(&bind.TransactOpts{From: testAccount}, nil)
	binder.EXPECT().Bind(gomock.Any()).Return(contract, nil)
	contract.EXPECT().IsAccountActive(gomock.Any(), testAccount).Return(true, nil)
	// Disconnect while the connect is suspended.
	sessions.EXPECT().ClearConnected(gomock.Any()).Return(nil)

	svc := services.NewSessionService(provider, binder, sessions)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sess, err := svc.Connect(context.Background())
		assert.NoError(t, err)
		// The disconnect superseded the connect; its result is discarded.
		assert.False(t, sess.Connected())
	}()

	<-entered
	svc.Disconnect(context.Background())
	close(release)
	<-done

	_, connected := svc.Current()
	assert.False(t, connected)
}

func TestSessionService_Restore(t *testing.T) {
	t.Run("restores a previously active session", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		provider := mocks.NewMockProvider(ctrl)
		binder := mocks.NewMockBinder(ctrl)
		contract := mocks.NewMockActivator(ctrl)
		sessions := mocks.NewMockSessionStore(ctrl)

		sessions.EXPECT().WasConnected(gomock.Any()).Return(true, nil)
		expectConnect(provider, binder, contract, true)
		sessions.EXPECT().MarkConnected(gomock.Any()).Return(nil)

		svc := services.NewSessionService(provider, binder, sessions)
		svc.Restore(context.Background())

		sess, connected := svc.Current()
		require.True(t, connected)
		assert.True(t, sess.IsActive)
	})

	t.Run("failed silent restore clears the marker", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		provider := mocks.NewMockProvider(ctrl)
		sessions := mocks.NewMockSessionStore(ctrl)

		sessions.EXPECT().WasConnected(gomock.Any()).Return(true, nil)
		provider.EXPECT().RequestAccounts(gomock.Any()).Return(nil, errors.New("locked"))
		sessions.EXPECT().ClearConnected(gomock.Any()).Return(nil)

		svc := services.NewSessionService(provider, nil, sessions)
		svc.Restore(context.Background())

		_, connected := svc.Current()
		assert.False(t, connected)
	})

	t.Run("no marker means no connect attempt", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		provider := mocks.NewMockProvider(ctrl)
		sessions := mocks.NewMockSessionStore(ctrl)
		sessions.EXPECT().WasConnected(gomock.Any()).Return(false, nil)

		svc := services.NewSessionService(provider, nil, sessions)
		svc.Restore(context.Background())

		_, connected := svc.Current()
		assert.False(t, connected)
	})
}

func TestSessionService_AccountsChangedEvents(t *testing.T) {
	t.Run("empty account list acts as a disconnect", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		provider := mocks.NewMockProvider(ctrl)
		binder := mocks.NewMockBinder(ctrl)
		contract := mocks.NewMockActivator(ctrl)
		sessions := mocks.NewMockSessionStore(ctrl)

		events := make(chan wallet.Event)
		provider.EXPECT().Events().Return((<-chan wallet.Event)(events)).AnyTimes()
		expectConnect(provider, binder, contract, true)
		sessions.EXPECT().MarkConnected(gomock.Any()).Return(nil)
		sessions.EXPECT().ClearConnected(gomock.Any()).Return(nil)

		svc := services.NewSessionService(provider, binder, sessions)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		svc.Start(ctx)

		_, err := svc.Connect(ctx)
		require.NoError(t, err)

		events <- wallet.AccountsChangedEvent{}

		require.Eventually(t, func() bool {
			sess, connected := svc.Current()
			return !connected && sess == services.Session{}
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("new primary account rebinds the contract handle", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		provider := mocks.NewMockProvider(ctrl)
		binder := mocks.NewMockBinder(ctrl)
		contract := mocks.NewMockActivator(ctrl)
		rebound := mocks.NewMockActivator(ctrl)
		sessions := mocks.NewMockSessionStore(ctrl)

		events := make(chan wallet.Event)
		provider.EXPECT().Events().Return((<-chan wallet.Event)(events)).AnyTimes()
		expectConnect(provider, binder, contract, true)
		sessions.EXPECT().MarkConnected(gomock.Any()).Return(nil)

		provider.EXPECT().Signer(gomock.Any(), otherAccount, testChainID).Return(&bind.TransactOpts{From: otherAccount}, nil)
		binder.EXPECT().Bind(gomock.Any()).Return(rebound, nil)
		rebound.EXPECT().IsAccountActive(gomock.Any(), otherAccount).Return(false, nil)

		svc := services.NewSessionService(provider, binder, sessions)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		svc.Start(ctx)

		_, err := svc.Connect(ctx)
		require.NoError(t, err)

		events <- wallet.AccountsChangedEvent{Accounts: []common.Address{otherAccount}}

		require.Eventually(t, func() bool {
			sess, connected := svc.Current()
			return connected && sess.Account == otherAccount && !sess.IsActive
		}, time.Second, 10*time.Millisecond)
	})
}

func TestSessionService_ChainChangedEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	provider := mocks.NewMockProvider(ctrl)
	binder := mocks.NewMockBinder(ctrl)
	contract := mocks.NewMockActivator(ctrl)
	rebound := mocks.NewMockActivator(ctrl)
	sessions := mocks.NewMockSessionStore(ctrl)

	newChain := big.NewInt(97)
	events := make(chan wallet.Event)
	provider.EXPECT().Events().Return((<-chan wallet.Event)(events)).AnyTimes()
	expectConnect(provider, binder, contract, true)
	sessions.EXPECT().MarkConnected(gomock.Any()).Return(nil)

	provider.EXPECT().Signer(gomock.Any(), testAccount, newChain).Return(&bind.TransactOpts{From: testAccount}, nil)
	binder.EXPECT().Bind(gomock.Any()).Return(rebound, nil)
	rebound.EXPECT().IsAccountActive(gomock.Any(), testAccount).Return(false, nil)

	svc := services.NewSessionService(provider, binder, sessions)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	before, err := svc.Connect(ctx)
	require.NoError(t, err)

	events <- wallet.ChainChangedEvent{ChainID: newChain}

	require.Eventually(t, func() bool {
		sess, connected := svc.Current()
		// The chain switch recreates the session wholesale: new identity,
		// new chain, new handle.
		return connected && sess.ChainID.Cmp(newChain) == 0 && sess.ID != before.ID
	}, time.Second, 10*time.Millisecond)
}
