package provider

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	chainsel "github.com/smartcontractkit/chain-selectors"
	"github.com/stretchr/testify/require"
)

var (
	// simulated.Backend runs with the dev chain id
	simChainID = big.NewInt(1337)

	prefundAmountWei = new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
)

func Test_ReceiptConfirmer_Generate(t *testing.T) {
	t.Parallel()

	adminKey, err := crypto.GenerateKey()
	require.NoError(t, err, "failed to generate admin key")

	adminTransactor, err := bind.NewKeyedTransactorWithChainID(adminKey, simChainID)
	require.NoError(t, err)

	userKey, err := crypto.GenerateKey()
	require.NoError(t, err, "failed to generate user key")

	userTransactor, err := bind.NewKeyedTransactorWithChainID(userKey, simChainID)
	require.NoError(t, err)

	genesis := types.GenesisAlloc{
		adminTransactor.From: {Balance: prefundAmountWei},
	}

	tests := []struct {
		name    string
		giveTx  func(*testing.T, simulated.Client, func()) *types.Transaction
		wantErr string
	}{
		{
			name: "successful confirmation",
			giveTx: func(t *testing.T, client simulated.Client, commit func()) *types.Transaction {
				t.Helper()

				nonce, err := client.PendingNonceAt(t.Context(), adminTransactor.From)
				require.NoError(t, err)

				gasPrice, err := client.SuggestGasPrice(t.Context())
				require.NoError(t, err)

				tx := types.NewTransaction(
					nonce, userTransactor.From, big.NewInt(10000000000000000), 21000, gasPrice, nil,
				)

				signedTx, err := types.SignTx(tx, types.NewCancunSigner(simChainID), adminKey)
				require.NoError(t, err, "failed to sign transaction")

				require.NoError(t, client.SendTransaction(t.Context(), signedTx))
				commit()

				return signedTx
			},
		},
		{
			name: "failed with nil tx",
			giveTx: func(t *testing.T, _ simulated.Client, _ func()) *types.Transaction {
				t.Helper()

				return nil
			},
			wantErr: "tx was nil",
		},
		{
			name: "failed with context deadline exceeded",
			giveTx: func(t *testing.T, client simulated.Client, _ func()) *types.Transaction {
				t.Helper()

				nonce, err := client.PendingNonceAt(t.Context(), adminTransactor.From)
				require.NoError(t, err)

				gasPrice, err := client.SuggestGasPrice(t.Context())
				require.NoError(t, err)

				// never sent, so no receipt ever shows up
				return types.NewTransaction(
					nonce, userTransactor.From, big.NewInt(10000000000000000), 21000, gasPrice, nil,
				)
			},
			wantErr: "context deadline exceeded",
		},
		{
			name: "failed with reverted tx",
			giveTx: func(t *testing.T, client simulated.Client, commit func()) *types.Transaction {
				t.Helper()

				nonce, err := client.PendingNonceAt(t.Context(), adminTransactor.From)
				require.NoError(t, err)

				gasPrice, err := client.SuggestGasPrice(t.Context())
				require.NoError(t, err)

				// init code that reverts straight away: PUSH1 0 PUSH1 0 REVERT
				tx := types.NewContractCreation(nonce, big.NewInt(0), 100000, gasPrice, []byte{0x60, 0x00, 0x60, 0x00, 0xfd})

				signedTx, err := types.SignTx(tx, types.NewCancunSigner(simChainID), adminKey)
				require.NoError(t, err, "failed to sign transaction")

				require.NoError(t, client.SendTransaction(t.Context(), signedTx))
				commit()

				return signedTx
			},
			wantErr: ErrTxReverted.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := simulated.NewBackend(genesis, simulated.WithBlockGasLimit(50000000))
			t.Cleanup(func() { _ = backend.Close() })
			backend.Commit()

			client := backend.Client()
			tx := tt.giveTx(t, client, func() { backend.Commit() })

			functor := ReceiptConfirmer(1*time.Second, WithPollInterval(50*time.Millisecond))
			confirmFunc, err := functor.Generate(
				t.Context(), chainsel.TEST_1000.Selector, client, adminTransactor.From,
			)
			require.NoError(t, err)

			_, err = confirmFunc(tx)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func Test_ReceiptConfirmer_Generate_NilClient(t *testing.T) {
	t.Parallel()

	_, err := ReceiptConfirmer(time.Second).Generate(t.Context(), chainsel.TEST_1000.Selector, nil, common.Address{})
	require.ErrorContains(t, err, "client is required")
}
