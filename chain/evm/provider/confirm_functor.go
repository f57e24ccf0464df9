package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/smartcontractkit/access-control-sync/chain/evm"
)

const defaultPollInterval = time.Second

// ErrTxReverted is returned for a role transaction that was mined but reverted.
var ErrTxReverted = errors.New("transaction reverted")

// ConfirmFunctor builds the confirmation function of one chain.
type ConfirmFunctor interface {
	Generate(ctx context.Context, selector uint64, client evm.OnchainClient, from common.Address) (evm.ConfirmFunc, error)
}

type receiptConfirmer struct {
	timeout      time.Duration
	pollInterval time.Duration
}

// ReceiptConfirmer returns a ConfirmFunctor that polls the node for the receipt of each
// transaction until timeout. Reverted transactions are replayed to recover the revert reason.
func ReceiptConfirmer(timeout time.Duration, opts ...func(*receiptConfirmer)) ConfirmFunctor {
	c := &receiptConfirmer{timeout: timeout, pollInterval: defaultPollInterval}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithPollInterval sets how often the receipt is requested.
func WithPollInterval(interval time.Duration) func(*receiptConfirmer) {
	return func(c *receiptConfirmer) {
		c.pollInterval = interval
	}
}

func (c *receiptConfirmer) Generate(
	ctx context.Context, selector uint64, client evm.OnchainClient, from common.Address,
) (evm.ConfirmFunc, error) {
	if client == nil {
		return nil, fmt.Errorf("selector %d: client is required", selector)
	}

	return func(tx *types.Transaction) (uint64, error) {
		if tx == nil {
			return 0, fmt.Errorf("selector %d: tx was nil, nothing to confirm", selector)
		}

		waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		receipt, err := WaitMinedWithInterval(waitCtx, c.pollInterval, client, tx.Hash())
		if err != nil {
			return 0, fmt.Errorf("tx %s on selector %d was not mined: %w", tx.Hash().Hex(), selector, err)
		}

		block := receipt.BlockNumber.Uint64()
		if receipt.Status == types.ReceiptStatusSuccessful {
			return block, nil
		}

		reason, err := getErrorReasonFromTx(waitCtx, client, from, tx, receipt)
		if err != nil || reason == "" {
			reason = "reason unknown"
		}

		return block, fmt.Errorf("tx %s on selector %d: %w: %s", tx.Hash().Hex(), selector, ErrTxReverted, reason)
	}, nil
}

// WaitMinedWithInterval requests the receipt of txHash every interval until the node returns it
// or ctx is done.
func WaitMinedWithInterval(
	ctx context.Context, interval time.Duration, b bind.DeployBackend, txHash common.Hash,
) (*types.Receipt, error) {
	receipt, err := retry.DoWithData(
		func() (*types.Receipt, error) {
			r, err := b.TransactionReceipt(ctx, txHash)
			if err == nil && r == nil {
				return nil, errors.New("empty receipt")
			}

			return r, err
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, err
	}

	return receipt, nil
}
