package sender

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/access-control-sync/chain"
	"github.com/smartcontractkit/access-control-sync/deployment"
	"github.com/smartcontractkit/access-control-sync/pkg/logger"
)

// DeployerKeySender sends calls from the deployer key of each chain and waits for them to be
// mined. Calls for one chain must not be sent concurrently, the nonce is taken from the
// pending state.
type DeployerKeySender struct {
	chains *chain.BlockChains
	lggr   logger.Logger
}

var (
	_ Sender    = (*DeployerKeySender)(nil)
	_ TxChecker = (*DeployerKeySender)(nil)
)

func NewDeployerKeySender(chains *chain.BlockChains, lggr logger.Logger) *DeployerKeySender {
	return &DeployerKeySender{chains: chains, lggr: lggr}
}

// Send signs call with the chain's deployer key, sends it and waits for confirmation. A
// reverted or unconfirmed transaction is an error; its hash is still returned in the receipt.
func (s *DeployerKeySender) Send(ctx context.Context, call Call) (Receipt, error) {
	c, err := s.chains.GetBySelector(call.ChainSelector)
	if err != nil {
		return Receipt{}, err
	}
	if c.DeployerKey == nil {
		return Receipt{}, fmt.Errorf("chain %s: %w", c, ErrNoDeployerKey)
	}
	if c.Confirm == nil {
		return Receipt{}, fmt.Errorf("chain %s has no confirm function", c)
	}

	opts := *c.DeployerKey
	opts.Context = ctx

	contract := bind.NewBoundContract(call.To, abi.ABI{}, c.Client, c.Client, c.Client)
	tx, err := contract.RawTransact(&opts, call.Data)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to send %q to %s on %s: %w",
			call.Description, call.To.Hex(), c, deployment.MaybeDataErr(err))
	}

	s.lggr.Infow("Sent role transaction",
		"chain", c.String(), "to", call.To.Hex(), "tx", tx.Hash().Hex(), "description", call.Description,
	)

	block, err := c.Confirm(tx)
	if err != nil {
		return Receipt{TxHash: tx.Hash(), BlockNumber: block}, fmt.Errorf("failed to confirm %q on %s: %w",
			call.Description, c, err)
	}

	return Receipt{TxHash: tx.Hash(), BlockNumber: block}, nil
}

// Pending reports whether the transaction of receipt is still waiting to be mined. Unknown and
// mined transactions, reverted or not, are not pending.
func (s *DeployerKeySender) Pending(ctx context.Context, chainSelector uint64, receipt Receipt) (bool, error) {
	if receipt.Proposed || receipt.TxHash == (common.Hash{}) {
		return false, nil
	}

	c, err := s.chains.GetBySelector(chainSelector)
	if err != nil {
		return false, err
	}

	_, pending, err := c.Client.TransactionByHash(ctx, receipt.TxHash)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up tx %s on %s: %w", receipt.TxHash.Hex(), c, err)
	}

	return pending, nil
}
