package evm

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	chainsel "github.com/smartcontractkit/chain-selectors"

	chaincommon "github.com/smartcontractkit/access-control-sync/chain/internal/common"
)

// ConfirmFunc is a function that takes a transaction, waits for the transaction to be confirmed,
// and returns the block number and an error.
type ConfirmFunc func(tx *types.Transaction) (uint64, error)

// OnchainClient is an EVM chain client.
// The geth binding interfaces cover reads (eth_call, code) and writes (send, receipts).
// TransactionByHash is needed to tell a pending transaction from a dropped one.
type OnchainClient interface {
	bind.ContractBackend
	bind.DeployBackend

	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
}

// Chain represents an EVM chain.
type Chain struct {
	Selector uint64

	Client OnchainClient
	// DeployerKey signs role transactions when the sender is an externally owned account.
	DeployerKey *bind.TransactOpts
	Confirm     ConfirmFunc
}

// ChainSelector returns the chain selector of the chain
func (c Chain) ChainSelector() uint64 {
	return c.Selector
}

// String returns chain name and selector "<name> (<selector>)"
func (c Chain) String() string {
	return chaincommon.ChainMetadata{Selector: c.Selector}.String()
}

// Name returns the name of the chain
func (c Chain) Name() string {
	return chaincommon.ChainMetadata{Selector: c.Selector}.Name()
}

// Family returns the family of the chain
func (c Chain) Family() string {
	return chaincommon.ChainMetadata{Selector: c.Selector}.Family()
}

// NetworkType returns whether the chain is a mainnet or a testnet.
func (c Chain) NetworkType() (chainsel.NetworkType, error) {
	return chaincommon.ChainMetadata{Selector: c.Selector}.NetworkType()
}

// ChainScope returns the uint32 value contracts use to scope roles to this chain.
func (c Chain) ChainScope() (uint32, error) {
	return chaincommon.ChainMetadata{Selector: c.Selector}.ChainScope()
}
