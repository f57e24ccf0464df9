package deployment

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/smartcontractkit/access-control-sync/chain"
	"github.com/smartcontractkit/access-control-sync/operations"
	"github.com/smartcontractkit/access-control-sync/pkg/logger"
)

// Environment is everything a reconciliation run needs from the surrounding deployment: the
// chains it can reach, the addresses recorded for them and the operations bundle that journals
// submitted transactions.
type Environment struct {
	Name              string
	Logger            logger.Logger
	ExistingAddresses *AddressBook
	BlockChains       *chain.BlockChains
	GetContext        func() context.Context
	OperationsBundle  operations.Bundle
}

// NewEnvironment creates a new environment. A nil reporter keeps reports in memory only.
func NewEnvironment(
	name string,
	lggr logger.Logger,
	addressBook *AddressBook,
	blockChains *chain.BlockChains,
	ctx func() context.Context,
	reporter operations.Reporter,
) Environment {
	if reporter == nil {
		reporter = operations.NewMemoryReporter()
	}

	return Environment{
		Name:              name,
		Logger:            lggr,
		ExistingAddresses: addressBook,
		BlockChains:       blockChains,
		GetContext:        ctx,
		OperationsBundle:  operations.NewBundle(ctx, lggr, reporter),
	}
}

// MaybeDataErr appends the revert data of a JSON-RPC error to its message.
func MaybeDataErr(err error) error {
	var d rpc.DataError
	if errors.As(err, &d) {
		return fmt.Errorf("%s: %v", d.Error(), d.ErrorData())
	}

	return err
}
