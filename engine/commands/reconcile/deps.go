// Package reconcile provides the CLI command that reconciles the access-control roles of a
// contract fleet.
package reconcile

import (
	"context"
	"time"

	"github.com/smartcontractkit/access-control-sync/chain"
	"github.com/smartcontractkit/access-control-sync/chain/evm/provider"
	"github.com/smartcontractkit/access-control-sync/deployment"
	"github.com/smartcontractkit/access-control-sync/engine/config"
	"github.com/smartcontractkit/access-control-sync/pkg/logger"
)

const defaultConfirmTimeout = 3 * time.Minute

// ConfigLoaderFunc loads the network and env configuration.
type ConfigLoaderFunc func(opts config.LoadOptions, lggr logger.Logger) (*config.Config, error)

// AddressBookLoaderFunc loads the address book of the fleet.
type AddressBookLoaderFunc func(path string) (*deployment.AddressBook, error)

// ChainsProviderFunc returns the chains of the loaded configuration.
type ChainsProviderFunc func(ctx context.Context, cfg *config.Config, lggr logger.Logger) (*chain.BlockChains, error)

// defaultChainsProvider dials the configured networks lazily, so only the chains a run touches
// are connected.
func defaultChainsProvider(ctx context.Context, cfg *config.Config, lggr logger.Logger) (*chain.BlockChains, error) {
	timeout := cfg.Env.Reconcile.ConfirmTimeout
	if timeout == 0 {
		timeout = defaultConfirmTimeout
	}

	loader, err := provider.NewRPCChainLoader(provider.RPCChainLoaderConfig{
		RPCs:           cfg.Networks.RPCs(),
		ConfirmFunctor: provider.ReceiptConfirmer(timeout),
		DeployerKey:    cfg.Env.Onchain.EVM.DeployerKey,
		DialAttempts:   cfg.Env.Reconcile.DialAttempts,
		Logger:         lggr,
	})
	if err != nil {
		return nil, err
	}

	return chain.NewLazyBlockChains(ctx, loader.Selectors(), loader, lggr), nil
}

// Deps holds the injectable dependencies of the reconcile command.
// All fields are optional; nil values will use production defaults.
type Deps struct {
	// ConfigLoader loads the configuration.
	// Default: config.Load
	ConfigLoader ConfigLoaderFunc

	// AddressBookLoader loads the address book.
	// Default: deployment.LoadAddressBook
	AddressBookLoader AddressBookLoaderFunc

	// ChainsProvider connects to the configured chains.
	// Default: lazy JSON-RPC connections to the configured networks
	ChainsProvider ChainsProviderFunc
}

// applyDefaults fills in nil dependencies with production defaults.
func (d *Deps) applyDefaults() {
	if d.ConfigLoader == nil {
		d.ConfigLoader = config.Load
	}
	if d.AddressBookLoader == nil {
		d.AddressBookLoader = deployment.LoadAddressBook
	}
	if d.ChainsProvider == nil {
		d.ChainsProvider = defaultChainsProvider
	}
}
