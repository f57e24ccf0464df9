/*
Package chain provides access to the EVM chains a reconciliation runs against.

BlockChains is a collection of evm.Chain keyed by chain selector. It can hold chains that are
already connected (NewBlockChains) or connect to them on first use (NewLazyBlockChains), so a
run scoped to a handful of chains never dials the rest of the fleet.

Siblings derives the set of chains a chain interoperates with: every other chain of the same
network type (mainnet or testnet), optionally narrowed by a filter.
*/
package chain

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/smartcontractkit/access-control-sync/chain/evm"
	"github.com/smartcontractkit/access-control-sync/pkg/logger"
)

var ErrBlockChainNotFound = errors.New("blockchain not found")

// ChainLoader connects to a chain on demand.
type ChainLoader interface {
	Load(ctx context.Context, selector uint64) (evm.Chain, error)
}

// ChainLoaderFunc adapts a function to the ChainLoader interface.
type ChainLoaderFunc func(ctx context.Context, selector uint64) (evm.Chain, error)

// Load calls f.
func (f ChainLoaderFunc) Load(ctx context.Context, selector uint64) (evm.Chain, error) {
	return f(ctx, selector)
}

// BlockChains is a thread-safe collection of EVM chains.
type BlockChains struct {
	mu     sync.RWMutex
	chains map[uint64]evm.Chain

	// lazy loading, nil when every chain was provided up front
	loader    ChainLoader
	supported map[uint64]struct{}
	ctx       context.Context //nolint:containedctx // Context is needed for lazy loading operations
	lggr      logger.Logger
}

// NewBlockChains returns a collection of already connected chains.
func NewBlockChains(chains map[uint64]evm.Chain) *BlockChains {
	copied := make(map[uint64]evm.Chain, len(chains))
	maps.Copy(copied, chains)

	supported := make(map[uint64]struct{}, len(chains))
	for selector := range chains {
		supported[selector] = struct{}{}
	}

	return &BlockChains{
		chains:    copied,
		supported: supported,
	}
}

// NewLazyBlockChains returns a collection that loads each supported selector with loader the
// first time it is requested. Loaded chains are cached; failed loads are not.
func NewLazyBlockChains(
	ctx context.Context, selectors []uint64, loader ChainLoader, lggr logger.Logger,
) *BlockChains {
	supported := make(map[uint64]struct{}, len(selectors))
	for _, s := range selectors {
		supported[s] = struct{}{}
	}

	return &BlockChains{
		chains:    make(map[uint64]evm.Chain),
		loader:    loader,
		supported: supported,
		ctx:       ctx,
		lggr:      lggr,
	}
}

// GetBySelector returns the chain for selector, connecting to it first when loaded lazily.
func (b *BlockChains) GetBySelector(selector uint64) (evm.Chain, error) {
	b.mu.RLock()
	if c, ok := b.chains[selector]; ok {
		b.mu.RUnlock()
		return c, nil
	}
	b.mu.RUnlock()

	if b.loader == nil {
		return evm.Chain{}, fmt.Errorf("chain %d: %w", selector, ErrBlockChainNotFound)
	}
	if _, ok := b.supported[selector]; !ok {
		return evm.Chain{}, fmt.Errorf("chain %d: %w", selector, ErrBlockChainNotFound)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// another goroutine may have loaded it while we waited for the lock
	if c, ok := b.chains[selector]; ok {
		return c, nil
	}

	c, err := b.loader.Load(b.ctx, selector)
	if err != nil {
		b.lggr.Errorw("Failed to load chain", "selector", selector, "error", err)
		return evm.Chain{}, fmt.Errorf("load chain %d: %w", selector, err)
	}
	b.chains[selector] = c

	return c, nil
}

// Exists reports whether the selector is part of the collection, loaded or not.
func (b *BlockChains) Exists(selector uint64) bool {
	_, ok := b.supported[selector]
	return ok
}

// ListChainSelectors returns every selector in the collection in ascending order.
func (b *BlockChains) ListChainSelectors() []uint64 {
	return slices.Sorted(maps.Keys(b.supported))
}
