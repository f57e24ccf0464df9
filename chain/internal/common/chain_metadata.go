package common //nolint:revive // var-naming: This is an internal package for common code that is shared between chains.

import (
	"fmt"
	"math"
	"strconv"

	chainsel "github.com/smartcontractkit/chain-selectors"
)

// ChainMetadata resolves registry information about a chain from its selector.
type ChainMetadata struct {
	Selector uint64
}

// ChainSelector returns the chain selector of the chain
func (c ChainMetadata) ChainSelector() uint64 {
	return c.Selector
}

// String returns chain name and selector "<name> (<selector>)"
func (c ChainMetadata) String() string {
	details, err := c.details()
	if err != nil {
		return ""
	}

	return fmt.Sprintf("%s (%d)", details.ChainName, details.ChainSelector)
}

// Name returns the name of the chain, or the selector when the registry has no name for it.
func (c ChainMetadata) Name() string {
	details, err := c.details()
	if err != nil {
		return ""
	}
	if details.ChainName == "" {
		return strconv.FormatUint(c.Selector, 10)
	}

	return details.ChainName
}

// Family returns the family of the chain
func (c ChainMetadata) Family() string {
	family, err := chainsel.GetSelectorFamily(c.Selector)
	if err != nil {
		return ""
	}

	return family
}

// NetworkType returns whether the chain is a mainnet or a testnet.
func (c ChainMetadata) NetworkType() (chainsel.NetworkType, error) {
	return chainsel.GetNetworkType(c.Selector)
}

// ChainID returns the numeric chain id registered for the selector.
func (c ChainMetadata) ChainID() (uint64, error) {
	id, err := chainsel.GetChainIDFromSelector(c.Selector)
	if err != nil {
		return 0, err
	}

	chainID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chain id %q of selector %d is not numeric: %w", id, c.Selector, err)
	}

	return chainID, nil
}

// ChainScope returns the value contracts use to scope a role to this chain (its "slug"), which
// is the EVM chain id narrowed to uint32.
func (c ChainMetadata) ChainScope() (uint32, error) {
	chainID, err := c.ChainID()
	if err != nil {
		return 0, err
	}
	if chainID == 0 || chainID > math.MaxUint32 {
		return 0, fmt.Errorf("chain id %d of selector %d does not fit a uint32 chain scope", chainID, c.Selector)
	}

	return uint32(chainID), nil
}

func (c ChainMetadata) details() (chainsel.ChainDetails, error) {
	id, err := chainsel.GetChainIDFromSelector(c.Selector)
	if err != nil {
		return chainsel.ChainDetails{}, err
	}
	family, err := chainsel.GetSelectorFamily(c.Selector)
	if err != nil {
		return chainsel.ChainDetails{}, err
	}

	return chainsel.GetChainDetailsByChainIDAndFamily(id, family)
}
