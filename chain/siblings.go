package chain

import (
	"fmt"
	"slices"

	chainsel "github.com/smartcontractkit/chain-selectors"
)

// Siblings returns the chains that selector interoperates with: every other chain in universe
// with the same network type. When filter is non-empty only siblings listed in it are kept.
// The result is sorted and never contains selector itself.
func Siblings(selector uint64, universe []uint64, filter []uint64) ([]uint64, error) {
	network, err := chainsel.GetNetworkType(selector)
	if err != nil {
		return nil, fmt.Errorf("network type of chain %d: %w", selector, err)
	}

	siblings := make([]uint64, 0, len(universe))
	for _, candidate := range universe {
		if candidate == selector || slices.Contains(siblings, candidate) {
			continue
		}
		if len(filter) > 0 && !slices.Contains(filter, candidate) {
			continue
		}

		candidateNetwork, err := chainsel.GetNetworkType(candidate)
		if err != nil {
			return nil, fmt.Errorf("network type of chain %d: %w", candidate, err)
		}
		if candidateNetwork != network {
			continue
		}

		siblings = append(siblings, candidate)
	}
	slices.Sort(siblings)

	return siblings, nil
}
