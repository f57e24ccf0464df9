package network

import (
	"errors"

	chainsel "github.com/smartcontractkit/chain-selectors"
)

// NetworkType represents the type of network, which can either be mainnet or testnet.
type NetworkType string

const (
	NetworkTypeMainnet NetworkType = "mainnet"
	NetworkTypeTestnet NetworkType = "testnet"
)

// Network represents a network configuration.
type Network struct {
	Type          NetworkType `yaml:"type"`
	ChainSelector uint64      `yaml:"chain_selector"`
	RPCs          []RPC       `yaml:"rpcs"`
}

// ChainFamily returns the family of the network based on its chain selector.
func (n *Network) ChainFamily() (string, error) {
	return chainsel.GetSelectorFamily(n.ChainSelector)
}

// ChainID returns the chain ID as a string based on the chain selector.
func (n *Network) ChainID() (string, error) {
	return chainsel.GetChainIDFromSelector(n.ChainSelector)
}

// Validate validates the network configuration to ensure that all required fields are set.
func (n *Network) Validate() error {
	if n.Type == "" {
		return errors.New("type is required")
	}

	if n.ChainSelector == 0 {
		return errors.New("chain selector is required")
	}

	if len(n.RPCs) == 0 {
		return errors.New("at least one RPC is required")
	}

	return nil
}

// Endpoints returns the preferred endpoint of every RPC, in configuration order. Empty
// endpoints are skipped.
func (n *Network) Endpoints() []string {
	endpoints := make([]string, 0, len(n.RPCs))
	for _, rpc := range n.RPCs {
		if e := rpc.PreferredEndpoint(); e != "" {
			endpoints = append(endpoints, e)
		}
	}

	return endpoints
}

// RPC represents an RPC configuration in the flattened structure
type RPC struct {
	RPCName            string `yaml:"rpc_name"`
	PreferredURLScheme string `yaml:"preferred_url_scheme"`
	HTTPURL            string `yaml:"http_url"`
	WSURL              string `yaml:"ws_url"`
}

// PreferredEndpoint returns the correct endpoint based on the preferred URL scheme. By default, it
// returns the HTTP URL.
func (rpc *RPC) PreferredEndpoint() string {
	if rpc.PreferredURLScheme == "ws" {
		return rpc.WSURL
	}

	return rpc.HTTPURL
}
