package network

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// manifest is the layout of a network file.
type manifest struct {
	Networks []Network `yaml:"networks"`
}

// Config is the set of networks the tool may connect to, keyed by chain selector. A selector
// listed in several files keeps the entry of the last file.
type Config struct {
	networks map[uint64]Network
}

// NewConfig builds a config from networks. Later entries win on duplicate selectors.
func NewConfig(networks []Network) *Config {
	c := &Config{networks: make(map[uint64]Network, len(networks))}
	c.add(networks)

	return c
}

func (c *Config) add(networks []Network) {
	for _, n := range networks {
		c.networks[n.ChainSelector] = n
	}
}

// Validate checks every network.
func (c *Config) Validate() error {
	for _, n := range c.Networks() {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("network %d: %w", n.ChainSelector, err)
		}
	}

	return nil
}

// Networks returns the networks ordered by chain selector.
func (c *Config) Networks() []Network {
	networks := make([]Network, 0, len(c.networks))
	for _, selector := range c.ChainSelectors() {
		networks = append(networks, c.networks[selector])
	}

	return networks
}

// NetworkBySelector returns the network of selector.
func (c *Config) NetworkBySelector(selector uint64) (Network, error) {
	n, ok := c.networks[selector]
	if !ok {
		return Network{}, fmt.Errorf("network with selector %d not found in configuration", selector)
	}

	return n, nil
}

// ChainSelectors returns the configured selectors in ascending order.
func (c *Config) ChainSelectors() []uint64 {
	return slices.Sorted(maps.Keys(c.networks))
}

// RPCs returns the preferred endpoints of every network keyed by chain selector. Networks
// without endpoints are left out.
func (c *Config) RPCs() map[uint64][]string {
	rpcs := make(map[uint64][]string, len(c.networks))
	for selector, n := range c.networks {
		if endpoints := n.Endpoints(); len(endpoints) > 0 {
			rpcs[selector] = endpoints
		}
	}

	return rpcs
}

// UnmarshalYAML decodes a network file.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var m manifest
	if err := value.Decode(&m); err != nil {
		return err
	}
	*c = *NewConfig(m.Networks)

	return nil
}

// NetworkFilter reports whether a network is kept.
type NetworkFilter func(Network) bool

// FilterWith returns the networks accepted by every filter.
func (c *Config) FilterWith(filters ...NetworkFilter) *Config {
	kept := slices.DeleteFunc(c.Networks(), func(n Network) bool {
		return slices.ContainsFunc(filters, func(keep NetworkFilter) bool { return !keep(n) })
	})

	return NewConfig(kept)
}

// TypesFilter keeps networks of the given types.
func TypesFilter(types ...NetworkType) NetworkFilter {
	return func(n Network) bool {
		return slices.Contains(types, n.Type)
	}
}

// ChainFamilyFilter keeps networks whose selector belongs to family. Unknown selectors are dropped.
func ChainFamilyFilter(family string) NetworkFilter {
	return func(n Network) bool {
		f, err := n.ChainFamily()

		return err == nil && f == family
	}
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	rewriteURL func(string) string
}

// WithURLTransformer rewrites the HTTP and websocket URLs of every RPC after loading, for
// example to expand API keys kept in environment variables.
func WithURLTransformer(fn func(string) string) LoadOption {
	return func(o *loadOptions) {
		o.rewriteURL = fn
	}
}

// Load reads the network files in order and validates the merged result.
func Load(filePaths []string, opts ...LoadOption) (*Config, error) {
	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := NewConfig(nil)
	for _, fp := range filePaths {
		data, err := os.ReadFile(fp)
		if err != nil {
			return nil, fmt.Errorf("failed to read networks file: %w", err)
		}

		var m manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal networks YAML %s: %w", fp, err)
		}
		cfg.add(m.Networks)
	}

	if o.rewriteURL != nil {
		for selector, n := range cfg.networks {
			rpcs := slices.Clone(n.RPCs)
			for i := range rpcs {
				rpcs[i].HTTPURL = o.rewriteURL(rpcs[i].HTTPURL)
				rpcs[i].WSURL = o.rewriteURL(rpcs[i].WSURL)
			}
			n.RPCs = rpcs
			cfg.networks[selector] = n
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate networks configuration: %w", err)
	}

	return cfg, nil
}
