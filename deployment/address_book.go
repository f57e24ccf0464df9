package deployment

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/smartcontractkit/access-control-sync/roles"
)

var (
	ErrInvalidChainSelector = errors.New("invalid chain selector")
	ErrInvalidAddress       = errors.New("invalid address")
	ErrChainNotFound        = errors.New("chain not found")
)

// IntegrationType names how a chain is wired to one of its siblings.
type IntegrationType string

const (
	IntegrationFast         IntegrationType = "FAST"
	IntegrationOptimistic   IntegrationType = "OPTIMISTIC"
	IntegrationNativeBridge IntegrationType = "NATIVE_BRIDGE"
)

// Integration holds the contracts deployed for one (chain, sibling, integration type).
type Integration struct {
	Switchboard common.Address  `json:"switchboard"`
	Capacitor   *common.Address `json:"capacitor,omitempty"`
	Decapacitor *common.Address `json:"decapacitor,omitempty"`
}

// ChainAddresses are the addresses recorded for one chain.
type ChainAddresses struct {
	// Contracts maps a contract name, e.g. "ExecutionManager", to its address.
	Contracts map[string]common.Address `json:"contracts"`
	// Integrations maps a sibling chain selector to its integrations.
	Integrations map[uint64]map[IntegrationType]Integration `json:"integrations,omitempty"`
}

// AddressBook stores contract addresses per chain selector. It is safe for concurrent use.
// Addresses are always kept in EIP55 form.
type AddressBook struct {
	mtx    sync.RWMutex
	chains map[uint64]*ChainAddresses
}

// NewMemoryAddressBook returns an empty address book.
func NewMemoryAddressBook() *AddressBook {
	return &AddressBook{chains: make(map[uint64]*ChainAddresses)}
}

// NewMemoryAddressBookFromMap returns an address book holding a copy of addresses.
func NewMemoryAddressBookFromMap(addresses map[uint64]ChainAddresses) (*AddressBook, error) {
	ab := NewMemoryAddressBook()
	for selector, chain := range addresses {
		for name, addr := range chain.Contracts {
			if err := ab.Save(selector, name, addr); err != nil {
				return nil, err
			}
		}
		for sibling, integrations := range chain.Integrations {
			for typ, integration := range integrations {
				if err := ab.SaveIntegration(selector, sibling, typ, integration); err != nil {
					return nil, err
				}
			}
		}
	}

	return ab, nil
}

func validateChain(selector uint64) error {
	family, err := chainsel.GetSelectorFamily(selector)
	if err != nil {
		return fmt.Errorf("chain selector %d: %w", selector, ErrInvalidChainSelector)
	}
	if family != chainsel.FamilyEVM {
		return fmt.Errorf("chain selector %d is a %s chain, only EVM chains are supported: %w",
			selector, family, ErrInvalidChainSelector)
	}

	return nil
}

func (m *AddressBook) chain(selector uint64) *ChainAddresses {
	c, ok := m.chains[selector]
	if !ok {
		c = &ChainAddresses{Contracts: make(map[string]common.Address)}
		m.chains[selector] = c
	}

	return c
}

// Save records the address of a contract on a chain. It errors if a different address is
// already recorded under the same name.
func (m *AddressBook) Save(selector uint64, name string, address common.Address) error {
	if err := validateChain(selector); err != nil {
		return err
	}
	if address == (common.Address{}) {
		return fmt.Errorf("address for %s cannot be empty: %w", name, ErrInvalidAddress)
	}
	if name == "" {
		return errors.New("contract name cannot be empty")
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	c := m.chain(selector)
	if existing, ok := c.Contracts[name]; ok && existing != address {
		return fmt.Errorf("contract %s already recorded at %s for chain %d", name, existing.Hex(), selector)
	}
	c.Contracts[name] = address

	return nil
}

// SaveIntegration records the contracts wiring selector to sibling.
func (m *AddressBook) SaveIntegration(
	selector, sibling uint64, typ IntegrationType, integration Integration,
) error {
	if err := validateChain(selector); err != nil {
		return err
	}
	if err := validateChain(sibling); err != nil {
		return err
	}
	if integration.Switchboard == (common.Address{}) {
		return fmt.Errorf("switchboard for %s integration with %d cannot be empty: %w",
			typ, sibling, ErrInvalidAddress)
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	c := m.chain(selector)
	if c.Integrations == nil {
		c.Integrations = make(map[uint64]map[IntegrationType]Integration)
	}
	if c.Integrations[sibling] == nil {
		c.Integrations[sibling] = make(map[IntegrationType]Integration)
	}
	c.Integrations[sibling][typ] = integration

	return nil
}

// ContractAddress returns the address of the contract of the given kind on a chain. Per sibling
// kinds are never found here, use IntegrationAddress.
func (m *AddressBook) ContractAddress(selector uint64, kind roles.ContractKind) (common.Address, bool) {
	if kind.PerSibling() {
		return common.Address{}, false
	}

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	c, ok := m.chains[selector]
	if !ok {
		return common.Address{}, false
	}
	addr, ok := c.Contracts[kind.String()]

	return addr, ok
}

// IntegrationAddress returns the switchboard of the given kind deployed on selector for sibling.
func (m *AddressBook) IntegrationAddress(
	selector, sibling uint64, kind roles.ContractKind,
) (common.Address, bool) {
	typ, ok := integrationTypes[kind]
	if !ok {
		return common.Address{}, false
	}

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	c, ok := m.chains[selector]
	if !ok {
		return common.Address{}, false
	}
	integration, ok := c.Integrations[sibling][typ]

	return integration.Switchboard, ok
}

var integrationTypes = map[roles.ContractKind]IntegrationType{
	roles.FastSwitchboard:       IntegrationFast,
	roles.OptimisticSwitchboard: IntegrationOptimistic,
	roles.NativeSwitchboard:     IntegrationNativeBridge,
}

// AddressesForChain returns a copy of the addresses recorded for selector.
func (m *AddressBook) AddressesForChain(selector uint64) (ChainAddresses, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	c, ok := m.chains[selector]
	if !ok {
		return ChainAddresses{}, fmt.Errorf("chain selector %d: %w", selector, ErrChainNotFound)
	}

	return c.clone(), nil
}

// ChainSelectors returns the selectors with recorded addresses in ascending order.
func (m *AddressBook) ChainSelectors() []uint64 {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	return slices.Sorted(maps.Keys(m.chains))
}

// Merge copies every address of other into m. It errors on conflicting contract addresses.
func (m *AddressBook) Merge(other *AddressBook) error {
	other.mtx.RLock()
	snapshot := make(map[uint64]ChainAddresses, len(other.chains))
	for selector, c := range other.chains {
		snapshot[selector] = c.clone()
	}
	other.mtx.RUnlock()

	for selector, c := range snapshot {
		for name, addr := range c.Contracts {
			if err := m.Save(selector, name, addr); err != nil {
				return err
			}
		}
		for sibling, integrations := range c.Integrations {
			for typ, integration := range integrations {
				if err := m.SaveIntegration(selector, sibling, typ, integration); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (c *ChainAddresses) clone() ChainAddresses {
	out := ChainAddresses{Contracts: maps.Clone(c.Contracts)}
	if c.Integrations != nil {
		out.Integrations = make(map[uint64]map[IntegrationType]Integration, len(c.Integrations))
		for sibling, integrations := range c.Integrations {
			out.Integrations[sibling] = maps.Clone(integrations)
		}
	}

	return out
}

// MarshalJSON encodes the book as an object keyed by chain selector.
func (m *AddressBook) MarshalJSON() ([]byte, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	return json.Marshal(m.chains)
}

// UnmarshalJSON replaces the contents of the book, validating every entry.
func (m *AddressBook) UnmarshalJSON(data []byte) error {
	var raw map[uint64]ChainAddresses
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode address book: %w", err)
	}

	ab, err := NewMemoryAddressBookFromMap(raw)
	if err != nil {
		return err
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.chains = ab.chains

	return nil
}

// LoadAddressBook reads a JSON address book from path.
func LoadAddressBook(path string) (*AddressBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read address book %s: %w", path, err)
	}

	ab := NewMemoryAddressBook()
	if err := json.Unmarshal(data, ab); err != nil {
		return nil, fmt.Errorf("address book %s: %w", path, err)
	}

	return ab, nil
}

// Write stores the address book as indented JSON at path.
func (m *AddressBook) Write(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode address book: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write address book %s: %w", path, err)
	}

	return nil
}
