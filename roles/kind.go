package roles

import (
	"errors"
	"fmt"
	"strings"
)

// ContractKind names one of the fleet contracts under management.
type ContractKind int

const (
	ExecutionManager ContractKind = iota + 1
	TransmitManager
	Socket
	FastSwitchboard
	OptimisticSwitchboard
	NativeSwitchboard
)

// Kinds lists every contract kind in catalog order.
var Kinds = []ContractKind{
	ExecutionManager, TransmitManager, Socket, FastSwitchboard, OptimisticSwitchboard, NativeSwitchboard,
}

var ErrUnknownContractKind = errors.New("unknown contract kind")

var kindNames = map[ContractKind]string{
	ExecutionManager:      "ExecutionManager",
	TransmitManager:       "TransmitManager",
	Socket:                "Socket",
	FastSwitchboard:       "FastSwitchboard",
	OptimisticSwitchboard: "OptimisticSwitchboard",
	NativeSwitchboard:     "NativeSwitchboard",
}

// String returns the name the address book uses for the contract kind.
func (k ContractKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("ContractKind(%d)", int(k))
}

// Valid reports whether k is one of the known kinds.
func (k ContractKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// PerSibling reports whether the contract is deployed once per sibling chain and resolved
// through the address book integrations instead of a single address per chain.
func (k ContractKind) PerSibling() bool {
	return k == NativeSwitchboard
}

// ParseContractKind parses a kind name, ignoring case.
func ParseContractKind(s string) (ContractKind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return k, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownContractKind, s)
}

func (k ContractKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownContractKind, int(k))
	}

	return []byte(k.String()), nil
}

func (k *ContractKind) UnmarshalText(text []byte) error {
	parsed, err := ParseContractKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed

	return nil
}
