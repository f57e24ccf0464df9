/*
Package roles holds the closed catalog of access-control roles the fleet contracts expose.

Each ContractKind has a fixed set of global roles and a fixed set of chain-scoped roles, the
latter granted once per sibling chain. Role names map to the bytes32 identifiers the contracts
store with ID and ScopedID.

A few (kind, role) pairs cannot be changed through the generic batch entry points and are
routed to a dedicated function instead. Those pairs live in one table, DefaultBespokeRoutes.
*/
package roles

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Role is the human readable name of an access-control role, without the _ROLE suffix.
type Role string

const (
	Rescue      Role = "RESCUE"
	Governance  Role = "GOVERNANCE"
	Withdraw    Role = "WITHDRAW"
	Watcher     Role = "WATCHER"
	Transmitter Role = "TRANSMITTER"
	FeesUpdater Role = "FEES_UPDATER"
	Trip        Role = "TRIP"
	Untrip      Role = "UNTRIP"
	Executor    Role = "EXECUTOR"
)

// All lists every role known to the catalog.
var All = []Role{Rescue, Governance, Withdraw, Watcher, Transmitter, FeesUpdater, Trip, Untrip, Executor}

var ErrUnknownRole = errors.New("unknown role")

// ParseRole parses a role name. Case and a trailing _ROLE suffix are ignored.
func ParseRole(s string) (Role, error) {
	name := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(s)), "_ROLE")
	for _, r := range All {
		if string(r) == name {
			return r, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) String() string {
	return string(r)
}

// ID returns the on-chain identifier of the role, keccak256("<NAME>_ROLE").
func ID(r Role) common.Hash {
	return crypto.Keccak256Hash([]byte(string(r) + "_ROLE"))
}

var scopedArgs = abi.Arguments{
	{Type: mustType("bytes32")},
	{Type: mustType("uint32")},
}

// ScopedID returns the identifier under which a chain-scoped role is stored,
// keccak256(abi.encode(ID(r), scope)). A zero scope is the global role itself.
func ScopedID(r Role, scope uint32) common.Hash {
	id := ID(r)
	if scope == 0 {
		return id
	}

	packed, err := scopedArgs.Pack([32]byte(id), scope)
	if err != nil {
		// both argument types are fixed above
		panic(err)
	}

	return crypto.Keccak256Hash(packed)
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}

	return typ
}
