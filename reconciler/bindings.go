package reconciler

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// accessControlABI is the slice of the fleet contracts' access-control surface the reconciler
// reads and writes. Every contract kind inherits it; watcher functions exist on fast
// switchboards only.
const accessControlABI = `[
	{"type":"function","name":"hasRole","stateMutability":"view",
	 "inputs":[{"name":"role_","type":"bytes32"},{"name":"grantee_","type":"address"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"hasRoleWithSlug","stateMutability":"view",
	 "inputs":[{"name":"roleName_","type":"bytes32"},{"name":"chainSlug_","type":"uint32"},{"name":"grantee_","type":"address"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"grantBatchRole","stateMutability":"nonpayable",
	 "inputs":[{"name":"roleNames_","type":"bytes32[]"},{"name":"slugs_","type":"uint32[]"},{"name":"grantees_","type":"address[]"}],
	 "outputs":[]},
	{"type":"function","name":"revokeBatchRole","stateMutability":"nonpayable",
	 "inputs":[{"name":"roleNames_","type":"bytes32[]"},{"name":"slugs_","type":"uint32[]"},{"name":"grantees_","type":"address[]"}],
	 "outputs":[]},
	{"type":"function","name":"grantWatcherRole","stateMutability":"nonpayable",
	 "inputs":[{"name":"srcChainSlug_","type":"uint32"},{"name":"watcher_","type":"address"}],
	 "outputs":[]},
	{"type":"function","name":"revokeWatcherRole","stateMutability":"nonpayable",
	 "inputs":[{"name":"srcChainSlug_","type":"uint32"},{"name":"watcher_","type":"address"}],
	 "outputs":[]},
	{"type":"error","name":"NoPermit","inputs":[{"name":"role","type":"bytes32"}]}
]`

const (
	methodHasRole         = "hasRole"
	methodHasRoleWithSlug = "hasRoleWithSlug"
	methodGrantBatchRole  = "grantBatchRole"
	methodRevokeBatchRole = "revokeBatchRole"
)

var accessControl = mustParseABI(accessControlABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid access control ABI: %v", err))
	}

	return parsed
}

func packBatch(method string, roleIDs [][32]byte, slugs []uint32, grantees []common.Address) ([]byte, error) {
	data, err := accessControl.Pack(method, roleIDs, slugs, grantees)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	return data, nil
}

func packBespoke(method string, slug uint32, grantee common.Address) ([]byte, error) {
	data, err := accessControl.Pack(method, slug, grantee)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	return data, nil
}
