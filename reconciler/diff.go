package reconciler

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/access-control-sync/roles"
)

// Diff reports whether a role whose observed state is observed needs a change to reach desired.
// It is direction agnostic: granting a held role and revoking a missing role are both no-ops.
func Diff(observed, desired bool) bool {
	return observed != desired
}

// EffectiveSiblings returns the sibling set chain-scoped roles are reconciled against.
//
// A transmitter attests for the chain it runs on as well as for its siblings. When kind is
// TransmitManager and the caller explicitly asked for TRANSMITTER, self is added to the
// siblings. Every other kind uses siblings unchanged.
func EffectiveSiblings(kind roles.ContractKind, requested []roles.Role, self uint64, siblings []uint64) []uint64 {
	out := slices.Clone(siblings)
	if kind != roles.TransmitManager || !slices.Contains(requested, roles.Transmitter) {
		return out
	}
	if !slices.Contains(out, self) {
		out = append(out, self)
		slices.Sort(out)
	}

	return out
}

// PendingChange is one role correction on one contract.
type PendingChange struct {
	ChainSelector uint64             `json:"chainSelector"`
	Contract      string             `json:"contract"`
	Kind          roles.ContractKind `json:"kind"`
	Address       common.Address     `json:"address"`
	Role          roles.Role         `json:"role"`
	RoleID        common.Hash        `json:"roleId"`
	// Scope is the chain scope of the role, 0 for global roles.
	Scope   uint32         `json:"scope"`
	Sibling uint64         `json:"sibling,omitempty"`
	Grantee common.Address `json:"grantee"`
	Status  Status         `json:"status"`
}

// pendingChanges returns the corrections needed for observations of one contract. Observations
// that could not be read produce no change.
func pendingChanges(selector uint64, target contractTarget, observations []Observation) []PendingChange {
	var changes []PendingChange
	for _, o := range observations {
		if o.Err != nil || !Diff(o.HasRole, o.Desired) {
			continue
		}

		status := Revoke
		if o.Desired {
			status = Grant
		}
		changes = append(changes, PendingChange{
			ChainSelector: selector,
			Contract:      target.name,
			Kind:          target.kind,
			Address:       target.address,
			Role:          o.Role,
			RoleID:        roles.ScopedID(o.Role, o.Scope),
			Scope:         o.Scope,
			Sibling:       o.Sibling,
			Grantee:       o.Grantee,
			Status:        status,
		})
	}

	return changes
}
