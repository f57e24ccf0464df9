package reconciler

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/smartcontractkit/access-control-sync/roles"
)

var ErrInvalidRequest = errors.New("invalid reconciliation request")

// Status is the desired state of a role: granted or revoked.
type Status int

const (
	Grant Status = iota + 1
	Revoke
)

func (s Status) String() string {
	switch s {
	case Grant:
		return "grant"
	case Revoke:
		return "revoke"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Desired returns whether the role should be held.
func (s Status) Desired() bool {
	return s == Grant
}

func (s Status) valid() bool {
	return s == Grant || s == Revoke
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}

	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "grant":
		*s = Grant
	case "revoke":
		*s = Revoke
	default:
		return fmt.Errorf("invalid status %q", text)
	}

	return nil
}

// Assignment declares the roles a grantee should hold, or not hold, on the request's contract.
type Assignment struct {
	Grantee common.Address
	// Roles to reconcile. Empty means every role the catalog lists for the contract kind.
	Roles []roles.Role
	// Status overrides the request status for this grantee when set.
	Status Status
}

// Request is one reconciliation of a contract kind across chains.
type Request struct {
	ContractKind roles.ContractKind
	Assignments  []Assignment
	// ChainFilter limits the run to these chains. Empty means every connected chain.
	ChainFilter []uint64
	// SiblingFilter limits chain-scoped roles to these siblings. Empty means every sibling.
	SiblingFilter []uint64
	Status        Status
	// Apply submits the corrective calls. Without it the run only reads and diffs.
	Apply bool
}

// desiredRole is one (grantee, role) pair of a validated request.
type desiredRole struct {
	Grantee common.Address
	Role    roles.Role
	Desired bool
}

// plan is a validated request, expanded to individual roles.
type plan struct {
	kind     roles.ContractKind
	catalog  roles.Requirements
	desired  []desiredRole
	explicit []roles.Role
	chains   []uint64
	siblings []uint64
	apply    bool
}

// connectedChains is the view of the chain collection the request is validated against.
type connectedChains interface {
	Exists(selector uint64) bool
	ListChainSelectors() []uint64
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// resolve validates the request and expands it. Every error wraps ErrInvalidRequest.
func (r Request) resolve(chains connectedChains, hasSender bool) (*plan, error) {
	if !r.ContractKind.Valid() {
		return nil, invalid("unknown contract kind %d", int(r.ContractKind))
	}
	if !r.Status.valid() {
		return nil, invalid("status must be grant or revoke")
	}
	if len(r.Assignments) == 0 {
		return nil, invalid("no assignments")
	}
	if r.Apply && !hasSender {
		return nil, invalid("apply requires a sender")
	}

	catalog := roles.Required(r.ContractKind)
	p := &plan{kind: r.ContractKind, catalog: catalog, apply: r.Apply}

	type key struct {
		grantee common.Address
		role    roles.Role
	}
	seen := make(map[key]bool)

	for i, a := range r.Assignments {
		if a.Grantee == (common.Address{}) {
			return nil, invalid("assignment %d: zero grantee", i)
		}
		status := r.Status
		if a.Status != 0 {
			if !a.Status.valid() {
				return nil, invalid("assignment %d: status must be grant or revoke", i)
			}
			status = a.Status
		}

		wanted := a.Roles
		if len(wanted) == 0 {
			wanted = catalog.Roles()
		}
		for _, role := range a.Roles {
			if !slices.Contains(p.explicit, role) {
				p.explicit = append(p.explicit, role)
			}
		}

		for _, role := range wanted {
			if !catalog.Has(role) {
				return nil, invalid("role %s is not defined for %s", role, r.ContractKind)
			}

			k := key{grantee: a.Grantee, role: role}
			if prev, ok := seen[k]; ok {
				if prev != status.Desired() {
					return nil, invalid("conflicting grant and revoke of %s for %s", role, a.Grantee.Hex())
				}

				continue
			}
			seen[k] = status.Desired()
			p.desired = append(p.desired, desiredRole{Grantee: a.Grantee, Role: role, Desired: status.Desired()})
		}
	}

	for _, selector := range r.ChainFilter {
		if _, err := chainsel.GetChainIDFromSelector(selector); err != nil {
			return nil, invalid("unknown chain selector %d", selector)
		}
		if !chains.Exists(selector) {
			return nil, invalid("no connection configured for chain %d", selector)
		}
	}
	for _, selector := range r.SiblingFilter {
		if _, err := chainsel.GetChainIDFromSelector(selector); err != nil {
			return nil, invalid("unknown sibling chain selector %d", selector)
		}
	}

	p.chains = uniqueSorted(r.ChainFilter)
	if len(p.chains) == 0 {
		p.chains = chains.ListChainSelectors()
	}
	p.siblings = uniqueSorted(r.SiblingFilter)

	return p, nil
}

func uniqueSorted(in []uint64) []uint64 {
	out := slices.Clone(in)
	slices.Sort(out)

	return slices.Compact(out)
}
