package roles

import "slices"

// Requirements are the roles a contract kind exposes.
type Requirements struct {
	// Global roles apply to the contract as a whole.
	Global []Role
	// ChainScoped roles are held once per sibling chain.
	ChainScoped []Role
}

var catalog = map[ContractKind]Requirements{
	ExecutionManager: {
		Global:      []Role{Rescue, Withdraw, Governance, Executor},
		ChainScoped: []Role{FeesUpdater},
	},
	TransmitManager: {
		Global:      []Role{Rescue, Withdraw, Governance},
		ChainScoped: []Role{Transmitter, FeesUpdater},
	},
	Socket: {
		Global: []Role{Rescue, Governance},
	},
	FastSwitchboard: {
		Global:      []Role{Rescue, Withdraw, Governance, Trip, Untrip},
		ChainScoped: []Role{Trip, Untrip, Watcher, FeesUpdater},
	},
	OptimisticSwitchboard: {
		Global:      []Role{Rescue, Governance, Trip, Untrip},
		ChainScoped: []Role{Trip, Watcher, FeesUpdater},
	},
	NativeSwitchboard: {
		Global: []Role{Rescue, Withdraw, Governance, Trip, Untrip, FeesUpdater},
	},
}

// Required returns the catalog entry for kind. Unknown kinds have no roles. The returned slices
// are copies.
func Required(kind ContractKind) Requirements {
	req := catalog[kind]

	return Requirements{
		Global:      slices.Clone(req.Global),
		ChainScoped: slices.Clone(req.ChainScoped),
	}
}

// Roles returns every distinct role of the requirements, global roles first.
func (r Requirements) Roles() []Role {
	out := slices.Clone(r.Global)
	for _, role := range r.ChainScoped {
		if !slices.Contains(out, role) {
			out = append(out, role)
		}
	}

	return out
}

// Has reports whether role is part of the requirements, global or chain-scoped.
func (r Requirements) Has(role Role) bool {
	return slices.Contains(r.Global, role) || slices.Contains(r.ChainScoped, role)
}

// Filter keeps only the roles listed in want. An empty want keeps everything.
func (r Requirements) Filter(want []Role) Requirements {
	if len(want) == 0 {
		return r
	}

	keep := func(roles []Role) []Role {
		var out []Role
		for _, role := range roles {
			if slices.Contains(want, role) {
				out = append(out, role)
			}
		}

		return out
	}

	return Requirements{Global: keep(r.Global), ChainScoped: keep(r.ChainScoped)}
}
