package roles

// Classification tells how a role change is encoded.
type Classification int

const (
	// Batchable changes go through grantBatchRole / revokeBatchRole.
	Batchable Classification = iota
	// Bespoke changes use a dedicated entry point of the contract.
	Bespoke
)

func (c Classification) String() string {
	if c == Bespoke {
		return "bespoke"
	}

	return "batchable"
}

// BespokeRoute names the contract functions that grant and revoke one role. Both take
// (uint32 siblingChainScope, address grantee).
type BespokeRoute struct {
	Grant  string
	Revoke string
}

// BespokeRoutes maps (kind, role) pairs to their dedicated entry points.
type BespokeRoutes map[ContractKind]map[Role]BespokeRoute

// DefaultBespokeRoutes is the exception table of the fleet. Fast switchboards track watcher
// counts per sibling, so WATCHER changes must go through the watcher functions.
var DefaultBespokeRoutes = BespokeRoutes{
	FastSwitchboard: {
		Watcher: {Grant: "grantWatcherRole", Revoke: "revokeWatcherRole"},
	},
}

// Route returns the bespoke route of (kind, role) if there is one.
func (b BespokeRoutes) Route(kind ContractKind, role Role) (BespokeRoute, bool) {
	route, ok := b[kind][role]
	return route, ok
}

// Classify returns Bespoke for pairs listed in the table and Batchable otherwise.
func (b BespokeRoutes) Classify(kind ContractKind, role Role) Classification {
	if _, ok := b.Route(kind, role); ok {
		return Bespoke
	}

	return Batchable
}
