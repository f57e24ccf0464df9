package reconciler

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/smartcontractkit/access-control-sync/roles"
	"github.com/smartcontractkit/access-control-sync/sender"
)

// Batcher turns the pending changes of one contract into encoded calls.
type Batcher struct {
	Routes roles.BespokeRoutes
}

// NewBatcher returns a batcher using routes for bespoke roles. Nil routes means no role is
// bespoke.
func NewBatcher(routes roles.BespokeRoutes) Batcher {
	return Batcher{Routes: routes}
}

// Classify returns whether change goes through a batch call or a dedicated entry point.
func (b Batcher) Classify(change PendingChange) roles.Classification {
	return b.Routes.Classify(change.Kind, change.Role)
}

// BuildBatch packs changes into one grantBatchRole or revokeBatchRole call, depending on
// status. Every change must have that status and target the same contract. It returns nil for
// no changes.
func BuildBatch(changes []PendingChange, status Status) (*sender.Call, error) {
	if len(changes) == 0 {
		return nil, nil
	}

	method := methodGrantBatchRole
	if status == Revoke {
		method = methodRevokeBatchRole
	}

	first := changes[0]
	var (
		roleIDs  = make([][32]byte, 0, len(changes))
		slugs    = make([]uint32, 0, len(changes))
		grantees = make([]common.Address, 0, len(changes))
		tags     = make([]string, 0, len(changes))
	)
	for _, c := range changes {
		if c.Status != status {
			return nil, fmt.Errorf("change %s for %s has status %s, batch is %s",
				c.Role, c.Grantee.Hex(), c.Status, status)
		}
		if c.ChainSelector != first.ChainSelector || c.Address != first.Address {
			return nil, fmt.Errorf("change %s for %s targets %s on chain %d, batch targets %s on chain %d",
				c.Role, c.Grantee.Hex(), c.Address.Hex(), c.ChainSelector, first.Address.Hex(), first.ChainSelector)
		}

		roleIDs = append(roleIDs, roles.ID(c.Role))
		slugs = append(slugs, c.Scope)
		grantees = append(grantees, c.Grantee)
		tags = append(tags, c.Role.String())
	}

	data, err := packBatch(method, roleIDs, slugs, grantees)
	if err != nil {
		return nil, err
	}

	return &sender.Call{
		ChainSelector: first.ChainSelector,
		To:            first.Address,
		Data:          hexutil.Bytes(data),
		ContractKind:  first.Kind.String(),
		Description:   fmt.Sprintf("%s %d role(s) on %s", status, len(changes), first.Contract),
		Tags:          tags,
	}, nil
}

// BuildBespoke encodes change as a call to its dedicated entry point.
func BuildBespoke(change PendingChange, route roles.BespokeRoute) (sender.Call, error) {
	method := route.Grant
	if change.Status == Revoke {
		method = route.Revoke
	}

	data, err := packBespoke(method, change.Scope, change.Grantee)
	if err != nil {
		return sender.Call{}, err
	}

	return sender.Call{
		ChainSelector: change.ChainSelector,
		To:            change.Address,
		Data:          hexutil.Bytes(data),
		ContractKind:  change.Kind.String(),
		Description:   fmt.Sprintf("%s %s (scope %d) for %s on %s", change.Status, change.Role, change.Scope, change.Grantee.Hex(), change.Contract),
		Tags:          []string{change.Role.String()},
	}, nil
}

// Plan encodes the changes of one (chain, contract) unit: the grant batch first, then the
// revoke batch, then one call per bespoke change in input order.
func (b Batcher) Plan(changes []PendingChange) ([]sender.Call, error) {
	var grants, revokes, bespoke []PendingChange
	for _, c := range changes {
		switch {
		case b.Classify(c) == roles.Bespoke:
			bespoke = append(bespoke, c)
		case c.Status == Grant:
			grants = append(grants, c)
		default:
			revokes = append(revokes, c)
		}
	}

	var calls []sender.Call
	for _, batch := range []struct {
		changes []PendingChange
		status  Status
	}{{grants, Grant}, {revokes, Revoke}} {
		call, err := BuildBatch(batch.changes, batch.status)
		if err != nil {
			return nil, err
		}
		if call != nil {
			calls = append(calls, *call)
		}
	}

	for _, c := range bespoke {
		route, _ := b.Routes.Route(c.Kind, c.Role)
		call, err := BuildBespoke(c, route)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}

	return calls, nil
}
