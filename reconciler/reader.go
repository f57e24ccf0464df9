package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/access-control-sync/roles"
)

// ReadRole asks contract whether grantee holds role. A zero scope reads the global role through
// hasRole, any other scope reads the chain-scoped role through hasRoleWithSlug.
func ReadRole(
	ctx context.Context, client bind.ContractCaller, contract common.Address,
	role roles.Role, scope uint32, grantee common.Address,
) (bool, error) {
	bound := bind.NewBoundContract(contract, accessControl, client, nil, nil)
	opts := &bind.CallOpts{Context: ctx}

	var out []any
	var err error
	if scope == 0 {
		err = bound.Call(opts, &out, methodHasRole, [32]byte(roles.ID(role)), grantee)
	} else {
		err = bound.Call(opts, &out, methodHasRoleWithSlug, [32]byte(roles.ID(role)), scope, grantee)
	}
	if err != nil {
		return false, fmt.Errorf("read %s (scope %d) for %s on %s: %w", role, scope, grantee.Hex(), contract.Hex(), err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("read %s on %s: expected one output, got %d", role, contract.Hex(), len(out))
	}

	has, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("read %s on %s: unexpected output type %T", role, contract.Hex(), out[0])
	}

	return has, nil
}

var errNoCode = errors.New("no contract code at address")

// checkCode returns errNoCode when nothing is deployed at contract.
func checkCode(ctx context.Context, client bind.ContractCaller, contract common.Address) error {
	code, err := client.CodeAt(ctx, contract, nil)
	if err != nil {
		return fmt.Errorf("read code at %s: %w", contract.Hex(), err)
	}
	if len(code) == 0 {
		return fmt.Errorf("%s: %w", contract.Hex(), errNoCode)
	}

	return nil
}
