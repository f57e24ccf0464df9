package reconciler

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/access-control-sync/roles"
)

var batchContract = common.HexToAddress("0x00000000000000000000000000000000000000f5")

func change(kind roles.ContractKind, role roles.Role, scope uint32, grantee common.Address, status Status) PendingChange {
	return PendingChange{
		ChainSelector: sepolia,
		Contract:      kind.String(),
		Kind:          kind,
		Address:       batchContract,
		Role:          role,
		RoleID:        roles.ScopedID(role, scope),
		Scope:         scope,
		Grantee:       grantee,
		Status:        status,
	}
}

func TestBuildBatch(t *testing.T) {
	t.Parallel()

	t.Run("empty input builds nothing", func(t *testing.T) {
		t.Parallel()

		call, err := BuildBatch(nil, Grant)
		require.NoError(t, err)
		assert.Nil(t, call)
	})

	t.Run("packs every change into one call", func(t *testing.T) {
		t.Parallel()

		changes := []PendingChange{
			change(roles.FastSwitchboard, roles.Trip, 0, alice, Revoke),
			change(roles.FastSwitchboard, roles.Trip, arbSepoliaScope, bob, Revoke),
		}
		call, err := BuildBatch(changes, Revoke)
		require.NoError(t, err)
		require.NotNil(t, call)

		assert.Equal(t, sepolia, call.ChainSelector)
		assert.Equal(t, batchContract, call.To)
		assert.Equal(t, "FastSwitchboard", call.ContractKind)
		assert.Equal(t, "revoke 2 role(s) on FastSwitchboard", call.Description)
		assert.Equal(t, []string{"TRIP", "TRIP"}, call.Tags)

		method, ids, slugs, grantees := decodeBatch(t, call.Data)
		assert.Equal(t, methodRevokeBatchRole, method)
		assert.Equal(t, [][32]byte{roles.ID(roles.Trip), roles.ID(roles.Trip)}, ids)
		assert.Equal(t, []uint32{0, arbSepoliaScope}, slugs)
		assert.Equal(t, []common.Address{alice, bob}, grantees)
	})

	t.Run("rejects mixed statuses", func(t *testing.T) {
		t.Parallel()

		_, err := BuildBatch([]PendingChange{
			change(roles.Socket, roles.Rescue, 0, alice, Grant),
			change(roles.Socket, roles.Governance, 0, alice, Revoke),
		}, Grant)
		require.ErrorContains(t, err, "has status revoke, batch is grant")
	})

	t.Run("rejects changes of another contract", func(t *testing.T) {
		t.Parallel()

		other := change(roles.Socket, roles.Governance, 0, alice, Grant)
		other.Address = common.HexToAddress("0x01")
		_, err := BuildBatch([]PendingChange{change(roles.Socket, roles.Rescue, 0, alice, Grant), other}, Grant)
		require.ErrorContains(t, err, "batch targets")
	})
}

func TestBatcher_Plan(t *testing.T) {
	t.Parallel()

	changes := []PendingChange{
		change(roles.FastSwitchboard, roles.Watcher, arbSepoliaScope, bob, Revoke),
		change(roles.FastSwitchboard, roles.Rescue, 0, alice, Grant),
		change(roles.FastSwitchboard, roles.Trip, arbSepoliaScope, bob, Revoke),
		change(roles.FastSwitchboard, roles.Watcher, arbSepoliaScope, alice, Grant),
		change(roles.FastSwitchboard, roles.Governance, 0, alice, Grant),
	}

	calls, err := NewBatcher(roles.DefaultBespokeRoutes).Plan(changes)
	require.NoError(t, err)
	require.Len(t, calls, 4)

	method, ids, _, _ := decodeBatch(t, calls[0].Data)
	assert.Equal(t, methodGrantBatchRole, method)
	assert.Equal(t, [][32]byte{roles.ID(roles.Rescue), roles.ID(roles.Governance)}, ids)

	method, ids, _, _ = decodeBatch(t, calls[1].Data)
	assert.Equal(t, methodRevokeBatchRole, method)
	assert.Equal(t, [][32]byte{roles.ID(roles.Trip)}, ids)

	for i, want := range []struct {
		method  string
		grantee common.Address
	}{{"revokeWatcherRole", bob}, {"grantWatcherRole", alice}} {
		call := calls[2+i]
		m, err := accessControl.MethodById(call.Data[:4])
		require.NoError(t, err)
		assert.Equal(t, want.method, m.Name)

		args, err := m.Inputs.Unpack(call.Data[4:])
		require.NoError(t, err)
		assert.Equal(t, arbSepoliaScope, args[0])
		assert.Equal(t, want.grantee, args[1])
		assert.Equal(t, []string{"WATCHER"}, call.Tags)
	}
}

func TestBatcher_Classify(t *testing.T) {
	t.Parallel()

	b := NewBatcher(roles.DefaultBespokeRoutes)
	assert.Equal(t, roles.Bespoke, b.Classify(change(roles.FastSwitchboard, roles.Watcher, 1, alice, Grant)))
	assert.Equal(t, roles.Batchable, b.Classify(change(roles.OptimisticSwitchboard, roles.Watcher, 1, alice, Grant)))
	assert.Equal(t, roles.Batchable, b.Classify(change(roles.ExecutionManager, roles.Rescue, 0, alice, Grant)))

	// without routes every change is batched
	calls, err := NewBatcher(nil).Plan([]PendingChange{change(roles.FastSwitchboard, roles.Watcher, 1, alice, Grant)})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	method, _, slugs, _ := decodeBatch(t, calls[0].Data)
	assert.Equal(t, methodGrantBatchRole, method)
	assert.Equal(t, []uint32{1}, slugs)
}
