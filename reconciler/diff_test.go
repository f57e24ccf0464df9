package reconciler

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/access-control-sync/roles"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		observed bool
		desired  bool
		want     bool
	}{
		{name: "grant missing role", observed: false, desired: true, want: true},
		{name: "grant held role", observed: true, desired: true, want: false},
		{name: "revoke held role", observed: true, desired: false, want: true},
		{name: "revoke missing role", observed: false, desired: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Diff(tt.observed, tt.desired))
		})
	}
}

func TestEffectiveSiblings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		kind      roles.ContractKind
		requested []roles.Role
		want      []uint64
	}{
		{
			name:      "transmitter adds own chain",
			kind:      roles.TransmitManager,
			requested: []roles.Role{roles.Transmitter},
			want:      []uint64{1, 2, 3},
		},
		{
			name:      "transmit manager without explicit transmitter",
			kind:      roles.TransmitManager,
			requested: []roles.Role{roles.FeesUpdater},
			want:      []uint64{1, 3},
		},
		{
			name: "transmit manager with all roles implied",
			kind: roles.TransmitManager,
			want: []uint64{1, 3},
		},
		{
			name:      "other kinds never include own chain",
			kind:      roles.FastSwitchboard,
			requested: []roles.Role{roles.Transmitter},
			want:      []uint64{1, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			siblings := []uint64{1, 3}
			got := EffectiveSiblings(tt.kind, tt.requested, 2, siblings)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, []uint64{1, 3}, siblings, "input must not be modified")
		})
	}
}

func TestPendingChanges(t *testing.T) {
	t.Parallel()

	target := contractTarget{
		name:    "FastSwitchboard",
		kind:    roles.FastSwitchboard,
		address: common.HexToAddress("0x1234"),
	}
	observations := []Observation{
		{Grantee: alice, Role: roles.Rescue, Desired: true, HasRole: true},
		{Grantee: alice, Role: roles.Watcher, Scope: arbSepoliaScope, Sibling: arbSepolia, Desired: true},
		{Grantee: bob, Role: roles.Trip, Desired: false, HasRole: true},
		{Grantee: bob, Role: roles.Untrip, Desired: false, Err: assert.AnError},
	}

	changes := pendingChanges(sepolia, target, observations)
	require.Len(t, changes, 2)

	assert.Equal(t, PendingChange{
		ChainSelector: sepolia,
		Contract:      "FastSwitchboard",
		Kind:          roles.FastSwitchboard,
		Address:       target.address,
		Role:          roles.Watcher,
		RoleID:        roles.ScopedID(roles.Watcher, arbSepoliaScope),
		Scope:         arbSepoliaScope,
		Sibling:       arbSepolia,
		Grantee:       alice,
		Status:        Grant,
	}, changes[0])

	assert.Equal(t, roles.Trip, changes[1].Role)
	assert.Equal(t, Revoke, changes[1].Status)
	assert.Equal(t, roles.ID(roles.Trip), changes[1].RoleID)
}
