package reconciler

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/access-control-sync/chain"
	"github.com/smartcontractkit/access-control-sync/chain/evm"
	"github.com/smartcontractkit/access-control-sync/roles"
)

func TestRequest_Resolve(t *testing.T) {
	t.Parallel()

	chains := chain.NewBlockChains(map[uint64]evm.Chain{
		sepolia:    {Selector: sepolia},
		arbSepolia: {Selector: arbSepolia},
	})
	valid := func() Request {
		return Request{
			ContractKind: roles.Socket,
			Assignments:  []Assignment{{Grantee: alice}},
			Status:       Grant,
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Request)
		hasSender bool
		wantErr   string
	}{
		{
			name:   "valid",
			mutate: func(*Request) {},
		},
		{
			name:    "unknown contract kind",
			mutate:  func(r *Request) { r.ContractKind = 42 },
			wantErr: "unknown contract kind 42",
		},
		{
			name:    "missing status",
			mutate:  func(r *Request) { r.Status = 0 },
			wantErr: "status must be grant or revoke",
		},
		{
			name:    "no assignments",
			mutate:  func(r *Request) { r.Assignments = nil },
			wantErr: "no assignments",
		},
		{
			name:    "apply without sender",
			mutate:  func(r *Request) { r.Apply = true },
			wantErr: "apply requires a sender",
		},
		{
			name:      "apply with sender",
			mutate:    func(r *Request) { r.Apply = true },
			hasSender: true,
		},
		{
			name:    "zero grantee",
			mutate:  func(r *Request) { r.Assignments = []Assignment{{}} },
			wantErr: "assignment 0: zero grantee",
		},
		{
			name:    "invalid assignment status",
			mutate:  func(r *Request) { r.Assignments[0].Status = 7 },
			wantErr: "assignment 0: status must be grant or revoke",
		},
		{
			name: "role outside the catalog",
			mutate: func(r *Request) {
				r.Assignments[0].Roles = []roles.Role{roles.Watcher}
			},
			wantErr: "role WATCHER is not defined for Socket",
		},
		{
			name: "conflicting grant and revoke",
			mutate: func(r *Request) {
				r.Assignments = append(r.Assignments, Assignment{Grantee: alice, Roles: []roles.Role{roles.Rescue}, Status: Revoke})
			},
			wantErr: "conflicting grant and revoke of RESCUE",
		},
		{
			name: "duplicate assignments merge",
			mutate: func(r *Request) {
				r.Assignments = append(r.Assignments, Assignment{Grantee: alice, Roles: []roles.Role{roles.Rescue}})
			},
		},
		{
			name:    "unknown chain selector",
			mutate:  func(r *Request) { r.ChainFilter = []uint64{1} },
			wantErr: "unknown chain selector 1",
		},
		{
			name:    "chain without connection",
			mutate:  func(r *Request) { r.ChainFilter = []uint64{ethMainnet} },
			wantErr: "no connection configured",
		},
		{
			name:    "unknown sibling selector",
			mutate:  func(r *Request) { r.SiblingFilter = []uint64{1} },
			wantErr: "unknown sibling chain selector 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := valid()
			tt.mutate(&req)

			p, err := req.resolve(chains, tt.hasSender)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrInvalidRequest)
				require.ErrorContains(t, err, tt.wantErr)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, roles.Socket, p.kind)
			assert.Len(t, p.desired, 2)
		})
	}
}

func TestRequest_ResolveExpansion(t *testing.T) {
	t.Parallel()

	chains := chain.NewBlockChains(map[uint64]evm.Chain{
		sepolia:    {Selector: sepolia},
		arbSepolia: {Selector: arbSepolia},
	})

	p, err := Request{
		ContractKind: roles.TransmitManager,
		Assignments: []Assignment{
			{Grantee: alice, Roles: []roles.Role{roles.Transmitter}},
			{Grantee: bob, Status: Revoke},
		},
		ChainFilter:   []uint64{arbSepolia, sepolia, arbSepolia},
		SiblingFilter: []uint64{sepolia},
		Status:        Grant,
	}.resolve(chains, false)
	require.NoError(t, err)

	assert.Equal(t, []roles.Role{roles.Transmitter}, p.explicit)
	assert.Equal(t, uniqueSorted([]uint64{sepolia, arbSepolia}), p.chains)
	assert.Equal(t, []uint64{sepolia}, p.siblings)

	// bob is revoked from every TransmitManager role
	require.Len(t, p.desired, 1+len(roles.Required(roles.TransmitManager).Roles()))
	assert.Equal(t, desiredRole{Grantee: alice, Role: roles.Transmitter, Desired: true}, p.desired[0])
	for _, d := range p.desired[1:] {
		assert.Equal(t, bob, d.Grantee)
		assert.False(t, d.Desired)
	}
}

func TestReconcileAll_RejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	fleet := newTestFleet(t, sepolia)
	r := fleet.reconciler(t)
	req := Request{ContractKind: roles.Socket, Assignments: []Assignment{{Grantee: alice}}, Status: Grant, Apply: true}

	_, err := r.ReconcileAll(t.Context())
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = r.ReconcileAll(t.Context(), req, req)
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.ErrorContains(t, err, "Socket is requested more than once")

	bad := req
	bad.Assignments = []Assignment{{Grantee: common.Address{}}}
	_, err = r.ReconcileAll(t.Context(), req, bad)
	require.ErrorIs(t, err, ErrInvalidRequest)

	assert.Empty(t, fleet.sender.sent())
}

func TestStatus_Text(t *testing.T) {
	t.Parallel()

	var s Status
	require.NoError(t, json.Unmarshal([]byte(`"revoke"`), &s))
	assert.Equal(t, Revoke, s)

	b, err := json.Marshal(Grant)
	require.NoError(t, err)
	assert.JSONEq(t, `"grant"`, string(b))

	require.Error(t, json.Unmarshal([]byte(`"maybe"`), &s))
	_, err = json.Marshal(Status(0))
	require.Error(t, err)
}

func TestReport_JSON(t *testing.T) {
	t.Parallel()

	fleet := newTestFleet(t, sepolia, arbSepolia)
	fleet.deploy(t, sepolia, roles.Socket)
	fleet.clients[sepolia].readErr = assert.AnError

	report, err := fleet.reconciler(t).Reconcile(t.Context(), Request{
		ContractKind: roles.Socket,
		Assignments:  []Assignment{{Grantee: alice, Roles: []roles.Role{roles.Rescue}}},
		Status:       Grant,
	})
	require.NoError(t, err)

	b, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, report.RunID, decoded["runId"])
	assert.Equal(t, []any{"Socket"}, decoded["kinds"])

	chains := decoded["chains"].(map[string]any)
	require.Len(t, chains, 2)
	assert.Contains(t, string(b), `"missing-address"`)
	assert.Contains(t, string(b), assert.AnError.Error())
}
