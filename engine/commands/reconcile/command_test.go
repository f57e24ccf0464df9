package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	chainsel "github.com/smartcontractkit/chain-selectors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/access-control-sync/chain"
	"github.com/smartcontractkit/access-control-sync/chain/evm"
	"github.com/smartcontractkit/access-control-sync/deployment"
	"github.com/smartcontractkit/access-control-sync/engine/config"
	config_env "github.com/smartcontractkit/access-control-sync/engine/config/env"
	config_network "github.com/smartcontractkit/access-control-sync/engine/config/network"
	"github.com/smartcontractkit/access-control-sync/pkg/logger"
	"github.com/smartcontractkit/access-control-sync/roles"
)

var (
	sepolia    = chainsel.ETHEREUM_TESTNET_SEPOLIA.Selector
	arbSepolia = chainsel.ETHEREUM_TESTNET_SEPOLIA_ARBITRUM_1.Selector

	socket  = common.HexToAddress("0x00000000000000000000000000000000000050c1")
	grantee = "0x000000000000000000000000000000000000a11c"
)

// emptyRolesClient is a chain where contracts exist but nobody holds any role. Every call
// returns a zero word, which also reads as MCM op count 0.
type emptyRolesClient struct {
	evm.OnchainClient

	code    map[common.Address]bool
	readErr error
}

func (c *emptyRolesClient) CodeAt(_ context.Context, addr common.Address, _ *big.Int) ([]byte, error) {
	if c.code[addr] {
		return []byte{0x60, 0x80}, nil
	}

	return nil, nil
}

func (c *emptyRolesClient) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}

	return make([]byte, 32), nil
}

func testDeps(t *testing.T, mcms config_env.MCMSConfig) Deps {
	t.Helper()

	client := &emptyRolesClient{code: map[common.Address]bool{socket: true}}

	return Deps{
		ConfigLoader: func(opts config.LoadOptions, _ logger.Logger) (*config.Config, error) {
			return &config.Config{
				Networks: config_network.NewConfig(nil),
				Env:      &config_env.Config{MCMS: mcms},
			}, nil
		},
		AddressBookLoader: func(string) (*deployment.AddressBook, error) {
			ab := deployment.NewMemoryAddressBook()
			if err := ab.Save(sepolia, roles.Socket.String(), socket); err != nil {
				return nil, err
			}

			return ab, nil
		},
		ChainsProvider: func(context.Context, *config.Config, logger.Logger) (*chain.BlockChains, error) {
			return chain.NewBlockChains(map[uint64]evm.Chain{
				sepolia:    {Selector: sepolia, Client: client},
				arbSepolia: {Selector: arbSepolia, Client: client},
			}), nil
		},
	}
}

func newTestCommand(t *testing.T, deps Deps) *cobra.Command {
	t.Helper()

	cmd, err := NewCommand(Config{Logger: logger.Test(t), Deps: deps})
	require.NoError(t, err)

	return cmd
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()

	return out.String(), err
}

var baseArgs = []string{"--networks", "networks.yaml", "--address-book", "addresses.json", "--grantee", grantee}

func TestNewCommand_Structure(t *testing.T) {
	t.Parallel()

	_, err := NewCommand(Config{})
	require.ErrorContains(t, err, "missing required fields: Logger")

	cmd := newTestCommand(t, Deps{})
	assert.Equal(t, "reconcile", cmd.Use)
	assert.NotEmpty(t, cmd.Long)
	assert.NotEmpty(t, cmd.Example)

	for _, name := range []string{
		"networks", "network-types", "env-config", "address-book", "contract", "grantee", "roles",
		"chains", "siblings", "revoke", "apply", "fail-on-changes", "journal", "proposal-out", "format", "out",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}

	_, err = execute(cmd, "--contract", "Socket")
	require.ErrorContains(t, err, `required flag(s) "address-book", "grantee", "networks" not set`)
}

func TestReconcile_DryRunTable(t *testing.T) {
	t.Parallel()

	cmd := newTestCommand(t, testDeps(t, config_env.MCMSConfig{}))
	out, err := execute(cmd, append(baseArgs, "--contract", "socket", "--roles", "rescue,GOVERNANCE_ROLE")...)
	require.NoError(t, err)

	assert.Contains(t, out, "(dry run): 2 pending change(s), 0 submission(s)")
	assert.Contains(t, out, "Pending changes")
	assert.Contains(t, out, "RESCUE")
	assert.Contains(t, out, "GOVERNANCE")
	assert.Contains(t, out, socket.Hex())
	// arbitrum sepolia has no socket in the address book
	assert.Contains(t, out, "missing-address")
	assert.NotContains(t, out, "Submissions")
}

func TestReconcile_FailOnChanges(t *testing.T) {
	t.Parallel()

	cmd := newTestCommand(t, testDeps(t, config_env.MCMSConfig{}))
	_, err := execute(cmd, append(baseArgs, "--contract", "Socket", "--fail-on-changes")...)
	require.ErrorContains(t, err, "2 pending change(s)")
}

func TestReconcile_UnreadableRolesFailTheRun(t *testing.T) {
	t.Parallel()

	throttled := &emptyRolesClient{
		code:    map[common.Address]bool{socket: true},
		readErr: errors.New("429 Too Many Requests"),
	}
	deps := testDeps(t, config_env.MCMSConfig{})
	deps.ChainsProvider = func(context.Context, *config.Config, logger.Logger) (*chain.BlockChains, error) {
		return chain.NewBlockChains(map[uint64]evm.Chain{
			sepolia:    {Selector: sepolia, Client: throttled},
			arbSepolia: {Selector: arbSepolia, Client: throttled},
		}), nil
	}

	cmd := newTestCommand(t, deps)
	out, err := execute(cmd, append(baseArgs, "--contract", "Socket", "--fail-on-changes")...)
	require.ErrorIs(t, err, errUnreadRoles)
	require.ErrorContains(t, err, "2 role read(s) failed")

	assert.Contains(t, out, "0 pending change(s), 0 submission(s), 2 unreadable role(s)")
	assert.Contains(t, out, "Unreadable")
	assert.Contains(t, out, "429 Too Many Requests")
}

func TestReconcile_JSONOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.json")
	cmd := newTestCommand(t, testDeps(t, config_env.MCMSConfig{}))
	_, err := execute(cmd, append(baseArgs,
		"--contract", "Socket", "--revoke", "--chains", "16015286601757825753", "--format", "json", "-o", path)...)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var report struct {
		Kinds  []string                   `json:"kinds"`
		Apply  bool                       `json:"apply"`
		Chains map[string]json.RawMessage `json:"chains"`
	}
	require.NoError(t, json.Unmarshal(b, &report))
	assert.Equal(t, []string{"Socket"}, report.Kinds)
	assert.False(t, report.Apply)
	assert.Len(t, report.Chains, 1)
	// nothing is held, so nothing to revoke
	assert.Contains(t, string(b), `"pendingChanges": null`)
}

func TestReconcile_ProposesThroughTimelock(t *testing.T) {
	t.Parallel()

	mcms := config_env.MCMSConfig{
		Timelocks: []config_env.ChainAddress{{ChainSelector: sepolia, Address: "0x00000000000000000000000000000000000000a1"}},
		MCMs:      []config_env.ChainAddress{{ChainSelector: sepolia, Address: "0x00000000000000000000000000000000000000b1"}},
		Delay:     0,
	}
	args := append(slices.Clone(baseArgs), "--contract", "Socket", "--chains", "16015286601757825753", "--apply")

	t.Run("requires an output file", func(t *testing.T) {
		t.Parallel()

		_, err := execute(newTestCommand(t, testDeps(t, mcms)), args...)
		require.ErrorContains(t, err, "--proposal-out is required")
	})

	t.Run("writes the proposal", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "proposal.json")
		out, err := execute(newTestCommand(t, testDeps(t, mcms)), append(slices.Clone(args), "--proposal-out", path)...)
		require.NoError(t, err)
		assert.Contains(t, out, "Wrote timelock proposal with 1 call(s)")
		assert.Contains(t, out, "proposed")

		b, err := os.ReadFile(path)
		require.NoError(t, err)

		var proposal struct {
			Kind              string            `json:"kind"`
			TimelockAddresses map[string]string `json:"timelockAddresses"`
			Operations        []struct {
				Transactions []struct {
					To           string   `json:"to"`
					ContractType string   `json:"contractType"`
					Tags         []string `json:"tags"`
				} `json:"transactions"`
			} `json:"operations"`
		}
		require.NoError(t, json.Unmarshal(b, &proposal))
		assert.Equal(t, "TimelockProposal", proposal.Kind)
		assert.Contains(t, proposal.TimelockAddresses, "16015286601757825753")
		require.Len(t, proposal.Operations, 1)
		require.Len(t, proposal.Operations[0].Transactions, 1)
		assert.True(t, strings.EqualFold(socket.Hex(), proposal.Operations[0].Transactions[0].To))
		assert.Equal(t, "Socket", proposal.Operations[0].Transactions[0].ContractType)
		assert.ElementsMatch(t, []string{"RESCUE", "GOVERNANCE"}, proposal.Operations[0].Transactions[0].Tags)
	})
}

func TestReconcile_InvalidFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown contract", args: []string{"--contract", "Router"}, wantErr: "unknown contract kind"},
		{name: "unknown role", args: []string{"--contract", "Socket", "--roles", "ADMIN"}, wantErr: "unknown role"},
		{name: "role outside catalog", args: []string{"--contract", "Socket", "--roles", "WATCHER"}, wantErr: "invalid reconciliation request"},
		{name: "bad selector", args: []string{"--contract", "Socket", "--chains", "sepolia"}, wantErr: "invalid chain selector"},
		{name: "bad format", args: []string{"--contract", "Socket", "--format", "xml"}, wantErr: `unknown format "xml"`},
		{name: "duplicate contract", args: []string{"--contract", "Socket,socket"}, wantErr: "requested more than once"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := newTestCommand(t, testDeps(t, config_env.MCMSConfig{}))
			_, err := execute(cmd, append(slices.Clone(baseArgs), tt.args...)...)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}

	cmd := newTestCommand(t, testDeps(t, config_env.MCMSConfig{}))
	_, err := execute(cmd, "--networks", "n.yaml", "--address-book", "a.json", "--contract", "Socket", "--grantee", "0x12")
	require.ErrorContains(t, err, `invalid grantee address "0x12"`)
}
