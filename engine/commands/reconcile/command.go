package reconcile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/access-control-sync/deployment"
	"github.com/smartcontractkit/access-control-sync/engine/commands/flags"
	"github.com/smartcontractkit/access-control-sync/engine/commands/text"
	"github.com/smartcontractkit/access-control-sync/engine/config"
	config_env "github.com/smartcontractkit/access-control-sync/engine/config/env"
	config_network "github.com/smartcontractkit/access-control-sync/engine/config/network"
	"github.com/smartcontractkit/access-control-sync/operations"
	"github.com/smartcontractkit/access-control-sync/pkg/logger"
	"github.com/smartcontractkit/access-control-sync/reconciler"
	"github.com/smartcontractkit/access-control-sync/roles"
	"github.com/smartcontractkit/access-control-sync/sender"
)

var (
	reconcileShort = "Reconcile the access-control roles of the contract fleet"

	reconcileLong = text.LongDesc(`
		Reads the roles the grantees hold on every contract of the given kinds, on every
		configured chain, and compares them with the requested state.

		Without --apply the command only reports the pending changes. With --apply the changes
		are sent with the deployer key, or collected into a timelock proposal when MCMS
		timelocks are configured.

		Submitted transactions are journaled in the --journal file. A repeated run does not
		resend calls whose transactions are still pending.
	`)

	reconcileExample = text.Examples(`
		# Audit the roles of a grantee on every socket
		rolesync reconcile --networks networks.yaml --address-book addresses.json --contract Socket --grantee 0xabc...

		# Grant the watcher role on fast switchboards of two chains, towards one sibling
		rolesync reconcile --networks networks.yaml --address-book addresses.json --contract FastSwitchboard \
			--grantee 0xabc... --roles WATCHER --chains 16015286601757825753,3478487238524512106 \
			--siblings 3478487238524512106 --apply --journal journal.json

		# Revoke every role of a grantee through a timelock proposal
		rolesync reconcile --networks networks.yaml --address-book addresses.json --contract ExecutionManager \
			--grantee 0xabc... --revoke --apply --proposal-out proposal.json
	`)
)

// Config holds the configuration of the reconcile command.
type Config struct {
	// Logger is the logger to use for command output. Required.
	Logger logger.Logger

	// Deps holds optional dependencies that can be overridden.
	// If fields are nil, production defaults are used.
	Deps Deps
}

// Validate checks that all required configuration fields are set.
func (c Config) Validate() error {
	if c.Logger == nil {
		return errors.New("reconcile.Config: missing required fields: Logger")
	}

	return nil
}

// deps returns the Deps with defaults applied.
func (c *Config) deps() *Deps {
	c.Deps.applyDefaults()

	return &c.Deps
}

type reconcileFlags struct {
	networks      []string
	networkTypes  []string
	envConfig     string
	addressBook   string
	contracts     []string
	grantees      []string
	roles         []string
	chains        []uint64
	siblings      []uint64
	revoke        bool
	apply         bool
	failOnChanges bool
	journal       string
	proposalOut   string
	format        string
	out           string
}

// NewCommand creates the reconcile command.
func NewCommand(cfg Config) (*cobra.Command, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.deps()

	cmd := &cobra.Command{
		Use:     "reconcile",
		Short:   reconcileShort,
		Long:    reconcileLong,
		Example: reconcileExample,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chains, err := flags.ParseSelectors(cmd.Flags().GetStringSlice("chains"))
			if err != nil {
				return err
			}
			siblings, err := flags.ParseSelectors(cmd.Flags().GetStringSlice("siblings"))
			if err != nil {
				return err
			}

			f := reconcileFlags{
				networks:      flags.MustStringSlice(cmd.Flags().GetStringSlice("networks")),
				networkTypes:  flags.MustStringSlice(cmd.Flags().GetStringSlice("network-types")),
				envConfig:     flags.MustString(cmd.Flags().GetString("env-config")),
				addressBook:   flags.MustString(cmd.Flags().GetString("address-book")),
				contracts:     flags.MustStringSlice(cmd.Flags().GetStringSlice("contract")),
				grantees:      flags.MustStringSlice(cmd.Flags().GetStringSlice("grantee")),
				roles:         flags.MustStringSlice(cmd.Flags().GetStringSlice("roles")),
				chains:        chains,
				siblings:      siblings,
				revoke:        flags.MustBool(cmd.Flags().GetBool("revoke")),
				apply:         flags.MustBool(cmd.Flags().GetBool("apply")),
				failOnChanges: flags.MustBool(cmd.Flags().GetBool("fail-on-changes")),
				journal:       flags.MustString(cmd.Flags().GetString("journal")),
				proposalOut:   flags.MustString(cmd.Flags().GetString("proposal-out")),
				format:        flags.MustString(cmd.Flags().GetString("format")),
				out:           flags.MustString(cmd.Flags().GetString("out")),
			}

			return runReconcile(cmd, cfg, f)
		},
	}

	// Shared flags
	flags.Format(cmd)
	flags.Output(cmd, "")
	flags.Selectors(cmd, "chains", "Chain selectors to reconcile (default: every configured chain)")
	flags.Selectors(cmd, "siblings", "Sibling chain selectors of chain-scoped roles (default: every sibling)")

	// Local flags specific to this command
	cmd.Flags().StringSlice("networks", nil, "Network manifest files (required)")
	cmd.Flags().StringSlice("network-types", nil, "Network types to load: mainnet, testnet (default: all)")
	cmd.Flags().String("env-config", "", "Env config file; env vars override its values")
	cmd.Flags().String("address-book", "", "Address book file (required)")
	cmd.Flags().StringSliceP("contract", "c", nil, "Contract kinds to reconcile (required)")
	cmd.Flags().StringSliceP("grantee", "g", nil, "Grantee addresses (required)")
	cmd.Flags().StringSliceP("roles", "r", nil, "Roles to reconcile (default: every role of the contract kind)")
	cmd.Flags().Bool("revoke", false, "Revoke the roles instead of granting them")
	cmd.Flags().Bool("apply", false, "Submit the corrective transactions")
	cmd.Flags().Bool("fail-on-changes", false, "Exit with an error when changes are pending after the run")
	cmd.Flags().String("journal", "", "Submission journal file, reused across runs")
	cmd.Flags().String("proposal-out", "", "Timelock proposal output file, required with --apply when MCMS is configured")
	_ = cmd.MarkFlagRequired("networks")
	_ = cmd.MarkFlagRequired("address-book")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("grantee")

	return cmd, nil
}

// requests builds one request per contract kind from the flags.
func (f reconcileFlags) requests() ([]reconciler.Request, error) {
	status := reconciler.Grant
	if f.revoke {
		status = reconciler.Revoke
	}

	requested := make([]roles.Role, 0, len(f.roles))
	for _, r := range f.roles {
		role, err := roles.ParseRole(r)
		if err != nil {
			return nil, err
		}
		requested = append(requested, role)
	}

	assignments := make([]reconciler.Assignment, 0, len(f.grantees))
	for _, g := range f.grantees {
		if !common.IsHexAddress(g) {
			return nil, fmt.Errorf("invalid grantee address %q", g)
		}
		assignments = append(assignments, reconciler.Assignment{
			Grantee: common.HexToAddress(g),
			Roles:   requested,
		})
	}

	reqs := make([]reconciler.Request, 0, len(f.contracts))
	for _, c := range f.contracts {
		kind, err := roles.ParseContractKind(c)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, reconciler.Request{
			ContractKind:  kind,
			Assignments:   assignments,
			ChainFilter:   f.chains,
			SiblingFilter: f.siblings,
			Status:        status,
			Apply:         f.apply,
		})
	}

	return reqs, nil
}

func (f reconcileFlags) loadOptions() config.LoadOptions {
	types := make([]config_network.NetworkType, 0, len(f.networkTypes))
	for _, t := range f.networkTypes {
		types = append(types, config_network.NetworkType(strings.ToLower(t)))
	}

	return config.LoadOptions{
		NetworkFiles: f.networks,
		NetworkTypes: types,
		EnvFile:      f.envConfig,
	}
}

// runReconcile executes the reconcile command logic.
func runReconcile(cmd *cobra.Command, cfg Config, f reconcileFlags) error {
	if f.format != formatTable && f.format != formatJSON {
		return fmt.Errorf("unknown format %q, expected %s or %s", f.format, formatTable, formatJSON)
	}
	reqs, err := f.requests()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	deps := cfg.deps()
	lggr := cfg.Logger

	rcfg, err := deps.ConfigLoader(f.loadOptions(), lggr)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if f.apply && rcfg.Env.MCMS.Enabled() && f.proposalOut == "" {
		return errors.New("--proposal-out is required to apply through MCMS timelocks")
	}

	ab, err := deps.AddressBookLoader(f.addressBook)
	if err != nil {
		return fmt.Errorf("failed to load address book: %w", err)
	}

	chains, err := deps.ChainsProvider(ctx, rcfg, lggr)
	if err != nil {
		return fmt.Errorf("failed to set up chains: %w", err)
	}

	var reporter operations.Reporter
	if f.journal != "" {
		if reporter, err = operations.NewFileReporter(f.journal); err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
	}

	env := deployment.NewEnvironment("rolesync", lggr, ab, chains, cmd.Context, reporter)

	opts := []reconciler.Option{reconciler.WithMaxConcurrentReads(rcfg.Env.Reconcile.MaxConcurrentReads)}
	var proposer *sender.TimelockProposalSender
	if f.apply {
		s, tl, serr := newSender(env, rcfg.Env.MCMS, lggr)
		if serr != nil {
			return serr
		}
		proposer = tl
		opts = append(opts, reconciler.WithSender(s))
	}

	report, err := reconciler.New(env, opts...).ReconcileAll(ctx, reqs...)
	if err != nil {
		return err
	}

	if proposer != nil && proposer.Len() > 0 {
		if err = writeProposal(cmd, proposer, f.proposalOut); err != nil {
			return err
		}
		cmd.Printf("Wrote timelock proposal with %d call(s) to %s\n", proposer.Len(), f.proposalOut)
	}

	if err = writeReport(cmd, report, f.format, f.out); err != nil {
		return err
	}

	if err = report.Err(); err != nil {
		return fmt.Errorf("reconciliation finished with errors: %w", err)
	}
	if n := len(report.ReadFailures()); n > 0 {
		return fmt.Errorf("%w: %d role read(s) failed", errUnreadRoles, n)
	}
	if f.failOnChanges && !f.apply && len(report.PendingChanges()) > 0 {
		return fmt.Errorf("%d pending change(s)", len(report.PendingChanges()))
	}

	return nil
}

// errUnreadRoles fails a run whose drift could not be fully checked.
var errUnreadRoles = errors.New("role state is unknown")

// newSender returns the deployer key sender, or a timelock proposal sender when MCMS
// timelocks are configured.
func newSender(
	env deployment.Environment, mcmsCfg config_env.MCMSConfig, lggr logger.Logger,
) (sender.Sender, *sender.TimelockProposalSender, error) {
	if !mcmsCfg.Enabled() {
		return sender.NewDeployerKeySender(env.BlockChains, lggr), nil, nil
	}

	timelocks, err := addressMap(mcmsCfg.Timelocks)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid timelock config: %w", err)
	}
	mcms, err := addressMap(mcmsCfg.MCMs)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid mcms config: %w", err)
	}

	tl, err := sender.NewTimelockProposalSender(env.BlockChains, sender.TimelockProposalConfig{
		Timelocks:   timelocks,
		MCMs:        mcms,
		Delay:       mcmsCfg.Delay,
		ValidFor:    mcmsCfg.ValidFor,
		Description: mcmsCfg.Description,
		Logger:      lggr,
	})
	if err != nil {
		return nil, nil, err
	}

	return tl, tl, nil
}

func addressMap(entries []config_env.ChainAddress) (map[uint64]common.Address, error) {
	out := make(map[uint64]common.Address, len(entries))
	for _, e := range entries {
		if !common.IsHexAddress(e.Address) {
			return nil, fmt.Errorf("chain %d: invalid address %q", e.ChainSelector, e.Address)
		}
		out[e.ChainSelector] = common.HexToAddress(e.Address)
	}

	return out, nil
}

func writeProposal(cmd *cobra.Command, proposer *sender.TimelockProposalSender, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create proposal file: %w", err)
	}
	defer file.Close()

	if err = proposer.Write(cmd.Context(), file); err != nil {
		return fmt.Errorf("failed to write proposal: %w", err)
	}

	return nil
}

func writeReport(cmd *cobra.Command, report *reconciler.Report, format, path string) error {
	var w io.Writer = cmd.OutOrStdout()
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		w = file
	}

	if format == formatJSON {
		return renderJSON(w, report)
	}

	return renderTable(w, report)
}
