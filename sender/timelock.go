package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	mcmslib "github.com/smartcontractkit/mcms"
	mcmsevmsdk "github.com/smartcontractkit/mcms/sdk/evm"
	mcmstypes "github.com/smartcontractkit/mcms/types"

	"github.com/smartcontractkit/access-control-sync/chain"
	"github.com/smartcontractkit/access-control-sync/pkg/logger"
)

var ErrNothingProposed = errors.New("no calls were proposed")

// OpCountReader returns the current operation count of an MCM contract.
type OpCountReader func(ctx context.Context, chainSelector uint64, mcm common.Address) (uint64, error)

// TimelockProposalConfig configures a TimelockProposalSender.
type TimelockProposalConfig struct {
	// Timelocks and MCMs hold the timelock and proposer MCM address of every chain calls may
	// target.
	Timelocks map[uint64]common.Address
	MCMs      map[uint64]common.Address
	// Delay is the minimum time between scheduling and executing the batch.
	Delay time.Duration
	// ValidFor bounds how long signers have to approve the proposal. Defaults to 72h.
	ValidFor    time.Duration
	Description string
	// OpCounts reads the starting operation count of each MCM. Defaults to reading it through
	// the chains.
	OpCounts OpCountReader
	Logger   logger.Logger
}

// TimelockProposalSender collects calls into a timelock proposal instead of sending them. Each
// call becomes its own batch operation so calls keep their order per chain.
type TimelockProposalSender struct {
	cfg TimelockProposalConfig
	now func() time.Time

	mu         sync.Mutex
	operations []mcmstypes.BatchOperation
}

var (
	_ Sender    = (*TimelockProposalSender)(nil)
	_ TxChecker = (*TimelockProposalSender)(nil)
)

// NewTimelockProposalSender returns a proposal sender. chains is used to read MCM operation
// counts when cfg.OpCounts is not set.
func NewTimelockProposalSender(chains *chain.BlockChains, cfg TimelockProposalConfig) (*TimelockProposalSender, error) {
	if len(cfg.Timelocks) == 0 {
		return nil, errors.New("at least one timelock is required")
	}
	for selector := range cfg.Timelocks {
		if _, ok := cfg.MCMs[selector]; !ok {
			return nil, fmt.Errorf("chain %d has a timelock but no MCM", selector)
		}
	}
	if cfg.ValidFor == 0 {
		cfg.ValidFor = 72 * time.Hour
	}
	if cfg.Description == "" {
		cfg.Description = "Reconcile access-control roles"
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.OpCounts == nil {
		if chains == nil {
			return nil, errors.New("chains are required to read MCM operation counts")
		}
		cfg.OpCounts = inspectOpCount(chains)
	}

	return &TimelockProposalSender{cfg: cfg, now: time.Now}, nil
}

func inspectOpCount(chains *chain.BlockChains) OpCountReader {
	return func(ctx context.Context, selector uint64, mcm common.Address) (uint64, error) {
		c, err := chains.GetBySelector(selector)
		if err != nil {
			return 0, err
		}

		return mcmsevmsdk.NewInspector(c.Client).GetOpCount(ctx, mcm.Hex())
	}
}

// Send adds call to the proposal.
func (s *TimelockProposalSender) Send(_ context.Context, call Call) (Receipt, error) {
	if _, ok := s.cfg.Timelocks[call.ChainSelector]; !ok {
		return Receipt{}, fmt.Errorf("no timelock configured for chain %d", call.ChainSelector)
	}

	tx := mcmsevmsdk.NewTransaction(call.To, call.Data, big.NewInt(0), call.ContractKind, call.Tags)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations = append(s.operations, mcmstypes.BatchOperation{
		ChainSelector: mcmstypes.ChainSelector(call.ChainSelector),
		Transactions:  []mcmstypes.Transaction{tx},
	})

	s.cfg.Logger.Infow("Added role call to proposal",
		"chain", call.ChainSelector, "to", call.To.Hex(), "description", call.Description,
	)

	return Receipt{Proposed: true}, nil
}

// Pending always reports false: a proposal is rebuilt from the live state on every run.
func (s *TimelockProposalSender) Pending(context.Context, uint64, Receipt) (bool, error) {
	return false, nil
}

// Len returns the number of proposed calls.
func (s *TimelockProposalSender) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.operations)
}

// Proposal builds the timelock proposal of every call sent so far.
func (s *TimelockProposalSender) Proposal(ctx context.Context) (*mcmslib.TimelockProposal, error) {
	s.mu.Lock()
	operations := slices.Clone(s.operations)
	s.mu.Unlock()

	if len(operations) == 0 {
		return nil, ErrNothingProposed
	}

	builder := mcmslib.NewTimelockProposalBuilder().
		SetVersion("v1").
		SetAction(mcmstypes.TimelockActionSchedule).
		SetValidUntil(uint32(s.now().Add(s.cfg.ValidFor).Unix())). //nolint:gosec // fits until 2106
		SetDescription(s.cfg.Description).
		SetDelay(mcmstypes.NewDuration(s.cfg.Delay))

	seen := make(map[uint64]bool)
	for _, op := range operations {
		selector := uint64(op.ChainSelector)
		if !seen[selector] {
			seen[selector] = true

			mcm := s.cfg.MCMs[selector]
			opCount, err := s.cfg.OpCounts(ctx, selector, mcm)
			if err != nil {
				return nil, fmt.Errorf("failed to read op count of MCM %s on chain %d: %w", mcm.Hex(), selector, err)
			}

			builder.
				AddTimelockAddress(op.ChainSelector, s.cfg.Timelocks[selector].Hex()).
				AddChainMetadata(op.ChainSelector, mcmstypes.ChainMetadata{
					StartingOpCount: opCount,
					MCMAddress:      mcm.Hex(),
				})
		}
		builder.AddOperation(op)
	}

	proposal, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build timelock proposal: %w", err)
	}

	return proposal, nil
}

// Write builds the proposal and writes it as JSON to w.
func (s *TimelockProposalSender) Write(ctx context.Context, w io.Writer) error {
	proposal, err := s.Proposal(ctx)
	if err != nil {
		return err
	}

	return mcmslib.WriteTimelockProposal(w, proposal)
}
