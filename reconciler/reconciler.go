/*
Package reconciler converges the access-control state of the fleet contracts with a declared
target state.

A run reads every (contract, role, scope, grantee) tuple in scope, diffs it against the desired
status, batches the differences per contract and, when asked to apply, submits them through a
sender:

	Request -> read -> diff -> batch -> submit -> Report

Chains are processed concurrently. Reads within a chain run concurrently as well, writes within
a chain are strictly sequential. A failed write aborts only the remaining calls of its
contract.

Submissions are journaled through the operations reporter. A repeated run does not resend a
call whose earlier transaction is still pending; once mined, the chain state read by the next
run decides whether the call is needed again.
*/
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"

	"github.com/smartcontractkit/access-control-sync/chain"
	"github.com/smartcontractkit/access-control-sync/chain/evm"
	"github.com/smartcontractkit/access-control-sync/deployment"
	"github.com/smartcontractkit/access-control-sync/operations"
	"github.com/smartcontractkit/access-control-sync/pkg/logger"
	"github.com/smartcontractkit/access-control-sync/roles"
	"github.com/smartcontractkit/access-control-sync/sender"
)

// AddressBook resolves contract addresses.
type AddressBook interface {
	ContractAddress(selector uint64, kind roles.ContractKind) (common.Address, bool)
	IntegrationAddress(selector, sibling uint64, kind roles.ContractKind) (common.Address, bool)
}

// Chains provides chain connections.
type Chains interface {
	GetBySelector(selector uint64) (evm.Chain, error)
	Exists(selector uint64) bool
	ListChainSelectors() []uint64
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithSender sets the sender used when a request applies its changes.
func WithSender(s sender.Sender) Option {
	return func(r *Reconciler) {
		r.sender = s
	}
}

// WithBespokeRoutes replaces roles.DefaultBespokeRoutes.
func WithBespokeRoutes(routes roles.BespokeRoutes) Option {
	return func(r *Reconciler) {
		r.batcher = NewBatcher(routes)
	}
}

// WithMaxConcurrentReads bounds the concurrent role reads per chain. 0 means unbounded.
func WithMaxConcurrentReads(n int) Option {
	return func(r *Reconciler) {
		r.maxConcurrentReads = n
	}
}

// Reconciler runs reconciliations against one environment. The only state it carries between
// runs is the submission journal of the environment's operations reporter. It is safe for
// concurrent use.
type Reconciler struct {
	addresses          AddressBook
	chains             Chains
	sender             sender.Sender
	bundle             operations.Bundle
	batcher            Batcher
	maxConcurrentReads int
	lggr               logger.Logger
	now                func() time.Time
}

// New returns a reconciler for env.
func New(env deployment.Environment, opts ...Option) *Reconciler {
	return newReconciler(env.ExistingAddresses, env.BlockChains, env.OperationsBundle, env.Logger, opts...)
}

func newReconciler(
	addresses AddressBook, chains Chains, bundle operations.Bundle, lggr logger.Logger, opts ...Option,
) *Reconciler {
	r := &Reconciler{
		addresses: addresses,
		chains:    chains,
		bundle:    bundle,
		batcher:   NewBatcher(roles.DefaultBespokeRoutes),
		lggr:      lggr.Named("reconciler"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// contractTarget is one contract instance on a chain.
type contractTarget struct {
	name    string
	kind    roles.ContractKind
	address common.Address
	sibling uint64
}

// readTuple is one role read against a contract.
type readTuple struct {
	target  contractTarget
	grantee common.Address
	role    roles.Role
	scope   uint32
	sibling uint64
	desired bool
}

// Reconcile runs req. Invalid requests fail with ErrInvalidRequest before any chain is
// contacted. Failures on a chain or contract are recorded in the report and do not fail the
// call; use Report.Err to collect them.
func (r *Reconciler) Reconcile(ctx context.Context, req Request) (*Report, error) {
	return r.ReconcileAll(ctx, req)
}

// ReconcileAll runs several requests, one per contract kind, as a single run. Writes of all
// requests are serialized per chain, so it is the way to reconcile several kinds at once
// without racing on the sender's nonce.
func (r *Reconciler) ReconcileAll(ctx context.Context, reqs ...Request) (*Report, error) {
	if len(reqs) == 0 {
		return nil, invalid("no requests")
	}

	plans := make([]*plan, 0, len(reqs))
	kinds := make([]roles.ContractKind, 0, len(reqs))
	var selectors []uint64
	apply := false
	for _, req := range reqs {
		p, err := req.resolve(r.chains, r.sender != nil)
		if err != nil {
			return nil, err
		}
		if slices.Contains(kinds, p.kind) {
			return nil, invalid("%s is requested more than once", p.kind)
		}
		plans = append(plans, p)
		kinds = append(kinds, p.kind)
		selectors = append(selectors, p.chains...)
		apply = apply || p.apply
	}
	selectors = uniqueSorted(selectors)

	report := &Report{
		RunID:     ksuid.New().String(),
		Kinds:     kinds,
		Apply:     apply,
		StartedAt: r.now(),
		Chains:    make(map[uint64]*ChainReport, len(selectors)),
	}
	for _, selector := range selectors {
		report.Chains[selector] = &ChainReport{
			Selector:  selector,
			Name:      chainName(selector),
			State:     ChainIdle,
			Contracts: make(map[string]*ContractReport),
		}
	}

	lggr := r.lggr.With("run", report.RunID)
	lggr.Infow("Starting reconciliation", "kinds", kinds, "chains", len(selectors), "apply", apply)

	// each goroutine owns one ChainReport
	var g errgroup.Group
	for _, selector := range selectors {
		chainReport := report.Chains[selector]
		g.Go(func() error {
			r.reconcileChain(ctx, plans, chainReport, lggr.With("chain", chainReport.Name))
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = r.now()
	lggr.Infow("Finished reconciliation",
		"pendingChanges", len(report.PendingChanges()), "submissions", len(report.Submissions()), "error", report.Err())

	return report, nil
}

// unit is the pending work on one contract.
type unit struct {
	name    string
	changes []PendingChange
}

func (r *Reconciler) reconcileChain(ctx context.Context, plans []*plan, report *ChainReport, lggr logger.Logger) {
	c, err := r.chains.GetBySelector(report.Selector)
	if err != nil {
		report.Err = err
		report.State = ChainFailed
		lggr.Errorw("Failed to connect to chain", "error", err)

		return
	}

	var units []unit
	for _, p := range plans {
		if !slices.Contains(p.chains, report.Selector) {
			continue
		}

		siblings, err := chain.Siblings(report.Selector, r.chains.ListChainSelectors(), p.siblings)
		if err != nil {
			report.Err = errors.Join(report.Err, err)
			continue
		}
		siblings = EffectiveSiblings(p.kind, p.explicit, report.Selector, siblings)

		targets := r.resolveTargets(ctx, c, p.kind, siblings, report)
		tuples := r.buildTuples(p, targets, siblings, report)
		observations := r.readAll(ctx, c, tuples)

		for _, t := range targets {
			report.Contracts[t.name] = newContractReport(t)
		}
		byContract := make(map[string][]Observation, len(targets))
		for i, t := range tuples {
			report.Contracts[t.target.name].add(observations[i])
			byContract[t.target.name] = append(byContract[t.target.name], observations[i])
		}

		for _, t := range targets {
			cr := report.Contracts[t.name]
			cr.PendingChanges = pendingChanges(report.Selector, t, byContract[t.name])
			lggr.Debugw("Diffed contract", "contract", t.name, "address", t.address.Hex(),
				"observations", len(byContract[t.name]), "pendingChanges", len(cr.PendingChanges))

			if p.apply && len(cr.PendingChanges) > 0 {
				units = append(units, unit{name: t.name, changes: cr.PendingChanges})
			}
		}
	}

	if report.Err != nil {
		report.State = ChainFailed
	}
	if len(units) == 0 {
		return
	}

	report.State = ChainSubmitting
	exec := newExecutor(ctx, r.sender, r.bundle, lggr)
	failed := false
	for _, u := range units {
		cr := report.Contracts[u.name]

		calls, err := r.batcher.Plan(u.changes)
		if err != nil {
			cr.Err = fmt.Errorf("failed to encode calls: %w", err)
			failed = true

			continue
		}

		cr.Submissions, cr.Err = exec.executeUnit(calls)
		if cr.Err != nil {
			failed = true
		}
	}

	report.State = ChainConfirmed
	if failed || report.Err != nil {
		report.State = ChainFailed
	}
}

// resolveTargets returns the contracts of kind on the chain that have code. Per sibling kinds
// resolve one contract per sibling.
func (r *Reconciler) resolveTargets(
	ctx context.Context, c evm.Chain, kind roles.ContractKind, siblings []uint64, report *ChainReport,
) []contractTarget {
	var candidates []contractTarget
	if kind.PerSibling() {
		for _, sibling := range siblings {
			name := fmt.Sprintf("%s/%s", kind, chainName(sibling))
			addr, ok := r.addresses.IntegrationAddress(report.Selector, sibling, kind)
			if !ok {
				report.diagnose(DiagnosticMissingAddress, name, sibling,
					"no %s recorded for sibling %s", kind, chainName(sibling))

				continue
			}
			candidates = append(candidates, contractTarget{name: name, kind: kind, address: addr, sibling: sibling})
		}
	} else {
		addr, ok := r.addresses.ContractAddress(report.Selector, kind)
		if !ok {
			report.diagnose(DiagnosticMissingAddress, kind.String(), 0, "no %s recorded", kind)
		} else {
			candidates = append(candidates, contractTarget{name: kind.String(), kind: kind, address: addr})
		}
	}

	var targets []contractTarget
	for _, t := range candidates {
		err := checkCode(ctx, c.Client, t.address)
		switch {
		case errors.Is(err, errNoCode):
			report.diagnose(DiagnosticNoCode, t.name, t.sibling, "%v", err)
		case err != nil:
			report.diagnose(DiagnosticUnreadable, t.name, t.sibling, "%v", err)
		default:
			targets = append(targets, t)
		}
	}

	return targets
}

// buildTuples expands the desired roles into reads: one per global role and one per sibling
// for chain-scoped roles.
func (r *Reconciler) buildTuples(
	p *plan, targets []contractTarget, siblings []uint64, report *ChainReport,
) []readTuple {
	scopes := make(map[uint64]uint32, len(siblings))
	var scopedSiblings []uint64
	if len(p.catalog.ChainScoped) > 0 {
		for _, sibling := range siblings {
			scope, err := chainScope(sibling)
			if err != nil {
				report.diagnose(DiagnosticUnscopedSibling, p.kind.String(), sibling, "%v", err)
				continue
			}
			scopes[sibling] = scope
			scopedSiblings = append(scopedSiblings, sibling)
		}
	}

	var tuples []readTuple
	for _, t := range targets {
		for _, d := range p.desired {
			if slices.Contains(p.catalog.Global, d.Role) {
				tuples = append(tuples, readTuple{
					target: t, grantee: d.Grantee, role: d.Role, desired: d.Desired,
				})
			}
			if slices.Contains(p.catalog.ChainScoped, d.Role) {
				for _, sibling := range scopedSiblings {
					tuples = append(tuples, readTuple{
						target: t, grantee: d.Grantee, role: d.Role, desired: d.Desired,
						scope: scopes[sibling], sibling: sibling,
					})
				}
			}
		}
	}

	return tuples
}

// readAll reads every tuple concurrently. Results are index aligned with tuples.
func (r *Reconciler) readAll(ctx context.Context, c evm.Chain, tuples []readTuple) []Observation {
	observations := make([]Observation, len(tuples))

	var g errgroup.Group
	if r.maxConcurrentReads > 0 {
		g.SetLimit(r.maxConcurrentReads)
	}
	for i, t := range tuples {
		g.Go(func() error {
			has, err := ReadRole(ctx, c.Client, t.target.address, t.role, t.scope, t.grantee)
			observations[i] = Observation{
				Grantee: t.grantee,
				Role:    t.role,
				Scope:   t.scope,
				Sibling: t.sibling,
				Desired: t.desired,
				HasRole: has,
				Err:     err,
			}

			return nil
		})
	}
	_ = g.Wait()

	return observations
}

func chainScope(selector uint64) (uint32, error) {
	return evm.Chain{Selector: selector}.ChainScope()
}

func chainName(selector uint64) string {
	if name := (evm.Chain{Selector: selector}).Name(); name != "" {
		return name
	}

	return strconv.FormatUint(selector, 10)
}
