package reconciler

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/access-control-sync/roles"
)

// DiagnosticKind classifies why part of a chain was skipped.
type DiagnosticKind string

const (
	// DiagnosticMissingAddress: the address book has no address for the contract.
	DiagnosticMissingAddress DiagnosticKind = "missing-address"
	// DiagnosticNoCode: nothing is deployed at the recorded address.
	DiagnosticNoCode DiagnosticKind = "no-code"
	// DiagnosticUnreadable: the code at the recorded address could not be read.
	DiagnosticUnreadable DiagnosticKind = "unreadable-address"
	// DiagnosticUnscopedSibling: the sibling's chain id does not fit a chain scope.
	DiagnosticUnscopedSibling DiagnosticKind = "unscoped-sibling"
)

// Diagnostic records a skipped contract or sibling.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	Contract string         `json:"contract"`
	Sibling  uint64         `json:"sibling,omitempty"`
	Message  string         `json:"message"`
}

// ChainState is the progress of a chain through the run.
type ChainState string

const (
	ChainIdle       ChainState = "idle"
	ChainSubmitting ChainState = "submitting"
	ChainConfirmed  ChainState = "confirmed"
	ChainFailed     ChainState = "failed"
)

// Observation is the live state of one (grantee, role, scope) on a contract.
type Observation struct {
	Grantee common.Address `json:"grantee"`
	Role    roles.Role     `json:"role"`
	Scope   uint32         `json:"scope"`
	Sibling uint64         `json:"sibling,omitempty"`
	Desired bool           `json:"desired"`
	HasRole bool           `json:"hasRole"`
	Err     error          `json:"-"`
}

func (o Observation) MarshalJSON() ([]byte, error) {
	type alias Observation

	return json.Marshal(struct {
		alias
		Error string `json:"error,omitempty"`
	}{alias(o), errString(o.Err)})
}

// Submission is one call handed to the sender.
type Submission struct {
	Description string         `json:"description"`
	To          common.Address `json:"to"`
	TxHash      common.Hash    `json:"txHash"`
	BlockNumber uint64         `json:"blockNumber,omitempty"`
	Proposed    bool           `json:"proposed,omitempty"`
	// Reused is set when an earlier run already submitted the call and its transaction is still
	// pending.
	Reused bool `json:"reused,omitempty"`
	// InFlight is set when that earlier attempt was never confirmed; the unit stops until it is.
	InFlight bool  `json:"inFlight,omitempty"`
	Err      error `json:"-"`
}

func (s Submission) MarshalJSON() ([]byte, error) {
	type alias Submission

	return json.Marshal(struct {
		alias
		Error string `json:"error,omitempty"`
	}{alias(s), errString(s.Err)})
}

// ContractReport is everything observed and done on one contract.
type ContractReport struct {
	Kind    roles.ContractKind `json:"kind"`
	Address common.Address     `json:"address"`
	// Sibling is set for contracts deployed per sibling.
	Sibling uint64 `json:"sibling,omitempty"`
	// Global observations by role.
	Global map[roles.Role][]Observation `json:"global"`
	// Scoped observations by sibling chain selector and role.
	Scoped         map[uint64]map[roles.Role][]Observation `json:"scoped"`
	PendingChanges []PendingChange                         `json:"pendingChanges"`
	Submissions    []Submission                            `json:"submissions,omitempty"`
	Err            error                                   `json:"-"`
}

func newContractReport(target contractTarget) *ContractReport {
	return &ContractReport{
		Kind:    target.kind,
		Address: target.address,
		Sibling: target.sibling,
		Global:  make(map[roles.Role][]Observation),
		Scoped:  make(map[uint64]map[roles.Role][]Observation),
	}
}

func (c *ContractReport) add(o Observation) {
	if o.Scope == 0 {
		c.Global[o.Role] = append(c.Global[o.Role], o)
		return
	}
	if c.Scoped[o.Sibling] == nil {
		c.Scoped[o.Sibling] = make(map[roles.Role][]Observation)
	}
	c.Scoped[o.Sibling][o.Role] = append(c.Scoped[o.Sibling][o.Role], o)
}

// Observations returns every observation of the contract, global ones first.
func (c *ContractReport) Observations() []Observation {
	var out []Observation
	for _, role := range slices.Sorted(maps.Keys(c.Global)) {
		out = append(out, c.Global[role]...)
	}
	for _, sibling := range slices.Sorted(maps.Keys(c.Scoped)) {
		for _, role := range slices.Sorted(maps.Keys(c.Scoped[sibling])) {
			out = append(out, c.Scoped[sibling][role]...)
		}
	}

	return out
}

func (c *ContractReport) MarshalJSON() ([]byte, error) {
	type alias ContractReport

	return json.Marshal(struct {
		alias
		Error string `json:"error,omitempty"`
	}{alias(*c), errString(c.Err)})
}

// ChainReport is everything observed and done on one chain.
type ChainReport struct {
	Selector    uint64                     `json:"selector"`
	Name        string                     `json:"name"`
	State       ChainState                 `json:"state"`
	Contracts   map[string]*ContractReport `json:"contracts"`
	Diagnostics []Diagnostic               `json:"diagnostics,omitempty"`
	Err         error                      `json:"-"`
}

func (c *ChainReport) diagnose(kind DiagnosticKind, contract string, sibling uint64, format string, args ...any) {
	c.Diagnostics = append(c.Diagnostics, Diagnostic{
		Kind:     kind,
		Contract: contract,
		Sibling:  sibling,
		Message:  fmt.Sprintf(format, args...),
	})
}

// ContractNames returns the contract keys of a chain report in order.
func (c *ChainReport) ContractNames() []string {
	return slices.Sorted(maps.Keys(c.Contracts))
}

func (c *ChainReport) MarshalJSON() ([]byte, error) {
	type alias ChainReport

	return json.Marshal(struct {
		alias
		Error string `json:"error,omitempty"`
	}{alias(*c), errString(c.Err)})
}

// Report is the outcome of one reconciliation run. It is not modified once returned.
type Report struct {
	RunID      string                  `json:"runId"`
	Kinds      []roles.ContractKind    `json:"kinds"`
	Apply      bool                    `json:"apply"`
	StartedAt  time.Time               `json:"startedAt"`
	FinishedAt time.Time               `json:"finishedAt"`
	Chains     map[uint64]*ChainReport `json:"chains"`
}

// PendingChanges returns every pending change of the run ordered by chain and contract.
func (r *Report) PendingChanges() []PendingChange {
	var out []PendingChange
	for _, selector := range slices.Sorted(maps.Keys(r.Chains)) {
		chain := r.Chains[selector]
		for _, name := range slices.Sorted(maps.Keys(chain.Contracts)) {
			out = append(out, chain.Contracts[name].PendingChanges...)
		}
	}

	return out
}

// Submissions returns every submission of the run ordered by chain and contract.
func (r *Report) Submissions() []Submission {
	var out []Submission
	for _, selector := range slices.Sorted(maps.Keys(r.Chains)) {
		chain := r.Chains[selector]
		for _, name := range slices.Sorted(maps.Keys(chain.Contracts)) {
			out = append(out, chain.Contracts[name].Submissions...)
		}
	}

	return out
}

// ReadFailure is an observation whose role could not be read. Its drift is unknown.
type ReadFailure struct {
	ChainSelector uint64         `json:"chainSelector"`
	Contract      string         `json:"contract"`
	Address       common.Address `json:"address"`
	Observation   Observation    `json:"observation"`
}

// ReadFailures returns every observation of the run that failed to read, ordered by chain and
// contract.
func (r *Report) ReadFailures() []ReadFailure {
	var out []ReadFailure
	for _, selector := range slices.Sorted(maps.Keys(r.Chains)) {
		chain := r.Chains[selector]
		for _, name := range slices.Sorted(maps.Keys(chain.Contracts)) {
			cr := chain.Contracts[name]
			for _, o := range cr.Observations() {
				if o.Err != nil {
					out = append(out, ReadFailure{
						ChainSelector: selector,
						Contract:      name,
						Address:       cr.Address,
						Observation:   o,
					})
				}
			}
		}
	}

	return out
}

// Err joins the chain and contract failures of the run. Read failures of single observations
// do not stop their chain and are reported by ReadFailures.
func (r *Report) Err() error {
	var errs []error
	for _, selector := range slices.Sorted(maps.Keys(r.Chains)) {
		chain := r.Chains[selector]
		if chain.Err != nil {
			errs = append(errs, fmt.Errorf("chain %s: %w", chain.Name, chain.Err))
		}
		for _, name := range slices.Sorted(maps.Keys(chain.Contracts)) {
			if err := chain.Contracts[name].Err; err != nil {
				errs = append(errs, fmt.Errorf("chain %s, contract %s: %w", chain.Name, name, err))
			}
		}
	}

	return errors.Join(errs...)
}

// Diagnostics returns every diagnostic of the run, ordered by chain.
func (r *Report) Diagnostics() map[uint64][]Diagnostic {
	out := make(map[uint64][]Diagnostic)
	for selector, chain := range r.Chains {
		if len(chain.Diagnostics) > 0 {
			out[selector] = slices.SortedFunc(slices.Values(chain.Diagnostics), func(a, b Diagnostic) int {
				return cmp.Or(cmp.Compare(a.Contract, b.Contract), cmp.Compare(a.Sibling, b.Sibling))
			})
		}
	}

	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
