package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/access-control-sync/operations"
	"github.com/smartcontractkit/access-control-sync/pkg/logger"
	"github.com/smartcontractkit/access-control-sync/sender"
)

// ErrSubmissionInFlight is returned for a call whose earlier, unconfirmed transaction is still
// pending. The call is not sent again; a later run reads its effect.
var ErrSubmissionInFlight = errors.New("earlier submission is still pending")

// SendRoleTransaction submits one encoded role call through the sender. Its reports form the
// submission journal: a call whose earlier transaction is still pending is not sent again.
var SendRoleTransaction = operations.NewOperation(
	"send-role-transaction",
	semver.MustParse("1.0.0"),
	"Submit an encoded access-control call",
	func(b operations.Bundle, s sender.Sender, call sender.Call) (sender.Receipt, error) {
		return s.Send(b.GetContext(), call)
	},
)

// executor submits the calls of one chain. It is not safe for concurrent use; the orchestrator
// creates one per chain.
type executor struct {
	sender sender.Sender
	bundle operations.Bundle
	lggr   logger.Logger
}

func newExecutor(ctx context.Context, s sender.Sender, bundle operations.Bundle, lggr logger.Logger) *executor {
	return &executor{
		sender: s,
		bundle: bundle.WithContext(ctx),
		lggr:   lggr,
	}
}

// submit sends call unless the journal holds an earlier submission whose transaction is still
// pending. A mined transaction never stands in for a new one: the call was planned from a fresh
// read, so the chain no longer reflects it.
func (e *executor) submit(call sender.Call) Submission {
	checker, _ := e.sender.(sender.TxChecker)
	inFlight := func(prev operations.Report[sender.Call, sender.Receipt]) bool {
		if checker == nil || prev.Output.TxHash == (common.Hash{}) {
			return false
		}
		pending, err := checker.Pending(e.bundle.GetContext(), call.ChainSelector, prev.Output)
		if err != nil {
			// resending risks a duplicate, keep the earlier submission
			e.lggr.Warnw("Failed to check earlier submission, keeping it",
				"tx", prev.Output.TxHash.Hex(), "error", err)
			return true
		}

		return pending
	}

	reused := false
	reuse := func(prev operations.Report[sender.Call, sender.Receipt]) bool {
		reused = inFlight(prev)
		return reused
	}

	report, err := operations.ExecuteOperation(e.bundle, SendRoleTransaction, e.sender, call,
		operations.WithReuseCheck[sender.Call, sender.Receipt, sender.Sender](reuse),
		operations.WithFailedReuseCheck[sender.Call, sender.Receipt, sender.Sender](reuse),
	)
	if reused && err != nil {
		err = fmt.Errorf("%w: tx %s", ErrSubmissionInFlight, report.Output.TxHash.Hex())
	}

	return Submission{
		Description: call.Description,
		To:          call.To,
		TxHash:      report.Output.TxHash,
		BlockNumber: report.Output.BlockNumber,
		Proposed:    report.Output.Proposed,
		Reused:      reused,
		InFlight:    reused && report.Err != nil,
		Err:         err,
	}
}

// executeUnit submits the calls of one (chain, contract) unit in order and stops at the first
// failure.
func (e *executor) executeUnit(calls []sender.Call) ([]Submission, error) {
	submissions := make([]Submission, 0, len(calls))
	for _, call := range calls {
		s := e.submit(call)
		submissions = append(submissions, s)
		if s.Err != nil {
			e.lggr.Errorw("Role call failed, skipping the rest of the contract",
				"to", call.To.Hex(), "description", call.Description, "error", s.Err)

			return submissions, s.Err
		}
		e.lggr.Infow("Role call submitted",
			"to", call.To.Hex(), "description", call.Description,
			"tx", s.TxHash.Hex(), "reused", s.Reused, "proposed", s.Proposed)
	}

	return submissions, nil
}
