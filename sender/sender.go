/*
Package sender submits encoded role calls to a chain.

Two senders are provided. DeployerKeySender signs and sends each call with the chain's
deployer key and waits for its confirmation. TimelockProposalSender never touches the chain;
it collects the calls into an MCMS timelock proposal for a multisig-owned fleet.

Callers only see Sender: submit a Call, get a Receipt or an error.
*/
package sender

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrNoDeployerKey = errors.New("chain has no deployer key")

// Call is an encoded transaction against one contract.
type Call struct {
	ChainSelector uint64         `json:"chainSelector"`
	To            common.Address `json:"to"`
	Data          hexutil.Bytes  `json:"data"`
	ContractKind  string         `json:"contractKind"`
	Description   string         `json:"description"`
	Tags          []string       `json:"tags,omitempty"`
}

// Receipt is the outcome of a submitted call.
type Receipt struct {
	TxHash      common.Hash `json:"txHash"`
	BlockNumber uint64      `json:"blockNumber"`
	// Proposed is set when the call was added to a proposal instead of being sent.
	Proposed bool `json:"proposed"`
}

// Sender submits calls.
type Sender interface {
	Send(ctx context.Context, call Call) (Receipt, error)
}

// TxChecker is implemented by senders that can tell whether an earlier submission is still in
// flight. Only a pending transaction stands in for a new one: once mined, its effect is judged
// by a fresh read of the chain, so a call that is needed again is sent again.
type TxChecker interface {
	Pending(ctx context.Context, chainSelector uint64, receipt Receipt) (bool, error)
}
