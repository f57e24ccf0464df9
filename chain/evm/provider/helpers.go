package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// noPermitSelector is the selector of NoPermit(bytes32), raised by the access-control contracts
// when the sender lacks the role guarding a call.
var noPermitSelector = crypto.Keccak256([]byte("NoPermit(bytes32)"))[:4]

// ContractCaller is the slice of the geth client needed to replay a reverted transaction.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// getErrorReasonFromTx replays tx as an eth_call at the block it was mined in and extracts the
// revert data from the node's error. NoPermit reverts are decoded, any other revert data is
// returned raw.
func getErrorReasonFromTx(
	ctx context.Context,
	caller ContractCaller,
	from common.Address,
	tx *types.Transaction,
	receipt *types.Receipt,
) (string, error) {
	call := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Data:     tx.Data(),
		Value:    tx.Value(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
	}

	if _, err := caller.CallContract(ctx, call, receipt.BlockNumber); err != nil {
		reason, perr := getJSONErrorData(err)

		if perr == nil {
			return decodeRevertData(reason), nil
		}
		if reason == "" {
			return err.Error(), nil
		}
	}

	return "", fmt.Errorf("tx %s reverted with no reason", tx.Hash().Hex())
}

// getJSONErrorData extracts the error data from a JSON Error.
func getJSONErrorData(err error) (string, error) {
	if err == nil {
		return "", errors.New("cannot parse nil error")
	}

	// rpc.jsonError is private in go-ethereum
	type jsonError interface {
		Error() string
		ErrorCode() int
		ErrorData() any
	}

	var jerr jsonError
	ok := errors.As(err, &jerr)
	if !ok {
		return "", fmt.Errorf("error must be of type jsonError: %w", err)
	}

	data := fmt.Sprintf("%s", jerr.ErrorData())
	if data == "" && strings.Contains(jerr.Error(), "missing trie node") {
		return "", errors.New("missing trie node, likely due to not using an archive node")
	}

	return data, nil
}

// decodeRevertData renders NoPermit revert data as "NoPermit(<role id>)". Anything else is
// returned unchanged.
func decodeRevertData(data string) string {
	raw, err := hexutil.Decode(data)
	if err != nil || len(raw) != 4+common.HashLength || !bytes.Equal(raw[:4], noPermitSelector) {
		return data
	}

	return fmt.Sprintf("NoPermit(%s)", common.BytesToHash(raw[4:]).Hex())
}
