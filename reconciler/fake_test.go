package reconciler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smartcontractkit/access-control-sync/chain/evm"
	"github.com/smartcontractkit/access-control-sync/roles"
	"github.com/smartcontractkit/access-control-sync/sender"
)

type roleKey struct {
	role    [32]byte
	slug    uint32
	grantee common.Address
}

// fakeClient is an in-memory chain holding the role state of its contracts. It answers the
// reads of the access-control ABI; any other client method panics.
type fakeClient struct {
	evm.OnchainClient

	mu        sync.Mutex
	contracts map[common.Address]map[roleKey]bool
	codeErr   map[common.Address]error
	readErr   error
	reads     atomic.Int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		contracts: make(map[common.Address]map[roleKey]bool),
		codeErr:   make(map[common.Address]error),
	}
}

// deploy registers a contract at addr with no roles granted.
func (f *fakeClient) deploy(addr common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.contracts[addr] = make(map[roleKey]bool)
}

func (f *fakeClient) set(addr common.Address, role roles.Role, slug uint32, grantee common.Address, has bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.contracts[addr][roleKey{role: roles.ID(role), slug: slug, grantee: grantee}] = has
}

func (f *fakeClient) has(addr common.Address, role roles.Role, slug uint32, grantee common.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.contracts[addr][roleKey{role: roles.ID(role), slug: slug, grantee: grantee}]
}

func (f *fakeClient) CodeAt(_ context.Context, addr common.Address, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.codeErr[addr]; err != nil {
		return nil, err
	}
	if _, ok := f.contracts[addr]; !ok {
		return nil, nil
	}

	return []byte{0x60, 0x80}, nil
}

func (f *fakeClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.reads.Add(1)
	if f.readErr != nil {
		return nil, f.readErr
	}

	method, err := accessControl.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	var key roleKey
	switch method.Name {
	case methodHasRole:
		key = roleKey{role: args[0].([32]byte), grantee: args[1].(common.Address)}
	case methodHasRoleWithSlug:
		key = roleKey{role: args[0].([32]byte), slug: args[1].(uint32), grantee: args[2].(common.Address)}
	default:
		return nil, fmt.Errorf("unexpected call to %s", method.Name)
	}

	f.mu.Lock()
	has := f.contracts[*msg.To][key]
	f.mu.Unlock()

	return method.Outputs.Pack(has)
}

// apply executes a role write against the in-memory state.
func (f *fakeClient) apply(to common.Address, data []byte) error {
	method, err := accessControl.MethodById(data[:4])
	if err != nil {
		return err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.contracts[to]
	if !ok {
		return errors.New("no contract")
	}

	switch method.Name {
	case methodGrantBatchRole, methodRevokeBatchRole:
		ids, slugs, grantees := args[0].([][32]byte), args[1].([]uint32), args[2].([]common.Address)
		for i := range ids {
			state[roleKey{role: ids[i], slug: slugs[i], grantee: grantees[i]}] = method.Name == methodGrantBatchRole
		}
	case "grantWatcherRole", "revokeWatcherRole":
		key := roleKey{role: roles.ID(roles.Watcher), slug: args[0].(uint32), grantee: args[1].(common.Address)}
		state[key] = method.Name == "grantWatcherRole"
	default:
		return fmt.Errorf("unexpected write %s", method.Name)
	}

	return nil
}

// fakeSender applies calls to the fake clients of their chains. Calls to a stalled address are
// left pending and fail to confirm, like a transaction stuck in the mempool.
type fakeSender struct {
	clients map[uint64]*fakeClient

	mu      sync.Mutex
	calls   []sender.Call
	failTo  map[common.Address]error
	stallTo map[common.Address]bool
	pending map[common.Hash]sender.Call
}

func newFakeSender(clients map[uint64]*fakeClient) *fakeSender {
	return &fakeSender{
		clients: clients,
		failTo:  make(map[common.Address]error),
		stallTo: make(map[common.Address]bool),
		pending: make(map[common.Hash]sender.Call),
	}
}

func (s *fakeSender) Send(_ context.Context, call sender.Call) (sender.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, call)
	nonce := len(s.calls)
	hash := crypto.Keccak256Hash(call.Data, big.NewInt(int64(nonce)).Bytes())

	if err := s.failTo[call.To]; err != nil {
		return sender.Receipt{}, err
	}
	if s.stallTo[call.To] {
		s.pending[hash] = call
		return sender.Receipt{TxHash: hash}, fmt.Errorf("tx %s failed to confirm: %w", hash.Hex(), context.DeadlineExceeded)
	}
	if err := s.clients[call.ChainSelector].apply(call.To, call.Data); err != nil {
		return sender.Receipt{}, err
	}

	return sender.Receipt{TxHash: hash, BlockNumber: uint64(nonce)}, nil
}

func (s *fakeSender) Pending(_ context.Context, _ uint64, receipt sender.Receipt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.pending[receipt.TxHash]

	return ok, nil
}

// mine applies a pending transaction and unstalls its target.
func (s *fakeSender) mine(hash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.pending[hash]
	if !ok {
		return errors.New("tx not pending")
	}
	delete(s.pending, hash)
	delete(s.stallTo, call.To)

	return s.clients[call.ChainSelector].apply(call.To, call.Data)
}

// drop evicts a pending transaction without applying it and unstalls its target.
func (s *fakeSender) drop(hash common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if call, ok := s.pending[hash]; ok {
		delete(s.stallTo, call.To)
	}
	delete(s.pending, hash)
}

func (s *fakeSender) sent() []sender.Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]sender.Call, len(s.calls))
	copy(out, s.calls)

	return out
}

func (s *fakeSender) sentTo(to common.Address) []sender.Call {
	var out []sender.Call
	for _, c := range s.sent() {
		if c.To == to {
			out = append(out, c)
		}
	}

	return out
}
