// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xshard

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/shardbft/bfttest"
	bftbls "github.com/luxfi/shardbft/crypto/bls"
	"github.com/luxfi/shardbft/config"
	"github.com/luxfi/shardbft/events"
	"github.com/luxfi/shardbft/topology"
	"github.com/luxfi/shardbft/types"
	"github.com/luxfi/shardbft/wire"
)

// stubEngine always returns the same deterministic execution result
// regardless of the merged entries it is handed.
type stubEngine struct {
	stateRoot types.Hash
}

func (s stubEngine) ReadLocal(tx types.Hash, forShard types.ShardGroupID) []types.StateEntry {
	return []types.StateEntry{{Node: types.NodeID{0}, Value: []byte("local")}}
}

func (s stubEngine) Execute(tx types.Hash, entries []types.StateEntry) (types.Hash, []types.StateEntry, bool) {
	return s.stateRoot, entries, true
}

type stubRegistrar struct {
	registered map[types.Hash]bool
}

func (r *stubRegistrar) Register(tx types.Hash, participating, requiredSources []types.ShardGroupID) {
	r.registered[tx] = true
}

// stubProvisionSource returns a fixed provision list for every (tx,
// source) pair, standing in for an already-quorum-gated
// provision.Coordinator.
type stubProvisionSource struct {
	entries []types.StateProvision
}

func (s stubProvisionSource) Provisions(tx types.Hash, source types.ShardGroupID) []types.StateProvision {
	return s.entries
}

// twoShardTopology builds a 4-validator, 2-shard committee: validators
// 0 and 2 land on shard 0, validators 1 and 3 on shard 1 (Static
// assigns by id mod num_shards).
func twoShardTopology(t *testing.T) (*topology.Static, []bftbls.Signer) {
	t.Helper()
	signers := make([]bftbls.Signer, 4)
	keys := make(map[types.ValidatorID]*bftbls.PublicKey, 4)
	power := make(map[types.ValidatorID]types.VotePower, 4)
	var all []types.ValidatorID
	for i := 0; i < 4; i++ {
		s, err := bftbls.GenerateSigner()
		require.NoError(t, err)
		signers[i] = s
		vid := types.ValidatorID(i)
		keys[vid] = s.PublicKey()
		power[vid] = 1
		all = append(all, vid)
	}
	return &topology.Static{
		Local:         0,
		NumShardsV:    2,
		Power:         power,
		Keys:          keys,
		AllValidators: all,
	}, signers
}

func newTestMachine(t *testing.T, shard types.ShardGroupID, self types.ValidatorID, signer bftbls.Signer, topo *topology.Static, cfg config.Config, engine ExecutionEngine, reg *stubRegistrar, ps ProvisionSource) *Machine {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return New(shard, self, signer, priv, topo, cfg, bfttest.Logger(), engine, reg, ps, nil)
}

func decodeVote(t *testing.T, a events.Action) (types.StateVoteBlock, bool) {
	t.Helper()
	b, ok := a.(events.BroadcastToShard)
	if !ok {
		return types.StateVoteBlock{}, false
	}
	payload, err := wire.Decompress(b.Message)
	require.NoError(t, err)
	vote, err := wire.DecodeStateVoteBlock(payload)
	require.NoError(t, err)
	return vote, true
}

// TestLocalOnlyTransactionCertifiesWithoutProvisions exercises a
// transaction whose declared read/write nodes are all owned by the
// local shard: no provisions are awaited, so each replica executes on
// receipt of the gossip event, and the transaction certifies once
// both shard-0 validators' votes have been exchanged.
func TestLocalOnlyTransactionCertifiesWithoutProvisions(t *testing.T) {
	req := require.New(t)
	topo, signers := twoShardTopology(t)
	cfg := config.Default()
	cfg.LatentBatchThreshold = 1

	engine := stubEngine{stateRoot: types.Hash{0x42}}
	regA := &stubRegistrar{registered: make(map[types.Hash]bool)}
	mA := newTestMachine(t, 0, 0, signers[0], topo, cfg, engine, regA, stubProvisionSource{})
	mA.SetTime(time.Now())

	regB := &stubRegistrar{registered: make(map[types.Hash]bool)}
	mB := newTestMachine(t, 0, 2, signers[2], topo, cfg, engine, regB, stubProvisionSource{})
	mB.SetTime(time.Now())

	tx := types.Hash{0x01}
	gossip := events.TransactionGossipReceived{
		TransactionHash: tx,
		ReadNodes:       []types.NodeID{{1}}, // owned by shard 0
		WriteNodes:      []types.NodeID{{1}},
	}

	actsA, fatal := mA.Handle(gossip)
	req.Nil(fatal)
	req.True(regA.registered[tx])
	req.Equal(txExecuted, mA.txs[tx].state)

	actsB, fatal := mB.Handle(gossip)
	req.Nil(fatal)
	req.True(regB.registered[tx])

	var bVote types.StateVoteBlock
	var found bool
	for _, a := range actsB {
		if v, ok := decodeVote(t, a); ok {
			bVote, found = v, true
		}
	}
	req.True(found)
	req.Equal(tx, bVote.TransactionHash)

	// mA's own vote must already have been recorded as part of
	// executeAndVote; feeding B's completes the 2-of-2 shard-0 quorum.
	finalActs, fatal := mA.Handle(events.StateVoteReceived{Vote: bVote})
	req.Nil(fatal)

	var applied *types.StateCertificate
	for _, a := range finalActs {
		if ac, ok := a.(events.ApplyCertificate); ok {
			c := ac.Certificate
			applied = &c
		}
	}
	req.NotNil(applied)
	req.Equal(tx, applied.TransactionHash)
	req.True(applied.Success)
	req.Equal(types.Hash{0x42}, applied.OutputsMerkleRoot)
	req.True(types.HasQuorum(applied.VotingPower, topo.TotalPower(0)))

	_ = actsA
}

// TestCrossShardTransactionAwaitsProvisionQuorum exercises a
// transaction needing a provision from shard 1: execution is deferred
// until ProvisionQuorumReached fires for that source shard.
func TestCrossShardTransactionAwaitsProvisionQuorum(t *testing.T) {
	req := require.New(t)
	topo, signers := twoShardTopology(t)
	cfg := config.Default()
	cfg.LatentBatchThreshold = 1

	engine := stubEngine{stateRoot: types.Hash{0x7}}
	reg := &stubRegistrar{registered: make(map[types.Hash]bool)}
	ps := stubProvisionSource{entries: []types.StateProvision{{
		TransactionHash: types.Hash{0x2},
		SourceShard:     1,
		TargetShard:     0,
		Entries:         []types.StateEntry{{Node: types.NodeID{1}, Value: []byte("remote")}},
	}}}
	m := newTestMachine(t, 0, 0, signers[0], topo, cfg, engine, reg, ps)
	m.SetTime(time.Now())

	tx := types.Hash{0x2}
	gossip := events.TransactionGossipReceived{
		TransactionHash: tx,
		ReadNodes:       []types.NodeID{{0}}, // owned by shard 1
		WriteNodes:      []types.NodeID{{1}}, // owned by shard 0
	}

	_, fatal := m.Handle(gossip)
	req.Nil(fatal)
	req.True(reg.registered[tx])
	req.Equal(txAwaitingProvisions, m.txs[tx].state)
	req.Equal([]types.ShardGroupID{1}, m.txs[tx].requiredSources)

	quorumActs, fatal := m.Handle(events.ProvisionQuorumReached{TransactionHash: tx, SourceShard: 1})
	req.Nil(fatal)
	req.NotEmpty(quorumActs)
	req.Equal(txExecuted, m.txs[tx].state)
}

// fakeLivelock records the calls the cross-shard machine makes into
// its LivelockNotifier, so the wiring (not the detector's own cycle
// logic, covered by engine/livelock's tests) can be checked in
// isolation.
type fakeLivelock struct {
	registered []types.ShardGroupID
	sentTo     []types.ShardGroupID
}

func (f *fakeLivelock) RegisterCommitted(tx types.Hash, source types.ShardGroupID) {
	f.registered = append(f.registered, source)
}

func (f *fakeLivelock) NoteProvisionSent(tx types.Hash, target types.ShardGroupID) {
	f.sentTo = append(f.sentTo, target)
}

// TestForgedStateVoteDropped exercises the Merkle-proof and signature
// checks in recordVote/verifyVote: a vote whose claimed state_root
// doesn't match its Merkle proof must be dropped rather than counted
// toward quorum, so it can never inflate a certificate.
func TestForgedStateVoteDropped(t *testing.T) {
	req := require.New(t)
	topo, signers := twoShardTopology(t)
	cfg := config.Default()
	cfg.LatentBatchThreshold = 1

	engine := stubEngine{stateRoot: types.Hash{0x42}}
	regA := &stubRegistrar{registered: make(map[types.Hash]bool)}
	mA := newTestMachine(t, 0, 0, signers[0], topo, cfg, engine, regA, stubProvisionSource{})
	mA.SetTime(time.Now())

	tx := types.Hash{0x01}
	_, fatal := mA.Handle(events.TransactionGossipReceived{
		TransactionHash: tx,
		ReadNodes:       []types.NodeID{{1}}, // owned by shard 0
		WriteNodes:      []types.NodeID{{1}},
	})
	req.Nil(fatal)
	req.Equal(txExecuted, mA.txs[tx].state)

	forged := types.StateVoteBlock{
		TransactionHash:          tx,
		ShardGroupID:             0,
		StateRoot:                types.Hash{0x42},
		Success:                  true,
		Validator:                2,
		Signature:                nil, // no signature at all: must not verify
		VoteMerkleRoot:           types.Hash{0x99},
		VoteMerkleProofLeafIndex: 0,
		VoteMerkleProofSiblings:  nil,
	}

	acts, fatal := mA.Handle(events.StateVoteReceived{Vote: forged})
	req.Nil(fatal)
	for _, a := range acts {
		_, isCert := a.(events.ApplyCertificate)
		req.False(isCert, "a forged vote must never produce a certificate")
	}
}

// TestTransactionGossipFeedsLivelockNotifier verifies that registering
// a cross-shard transaction's required sources, and broadcasting a
// provision to a dependent peer, both reach the livelock detector —
// its forward/reverse indexes depend on this feed.
func TestTransactionGossipFeedsLivelockNotifier(t *testing.T) {
	req := require.New(t)
	topo, signers := twoShardTopology(t)
	cfg := config.Default()
	cfg.LatentBatchThreshold = 1

	engine := stubEngine{stateRoot: types.Hash{0x9}}
	reg := &stubRegistrar{registered: make(map[types.Hash]bool)}
	ll := &fakeLivelock{}

	_, priv, err := ed25519.GenerateKey(nil)
	req.NoError(err)
	m := New(0, 0, signers[0], priv, topo, cfg, bfttest.Logger(), engine, reg, stubProvisionSource{}, ll)
	m.SetTime(time.Now())

	// This transaction reads NodeID{0}, owned by shard 1 (so this shard
	// must await a provision from it, and shard 1 is a participant this
	// shard must provision), and writes NodeID{1}, owned by shard 0.
	tx := types.Hash{0x3}
	_, fatal := m.Handle(events.TransactionGossipReceived{
		TransactionHash: tx,
		ReadNodes:       []types.NodeID{{0}},
		WriteNodes:      []types.NodeID{{1}},
	})
	req.Nil(fatal)
	req.Equal([]types.ShardGroupID{1}, ll.registered)
	req.Equal([]types.ShardGroupID{1}, ll.sentTo)
}
