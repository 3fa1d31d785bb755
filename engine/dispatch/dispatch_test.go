// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dispatch

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/shardbft/bfttest"
	"github.com/luxfi/shardbft/config"
	"github.com/luxfi/shardbft/engine/bft"
	"github.com/luxfi/shardbft/engine/livelock"
	"github.com/luxfi/shardbft/engine/provision"
	"github.com/luxfi/shardbft/engine/viewchange"
	"github.com/luxfi/shardbft/engine/xshard"
	"github.com/luxfi/shardbft/events"
	"github.com/luxfi/shardbft/types"
	"github.com/luxfi/shardbft/wire"
)

type stubMempool struct{}

func (stubMempool) DrainTransactions(types.ShardGroupID, int) []types.Hash        { return nil }
func (stubMempool) DrainCertificates(types.ShardGroupID) []types.StateCertificate { return nil }
func (stubMempool) DrainDeferred(types.ShardGroupID) []types.Hash                 { return nil }
func (stubMempool) DrainAborted(types.ShardGroupID) []types.Hash                  { return nil }

type stubExecutionEngine struct{ stateRoot types.Hash }

func (s stubExecutionEngine) ReadLocal(types.Hash, types.ShardGroupID) []types.StateEntry {
	return []types.StateEntry{{Node: types.NodeID{0}, Value: []byte("v")}}
}

func (s stubExecutionEngine) Execute(tx types.Hash, entries []types.StateEntry) (types.Hash, []types.StateEntry, bool) {
	return s.stateRoot, entries, true
}

// buildDispatcher composes a single shard-0 dispatcher with real
// sub-machines, the way a node's startup code would.
func buildDispatcher(t *testing.T, shard types.ShardGroupID, self types.ValidatorID, c *bfttest.Committee) *Dispatcher {
	t.Helper()
	cfg := config.Default()
	cfg.LatentBatchThreshold = 1

	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	bftMachine := bft.New(shard, self, c.Signers[self], c.Topo, cfg, bfttest.Logger(), stubMempool{})
	vc := viewchange.New(shard, self, c.Signers[self], c.Topo, cfg, bfttest.Logger())
	provisions, err := provision.New(c.Topo, cfg, bfttest.Logger(), nil)
	require.NoError(t, err)
	ll := livelock.New(shard, cfg, bfttest.Logger())
	xs := xshard.New(shard, self, c.Signers[self], priv, c.Topo, cfg, bfttest.Logger(), stubExecutionEngine{stateRoot: types.Hash{0x42}}, provisions, provisions, ll)

	return New(shard, bfttest.Logger(), bftMachine, vc, provisions, xs, ll)
}

// TestLocalOnlyTransactionCertifiesThroughDispatcher exercises the
// composed Dispatcher end to end: a transaction whose read/write nodes
// are entirely local to the shard certifies without ever touching the
// BFT or view-change machines, and the resulting ApplyCertificate is
// picked up by the dispatcher's mempool bridge.
func TestLocalOnlyTransactionCertifiesThroughDispatcher(t *testing.T) {
	req := require.New(t)
	c := bfttest.NewCommittee(4)
	now := time.Now()

	d0 := buildDispatcher(t, 0, 0, c)
	d1 := buildDispatcher(t, 0, 1, c)
	d2 := buildDispatcher(t, 0, 2, c)
	d0.SetTime(now)
	d1.SetTime(now)
	d2.SetTime(now)

	tx := types.Hash{0x7}
	gossip := events.TransactionGossipReceived{
		TransactionHash: tx,
		ReadNodes:       []types.NodeID{{0}},
		WriteNodes:      []types.NodeID{{0}},
	}

	_, fatal := d0.Handle(gossip)
	req.Nil(fatal)

	// d0's own vote plus d1's and d2's are 3 of the 4 equal votes, the
	// smallest count strictly above two thirds.
	var finalActs []events.Action
	for _, peer := range []*Dispatcher{d1, d2} {
		peerActs, fatal := peer.Handle(gossip)
		req.Nil(fatal)

		var vote types.StateVoteBlock
		var found bool
		for _, a := range peerActs {
			bc, ok := a.(events.BroadcastToShard)
			if !ok {
				continue
			}
			payload, err := wire.Decompress(bc.Message)
			req.NoError(err)
			if v, err := wire.DecodeStateVoteBlock(payload); err == nil {
				vote, found = v, true
			}
		}
		req.True(found)

		acts, fatal := d0.Handle(events.StateVoteReceived{Vote: vote})
		req.Nil(fatal)
		finalActs = append(finalActs, acts...)
	}

	var applied *types.StateCertificate
	for _, a := range finalActs {
		if ac, ok := a.(events.ApplyCertificate); ok {
			cert := ac.Certificate
			applied = &cert
		}
	}
	req.NotNil(applied)
	req.True(applied.Success)
	req.True(types.HasQuorum(applied.VotingPower, c.Topo.TotalPower(0)))

	// The certificate must have been handed to d0's mempool bridge for
	// inclusion in the next proposed block.
	req.Len(d0.bridge.DrainCertificates(0), 1)
}

// TestDispatcherClearsStateOnCertificateReceipt exercises the
// StateCertificateReceived cleanup path: once a certificate is
// observed, the provision coordinator, livelock detector and
// cross-shard machine must all forget the transaction.
func TestDispatcherClearsStateOnCertificateReceipt(t *testing.T) {
	req := require.New(t)
	c := bfttest.NewCommittee(4)
	d := buildDispatcher(t, 0, 0, c)
	d.SetTime(time.Now())

	cert := types.StateCertificate{TransactionHash: types.Hash{0x9}, ShardGroupID: 0}
	acts, fatal := d.Handle(events.StateCertificateReceived{Certificate: cert})
	req.Nil(fatal)
	// The cleanup path emits nothing itself; it only clears internal
	// bookkeeping in the provision coordinator, livelock detector and
	// cross-shard machine so a later transaction reusing this hash
	// starts from a clean state.
	req.Empty(acts)
}
