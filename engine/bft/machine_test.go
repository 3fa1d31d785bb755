// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/shardbft/bfttest"
	"github.com/luxfi/shardbft/config"
	bftbls "github.com/luxfi/shardbft/crypto/bls"
	"github.com/luxfi/shardbft/events"
	"github.com/luxfi/shardbft/topology"
	"github.com/luxfi/shardbft/types"
	"github.com/luxfi/shardbft/wire"
)

type stubMempool struct{}

func (stubMempool) DrainTransactions(types.ShardGroupID, int) []types.Hash        { return nil }
func (stubMempool) DrainCertificates(types.ShardGroupID) []types.StateCertificate { return nil }
func (stubMempool) DrainDeferred(types.ShardGroupID) []types.Hash                 { return nil }
func (stubMempool) DrainAborted(types.ShardGroupID) []types.Hash                  { return nil }

func newMachines(t *testing.T, n int) (*bfttest.Committee, []*Machine) {
	t.Helper()
	c := bfttest.NewCommittee(n)
	machines := make([]*Machine, n)
	for i := 0; i < n; i++ {
		machines[i] = New(0, types.ValidatorID(i), c.Signers[i], c.Topo, config.Default(), bfttest.Logger(), stubMempool{})
	}
	return c, machines
}

func decodeBroadcast(t *testing.T, a events.Action) []byte {
	t.Helper()
	bcast, ok := a.(events.BroadcastToShard)
	require.True(t, ok)
	payload, err := wire.Decompress(bcast.Message)
	require.NoError(t, err)
	return payload
}

// TestHappySingleShardBlock exercises the single-shard happy path: 4
// equal validators, V1 (committee[(1+0) mod 4]) proposes at (h=1,r=0);
// three votes form a QC with voting_power=3 > 2*4/3.
func TestHappySingleShardBlock(t *testing.T) {
	req := require.New(t)
	_, ms := newMachines(t, 4)
	now := time.Now()
	for _, m := range ms {
		m.SetTime(now)
	}

	actions, fatal := ms[1].Handle(events.ProposalTimer{Shard: 0, Height: 1, Round: 0})
	req.Nil(fatal)
	req.Len(actions, 1)

	header, err := wire.DecodeBlockHeader(decodeBroadcast(t, actions[0]))
	req.NoError(err)
	req.Equal(types.BlockHeight(1), header.Height)

	blockHash := (types.Block{Header: header}).Hash()

	// V0, V2, V3 receive the header and cast votes.
	var voteMsgs []events.BlockVoteReceived
	for _, i := range []int{0, 2, 3} {
		acts, fatal := ms[i].Handle(events.BlockHeaderReceived{Header: header, From: 1})
		req.Nil(fatal)
		for _, a := range acts {
			if vb, ok := a.(events.BroadcastToShard); ok {
				vote, err := wire.DecodeBlockVote(decodeBroadcast(t, vb))
				req.NoError(err)
				voteMsgs = append(voteMsgs, events.BlockVoteReceived{
					Shard:     vote.Shard,
					Height:    vote.Height,
					Round:     vote.Round,
					BlockHash: vote.BlockHash,
					Voter:     vote.Voter,
					Signature: bftbls.SignatureToBytes(vote.Signature),
				})
			}
		}
	}
	req.Len(voteMsgs, 3)

	// Feed the three votes into V1's machine; the third should form a QC.
	var formedQC bool
	for _, v := range voteMsgs {
		acts, fatal := ms[1].Handle(v)
		req.Nil(fatal)
		for _, a := range acts {
			if ei, ok := a.(events.EnqueueInternal); ok {
				if qcf, ok := ei.Event.(events.QuorumCertificateFormed); ok {
					formedQC = true
					req.Equal(types.VotePower(3), qcf.QC.VotingPower)
					req.Equal(blockHash, qcf.QC.BlockHash)
				}
			}
		}
	}
	req.True(formedQC)
}

// TestBufferedBlockReplaysOnParentArrival exercises the buffer rule: a
// header whose parent is unknown is buffered rather than dropped, and
// is reprocessed once a header hashing to that parent is later handled
// and accepted. The buffered child's own parent_qc carries real quorum
// at height 1, so accepting the parent observes that QC, advances v1's
// working height to 2 in the same call (before the height gate is
// evaluated), and the replay that follows accepts and votes on the
// child too. Neither arrival commits anything: a single QC beyond
// genesis is only one link of the required two-chain.
func TestBufferedBlockReplaysOnParentArrival(t *testing.T) {
	req := require.New(t)
	c, ms := newMachines(t, 4)
	now := time.Now()
	v1 := ms[1]
	v1.SetTime(now)

	parent := types.BlockHeader{
		Height:     1,
		ParentHash: types.ZeroHash,
		ParentQC:   types.GenesisQC(),
		Proposer:   topology.ProposerFor(c.Topo, 0, 1, 0),
		Timestamp:  now,
		Round:      0,
	}
	parentHash := (types.Block{Header: parent}).Hash()

	// child's parent_qc is rigged to the real quorum that would form
	// over parentHash at height 1 (voting_power=3 of 4, matching
	// TestHappySingleShardBlock's committee).
	child := types.BlockHeader{
		Height:     2,
		ParentHash: parentHash,
		ParentQC:   types.QuorumCertificate{BlockHash: parentHash, Height: 1, VotingPower: 3},
		Proposer:   topology.ProposerFor(c.Topo, 0, 2, 0),
		Timestamp:  now,
		Round:      0,
	}

	// child's parent is unknown to v1: it must be buffered rather than
	// evaluated against v1's current working height (still 1).
	acts, fatal := v1.Handle(events.BlockHeaderReceived{Header: child, From: child.Proposer})
	req.Nil(fatal)
	req.Empty(acts)
	req.Len(v1.pending[parentHash], 1)
	req.Equal(types.BlockHeight(1), v1.CurrentHeight())

	// Delivering parent makes parentHash known; its own parent_qc is
	// genesis so accepting it alone does not advance v1. Replay then
	// reprocesses the buffered child: child's embedded QC at height 1
	// is observed before the height gate, bumping v1 to height 2 in
	// time for child's own height check to pass.
	acts2, fatal := v1.Handle(events.BlockHeaderReceived{Header: parent, From: parent.Proposer})
	req.Nil(fatal)
	req.Empty(v1.pending[parentHash])
	req.Equal(types.BlockHeight(2), v1.CurrentHeight())
	req.Equal(types.BlockHeight(0), v1.CommittedHeight())

	var sawVoteForHeight1, sawVoteForHeight2 bool
	for _, a := range acts2 {
		bc, ok := a.(events.BroadcastToShard)
		if !ok {
			continue
		}
		vote, err := wire.DecodeBlockVote(decodeBroadcast(t, bc))
		req.NoError(err)
		switch vote.Height {
		case 1:
			sawVoteForHeight1 = true
		case 2:
			sawVoteForHeight2 = true
		}
	}
	req.True(sawVoteForHeight1, "parent arrival should vote for height 1")
	req.True(sawVoteForHeight2, "replayed child should vote for height 2")
}

// TestTwoChainCommitRequiresTwoLinks exercises the two-chain commit
// rule end to end across three real, chained heights: height 1's block
// commits only once a QC forms at height 3, never at height 2 — the
// two-chain rule needs two consecutive parent_qc links beyond the
// observed QC, not one.
func TestTwoChainCommitRequiresTwoLinks(t *testing.T) {
	req := require.New(t)
	c, ms := newMachines(t, 4)
	now := time.Now()
	for _, m := range ms {
		m.SetTime(now)
	}

	var committedAfter [4]types.BlockHeight // indexed by height just finished (1,2,3)

	for h := types.BlockHeight(1); h <= 3; h++ {
		proposer := topology.ProposerFor(c.Topo, 0, h, 0)

		acts, fatal := ms[proposer].Handle(events.ProposalTimer{Shard: 0, Height: h, Round: 0})
		req.Nil(fatal)
		req.Len(acts, 1)
		header, err := wire.DecodeBlockHeader(decodeBroadcast(t, acts[0]))
		req.NoError(err)
		req.Equal(h, header.Height)

		var voteMsgs []events.BlockVoteReceived
		for i := 0; i < 4; i++ {
			if types.ValidatorID(i) == proposer {
				continue
			}
			hacts, fatal := ms[i].Handle(events.BlockHeaderReceived{Header: header, From: proposer})
			req.Nil(fatal)
			for _, a := range hacts {
				if vb, ok := a.(events.BroadcastToShard); ok {
					vote, err := wire.DecodeBlockVote(decodeBroadcast(t, vb))
					req.NoError(err)
					voteMsgs = append(voteMsgs, events.BlockVoteReceived{
						Shard:     vote.Shard,
						Height:    vote.Height,
						Round:     vote.Round,
						BlockHash: vote.BlockHash,
						Voter:     vote.Voter,
						Signature: bftbls.SignatureToBytes(vote.Signature),
					})
				}
			}
		}
		req.Len(voteMsgs, 3)

		// Broadcast every vote to every validator, including the
		// proposer, so each independently forms (or observes) the QC
		// and advances — matching a fully connected gossip shard.
		for i := 0; i < 4; i++ {
			for _, v := range voteMsgs {
				_, fatal := ms[i].Handle(v)
				req.Nil(fatal)
			}
		}

		committedAfter[h] = ms[0].CommittedHeight()
	}

	req.Equal(types.BlockHeight(0), committedAfter[1], "one QC beyond genesis must not commit")
	req.Equal(types.BlockHeight(0), committedAfter[2], "two QCs beyond genesis still only one chain link past height 1")
	req.Equal(types.BlockHeight(1), committedAfter[3], "QC at height 3 must commit height 1 via two consecutive parent_qc links")
}

func TestQuorumBoundary(t *testing.T) {
	req := require.New(t)
	// total=9, voted=6 is NOT quorum; voted=7 IS.
	req.False(types.HasQuorum(6, 9))
	req.True(types.HasQuorum(7, 9))
	// total=3, voted=2 is NOT, voted=3 IS.
	req.False(types.HasQuorum(2, 3))
	req.True(types.HasQuorum(3, 3))
}
