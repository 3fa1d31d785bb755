// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xshard

import (
	"crypto/ed25519"

	bftbls "github.com/luxfi/shardbft/crypto/bls"
	"github.com/luxfi/shardbft/crypto/merkle"
	"github.com/luxfi/shardbft/engine/votebatch"
	"github.com/luxfi/shardbft/engine/votetracker"
	"github.com/luxfi/shardbft/errs"
	"github.com/luxfi/shardbft/events"
	"github.com/luxfi/shardbft/topology"
	"github.com/luxfi/shardbft/types"
	"github.com/luxfi/shardbft/wire"
)

// onTransactionGossip is the Register + Provision phase:
// compute the participating/required-source shards from the declared
// read/write nodes, register them with the provision coordinator, and
// broadcast a StateProvision for every participating shard this node
// can already satisfy from local state. A transaction needing no
// provisions at all (every read node is local) executes immediately.
func (m *Machine) onTransactionGossip(e events.TransactionGossipReceived) ([]events.Action, *errs.FatalError) {
	if _, ok := m.txs[e.TransactionHash]; ok {
		return nil, nil
	}

	allNodes := make([]types.NodeID, 0, len(e.ReadNodes)+len(e.WriteNodes))
	allNodes = append(allNodes, e.ReadNodes...)
	allNodes = append(allNodes, e.WriteNodes...)
	participating := topology.ConsensusShards(m.topo, allNodes)

	// This shard already has its own state locally; it only awaits
	// provisions from OTHER shards that own a read node.
	var requiredSources []types.ShardGroupID
	for _, s := range topology.ProvisioningShards(m.topo, e.ReadNodes) {
		if s != m.shard {
			requiredSources = append(requiredSources, s)
		}
	}

	t := &txTracker{
		tx:              e.TransactionHash,
		participating:   participating,
		requiredSources: requiredSources,
		received:        make(map[types.ShardGroupID]bool),
		readNodes:       e.ReadNodes,
		writeNodes:      e.WriteNodes,
		state:           txAwaitingProvisions,
		votes:           votetracker.New(),
	}
	m.txs[e.TransactionHash] = t
	m.registrar.Register(e.TransactionHash, participating, requiredSources)
	if m.livelock != nil {
		for _, src := range requiredSources {
			m.livelock.RegisterCommitted(e.TransactionHash, src)
		}
	}

	var actions []events.Action
	for _, p := range participating {
		if p == m.shard {
			continue
		}
		entries := m.engine.ReadLocal(e.TransactionHash, p)
		if len(entries) == 0 {
			continue
		}
		if m.livelock != nil {
			m.livelock.NoteProvisionSent(e.TransactionHash, p)
		}
		provision := types.StateProvision{
			TransactionHash: e.TransactionHash,
			TargetShard:     p,
			SourceShard:     m.shard,
			BlockHeight:     m.height,
			Entries:         entries,
			Validator:       m.self,
		}
		msg := types.StateProvisionMessage(provision.TransactionHash, provision.TargetShard, provision.SourceShard, provision.BlockHeight, provision.EntryHashes())
		provision.Signature = ed25519.Sign(m.ed25519Priv, msg)
		actions = append(actions, events.BroadcastToShard{
			Shard:   p,
			Topic:   wire.Topic(wire.MsgStateProvisionBatch, p),
			Message: wire.Compress(wire.EncodeStateProvision(provision)),
		})
	}

	if len(requiredSources) == 0 {
		voteActions, fatal := m.executeAndVote(t)
		if fatal != nil {
			return nil, fatal
		}
		actions = append(actions, voteActions...)
	}
	return actions, nil
}

// onProvisionQuorumReached is the Await-provisions phase: once every
// required source shard has reached provision quorum, merge local and
// provisioned state and execute.
func (m *Machine) onProvisionQuorumReached(e events.ProvisionQuorumReached) ([]events.Action, *errs.FatalError) {
	t, ok := m.txs[e.TransactionHash]
	if !ok || t.state != txAwaitingProvisions {
		return nil, nil
	}
	t.received[e.SourceShard] = true
	if !t.allProvisionsReceived() {
		return nil, nil
	}
	return m.executeAndVote(t)
}

// executeAndVote merges this shard's locally owned entries with every
// required source's verified provisions, executes the transaction, and
// batches the resulting execution vote (always via the latent batch:
// cross-shard transactions complete asynchronously with respect to
// any single block.
func (m *Machine) executeAndVote(t *txTracker) ([]events.Action, *errs.FatalError) {
	entries := m.engine.ReadLocal(t.tx, m.shard)
	for _, src := range t.requiredSources {
		for _, p := range m.provisions.Provisions(t.tx, src) {
			entries = append(entries, p.Entries...)
		}
	}
	stateRoot, writes, success := m.engine.Execute(t.tx, entries)
	t.state = txExecuted
	t.writes = writes

	flushed, fatal := m.batcher.AddLatentVote(votebatch.PendingVote{
		TxHash:    t.tx,
		StateRoot: stateRoot,
		Success:   success,
	}, m.now)
	if fatal != nil {
		return nil, fatal
	}

	var actions []events.Action
	for _, v := range flushed {
		actions = append(actions, events.BroadcastToShard{
			Shard:   m.shard,
			Topic:   wire.Topic(wire.MsgStateVoteBatch, m.shard),
			Message: wire.Compress(wire.EncodeStateVoteBlock(v)),
		})
		voteActions, fatal := m.recordVote(v)
		if fatal != nil {
			return nil, fatal
		}
		actions = append(actions, voteActions...)
	}
	return actions, nil
}

// onStateVoteReceived is the Collect-votes phase.
func (m *Machine) onStateVoteReceived(e events.StateVoteReceived) ([]events.Action, *errs.FatalError) {
	return m.recordVote(e.Vote)
}

// recordVote feeds one StateVoteBlock (locally produced or received
// over the wire) into the per-transaction vote tracker, grouped by
// state_root, and attempts certificate assembly once a
// group crosses quorum. Unlike provisions, votes have no async verify
// step: a vote with an invalid Merkle proof or signature is dropped
// right here.
func (m *Machine) recordVote(v types.StateVoteBlock) ([]events.Action, *errs.FatalError) {
	t, ok := m.txs[v.TransactionHash]
	if !ok || t.certified {
		return nil, nil
	}
	if !m.verifyVote(v) {
		m.log.Debug("dropping state vote: invalid Merkle proof or signature", "tx", v.TransactionHash, "validator", v.Validator)
		return nil, nil
	}
	total := m.topo.TotalPower(m.shard)
	result := t.votes.Add(v, m.topo.VotePower(v.Validator), total)
	if result == nil {
		return nil, nil
	}
	return m.buildCertificate(t, result, total)
}

// verifyVote checks that v's leaf is included at its claimed position
// under vote_merkle_root, and that the batch's BLS signature over
// batched_vote_message(shard, block_height_or_zero, vote_merkle_root)
// verifies against the voting validator's public key.
func (m *Machine) verifyVote(v types.StateVoteBlock) bool {
	leaf := types.VoteLeafHash(v.TransactionHash, v.StateRoot, v.ShardGroupID, v.Success)
	proof := merkle.Proof{LeafIndex: v.VoteMerkleProofLeafIndex, Siblings: v.VoteMerkleProofSiblings}
	if !merkle.Verify(leaf, proof, v.VoteMerkleRoot) {
		return false
	}
	if v.Signature == nil {
		return false
	}
	pk := m.topo.PublicKey(v.Validator)
	if pk == nil {
		return false
	}
	msg := types.BatchedStateVoteMessage(v.ShardGroupID, v.BatchBlockHeight, v.VoteMerkleRoot)
	return bftbls.Verify(pk, v.Signature, msg)
}

// buildCertificate resolves the tension between state_root grouping
// and a single vote_merkle_root aggregate signature: a quorum on
// state_root may still be split across several
// vote_merkle_roots (different validators batched different sets of
// pending votes before flushing), so the votes are further grouped by
// their shared vote_merkle_root and only the largest such sub-group is
// certified — and only once that sub-group alone crosses quorum.
// Honest validators executing the same committed batch deterministically
// converge on one root, so this sub-group is expected to absorb the
// full state_root quorum in the common case.
func (m *Machine) buildCertificate(t *txTracker, result *votetracker.QuorumResult, total types.VotePower) ([]events.Action, *errs.FatalError) {
	groups := make(map[types.Hash][]types.StateVoteBlock)
	for _, v := range result.Votes {
		groups[v.VoteMerkleRoot] = append(groups[v.VoteMerkleRoot], v)
	}

	var best []types.StateVoteBlock
	var bestPower types.VotePower
	for _, g := range groups {
		var power types.VotePower
		for _, v := range g {
			power += m.topo.VotePower(v.Validator)
		}
		if power > bestPower {
			best, bestPower = g, power
		}
	}
	if !types.HasQuorum(bestPower, total) {
		return nil, nil
	}

	sigs := make([]*bftbls.Signature, len(best))
	signers := make([]types.ValidatorID, len(best))
	pks := make([]*bftbls.PublicKey, len(best))
	for i, v := range best {
		sigs[i] = v.Signature
		signers[i] = v.Validator
		pks[i] = m.topo.PublicKey(v.Validator)
	}
	aggSig, err := bftbls.AggregateSignatures(sigs)
	if err != nil {
		return nil, errs.Fatal("state vote aggregation failed: " + err.Error())
	}

	first := best[0]

	// Every vote in best already verified individually (recordVote), but
	// the assembled aggregate is checked again here against the
	// aggregated signer keys, over the same batched_vote_message the
	// individual signatures cover — the certificate must stand on its
	// own as proof, independent of the per-vote checks that fed it.
	aggPK, err := bftbls.AggregatePublicKeys(pks)
	if err != nil {
		return nil, errs.Fatal("state vote signer key aggregation failed: " + err.Error())
	}
	aggMsg := types.BatchedStateVoteMessage(m.shard, first.BatchBlockHeight, first.VoteMerkleRoot)
	if !bftbls.Verify(aggPK, aggSig, aggMsg) {
		return nil, errs.Fatal("assembled state certificate's aggregate signature does not verify")
	}
	cert := types.StateCertificate{
		TransactionHash:          t.tx,
		ShardGroupID:             m.shard,
		ReadNodes:                t.readNodes,
		StateWrites:              t.writes,
		OutputsMerkleRoot:        first.StateRoot,
		Success:                  first.Success,
		AggSignature:             aggSig,
		Signers:                  signers,
		VotingPower:              bestPower,
		VoteMerkleRoot:           first.VoteMerkleRoot,
		VoteMerkleProofLeafIndex: first.VoteMerkleProofLeafIndex,
		VoteMerkleProofSiblings:  first.VoteMerkleProofSiblings,
		BatchBlockHeight:         first.BatchBlockHeight,
	}
	t.certified = true
	t.state = txCommitted

	return []events.Action{
		events.ApplyCertificate{Certificate: cert},
		events.BroadcastToShard{
			Shard:   m.shard,
			Topic:   wire.Topic(wire.MsgStateCertificateBatch, m.shard),
			Message: wire.Compress(wire.EncodeStateCertificate(cert)),
		},
	}, nil
}

// Forget drops all tracked state for a transaction that has finished
// (certified or externally aborted by the livelock detector).
func (m *Machine) Forget(tx types.Hash) {
	delete(m.txs, tx)
}
