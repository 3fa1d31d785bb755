// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bft

import (
	"github.com/luxfi/shardbft/crypto/bitfield"
	bftbls "github.com/luxfi/shardbft/crypto/bls"
	"github.com/luxfi/shardbft/errs"
	"github.com/luxfi/shardbft/events"
	"github.com/luxfi/shardbft/topology"
	"github.com/luxfi/shardbft/types"
	"github.com/luxfi/shardbft/wire"
)

// onProposalTimer fires at (height, round); if this node is the
// expected proposer it builds and broadcasts a block, otherwise it is
// a no-op.
func (m *Machine) onProposalTimer(e events.ProposalTimer) []events.Action {
	if e.Height != m.height || e.Round != m.round {
		return nil
	}
	expected := topology.ProposerFor(m.topo, m.shard, m.height, m.round)
	if expected != m.self {
		return nil
	}
	if m.awaitingVotes != nil {
		return nil
	}

	header := types.BlockHeader{
		Height:     m.height,
		ParentHash: m.highestQC.BlockHash,
		ParentQC:   m.highestQC,
		Proposer:   m.self,
		Timestamp:  m.now,
		Round:      m.round,
	}
	block := types.Block{
		Header:                header,
		Transactions:          m.mempool.DrainTransactions(m.shard, 0),
		CommittedCertificates: m.mempool.DrainCertificates(m.shard),
		Deferred:              m.mempool.DrainDeferred(m.shard),
		Aborted:               m.mempool.DrainAborted(m.shard),
	}
	hash := block.Hash()
	m.headers[hash] = header
	h := hash
	m.awaitingVotes = &h

	m.log.Info("proposing block", "shard", m.shard, "height", m.height, "round", m.round, "hash", hash)

	return []events.Action{
		events.BroadcastToShard{
			Shard:   m.shard,
			Topic:   wire.Topic(wire.MsgBlockHeader, m.shard),
			Message: wire.Compress(wire.EncodeBlockHeader(header)),
		},
	}
}

// onBlockHeaderReceived validates and, on success, casts a vote.
func (m *Machine) onBlockHeaderReceived(e events.BlockHeaderReceived) ([]events.Action, *errs.FatalError) {
	header := e.Header
	hash := (types.Block{Header: header}).Hash()

	if _, known := m.headers[header.ParentHash]; !known && header.ParentHash != types.ZeroHash {
		m.bufferBlock(header)
		m.log.Debug("buffering block with unknown parent", "parent", header.ParentHash)
		return nil, nil
	}

	if fatal := m.checkEquivocation(header); fatal != nil {
		return nil, fatal
	}

	if !qcSatisfied(header.ParentQC, m.topo.TotalPower(m.shard)) {
		m.log.Debug("dropping block: parent QC lacks quorum", "height", header.Height)
		return nil, nil
	}

	// Observe the embedded parent_qc before gating on height: a header
	// one step ahead of our working height legitimately carries the QC
	// that justifies advancing to it, and that advance must land before
	// the height check below, or a node that tracked no votes itself
	// (only headers) could never catch up.
	preActions := m.observeQC(header.ParentQC)

	expectedProposer := topology.ProposerFor(m.topo, m.shard, header.Height, header.Round)
	if header.Proposer != expectedProposer {
		m.log.Debug("dropping block: wrong proposer", "height", header.Height, "got", header.Proposer, "want", expectedProposer)
		return preActions, nil
	}
	if header.Height != m.height || header.Round < m.round {
		m.log.Debug("dropping block: unexpected height/round", "height", header.Height, "want", m.height)
		return preActions, nil
	}

	m.headers[hash] = header
	actions := preActions

	msg := types.BlockVoteMessage(m.shard, header.Height, header.Round, hash)
	sig, err := m.signer.Sign(msg)
	if err != nil {
		m.log.Debug("failed to sign block vote", "err", err)
		return actions, nil
	}

	vote := wire.BlockVote{
		Shard:     m.shard,
		Height:    header.Height,
		Round:     header.Round,
		BlockHash: hash,
		Voter:     m.self,
		Signature: sig,
	}
	actions = append(actions, events.BroadcastToShard{
		Shard:   m.shard,
		Topic:   wire.Topic(wire.MsgBlockVote, m.shard),
		Message: wire.Compress(wire.EncodeBlockVote(vote)),
	})

	replayed, fatal := m.replayPending(hash)
	if fatal != nil {
		return actions, fatal
	}
	return append(actions, replayed...), nil
}

// replayPending reprocesses every header previously buffered because
// its parent was unknown, now that a header hashing to parent has just
// become known. Replay recurses through onBlockHeaderReceived,
// so a chain of several buffered blocks arriving out of order unwinds
// in one pass once its earliest missing parent shows up.
func (m *Machine) replayPending(parent types.Hash) ([]events.Action, *errs.FatalError) {
	headers, ok := m.pending[parent]
	if !ok {
		return nil, nil
	}
	delete(m.pending, parent)

	var actions []events.Action
	for _, h := range headers {
		acts, fatal := m.onBlockHeaderReceived(events.BlockHeaderReceived{Header: h})
		if fatal != nil {
			return actions, fatal
		}
		actions = append(actions, acts...)
	}
	return actions, nil
}

// onBlockVoteReceived accumulates votes and forms a QC once the
// accumulated voting power exceeds 2/3.
func (m *Machine) onBlockVoteReceived(e events.BlockVoteReceived) ([]events.Action, *errs.FatalError) {
	seat := topology.SeatOf(m.topo, m.shard, e.Voter)
	if seat < 0 {
		m.log.Debug("dropping vote from non-committee validator", "voter", e.Voter)
		return nil, nil
	}
	if pinned, ok := m.qcPinned[e.Height]; ok && pinned != e.BlockHash {
		m.log.Debug("dropping vote: height already has a pinned QC for a different block", "height", e.Height)
		return nil, nil
	}

	key := voteKey{height: e.Height, hash: e.BlockHash}
	vs, ok := m.voteSets[key]
	if !ok {
		vs = &voteSet{
			voters:   make(map[types.ValidatorID]struct{}),
			seatBits: bitfield.New(len(m.topo.Committee(m.shard))),
			round:    e.Round,
		}
		m.voteSets[key] = vs
	}
	if _, dup := vs.voters[e.Voter]; dup {
		// Duplicate votes are pure no-ops: ignored and quorum is not
		// re-derived from scratch.
		return nil, nil
	}

	sig, err := bftbls.SignatureFromBytes(e.Signature)
	if err != nil {
		m.log.Debug("dropping vote: invalid signature encoding", "voter", e.Voter)
		return nil, nil
	}
	msg := types.BlockVoteMessage(m.shard, e.Height, e.Round, e.BlockHash)
	pk := m.topo.PublicKey(e.Voter)
	if !bftbls.Verify(pk, sig, msg) {
		m.log.Debug("dropping vote: signature does not verify", "voter", e.Voter)
		return nil, nil
	}

	vs.voters[e.Voter] = struct{}{}
	vs.votedPower += m.topo.VotePower(e.Voter)
	vs.sigs = append(vs.sigs, sig)
	vs.seatBits.Set(seat)

	total := m.topo.TotalPower(m.shard)
	if !types.HasQuorum(vs.votedPower, total) {
		return nil, nil
	}
	if _, already := m.qcPinned[e.Height]; already {
		return nil, nil
	}
	m.qcPinned[e.Height] = e.BlockHash

	aggSig, err := bftbls.AggregateSignatures(vs.sigs)
	if err != nil {
		m.log.Debug("failed to aggregate block vote signatures", "err", err)
		return nil, nil
	}

	qc := types.QuorumCertificate{
		BlockHash:    e.BlockHash,
		Height:       e.Height,
		Round:        e.Round,
		Shard:        m.shard,
		AggSignature: aggSig,
		Signers:      vs.seatBits,
		VotingPower:  vs.votedPower,
	}

	actions := []events.Action{
		events.EnqueueInternal{Event: events.QuorumCertificateFormed{QC: qc}},
	}
	actions = append(actions, m.observeQC(qc)...)
	if qc.Height >= m.highestQC.Height {
		m.highestQC = qc
	}
	return actions, nil
}

// qcSatisfied reports whether qc can stand as a valid justification
// for the block it certifies: either the genesis sentinel, or a real
// quorum over the shard's total voting power.
func qcSatisfied(qc types.QuorumCertificate, total types.VotePower) bool {
	return qc.IsGenesis() || qc.HasQuorum(total)
}

// observeQC processes one newly observed QC certifying block B' at
// height h' — either freshly formed by local vote aggregation, or
// embedded as a received header's parent_qc (the mechanism by which a
// node that did not itself track every vote still learns a QC
// formed). It optimistically advances the machine's working height
// past h', independent of commit, so the pipeline keeps proposing
// while commit trails behind.
//
// It also evaluates the 2-chain commit rule: B' carries its own
// parent_qc certifying B2 at h'-1 (the now-locked block); if B2's own
// parent_qc in turn carries quorum, it certifies the grandparent B at
// h'-2, which commits. Committing on a single link (committing B2
// itself the moment qc is observed) would be a 1-chain rule and does
// not provide the safety HotStuff-2 relies on.
func (m *Machine) observeQC(qc types.QuorumCertificate) []events.Action {
	total := m.topo.TotalPower(m.shard)
	if !qcSatisfied(qc, total) {
		return nil
	}
	if qc.Height+1 > m.height {
		m.height = qc.Height + 1
		m.round = 0
		m.awaitingVotes = nil
	}

	bPrime, ok := m.headers[qc.BlockHash]
	if !ok {
		return nil
	}
	if !qcSatisfied(bPrime.ParentQC, total) {
		return nil
	}
	locked, ok := m.headers[bPrime.ParentQC.BlockHash]
	if !ok {
		return nil
	}
	if !qcSatisfied(locked.ParentQC, total) {
		return nil
	}

	commitHeight := locked.ParentQC.Height
	commitHash := locked.ParentQC.BlockHash
	if commitHeight <= m.committedHeight {
		return nil
	}
	m.committedHeight = commitHeight
	m.committedHash[commitHeight] = commitHash
	m.evictOldPending()

	m.log.Info("committed block", "shard", m.shard, "height", commitHeight, "hash", commitHash)

	return []events.Action{
		events.EnqueueInternal{Event: events.ResetTimeout{Height: commitHeight}},
	}
}

func (m *Machine) onViewChangeCompleted(e events.ViewChangeCompleted) []events.Action {
	if e.Height > m.height {
		m.height = e.Height
		m.round = 0
		m.awaitingVotes = nil
	}
	return nil
}

func (m *Machine) bufferBlock(header types.BlockHeader) {
	m.pending[header.ParentHash] = append(m.pending[header.ParentHash], header)
}

// evictOldPending drops every buffered block at or below the committed
// height.
func (m *Machine) evictOldPending() {
	for parent, headers := range m.pending {
		kept := headers[:0]
		for _, h := range headers {
			if h.Height > m.committedHeight {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(m.pending, parent)
		} else {
			m.pending[parent] = kept
		}
	}
}

// checkEquivocation performs no check and always returns nil: a
// proposer double-proposing at one height is not detected at the
// header level. Votes for a second hash at a height whose QC is
// already pinned are dropped by the vote path's qcPinned check;
// conflicting double-signed QCs are not detected anywhere.
func (m *Machine) checkEquivocation(header types.BlockHeader) *errs.FatalError {
	return nil
}
