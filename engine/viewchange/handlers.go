// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package viewchange

import (
	"github.com/luxfi/shardbft/crypto/bitfield"
	bftbls "github.com/luxfi/shardbft/crypto/bls"
	"github.com/luxfi/shardbft/events"
	"github.com/luxfi/shardbft/topology"
	"github.com/luxfi/shardbft/types"
	"github.com/luxfi/shardbft/wire"
)

const timerID = "view_change"

// onTimer fires periodically; if no progress has been observed within
// the timeout window and this node has not yet broadcast a vote for
// this round, it casts one.
func (m *Machine) onTimer(e events.ViewChangeTimer) []events.Action {
	if m.currentHeight == 0 {
		return nil
	}
	if e.Now.Sub(m.lastProgress) <= m.cfg.ViewChangeTimeout {
		return nil
	}
	newRound := m.currentRound + 1
	key := collectorKey{height: m.currentHeight, newRound: newRound}
	if m.broadcasted[key] {
		return nil
	}
	m.broadcasted[key] = true

	msg := types.ViewChangeMessage(m.shard, m.currentHeight, newRound)
	sig, err := m.signer.Sign(msg)
	if err != nil {
		m.log.Debug("failed to sign view-change vote", "err", err)
		return nil
	}

	vote := wire.ViewChangeVote{
		Height:    m.currentHeight,
		NewRound:  newRound,
		Voter:     m.self,
		HighestQC: m.highestQC,
		Signature: bftbls.SignatureToBytes(sig),
	}

	actions := []events.Action{
		events.BroadcastToShard{
			Shard:   m.shard,
			Topic:   wire.Topic(wire.MsgViewChangeVote, m.shard),
			Message: wire.Compress(wire.EncodeViewChangeVote(vote)),
		},
	}
	// Process it locally too, exactly as if it had arrived over the wire.
	local := events.ViewChangeVoteReceived{
		Height:    m.currentHeight,
		NewRound:  newRound,
		Voter:     m.self,
		HighestQC: m.highestQC,
		Signature: bftbls.SignatureToBytes(sig),
	}
	actions = append(actions, m.onVoteReceived(local)...)
	return actions
}

// onVoteReceived accumulates view-change votes and forms a certificate
// once voting power crosses quorum.
func (m *Machine) onVoteReceived(e events.ViewChangeVoteReceived) []events.Action {
	if e.Height < m.currentHeight {
		return nil
	}
	if e.Height == m.currentHeight && e.NewRound <= m.currentRound {
		return nil
	}
	seat := topology.SeatOf(m.topo, m.shard, e.Voter)
	if seat < 0 {
		m.log.Debug("dropping view-change vote from non-committee validator", "voter", e.Voter)
		return nil
	}
	if !e.HighestQC.IsGenesis() && !e.HighestQC.HasQuorum(m.topo.TotalPower(m.shard)) {
		m.log.Debug("dropping view-change vote: attached highest_qc lacks quorum", "voter", e.Voter)
		return nil
	}

	sig, err := bftbls.SignatureFromBytes(e.Signature)
	if err != nil {
		m.log.Debug("dropping view-change vote: invalid signature encoding", "voter", e.Voter)
		return nil
	}
	msg := types.ViewChangeMessage(m.shard, e.Height, e.NewRound)
	pk := m.topo.PublicKey(e.Voter)
	if !bftbls.Verify(pk, sig, msg) {
		m.log.Debug("dropping view-change vote: signature does not verify", "voter", e.Voter)
		return nil
	}

	key := collectorKey{height: e.Height, newRound: e.NewRound}
	c, ok := m.collectors[key]
	if !ok {
		c = &collector{
			voters:   make(map[types.ValidatorID]struct{}),
			seatBits: bitfield.New(len(m.topo.Committee(m.shard))),
		}
		m.collectors[key] = c
	}
	if _, dup := c.voters[e.Voter]; dup {
		// Duplicate votes are pure no-ops; quorum is not re-derived from scratch.
		return nil
	}

	c.voters[e.Voter] = struct{}{}
	c.votedPower += m.topo.VotePower(e.Voter)
	c.sigs = append(c.sigs, sig)
	c.seatBits.Set(seat)
	if !c.haveMaxQC || e.HighestQC.Height > c.maxQC.Height {
		c.maxQC = e.HighestQC
		c.haveMaxQC = true
	}

	total := m.topo.TotalPower(m.shard)
	if !types.HasQuorum(c.votedPower, total) {
		return nil
	}

	aggSig, err := bftbls.AggregateSignatures(c.sigs)
	if err != nil {
		m.log.Debug("failed to aggregate view-change signatures", "err", err)
		return nil
	}

	cert := types.ViewChangeCertificate{
		Height:             e.Height,
		NewRound:           e.NewRound,
		HighestQC:          c.maxQC,
		HighestQCBlockHash: c.maxQC.BlockHash,
		AggSignature:       aggSig,
		Signers:            c.seatBits,
		VotingPower:        c.votedPower,
	}

	m.advance(e.Height, e.NewRound)
	m.log.Info("view-change certificate formed", "shard", m.shard, "height", e.Height, "new_round", e.NewRound)

	return []events.Action{
		events.EnqueueInternal{Event: events.ViewChangeCompleted{Height: e.Height, NewRound: e.NewRound}},
		events.BroadcastToShard{
			Shard:   m.shard,
			Topic:   wire.Topic(wire.MsgViewChangeCertificate, m.shard),
			Message: wire.Compress(wire.EncodeViewChangeCertificate(cert)),
		},
	}
}

// onCertificateReceived validates a peer-produced certificate and, if
// valid, advances this node's round to match.
func (m *Machine) onCertificateReceived(e events.ViewChangeCertificateReceived) []events.Action {
	c := e.Certificate
	if c.Height != m.currentHeight {
		return nil
	}
	if c.NewRound <= m.currentRound {
		return nil
	}
	total := m.topo.TotalPower(m.shard)
	if !c.HasQuorum(total) {
		m.log.Debug("dropping view-change certificate: lacks quorum", "height", c.Height)
		return nil
	}

	pks := make([]*bftbls.PublicKey, 0, len(c.Signers.Indices()))
	committee := m.topo.Committee(m.shard)
	for _, seat := range c.Signers.Indices() {
		if seat >= len(committee) {
			continue
		}
		pks = append(pks, m.topo.PublicKey(committee[seat]))
	}
	aggPK, err := bftbls.AggregatePublicKeys(pks)
	if err != nil {
		m.log.Debug("dropping view-change certificate: failed to aggregate signer keys", "err", err)
		return nil
	}
	msg := types.ViewChangeMessage(m.shard, c.Height, c.NewRound)
	if !bftbls.Verify(aggPK, c.AggSignature, msg) {
		m.log.Debug("dropping view-change certificate: aggregate signature does not verify", "height", c.Height)
		return nil
	}

	m.advance(c.Height, c.NewRound)
	m.NoteHighestQC(c.HighestQC)

	return []events.Action{
		events.EnqueueInternal{Event: events.ViewChangeCompleted{Height: c.Height, NewRound: c.NewRound}},
	}
}

func (m *Machine) advance(height types.BlockHeight, newRound types.Round) {
	m.currentHeight = height
	m.currentRound = newRound
	m.lastProgress = m.now
}

// onResetTimeout drops collectors below the new floor and records
// progress.
func (m *Machine) onResetTimeout(e events.ResetTimeout) {
	m.lastProgress = m.now
	for key := range m.collectors {
		if key.height < e.Height {
			delete(m.collectors, key)
		}
	}
	for key := range m.broadcasted {
		if key.height < e.Height {
			delete(m.broadcasted, key)
		}
	}
	if e.Height+1 > m.currentHeight {
		m.currentHeight = e.Height + 1
		m.currentRound = 0
	}
}
