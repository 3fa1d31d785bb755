// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package viewchange implements the view-change state machine:
// proposer-timeout detection and coordinated round increment with QC
// forwarding, the HotStuff-2 safety invariant that lets the chain
// advance past a stalled proposer without losing any possibly
// committed block. Grounded on the same synchronous Handle(event)
// pattern as engine/bft.
package viewchange

import (
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/shardbft/config"
	"github.com/luxfi/shardbft/crypto/bitfield"
	bftbls "github.com/luxfi/shardbft/crypto/bls"
	"github.com/luxfi/shardbft/errs"
	"github.com/luxfi/shardbft/events"
	"github.com/luxfi/shardbft/topology"
	"github.com/luxfi/shardbft/types"
)

type collectorKey struct {
	height   types.BlockHeight
	newRound types.Round
}

type collector struct {
	votedPower types.VotePower
	voters     map[types.ValidatorID]struct{}
	sigs       []*bftbls.Signature
	seatBits   bitfield.Bitfield
	maxQC      types.QuorumCertificate
	haveMaxQC  bool
}

// Machine is one shard's view-change state machine.
type Machine struct {
	shard  types.ShardGroupID
	self   types.ValidatorID
	signer bftbls.Signer
	topo   topology.Topology
	cfg    config.Config
	log    log.Logger
	now    time.Time

	currentHeight types.BlockHeight
	currentRound  types.Round
	highestQC     types.QuorumCertificate

	lastProgress time.Time
	broadcasted  map[collectorKey]bool

	collectors map[collectorKey]*collector
}

// New constructs a view-change machine seeded at genesis.
func New(shard types.ShardGroupID, self types.ValidatorID, signer bftbls.Signer, topo topology.Topology, cfg config.Config, logger log.Logger) *Machine {
	return &Machine{
		shard:       shard,
		self:        self,
		signer:      signer,
		topo:        topo,
		cfg:         cfg,
		log:         logger,
		highestQC:   types.GenesisQC(),
		broadcasted: make(map[collectorKey]bool),
		collectors:  make(map[collectorKey]*collector),
	}
}

// SetTime injects monotonic time before each Handle call.
func (m *Machine) SetTime(now time.Time) { m.now = now }

// SyncHeight lets the BFT machine's advancement drive this machine's
// notion of current height/round (they track the same chain position).
func (m *Machine) SyncHeight(height types.BlockHeight, round types.Round) {
	if height > m.currentHeight {
		m.currentHeight = height
		m.currentRound = 0
	} else if height == m.currentHeight && round > m.currentRound {
		m.currentRound = round
	}
}

// NoteHighestQC records the highest QC this node has observed, carried
// in the next ViewChangeVote this node broadcasts.
func (m *Machine) NoteHighestQC(qc types.QuorumCertificate) {
	if qc.Height >= m.highestQC.Height {
		m.highestQC = qc
	}
}

// Handle dispatches one event to the view-change machine.
func (m *Machine) Handle(ev events.Event) ([]events.Action, *errs.FatalError) {
	switch e := ev.(type) {
	case events.ViewChangeTimer:
		return m.onTimer(e), nil
	case events.ViewChangeVoteReceived:
		return m.onVoteReceived(e), nil
	case events.ViewChangeCertificateReceived:
		return m.onCertificateReceived(e), nil
	case events.ResetTimeout:
		m.onResetTimeout(e)
		return nil, nil
	default:
		return nil, nil
	}
}

func (m *Machine) isMine(ev events.Event) bool {
	switch ev.(type) {
	case events.ViewChangeTimer, events.ViewChangeVoteReceived, events.ViewChangeCertificateReceived, events.ResetTimeout:
		return true
	default:
		return false
	}
}
