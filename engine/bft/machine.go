// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bft implements the per-shard HotStuff-2-style BFT state
// machine: proposal, vote collection, QC formation, and the 2-chain
// commit rule, as a synchronous Handle(event)->actions core that owns
// its own state and emits actions for an external runner to execute.
package bft

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

// MempoolSource supplies the contents of a new proposal; it is the
// core's only callback into the (out-of-scope) mempool and execution
// layer.
type MempoolSource interface {
	DrainTransactions(shard types.ShardGroupID, max int) []types.Hash
	DrainCertificates(shard types.ShardGroupID) []types.StateCertificate
	DrainDeferred(shard types.ShardGroupID) []types.Hash
	DrainAborted(shard types.ShardGroupID) []types.Hash
}

// Machine is one shard's BFT state machine.
type Machine struct {
	shard    types.ShardGroupID
	self     types.ValidatorID
	signer   bftbls.Signer
	topo     topology.Topology
	cfg      config.Config
	log      log.Logger
	mempool  MempoolSource
	now      time.Time

	// Chain state.
	headers         map[types.Hash]types.BlockHeader
	committedHeight types.BlockHeight
	committedHash   map[types.BlockHeight]types.Hash
	highestQC       types.QuorumCertificate

	// height/round is the machine's current working position: the
	// next height it expects to propose or vote on, and its round
	// within that height (advanced by view change on timeout).
	height types.BlockHeight
	round  types.Round

	// Pending proposal awaiting votes.
	awaitingVotes *types.Hash

	// Per-(height,hash) vote accumulators, and the first hash pinned
	// to quorum at a height (equivocation resistance).
	voteSets     map[voteKey]*voteSet
	qcPinned     map[types.BlockHeight]types.Hash

	// Buffered headers awaiting an unknown parent, keyed by parent hash.
	pending map[types.Hash][]types.BlockHeader
}

type voteKey struct {
	height types.BlockHeight
	hash   types.Hash
}

type voteSet struct {
	votedPower types.VotePower
	voters     map[types.ValidatorID]struct{}
	sigs       []*bftbls.Signature
	seatBits   bitfield.Bitfield
	round      types.Round
}

// New constructs a BFT machine seeded at genesis.
func New(shard types.ShardGroupID, self types.ValidatorID, signer bftbls.Signer, topo topology.Topology, cfg config.Config, logger log.Logger, mempool MempoolSource) *Machine {
	genesis := types.GenesisHeader()
	m := &Machine{
		shard:           shard,
		self:            self,
		signer:          signer,
		topo:            topo,
		cfg:             cfg,
		log:             logger,
		mempool:         mempool,
		headers:         map[types.Hash]types.BlockHeader{genesis.Hash(): genesis},
		committedHeight: 0,
		committedHash:   map[types.BlockHeight]types.Hash{0: genesis.Hash()},
		highestQC:       types.GenesisQC(),
		height:          1,
		round:           0,
		voteSets:        make(map[voteKey]*voteSet),
		qcPinned:        make(map[types.BlockHeight]types.Hash),
		pending:         make(map[types.Hash][]types.BlockHeader),
	}
	return m
}

// SetTime injects monotonic time before each Handle call, per the
// state-machine contract.
func (m *Machine) SetTime(now time.Time) { m.now = now }

// HighestQC exposes the machine's current highest-known QC (consulted
// by the view-change machine for QC forwarding).
func (m *Machine) HighestQC() types.QuorumCertificate { return m.highestQC }

// CommittedHeight returns the highest committed height.
func (m *Machine) CommittedHeight() types.BlockHeight { return m.committedHeight }

// Handle dispatches one event. Returns the actions to execute and,
// on a detected invariant violation, a non-nil FatalError.
func (m *Machine) Handle(ev events.Event) ([]events.Action, *errs.FatalError) {
	switch e := ev.(type) {
	case events.ProposalTimer:
		return m.onProposalTimer(e), nil
	case events.BlockHeaderReceived:
		return m.onBlockHeaderReceived(e)
	case events.BlockVoteReceived:
		return m.onBlockVoteReceived(e)
	case events.ViewChangeCompleted:
		return m.onViewChangeCompleted(e), nil
	case events.QuorumCertificateFormed:
		if e.QC.Height >= m.highestQC.Height {
			m.highestQC = e.QC
		}
		return nil, nil
	default:
		return nil, nil
	}
}

// CurrentHeight and CurrentRound expose the machine's working position.
func (m *Machine) CurrentHeight() types.BlockHeight { return m.height }
func (m *Machine) CurrentRound() types.Round        { return m.round }
