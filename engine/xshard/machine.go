// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package xshard implements the cross-shard execution state machine:
// register a transaction's participating shards, provision peer
// shards with locally-owned state, await provisions this shard needs,
// execute once ready, batch and broadcast the execution vote, and
// assemble a StateCertificate once a quorum of votes agrees. Built on
// the same synchronous Handle(event)->actions shape as engine/bft and
// engine/viewchange, composing the engine/votebatch, engine/votetracker
// and engine/provision sub-components into one engine.
package xshard

import (
	"crypto/ed25519"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/shardbft/config"
	bftbls "github.com/luxfi/shardbft/crypto/bls"
	"github.com/luxfi/shardbft/engine/votebatch"
	"github.com/luxfi/shardbft/engine/votetracker"
	"github.com/luxfi/shardbft/errs"
	"github.com/luxfi/shardbft/events"
	"github.com/luxfi/shardbft/topology"
	"github.com/luxfi/shardbft/types"
)

// ExecutionEngine is the core's narrow callback into the out-of-scope
// execution and storage layer: the actual state-transition function
// and its storage engine live outside this package entirely.
type ExecutionEngine interface {
	// ReadLocal returns the entries this shard owns that forShard needs
	// to execute tx, or nil if this shard has nothing to contribute.
	ReadLocal(tx types.Hash, forShard types.ShardGroupID) []types.StateEntry

	// Execute runs the transaction against the merged local and
	// provisioned entries, returning the resulting state root, the
	// writes this shard must apply, and whether execution succeeded.
	Execute(tx types.Hash, entries []types.StateEntry) (stateRoot types.Hash, writes []types.StateEntry, success bool)
}

// Registrar records a transaction's participating/required-source
// shards, satisfied by *provision.Coordinator.
type Registrar interface {
	Register(tx types.Hash, participating, requiredSources []types.ShardGroupID)
}

// ProvisionSource returns the verified provisions accumulated for (tx,
// source), satisfied by *provision.Coordinator.
type ProvisionSource interface {
	Provisions(tx types.Hash, source types.ShardGroupID) []types.StateProvision
}

// LivelockNotifier is the narrow callback into the livelock detector:
// every cross-shard transaction this shard depends on, and every
// provision this shard sends a peer, feeds the detector's
// forward/reverse indexes so a later ProvisionQuorumReached can be
// checked for a bidirectional cycle. Satisfied by *livelock.Detector.
type LivelockNotifier interface {
	RegisterCommitted(tx types.Hash, source types.ShardGroupID)
	NoteProvisionSent(tx types.Hash, target types.ShardGroupID)
}

type txState int

const (
	txAwaitingProvisions txState = iota
	txExecuted
	txCommitted
)

type txTracker struct {
	tx              types.Hash
	participating   []types.ShardGroupID
	requiredSources []types.ShardGroupID
	received        map[types.ShardGroupID]bool
	readNodes       []types.NodeID
	writeNodes      []types.NodeID
	state           txState
	writes          []types.StateEntry
	certified       bool
	votes           *votetracker.Tracker
}

func (t *txTracker) allProvisionsReceived() bool {
	for _, s := range t.requiredSources {
		if !t.received[s] {
			return false
		}
	}
	return true
}

// Machine is one shard's cross-shard execution state machine.
type Machine struct {
	shard       types.ShardGroupID
	self        types.ValidatorID
	signer      bftbls.Signer
	ed25519Priv ed25519.PrivateKey
	topo        topology.Topology
	cfg         config.Config
	log         log.Logger
	engine      ExecutionEngine
	registrar   Registrar
	provisions  ProvisionSource
	livelock    LivelockNotifier
	batcher     *votebatch.Batcher

	now     time.Time
	height  types.BlockHeight
	txs     map[types.Hash]*txTracker
}

// New constructs a cross-shard execution machine. livelock may be nil
// (livelock detection is then simply not fed). engine/dispatch.New
// does not install a detector here; the caller composing a shard
// passes the same *livelock.Detector to both New and dispatch.New.
func New(
	shard types.ShardGroupID,
	self types.ValidatorID,
	signer bftbls.Signer,
	ed25519Priv ed25519.PrivateKey,
	topo topology.Topology,
	cfg config.Config,
	logger log.Logger,
	engine ExecutionEngine,
	registrar Registrar,
	provisions ProvisionSource,
	livelock LivelockNotifier,
) *Machine {
	return &Machine{
		shard:       shard,
		self:        self,
		signer:      signer,
		ed25519Priv: ed25519Priv,
		topo:        topo,
		cfg:         cfg,
		log:         logger,
		engine:      engine,
		registrar:   registrar,
		provisions:  provisions,
		livelock:    livelock,
		batcher:     votebatch.New(shard, self, signer, cfg),
		txs:         make(map[types.Hash]*txTracker),
	}
}

// SetTime injects monotonic time before each Handle call.
func (m *Machine) SetTime(now time.Time) { m.now = now }

// SetCommittedHeight records the height of this shard's locally
// committed chain, carried into StateProvisions as the height the
// provisioned state was read at.
func (m *Machine) SetCommittedHeight(h types.BlockHeight) { m.height = h }

// Handle dispatches one event to the cross-shard machine.
func (m *Machine) Handle(ev events.Event) ([]events.Action, *errs.FatalError) {
	switch e := ev.(type) {
	case events.TransactionGossipReceived:
		return m.onTransactionGossip(e)
	case events.ProvisionQuorumReached:
		return m.onProvisionQuorumReached(e)
	case events.StateVoteReceived:
		return m.onStateVoteReceived(e)
	default:
		return nil, nil
	}
}
