// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package livelock implements the livelock detector: bidirectional-
// cycle detection between shards waiting on each other's provisions,
// resolved by deferring the transaction with the larger hash,
// escalating to abort after a configured number of unresolved rounds.
// Uses the same forward/reverse-index idiom as engine/provision,
// applied here to committed cross-shard dependency tracking.
package livelock

import (
	"bytes"

	"github.com/luxfi/log"

	"github.com/luxfi/shardbft/config"
	"github.com/luxfi/shardbft/types"
)

// CommittedCrossShardTracker maintains the forward (tx -> sources it
// needs) and reverse (source -> txs needing it) indexes of committed
// cross-shard transactions local to this shard.
type CommittedCrossShardTracker struct {
	forward map[types.Hash]map[types.ShardGroupID]struct{}
	reverse map[types.ShardGroupID]map[types.Hash]struct{}
}

func newTracker() *CommittedCrossShardTracker {
	return &CommittedCrossShardTracker{
		forward: make(map[types.Hash]map[types.ShardGroupID]struct{}),
		reverse: make(map[types.ShardGroupID]map[types.Hash]struct{}),
	}
}

func (t *CommittedCrossShardTracker) add(tx types.Hash, source types.ShardGroupID) {
	if _, ok := t.forward[tx]; !ok {
		t.forward[tx] = make(map[types.ShardGroupID]struct{})
	}
	t.forward[tx][source] = struct{}{}
	if _, ok := t.reverse[source]; !ok {
		t.reverse[source] = make(map[types.Hash]struct{})
	}
	t.reverse[source][tx] = struct{}{}
}

func (t *CommittedCrossShardTracker) remove(tx types.Hash) {
	for source := range t.forward[tx] {
		delete(t.reverse[source], tx)
	}
	delete(t.forward, tx)
}

// needsFrom reports whether any locally committed transaction still
// needs a provision from source, returning one such transaction hash.
func (t *CommittedCrossShardTracker) needsFrom(source types.ShardGroupID) (types.Hash, bool) {
	for tx := range t.reverse[source] {
		return tx, true
	}
	return types.Hash{}, false
}

// ProvisionTracker records first-observed (tx_hash, source_shard)
// pairs, deduplicating repeated cycle-check triggers for the same pair.
type ProvisionTracker struct {
	seen map[types.Hash]map[types.ShardGroupID]struct{}
}

func newProvisionTracker() *ProvisionTracker {
	return &ProvisionTracker{seen: make(map[types.Hash]map[types.ShardGroupID]struct{})}
}

// Observe records (tx, source) and reports whether it was already seen.
func (p *ProvisionTracker) Observe(tx types.Hash, source types.ShardGroupID) (alreadySeen bool) {
	set, ok := p.seen[tx]
	if !ok {
		set = make(map[types.ShardGroupID]struct{})
		p.seen[tx] = set
	}
	if _, ok := set[source]; ok {
		return true
	}
	set[source] = struct{}{}
	return false
}

// Detector finds bidirectional provision cycles; its deferRounds field
// tracks, per transaction, how many consecutive rounds it has been
// deferred by such a cycle, to drive the defer-then-abort escalation.
type Detector struct {
	local    types.ShardGroupID
	cfg      config.Config
	log      log.Logger
	tracker  *CommittedCrossShardTracker
	// provides is the mirror index: tx -> shards the LOCAL shard has
	// sent a state provision to (i.e. shards that need tx from the
	// local shard), tracked the same forward/reverse way as tracker's
	// "local needs source" index but in the opposite direction. This
	// is what lets CheckCycle answer "does the remote shard need
	// something from me" without a second round-trip message.
	provides *CommittedCrossShardTracker
	observed *ProvisionTracker
	deferRounds map[types.Hash]int

	// pendingDefer/pendingAbort are drained by the composition layer
	// into the next proposed block's Deferred/Aborted lists (the core's
	// only interface to the out-of-scope mempool, via MempoolSource).
	pendingDefer []types.Hash
	pendingAbort []types.Hash
}

// New constructs a livelock detector for the given local shard.
func New(local types.ShardGroupID, cfg config.Config, logger log.Logger) *Detector {
	return &Detector{
		local:       local,
		cfg:         cfg,
		log:         logger,
		tracker:     newTracker(),
		provides:    newTracker(),
		observed:    newProvisionTracker(),
		deferRounds: make(map[types.Hash]int),
	}
}

// DrainDeferred returns and clears the transactions deferred since the
// last drain.
func (d *Detector) DrainDeferred() []types.Hash {
	out := d.pendingDefer
	d.pendingDefer = nil
	return out
}

// DrainAborted returns and clears the transactions aborted since the
// last drain.
func (d *Detector) DrainAborted() []types.Hash {
	out := d.pendingAbort
	d.pendingAbort = nil
	return out
}

// RegisterCommitted records that the local shard has a committed
// transaction awaiting a provision from source.
func (d *Detector) RegisterCommitted(tx types.Hash, source types.ShardGroupID) {
	d.tracker.add(tx, source)
}

// NoteProvisionSent records that the local shard has sent target a
// state provision for tx — i.e. target needs tx from the local shard.
// Called by the cross-shard execution machine alongside every
// StateProvision it broadcasts, this is the other half of the
// bidirectional-cycle check: it lets a later ProvisionQuorumReached
// observation answer "does the remote shard need something from me"
// without any extra message round-trip.
func (d *Detector) NoteProvisionSent(tx types.Hash, target types.ShardGroupID) {
	d.provides.add(tx, target)
}

// Resolved clears tracking for a transaction that has finished
// (committed its certificate or been aborted).
func (d *Detector) Resolved(tx types.Hash) {
	d.tracker.remove(tx)
	d.provides.remove(tx)
	delete(d.deferRounds, tx)
}

// Outcome describes what the detector decided to do about a cycle.
type Outcome int

const (
	NoCycle Outcome = iota
	Deferred
	Aborted
)

// Result is returned when a ProvisionQuorumReached check finds a cycle.
type Result struct {
	Outcome Outcome
	Loser   types.Hash
	Winner  types.Hash
}

// CheckCycle is triggered by ProvisionQuorumReached{tx, source} — the
// local shard has just gathered a provision quorum from source for
// tx. It checks whether the local shard has any committed transaction
// needing a provision from source (tracker) AND source has,
// symmetrically, been sent a provision by the local shard for some
// transaction it still needs (provides) — i.e. a bidirectional
// dependency cycle between the two shards. The transaction with the
// larger hash is deferred; deferral escalates to abort after
// ViewChangeCooldownRounds consecutive unresolved rounds.
func (d *Detector) CheckCycle(tx types.Hash, source types.ShardGroupID) *Result {
	// observed gates on (tx, source): a repeating cycle between the
	// same shard pair only re-triggers deferral/abort escalation when
	// a distinct tx crosses quorum against that source, not on every
	// round the same pair remains stuck. That is an accepted
	// coarsening, not a missed cycle: the pair is still caught and
	// resolved the first time, and any new transaction on either side
	// re-evaluates it independently.
	if d.observed.Observe(tx, source) {
		return nil
	}
	localTx, ok := d.tracker.needsFrom(source)
	if !ok {
		return nil
	}
	remoteTx, ok := d.provides.needsFrom(source)
	if !ok {
		return nil
	}

	loser, winner := localTx, remoteTx
	if largerHash(remoteTx, localTx) {
		loser, winner = remoteTx, localTx
	}

	d.deferRounds[loser]++
	if d.deferRounds[loser] > d.cfg.ViewChangeCooldownRounds {
		delete(d.deferRounds, loser)
		d.pendingAbort = append(d.pendingAbort, loser)
		d.log.Info("aborting transaction after unresolved cycle", "tx", loser, "rounds", d.cfg.ViewChangeCooldownRounds)
		return &Result{Outcome: Aborted, Loser: loser, Winner: winner}
	}
	d.pendingDefer = append(d.pendingDefer, loser)
	d.log.Debug("deferring transaction in bidirectional cycle", "tx", loser, "winner", winner)
	return &Result{Outcome: Deferred, Loser: loser, Winner: winner}
}

// largerHash compares two 32-byte hashes as unsigned big-endian
// integers, giving every validator the same deterministic tie-break.
func largerHash(a, b types.Hash) bool {
	return bytes.Compare(a[:], b[:]) > 0
}
