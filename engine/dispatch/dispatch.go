// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dispatch composes the per-shard sub-state-machines (BFT
// consensus, view change, provision coordination, cross-shard
// execution, livelock detection) into the single synchronous
// Handle(event)->actions entry point the external runner drives,
// plus the internal re-dispatch loop HotStuff-2's QC-forwarding view
// change and the execution machine's ProvisionQuorumReached handoff
// both depend on.
package dispatch

import (
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/shardbft/engine/bft"
	"github.com/luxfi/shardbft/engine/livelock"
	"github.com/luxfi/shardbft/engine/provision"
	"github.com/luxfi/shardbft/engine/viewchange"
	"github.com/luxfi/shardbft/engine/xshard"
	"github.com/luxfi/shardbft/errs"
	"github.com/luxfi/shardbft/events"
	"github.com/luxfi/shardbft/types"
)

// TransactionSource supplies pending transaction hashes for a new
// proposal; the only piece of the mempool this package does not
// itself assemble (ordinary, non-cross-shard mempool management is
// out of core scope).
type TransactionSource interface {
	DrainTransactions(shard types.ShardGroupID, max int) []types.Hash
}

// Dispatcher owns one shard's full set of sub-machines and routes
// each incoming Event to the machine (or machines) whose Handle
// claims it, resolving every EnqueueInternal action produced along the
// way before returning to the caller. No event kind is claimed by
// more than one machine (see DESIGN.md).
type Dispatcher struct {
	shard types.ShardGroupID
	log   log.Logger

	bft        *bft.Machine
	viewChange *viewchange.Machine
	provisions *provision.Coordinator
	xshard     *xshard.Machine
	livelock   *livelock.Detector

	bridge *mempoolBridge
}

// New composes a shard's sub-machines. It creates a mempool bridge
// that collects the state certificates and deferred/aborted
// transactions produced by the xshard and livelock machines, exposed
// through Bridge. New does not install the bridge into bftMachine,
// which keeps drawing from the MempoolSource it was constructed with.
func New(
	shard types.ShardGroupID,
	logger log.Logger,
	bftMachine *bft.Machine,
	viewChange *viewchange.Machine,
	provisions *provision.Coordinator,
	xshardMachine *xshard.Machine,
	livelockDetector *livelock.Detector,
) *Dispatcher {
	return &Dispatcher{
		shard:      shard,
		log:        logger,
		bft:        bftMachine,
		viewChange: viewChange,
		provisions: provisions,
		xshard:     xshardMachine,
		livelock:   livelockDetector,
		bridge:     newMempoolBridge(livelockDetector),
	}
}

// Bridge returns the bft.MempoolSource this dispatcher feeds; wire a
// TransactionSource into it once before driving the first event.
func (d *Dispatcher) Bridge() *mempoolBridge { return d.bridge }

// SetTime injects monotonic time into every sub-machine that consults
// it, per the state-machine contract.
func (d *Dispatcher) SetTime(now time.Time) {
	d.bft.SetTime(now)
	d.viewChange.SetTime(now)
	d.xshard.SetTime(now)
}

// Handle routes one externally-sourced event through the owning
// sub-machine(s) and fully resolves any internal follow-up events
// before returning. The returned actions are exactly the ones meant
// for the external runner (broadcasts, timers, certificate
// application); EnqueueInternal is never surfaced past this boundary.
func (d *Dispatcher) Handle(ev events.Event) ([]events.Action, *errs.FatalError) {
	acts, fatal := d.route(ev)
	if fatal != nil {
		return nil, fatal
	}
	return d.resolve(acts)
}

// resolve walks a batch of actions, recursively dispatching every
// EnqueueInternal event and splicing in whatever external actions it
// produces, until nothing internal remains.
func (d *Dispatcher) resolve(acts []events.Action) ([]events.Action, *errs.FatalError) {
	var out []events.Action
	for _, a := range acts {
		internal, ok := a.(events.EnqueueInternal)
		if !ok {
			out = append(out, a)
			continue
		}
		follow, fatal := d.route(internal.Event)
		if fatal != nil {
			return nil, fatal
		}
		resolved, fatal := d.resolve(follow)
		if fatal != nil {
			return nil, fatal
		}
		out = append(out, resolved...)
	}
	return out, nil
}

// route dispatches one event to the sub-machine(s) that own its
// concrete type, applying whatever cross-machine bookkeeping that
// event also triggers (QC-forwarding sync, certificate pickup,
// completed-transaction cleanup).
func (d *Dispatcher) route(ev events.Event) ([]events.Action, *errs.FatalError) {
	switch e := ev.(type) {
	case events.ProposalTimer, events.BlockHeaderReceived, events.BlockVoteReceived, events.QuorumCertificateFormed:
		acts, fatal := d.bft.Handle(ev)
		if fatal != nil {
			return nil, fatal
		}
		d.viewChange.SyncHeight(d.bft.CurrentHeight(), d.bft.CurrentRound())
		d.viewChange.NoteHighestQC(d.bft.HighestQC())
		return acts, nil

	case events.ResetTimeout:
		_, fatal := d.viewChange.Handle(ev)
		return nil, fatal

	case events.ViewChangeTimer, events.ViewChangeVoteReceived, events.ViewChangeCertificateReceived:
		return d.viewChange.Handle(ev)

	case events.ViewChangeCompleted:
		return d.bft.Handle(ev)

	case events.StateProvisionReceived, events.ProvisionSignatureVerified:
		return d.provisions.Handle(ev)

	case events.ProvisionQuorumReached:
		// Cycle check runs first: a loser transaction is
		// forgotten before the cross-shard machine acts on this same
		// event, so if the event's own transaction turns out to be the
		// loser, onProvisionQuorumReached simply finds no tracker state
		// left and does nothing.
		if result := d.livelock.CheckCycle(e.TransactionHash, e.SourceShard); result != nil && result.Outcome != livelock.NoCycle {
			d.xshard.Forget(result.Loser)
			d.provisions.Clear(result.Loser)
		}
		return d.xshard.Handle(ev)

	case events.TransactionGossipReceived, events.StateVoteReceived:
		acts, fatal := d.xshard.Handle(ev)
		if fatal != nil {
			return nil, fatal
		}
		for _, a := range acts {
			if ac, ok := a.(events.ApplyCertificate); ok {
				d.bridge.addCertificate(ac.Certificate)
			}
		}
		return acts, nil

	case events.StateCertificateReceived:
		d.provisions.Clear(e.Certificate.TransactionHash)
		d.livelock.Resolved(e.Certificate.TransactionHash)
		d.xshard.Forget(e.Certificate.TransactionHash)
		return nil, nil

	default:
		return nil, nil
	}
}
