// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package provision implements the provision coordinator: it
// centralizes the lifecycle of cross-shard StateProvisions so that
// only cryptographically verified provisions can ever drive a state
// transition. It follows a register/accumulate/detect-quorum shape,
// with a Prometheus gauge tracking in-flight registrations.
package provision

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/log"

	"github.com/luxfi/shardbft/config"
	"github.com/luxfi/shardbft/errs"
	"github.com/luxfi/shardbft/events"
	"github.com/luxfi/shardbft/topology"
	"github.com/luxfi/shardbft/types"
)

var errFailedPendingMetric = errors.New("failed to register cross_shard_pending metric")

// registration records which shards a transaction must reach and
// which source shards must provision it.
type registration struct {
	participatingShards []types.ShardGroupID
	requiredSources     []types.ShardGroupID
}

type txSource struct {
	tx     types.Hash
	source types.ShardGroupID
}

type accumulator struct {
	provisions []types.StateProvision
	voters     map[types.ValidatorID]struct{}
	power      types.VotePower
	reached    bool
}

// Coordinator owns provision registration, verified-provision
// accumulation and quorum-gating for every in-flight cross-shard
// transaction this shard participates in.
type Coordinator struct {
	topo topology.Topology
	cfg  config.Config
	log  log.Logger

	registered map[types.Hash]*registration
	accum      map[txSource]*accumulator
	// reverse index: source_shard -> set of tx hashes awaiting a
	// provision from it.
	awaiting map[types.ShardGroupID]map[types.Hash]struct{}

	pendingGauge prometheus.Gauge
}

// New constructs a provision coordinator, registering its metrics on
// reg.
func New(topo topology.Topology, cfg config.Config, logger log.Logger, reg prometheus.Registerer) (*Coordinator, error) {
	pendingGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cross_shard_pending",
		Help: "Number of cross-shard transactions registered and awaiting provisions",
	})
	if reg != nil {
		if err := reg.Register(pendingGauge); err != nil {
			return nil, fmt.Errorf("%w: %w", errFailedPendingMetric, err)
		}
	}
	return &Coordinator{
		topo:         topo,
		cfg:          cfg,
		log:          logger,
		registered:   make(map[types.Hash]*registration),
		accum:        make(map[txSource]*accumulator),
		awaiting:     make(map[types.ShardGroupID]map[types.Hash]struct{}),
		pendingGauge: pendingGauge,
	}, nil
}

// Register records a transaction's participating shards and required
// provisioning source shards. Idempotent.
func (c *Coordinator) Register(tx types.Hash, participating, requiredSources []types.ShardGroupID) {
	if _, ok := c.registered[tx]; ok {
		return
	}
	c.registered[tx] = &registration{participatingShards: participating, requiredSources: requiredSources}
	for _, src := range requiredSources {
		set, ok := c.awaiting[src]
		if !ok {
			set = make(map[types.Hash]struct{})
			c.awaiting[src] = set
		}
		set[tx] = struct{}{}
	}
	if c.pendingGauge != nil {
		c.pendingGauge.Inc()
	}
}

// Handle dispatches provision-lifecycle events.
func (c *Coordinator) Handle(ev events.Event) ([]events.Action, *errs.FatalError) {
	switch e := ev.(type) {
	case events.StateProvisionReceived:
		return c.onProvisionReceived(e), nil
	case events.ProvisionSignatureVerified:
		return c.onSignatureVerified(e), nil
	default:
		return nil, nil
	}
}

// onProvisionReceived auto-registers unknown transactions (a remote
// transaction this shard must provision for a peer) and requests
// signature verification; unverified provisions never affect state.
func (c *Coordinator) onProvisionReceived(e events.StateProvisionReceived) []events.Action {
	p := e.Provision
	if _, ok := c.registered[p.TransactionHash]; !ok {
		c.Register(p.TransactionHash, []types.ShardGroupID{p.TargetShard}, []types.ShardGroupID{p.SourceShard})
	}
	return []events.Action{
		events.VerifyProvisionSignature{Provision: p},
	}
}

// onSignatureVerified stores a verified provision, updates indexes and
// emits ProvisionQuorumReached the first time a source shard's
// committee crosses quorum for this transaction.
func (c *Coordinator) onSignatureVerified(e events.ProvisionSignatureVerified) []events.Action {
	if !e.Valid {
		c.log.Debug("dropping provision: signature invalid", "tx", e.Provision.TransactionHash, "validator", e.Provision.Validator)
		return nil
	}
	p := e.Provision
	key := txSource{tx: p.TransactionHash, source: p.SourceShard}
	acc, ok := c.accum[key]
	if !ok {
		acc = &accumulator{voters: make(map[types.ValidatorID]struct{})}
		c.accum[key] = acc
	}
	if _, dup := acc.voters[p.Validator]; dup {
		return nil
	}
	acc.voters[p.Validator] = struct{}{}
	acc.provisions = append(acc.provisions, p)
	acc.power += c.topo.VotePower(p.Validator)

	if acc.reached {
		return nil
	}
	total := c.topo.TotalPower(p.SourceShard)
	if !types.HasQuorum(acc.power, total) {
		return nil
	}
	acc.reached = true

	if set, ok := c.awaiting[p.SourceShard]; ok {
		delete(set, p.TransactionHash)
	}

	return []events.Action{
		events.EnqueueInternal{Event: events.ProvisionQuorumReached{TransactionHash: p.TransactionHash, SourceShard: p.SourceShard}},
	}
}

// Provisions returns the verified provisions accumulated so far for
// (tx, source); it does not check whether quorum has been reached.
func (c *Coordinator) Provisions(tx types.Hash, source types.ShardGroupID) []types.StateProvision {
	acc, ok := c.accum[txSource{tx: tx, source: source}]
	if !ok {
		return nil
	}
	return acc.provisions
}

// AwaitingFrom reports the set of transactions this shard still awaits
// provisions from source for.
func (c *Coordinator) AwaitingFrom(source types.ShardGroupID) []types.Hash {
	set, ok := c.awaiting[source]
	if !ok {
		return nil
	}
	out := make([]types.Hash, 0, len(set))
	for tx := range set {
		out = append(out, tx)
	}
	return out
}

// CanAcceptCrossShard implements the mempool backpressure gate: new
// cross-shard transactions are refused once the registered count
// reaches max_cross_shard_pending, unless the candidate already has
// one or more received provisions (another shard has committed and
// progress must be enabled).
func (c *Coordinator) CanAcceptCrossShard(tx types.Hash) bool {
	if len(c.registered) < c.cfg.MaxCrossShardPending {
		return true
	}
	for key := range c.accum {
		if key.tx == tx {
			return true
		}
	}
	return false
}

// Clear drops all tracked state for a completed or aborted
// transaction.
func (c *Coordinator) Clear(tx types.Hash) {
	reg, ok := c.registered[tx]
	if !ok {
		return
	}
	for _, src := range reg.requiredSources {
		delete(c.accum, txSource{tx: tx, source: src})
		if set, ok := c.awaiting[src]; ok {
			delete(set, tx)
		}
	}
	delete(c.registered, tx)
	if c.pendingGauge != nil {
		c.pendingGauge.Dec()
	}
}
