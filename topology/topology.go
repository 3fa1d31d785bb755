// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package topology abstracts shard/committee membership and voting
// power, generalized from "one global validator set" to "one
// validator set per shard".
package topology

import (
	"sort"

	"github.com/luxfi/crypto/bls"

	"github.com/luxfi/shardbft/types"
)

// Topology is the capability every state machine consults to learn
// about committees, voting power and validator identity. Dynamic
// dispatch only happens here and at the event-dispatch boundary (see
// DESIGN.md); production and test implementations are both concrete
// types satisfying this interface.
type Topology interface {
	// LocalShard returns the shard this node belongs to.
	LocalShard() types.ShardGroupID

	// Committee returns the ordered committee of a shard. Order is
	// significant: committee position indexes the SignerBitfield and
	// drives proposer rotation.
	Committee(shard types.ShardGroupID) []types.ValidatorID

	// VotePower returns a validator's stake weight.
	VotePower(v types.ValidatorID) types.VotePower

	// TotalPower returns the sum of voting power across a shard's
	// committee.
	TotalPower(shard types.ShardGroupID) types.VotePower

	// PublicKey returns a validator's BLS public key.
	PublicKey(v types.ValidatorID) *bls.PublicKey

	// Validators returns the global validator set.
	Validators() []types.ValidatorID

	// NumShards returns the number of shards in the system.
	NumShards() uint64
}

// ProposerFor returns the expected proposer for (height, round):
// committee[(height+round) mod committee_size].
func ProposerFor(t Topology, shard types.ShardGroupID, height types.BlockHeight, round types.Round) types.ValidatorID {
	committee := t.Committee(shard)
	if len(committee) == 0 {
		return 0
	}
	idx := (uint64(height) + uint64(round)) % uint64(len(committee))
	return committee[idx]
}

// SeatOf returns a validator's committee position (seat index) within
// a shard, or -1 if not a committee member.
func SeatOf(t Topology, shard types.ShardGroupID, v types.ValidatorID) int {
	for i, c := range t.Committee(shard) {
		if c == v {
			return i
		}
	}
	return -1
}

// ConsensusShards returns the deduped, sorted set of shards that must
// reach consensus to commit a transaction (the union of its declared
// read and write node owners).
func ConsensusShards(t Topology, nodes []types.NodeID) []types.ShardGroupID {
	return dedupedSortedShards(t, nodes)
}

// ProvisioningShards returns the deduped, sorted set of shards a
// transaction needs provisions from (its read-node owners).
func ProvisioningShards(t Topology, readNodes []types.NodeID) []types.ShardGroupID {
	return dedupedSortedShards(t, readNodes)
}

func dedupedSortedShards(t Topology, nodes []types.NodeID) []types.ShardGroupID {
	seen := make(map[types.ShardGroupID]struct{}, len(nodes))
	numShards := t.NumShards()
	for _, n := range nodes {
		seen[types.ShardForNode(n, numShards)] = struct{}{}
	}
	out := make([]types.ShardGroupID, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Static is the deterministic test/reference implementation: it
// assigns validator v to shard v.id mod num_shards.
type Static struct {
	Local      types.ShardGroupID
	NumShardsV uint64
	Power      map[types.ValidatorID]types.VotePower
	Keys       map[types.ValidatorID]*bls.PublicKey
	AllValidators []types.ValidatorID
}

func (s *Static) LocalShard() types.ShardGroupID { return s.Local }

func (s *Static) Committee(shard types.ShardGroupID) []types.ValidatorID {
	var out []types.ValidatorID
	for _, v := range s.AllValidators {
		if types.ShardGroupID(uint64(v)%s.NumShardsV) == shard {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Static) VotePower(v types.ValidatorID) types.VotePower { return s.Power[v] }

func (s *Static) TotalPower(shard types.ShardGroupID) types.VotePower {
	var total types.VotePower
	for _, v := range s.Committee(shard) {
		total += s.Power[v]
	}
	return total
}

func (s *Static) PublicKey(v types.ValidatorID) *bls.PublicKey { return s.Keys[v] }

func (s *Static) Validators() []types.ValidatorID { return s.AllValidators }

func (s *Static) NumShards() uint64 { return s.NumShardsV }
