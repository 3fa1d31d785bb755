// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types holds the core data model shared by every sub-state
// machine: identifiers, blocks, certificates, provisions and votes.
package types

import (
	"encoding/binary"

	"github.com/luxfi/ids"

	"github.com/luxfi/shardbft/crypto/hashing"
)

// Hash is the content-addressed, 32-byte Blake3 hash used throughout
// the core (block hashes, transaction hashes, state roots, Merkle
// roots). Reuses github.com/luxfi/ids' 32-byte ID type rather than
// reinventing a fixed-width array.
type Hash = ids.ID

// ZeroHash is the sentinel empty hash (genesis parent_hash).
var ZeroHash Hash

// ValidatorID identifies a validator within the global validator set.
type ValidatorID uint64

// ShardGroupID identifies a shard (a partition of the state space).
type ShardGroupID uint64

// BlockHeight is a chain height; genesis is height 0.
type BlockHeight uint64

// Round is a view-change round within a height; resets to 0 whenever
// height strictly increases.
type Round uint64

// PartitionNumber is a sub-partition within a node's owning shard.
type PartitionNumber uint8

// VotePower is a stake-weighted voting power.
type VotePower uint64

// HasQuorum reports whether voted strictly exceeds two-thirds of
// total: voted*3 > total*2. Exactly 2/3 is NOT quorum.
func HasQuorum(voted, total VotePower) bool {
	if total == 0 {
		return false
	}
	return uint64(voted)*3 > uint64(total)*2
}

// NodeID is a 30-byte node address. Deliberately distinct from
// github.com/luxfi/ids' own 20-byte ids.NodeID: this system's address
// width is 30 bytes, so a dedicated type is used instead of
// force-fitting the narrower upstream type (see DESIGN.md).
type NodeID [30]byte

// ShardForNode derives the owning shard of a NodeID: Blake3(node_id)
// mod num_shards.
func ShardForNode(n NodeID, numShards uint64) ShardGroupID {
	if numShards == 0 {
		return 0
	}
	h := hashing.Sum(n[:])
	v := binary.LittleEndian.Uint64(h[:8])
	return ShardGroupID(v % numShards)
}
