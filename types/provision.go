// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"github.com/luxfi/crypto/bls"

	"github.com/luxfi/shardbft/crypto/hashing"
)

// StateEntry is one (node, partition, sort_key, value-or-tombstone)
// piece of state a provisioning shard sends to a target shard.
type StateEntry struct {
	Node      NodeID
	Partition PartitionNumber
	SortKey   []byte
	Value     []byte
	Tombstone bool // true marks a deletion (tombstone)
}

// Hash returns the Blake3 digest of one entry, used to build the
// signed StateProvisionMessage.
func (e StateEntry) Hash() Hash {
	tomb := byte(0)
	if e.Tombstone {
		tomb = 1
	}
	return hashing.Sum(e.Node[:], []byte{byte(e.Partition)}, e.SortKey, e.Value, []byte{tomb})
}

// StateProvision is the signed bundle of state one shard sends to a
// peer shard so the peer can execute a cross-shard transaction that
// reads state this shard owns.
type StateProvision struct {
	TransactionHash Hash
	TargetShard     ShardGroupID
	SourceShard     ShardGroupID
	BlockHeight     BlockHeight
	Entries         []StateEntry
	Validator       ValidatorID
	Signature       []byte // Ed25519, not aggregated
}

// EntryHashes returns the per-entry hashes in the order needed to
// reconstruct StateProvisionMessage for signature verification.
func (p StateProvision) EntryHashes() []Hash {
	out := make([]Hash, len(p.Entries))
	for i, e := range p.Entries {
		out[i] = e.Hash()
	}
	return out
}

// StateVoteBlock is one validator's vote on the execution result of a
// single transaction on a single shard. Many votes within the same
// batch share one signature and Merkle root; signature covers only
// vote_merkle_root, and the proof demonstrates this vote's leaf is
// included in that root.
type StateVoteBlock struct {
	TransactionHash  Hash
	ShardGroupID     ShardGroupID
	StateRoot        Hash
	Success          bool
	Validator        ValidatorID
	Signature        *bls.Signature
	VoteMerkleRoot   Hash
	VoteMerkleProofLeafIndex uint64
	VoteMerkleProofSiblings  []Hash
	BatchBlockHeight uint64 // 0 means latent (non-block) batch
}

// StateCertificate aggregates a quorum of StateVoteBlocks agreeing on
// the same state_root into the cross-shard commit artifact.
type StateCertificate struct {
	TransactionHash    Hash
	ShardGroupID       ShardGroupID
	ReadNodes          []NodeID
	StateWrites        []StateEntry
	OutputsMerkleRoot  Hash
	Success            bool
	AggSignature       *bls.Signature
	Signers            []ValidatorID
	VotingPower        VotePower
	VoteMerkleRoot     Hash
	VoteMerkleProofLeafIndex uint64
	VoteMerkleProofSiblings  []Hash
	BatchBlockHeight   uint64
}
