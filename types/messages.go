// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"encoding/binary"

	"github.com/luxfi/shardbft/crypto/hashing"
)

// Canonical, byte-exact (little-endian) signing messages. Every BLS
// or Ed25519 signature in the core covers exactly one of these.

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// BlockVoteMessage is "block_vote:" || u64(shard) || u64(height) ||
// u64(round) || 32-byte block_hash.
func BlockVoteMessage(shard ShardGroupID, height BlockHeight, round Round, blockHash Hash) []byte {
	out := append([]byte("block_vote:"), le64(uint64(shard))...)
	out = append(out, le64(uint64(height))...)
	out = append(out, le64(uint64(round))...)
	out = append(out, blockHash[:]...)
	return out
}

// ViewChangeMessage is "view_change:" || 32-byte shard_group ||
// u64(height) || u64(new_round). The shard group is widened to 32
// bytes for domain separation from other hash-sized fields; low 8
// bytes carry the ShardGroupID.
func ViewChangeMessage(shard ShardGroupID, height BlockHeight, newRound Round) []byte {
	var shardHash Hash
	copy(shardHash[:8], le64(uint64(shard)))
	out := append([]byte("view_change:"), shardHash[:]...)
	out = append(out, le64(uint64(height))...)
	out = append(out, le64(uint64(newRound))...)
	return out
}

// StateProvisionMessage is "STATE_PROVISION" || tx_hash || u64(target)
// || u64(source) || u64(height) || entry_hash_1 || entry_hash_2 || ...
func StateProvisionMessage(txHash Hash, target, source ShardGroupID, height BlockHeight, entryHashes []Hash) []byte {
	out := append([]byte("STATE_PROVISION"), txHash[:]...)
	out = append(out, le64(uint64(target))...)
	out = append(out, le64(uint64(source))...)
	out = append(out, le64(uint64(height))...)
	for _, eh := range entryHashes {
		out = append(out, eh[:]...)
	}
	return out
}

// BatchedStateVoteMessage is "BATCH_STATE_VOTE" || u64(shard) ||
// u64(block_height_or_0) || 32-byte vote_merkle_root.
func BatchedStateVoteMessage(shard ShardGroupID, blockHeightOrZero uint64, voteMerkleRoot Hash) []byte {
	out := append([]byte("BATCH_STATE_VOTE"), le64(uint64(shard))...)
	out = append(out, le64(blockHeightOrZero)...)
	out = append(out, voteMerkleRoot[:]...)
	return out
}

// VoteLeafHash computes Blake3(tx_hash || state_root || le64(shard) ||
// byte(success?1:0)), the Merkle leaf for one execution vote.
func VoteLeafHash(txHash, stateRoot Hash, shard ShardGroupID, success bool) Hash {
	successByte := byte(0)
	if success {
		successByte = 1
	}
	return hashing.Sum(txHash[:], stateRoot[:], le64(uint64(shard)), []byte{successByte})
}
