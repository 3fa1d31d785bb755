// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package merkle implements the binary Merkle tree and inclusion
// proofs used to batch per-transaction votes under a single BLS
// signature.
package merkle

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/shardbft/crypto/hashing"
)

// Proof is an inclusion proof: the leaf's index and the sibling hashes
// from the leaf level up to the root.
type Proof struct {
	LeafIndex uint64
	Siblings  []ids.ID
}

var zeroLeaf ids.ID

// Build constructs a Merkle tree over leaves (already in the caller's
// desired order — callers sort by tx_hash before calling, per spec
// §4.3/§4.6) and returns the root plus one proof per input leaf.
//
// The leaf count is padded to the next power of two with ZERO hashes.
// A single-leaf tree has root equal to that leaf and an empty proof.
func Build(leaves []ids.ID) (root ids.ID, proofs []Proof) {
	n := len(leaves)
	if n == 0 {
		return ids.ID{}, nil
	}
	if n == 1 {
		return leaves[0], []Proof{{LeafIndex: 0, Siblings: nil}}
	}

	padded := nextPow2(n)
	level := make([]ids.ID, padded)
	copy(level, leaves)
	for i := n; i < padded; i++ {
		level[i] = zeroLeaf
	}

	// levels[0] is the leaf level; levels[d] is depth d up to the root.
	levels := [][]ids.ID{level}
	for len(levels[len(levels)-1]) > 1 {
		cur := levels[len(levels)-1]
		next := make([]ids.ID, len(cur)/2)
		for i := 0; i < len(next); i++ {
			next[i] = hashPair(cur[2*i], cur[2*i+1])
		}
		levels = append(levels, next)
	}

	root = levels[len(levels)-1][0]

	proofs = make([]Proof, n)
	for i := 0; i < n; i++ {
		idx := i
		siblings := make([]ids.ID, 0, len(levels)-1)
		for d := 0; d < len(levels)-1; d++ {
			layer := levels[d]
			var sib ids.ID
			if idx%2 == 0 {
				sib = layer[idx+1]
			} else {
				sib = layer[idx-1]
			}
			siblings = append(siblings, sib)
			idx /= 2
		}
		proofs[i] = Proof{LeafIndex: uint64(i), Siblings: siblings}
	}
	return root, proofs
}

// Verify walks the siblings of a proof, hashing the pair at each
// level with the running node on the left iff the current index is
// even, and compares the result to root.
func Verify(leaf ids.ID, proof Proof, root ids.ID) bool {
	if len(proof.Siblings) == 0 {
		return leaf == root
	}
	cur := leaf
	idx := proof.LeafIndex
	for _, sib := range proof.Siblings {
		if idx%2 == 0 {
			cur = hashPair(cur, sib)
		} else {
			cur = hashPair(sib, cur)
		}
		idx /= 2
	}
	return cur == root
}

func hashPair(left, right ids.ID) ids.ID {
	return hashing.Sum(left[:], right[:])
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
