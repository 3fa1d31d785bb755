// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hashing wraps Blake3, the content-addressed hash function
// used for every hash in the core (block hashes, transaction hashes,
// state roots, Merkle leaves and nodes).
//
// No pack repository imports a Blake3 library (github.com/luxfi/ids
// is SHA-256-backed); zeebo/blake3 is a named, ungrounded ecosystem
// dependency chosen because this system requires Blake3 specifically
// (see DESIGN.md).
package hashing

import (
	"github.com/luxfi/ids"
	"github.com/zeebo/blake3"
)

// Size is the digest size in bytes.
const Size = 32

// Sum hashes the concatenation of parts into a 32-byte digest.
func Sum(parts ...[]byte) ids.ID {
	h := blake3.New()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out ids.ID
	copy(out[:], h.Sum(nil)[:Size])
	return out
}

// SumBytes is Sum for a single buffer, returning a raw byte slice
// rather than an ids.ID — convenient for building up larger digests.
func SumBytes(data []byte) []byte {
	h := blake3.New()
	_, _ = h.Write(data)
	return h.Sum(nil)[:Size]
}
