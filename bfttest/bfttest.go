// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bfttest provides shared test scaffolding for the engine
// packages: a small deterministic committee of validators with real
// BLS signers, wired through the topology.Static reference
// implementation.
package bfttest

import (
	"github.com/luxfi/log"

	bftbls "github.com/luxfi/shardbft/crypto/bls"
	"github.com/luxfi/shardbft/topology"
	"github.com/luxfi/shardbft/types"
)

// Committee is a deterministic test committee: n validators with
// equal voting power, all on a single shard.
type Committee struct {
	Signers []bftbls.Signer
	Topo    *topology.Static
}

// NewCommittee builds an n-validator, single-shard committee with
// equal voting power of 1 each.
func NewCommittee(n int) *Committee {
	signers := make([]bftbls.Signer, n)
	keys := make(map[types.ValidatorID]*bftbls.PublicKey, n)
	power := make(map[types.ValidatorID]types.VotePower, n)
	var all []types.ValidatorID
	for i := 0; i < n; i++ {
		s, err := bftbls.GenerateSigner()
		if err != nil {
			panic(err)
		}
		signers[i] = s
		vid := types.ValidatorID(i)
		keys[vid] = s.PublicKey()
		power[vid] = 1
		all = append(all, vid)
	}
	return &Committee{
		Signers: signers,
		Topo: &topology.Static{
			Local:         0,
			NumShardsV:    1,
			Power:         power,
			Keys:          keys,
			AllValidators: all,
		},
	}
}

// Logger returns a no-op test logger. Swap for the real
// github.com/luxfi/log discard/test logger when wiring into a test
// harness that provides one.
func Logger() log.Logger {
	return log.NewNoOpLogger()
}
