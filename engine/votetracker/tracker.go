// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package votetracker groups received StateVoteBlocks per transaction
// by state_root and detects when any group crosses quorum (spec
// §4.7). It is deliberately storage-free: the caller (the cross-shard
// execution machine) owns one Tracker per transaction and discards it
// once a certificate is assembled.
package votetracker

import "github.com/luxfi/shardbft/types"

type rootGroup struct {
	votes  []types.StateVoteBlock
	voters map[types.ValidatorID]struct{}
	power  types.VotePower
}

// Tracker accumulates votes for a single transaction, grouped by the
// state_root they agree on.
type Tracker struct {
	groups map[types.Hash]*rootGroup
}

// New constructs an empty tracker.
func New() *Tracker {
	return &Tracker{groups: make(map[types.Hash]*rootGroup)}
}

// QuorumResult is returned from Add when a root's accumulated power
// crosses quorum.
type QuorumResult struct {
	Root  types.Hash
	Votes []types.StateVoteBlock
	Power types.VotePower
}

// Add records one vote from validator v (weighing voterPower) and
// reports whether its state_root group now has quorum against total.
// Duplicate voters per root are ignored.
func (t *Tracker) Add(vote types.StateVoteBlock, voterPower, total types.VotePower) *QuorumResult {
	g, ok := t.groups[vote.StateRoot]
	if !ok {
		g = &rootGroup{voters: make(map[types.ValidatorID]struct{})}
		t.groups[vote.StateRoot] = g
	}
	if _, dup := g.voters[vote.Validator]; dup {
		return nil
	}
	g.voters[vote.Validator] = struct{}{}
	g.votes = append(g.votes, vote)
	g.power += voterPower

	if !types.HasQuorum(g.power, total) {
		return nil
	}
	return &QuorumResult{Root: vote.StateRoot, Votes: g.votes, Power: g.power}
}
