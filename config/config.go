// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config carries the tunables the core state machines need.
// Parsing these from flags, env, or files is a runner concern and is
// explicitly out of scope for the core.
package config

import "time"

// Config holds every tunable the core sub-state-machines consult.
type Config struct {
	// CommitteeSize is the number of validators in a shard's committee.
	CommitteeSize int

	// ViewChangeTimeout is how long the view-change machine waits
	// without progress before broadcasting a ViewChangeVote.
	ViewChangeTimeout time.Duration

	// ViewChangeCooldownRounds is the number of consecutive rounds a
	// transaction may be deferred in a bidirectional cycle before the
	// livelock detector escalates to an abort.
	ViewChangeCooldownRounds int

	// LatentBatchThreshold is the number of pending latent state votes
	// that triggers an immediate flush.
	LatentBatchThreshold int

	// LatentBatchInterval is the maximum time a latent vote waits
	// before being flushed even if the threshold hasn't been reached.
	LatentBatchInterval time.Duration

	// MaxCrossShardPending bounds the number of concurrently pending
	// cross-shard transactions this shard will register (backpressure
	// for the mempool's can_accept_cross_shard check).
	MaxCrossShardPending int

	// PendingBlockWindow is not read by engine/bft, which evicts every
	// buffered (parent-unknown) block at or below the committed height
	// without applying a window.
	PendingBlockWindow uint64
}

// Default returns production-sane defaults.
func Default() Config {
	return Config{
		CommitteeSize:            4,
		ViewChangeTimeout:        4 * time.Second,
		ViewChangeCooldownRounds: 3,
		LatentBatchThreshold:     64,
		LatentBatchInterval:      200 * time.Millisecond,
		MaxCrossShardPending:     1024,
		PendingBlockWindow:       16,
	}
}
