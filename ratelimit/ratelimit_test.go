// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"

	"github.com/luxfi/shardbft/bfttest"
)

func TestAllowConsumesBurstThenRejects(t *testing.T) {
	req := require.New(t)
	cfg := Config{Burst: 3, Refill: 0, TTL: time.Minute}
	l := New(cfg, cfg, bfttest.Logger(), nil)

	peer := ids.NodeID{1}
	now := time.Now()
	req.True(l.Allow(peer, true, now))
	req.True(l.Allow(peer, true, now))
	req.True(l.Allow(peer, true, now))
	req.False(l.Allow(peer, true, now))
}

func TestAllowRefillsOverTime(t *testing.T) {
	req := require.New(t)
	cfg := Config{Burst: 1, Refill: 1, TTL: time.Minute}
	l := New(cfg, cfg, bfttest.Logger(), nil)

	peer := ids.NodeID{2}
	now := time.Now()
	req.True(l.Allow(peer, false, now))
	req.False(l.Allow(peer, false, now))

	later := now.Add(time.Second)
	req.True(l.Allow(peer, false, later))
}

// TestValidatorAndUnknownBucketsAreIndependent checks that separate
// limits for known validators vs unknown peers are actually separate:
// the same peer identity exhausting its validator bucket must not
// affect its unknown-peer bucket, and vice versa.
func TestValidatorAndUnknownBucketsAreIndependent(t *testing.T) {
	req := require.New(t)
	l := New(Config{Burst: 1, Refill: 0, TTL: time.Minute}, Config{Burst: 1, Refill: 0, TTL: time.Minute}, bfttest.Logger(), nil)

	peer := ids.NodeID{3}
	now := time.Now()
	req.True(l.Allow(peer, true, now))
	req.False(l.Allow(peer, true, now))
	req.True(l.Allow(peer, false, now))
	req.False(l.Allow(peer, false, now))
}

// TestSweepEvictsStalePeers checks the stale-peer cleanup: a bucket
// idle past its class's TTL is forgotten, and a fresh Allow after
// eviction starts from a full bucket again.
func TestSweepEvictsStalePeers(t *testing.T) {
	req := require.New(t)
	cfg := Config{Burst: 1, Refill: 0, TTL: time.Second}
	l := New(cfg, cfg, bfttest.Logger(), nil)

	peer := ids.NodeID{4}
	now := time.Now()
	req.True(l.Allow(peer, true, now))
	req.Equal(1, l.Len())

	l.Sweep(now.Add(2 * time.Second))
	req.Equal(0, l.Len())

	req.True(l.Allow(peer, true, now.Add(2*time.Second)))
}
