// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package provision

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/shardbft/bfttest"
	"github.com/luxfi/shardbft/config"
	"github.com/luxfi/shardbft/events"
	"github.com/luxfi/shardbft/types"
)

func TestQuorumGatedProvisionEmitsQuorumReached(t *testing.T) {
	req := require.New(t)
	c := bfttest.NewCommittee(4)
	coord, err := New(c.Topo, config.Default(), bfttest.Logger(), nil)
	req.NoError(err)

	tx := types.Hash{1}
	coord.Register(tx, []types.ShardGroupID{0}, []types.ShardGroupID{0})

	for _, v := range []types.ValidatorID{0, 1, 2} {
		p := types.StateProvision{TransactionHash: tx, SourceShard: 0, TargetShard: 0, Validator: v}
		acts, fatal := coord.Handle(events.ProvisionSignatureVerified{Provision: p, Valid: true})
		req.Nil(fatal)
		if v < 2 {
			req.Empty(acts)
		} else {
			req.Len(acts, 1)
			ei, ok := acts[0].(events.EnqueueInternal)
			req.True(ok)
			qr, ok := ei.Event.(events.ProvisionQuorumReached)
			req.True(ok)
			req.Equal(tx, qr.TransactionHash)
			req.Equal(types.ShardGroupID(0), qr.SourceShard)
		}
	}
	req.Len(coord.Provisions(tx, 0), 3)
}

func TestInvalidSignatureDropped(t *testing.T) {
	req := require.New(t)
	c := bfttest.NewCommittee(4)
	coord, err := New(c.Topo, config.Default(), bfttest.Logger(), nil)
	req.NoError(err)

	tx := types.Hash{2}
	coord.Register(tx, []types.ShardGroupID{0}, []types.ShardGroupID{0})
	acts, fatal := coord.Handle(events.ProvisionSignatureVerified{
		Provision: types.StateProvision{TransactionHash: tx, SourceShard: 0, Validator: 0},
		Valid:     false,
	})
	req.Nil(fatal)
	req.Empty(acts)
	req.Empty(coord.Provisions(tx, 0))
}

func TestBackpressureBypassedForInProgressTx(t *testing.T) {
	req := require.New(t)
	c := bfttest.NewCommittee(4)
	cfg := config.Default()
	cfg.MaxCrossShardPending = 1
	coord, err := New(c.Topo, cfg, bfttest.Logger(), nil)
	req.NoError(err)

	tx1 := types.Hash{1}
	tx2 := types.Hash{2}
	coord.Register(tx1, []types.ShardGroupID{0}, []types.ShardGroupID{0})
	req.False(coord.CanAcceptCrossShard(tx2)) // at cap, tx2 has no provisions yet

	_, _ = coord.Handle(events.ProvisionSignatureVerified{
		Provision: types.StateProvision{TransactionHash: tx1, SourceShard: 0, Validator: 0},
		Valid:     true,
	})
	req.True(coord.CanAcceptCrossShard(tx1)) // tx1 already has a received provision
}
