// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package livelock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/shardbft/bfttest"
	"github.com/luxfi/shardbft/config"
	"github.com/luxfi/shardbft/types"
)

// TestBidirectionalCycleDefersLargerHash exercises a bidirectional
// wait cycle: shard A committed tx1 needing B; shard B committed tx2
// needing A. On
// ProvisionQuorumReached{tx1, B} observed at A, the cycle check finds
// tx2 needs A; the larger hash is deferred.
func TestBidirectionalCycleDefersLargerHash(t *testing.T) {
	req := require.New(t)
	cfg := config.Default()

	detectorA := New(0 /* shard A */, cfg, bfttest.Logger())
	tx1 := types.Hash{0xaa}
	tx2 := types.Hash{0x01}
	detectorA.RegisterCommitted(tx1, 1 /* B */)
	detectorA.NoteProvisionSent(tx2, 1 /* B needs tx2 from A */)

	result := detectorA.CheckCycle(tx1, 1)
	req.NotNil(result)
	req.Equal(Deferred, result.Outcome)
	if largerHash(tx1, tx2) {
		req.Equal(tx1, result.Loser)
	} else {
		req.Equal(tx2, result.Loser)
	}
	req.Len(detectorA.DrainDeferred(), 1)
}

// TestEscalatesToAbortAfterCooldownRounds drives the same bidirectional
// cycle across several distinct trigger transactions (so
// ProvisionTracker's observed-pair dedupe doesn't suppress the round),
// and checks escalation to abort once the consistently-losing local
// transaction's deferred round count exceeds the configured cooldown.
func TestEscalatesToAbortAfterCooldownRounds(t *testing.T) {
	req := require.New(t)
	cfg := config.Default()
	cfg.ViewChangeCooldownRounds = 2

	d := New(0, cfg, bfttest.Logger())
	localTx := types.Hash{0xff} // larger than every remote tx below
	d.RegisterCommitted(localTx, 1)

	remoteNeededTx := types.Hash{0xee} // smaller than localTx, consistently the winner
	d.NoteProvisionSent(remoteNeededTx, 1)

	var last *Result
	for i := byte(0); i < byte(cfg.ViewChangeCooldownRounds)+1; i++ {
		// A distinct trigger tx per round so ProvisionTracker's
		// observed-pair dedupe doesn't suppress the repeat check; the
		// cycle itself (localTx vs remoteNeededTx) stays the same.
		triggerTx := types.Hash{i + 1}
		last = d.CheckCycle(triggerTx, 1)
		req.NotNil(last)
		req.Equal(localTx, last.Loser)
	}
	req.Equal(Aborted, last.Outcome)
	req.Len(d.DrainAborted(), 1)
}
