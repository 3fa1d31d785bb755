// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dispatch

import (
	"github.com/luxfi/shardbft/engine/livelock"
	"github.com/luxfi/shardbft/types"
)

// mempoolBridge implements bft.MempoolSource by combining an external,
// out-of-scope transaction mempool with the two pull-based signals
// this repository generates internally: state certificates the
// cross-shard machine has assembled, and the deferred/aborted
// transactions the livelock detector has decided on.
type mempoolBridge struct {
	txSource TransactionSource
	certs    map[types.ShardGroupID][]types.StateCertificate
	livelock *livelock.Detector
}

func newMempoolBridge(ld *livelock.Detector) *mempoolBridge {
	return &mempoolBridge{
		certs:    make(map[types.ShardGroupID][]types.StateCertificate),
		livelock: ld,
	}
}

// SetTransactionSource wires the runner's ordinary mempool in. Must be
// called once before the first ProposalTimer is handled.
func (b *mempoolBridge) SetTransactionSource(src TransactionSource) {
	b.txSource = src
}

func (b *mempoolBridge) addCertificate(c types.StateCertificate) {
	b.certs[c.ShardGroupID] = append(b.certs[c.ShardGroupID], c)
}

func (b *mempoolBridge) DrainTransactions(shard types.ShardGroupID, max int) []types.Hash {
	if b.txSource == nil {
		return nil
	}
	return b.txSource.DrainTransactions(shard, max)
}

func (b *mempoolBridge) DrainCertificates(shard types.ShardGroupID) []types.StateCertificate {
	out := b.certs[shard]
	delete(b.certs, shard)
	return out
}

func (b *mempoolBridge) DrainDeferred(types.ShardGroupID) []types.Hash {
	return b.livelock.DrainDeferred()
}

func (b *mempoolBridge) DrainAborted(types.ShardGroupID) []types.Hash {
	return b.livelock.DrainAborted()
}
