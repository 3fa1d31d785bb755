// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package votebatch implements the vote batcher: it reduces BLS
// signing cost from O(votes) to O(batches) by Merkle-batching
// per-transaction execution votes and signing the root once.
package votebatch

import (
	"sort"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/shardbft/config"
	bftbls "github.com/luxfi/shardbft/crypto/bls"
	"github.com/luxfi/shardbft/crypto/merkle"
	"github.com/luxfi/shardbft/errs"
	"github.com/luxfi/shardbft/types"
)

// PendingVote is one not-yet-batched execution vote awaiting a flush.
type PendingVote struct {
	TxHash    types.Hash
	StateRoot types.Hash
	Success   bool
}

// Batcher holds one optional block-batch (votes tied to a single
// locally committed block height) and a latent-batch (cross-shard
// votes completing asynchronously).
type Batcher struct {
	shard  types.ShardGroupID
	self   types.ValidatorID
	signer bftbls.Signer
	cfg    config.Config

	blockHeight *types.BlockHeight
	blockVotes  []PendingVote

	latentVotes []PendingVote
	lastFlush   time.Time
}

// New constructs a vote batcher for one shard's execution machine.
func New(shard types.ShardGroupID, self types.ValidatorID, signer bftbls.Signer, cfg config.Config) *Batcher {
	return &Batcher{shard: shard, self: self, signer: signer, cfg: cfg}
}

// AddBlockVote appends to the current block-batch. All votes in a
// block-batch must share the same height; if a vote for a new height
// arrives, the prior batch is flushed first so the invariant never
// breaks.
func (b *Batcher) AddBlockVote(height types.BlockHeight, vote PendingVote) ([]types.StateVoteBlock, *errs.FatalError) {
	if b.blockHeight != nil && *b.blockHeight != height {
		flushed, fatal := b.FlushBlock()
		if fatal != nil {
			return nil, fatal
		}
		b.blockVotes = append(b.blockVotes, vote)
		b.blockHeight = &height
		return flushed, nil
	}
	b.blockHeight = &height
	b.blockVotes = append(b.blockVotes, vote)
	return nil, nil
}

// AddLatentVote appends to the latent batch and flushes immediately if
// the size threshold or flush interval has been crossed.
func (b *Batcher) AddLatentVote(vote PendingVote, now time.Time) ([]types.StateVoteBlock, *errs.FatalError) {
	if b.lastFlush.IsZero() {
		// Seed the interval clock on the first vote ever seen so an
		// empty batcher doesn't appear to be already overdue for a
		// flush the moment it receives its first vote.
		b.lastFlush = now
	}
	b.latentVotes = append(b.latentVotes, vote)
	if len(b.latentVotes) >= b.cfg.LatentBatchThreshold || now.Sub(b.lastFlush) > b.cfg.LatentBatchInterval {
		return b.FlushLatent(now)
	}
	return nil, nil
}

// FlushBlock finalizes and signs the current block-batch.
func (b *Batcher) FlushBlock() ([]types.StateVoteBlock, *errs.FatalError) {
	if len(b.blockVotes) == 0 {
		b.blockHeight = nil
		return nil, nil
	}
	height := uint64(0)
	if b.blockHeight != nil {
		height = uint64(*b.blockHeight)
	}
	votes, fatal := b.build(b.blockVotes, height)
	b.blockVotes = nil
	b.blockHeight = nil
	return votes, fatal
}

// FlushLatent finalizes and signs the current latent batch.
func (b *Batcher) FlushLatent(now time.Time) ([]types.StateVoteBlock, *errs.FatalError) {
	if len(b.latentVotes) == 0 {
		b.lastFlush = now
		return nil, nil
	}
	votes, fatal := b.build(b.latentVotes, 0)
	b.latentVotes = nil
	b.lastFlush = now
	return votes, fatal
}

func (b *Batcher) build(pending []PendingVote, blockHeightOrZero uint64) ([]types.StateVoteBlock, *errs.FatalError) {
	sorted := make([]PendingVote, len(pending))
	copy(sorted, pending)
	sort.Slice(sorted, func(i, j int) bool {
		return lessHash(sorted[i].TxHash, sorted[j].TxHash)
	})

	leaves := make([]ids.ID, len(sorted))
	for i, v := range sorted {
		leaves[i] = types.VoteLeafHash(v.TxHash, v.StateRoot, b.shard, v.Success)
	}
	root, proofs := merkle.Build(leaves)

	msg := types.BatchedStateVoteMessage(b.shard, blockHeightOrZero, root)
	sig, err := b.signer.Sign(msg)
	if err != nil {
		return nil, errs.Fatal("vote batch signing failed: " + err.Error())
	}

	out := make([]types.StateVoteBlock, len(sorted))
	for i, v := range sorted {
		out[i] = types.StateVoteBlock{
			TransactionHash:          v.TxHash,
			ShardGroupID:             b.shard,
			StateRoot:                v.StateRoot,
			Success:                  v.Success,
			Validator:                b.self,
			Signature:                sig,
			VoteMerkleRoot:           root,
			VoteMerkleProofLeafIndex: proofs[i].LeafIndex,
			VoteMerkleProofSiblings:  proofs[i].Siblings,
			BatchBlockHeight:         blockHeightOrZero,
		}
	}
	return out, nil
}

func lessHash(a, b types.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
