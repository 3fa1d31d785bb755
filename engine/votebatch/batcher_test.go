// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package votebatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	bftbls "github.com/luxfi/shardbft/crypto/bls"
	"github.com/luxfi/shardbft/crypto/merkle"
	"github.com/luxfi/shardbft/config"
	"github.com/luxfi/shardbft/types"
)

// TestMerkleBatchOfFiveVotes checks a 5-vote batch: padded to 8
// leaves, depth 3, each proof verifies against the shared root and the
// batch signature verifies over the canonical message.
func TestMerkleBatchOfFiveVotes(t *testing.T) {
	req := require.New(t)
	signer, err := bftbls.GenerateSigner()
	req.NoError(err)

	b := New(0, 7, signer, config.Default())
	for i := 0; i < 5; i++ {
		tx := types.Hash{byte(i + 1)}
		_, fatal := b.AddBlockVote(42, PendingVote{TxHash: tx, StateRoot: types.Hash{byte(i + 100)}, Success: true})
		req.Nil(fatal)
	}

	votes, fatal := b.FlushBlock()
	req.Nil(fatal)
	req.Len(votes, 5)

	root := votes[0].VoteMerkleRoot
	for _, v := range votes {
		req.Equal(root, v.VoteMerkleRoot)
		req.Equal(uint64(42), v.BatchBlockHeight)
		leaf := types.VoteLeafHash(v.TransactionHash, v.StateRoot, 0, v.Success)
		proof := merkle.Proof{LeafIndex: v.VoteMerkleProofLeafIndex, Siblings: v.VoteMerkleProofSiblings}
		req.True(merkle.Verify(leaf, proof, root))
		req.Len(v.VoteMerkleProofSiblings, 3) // padded to 8 leaves, depth 3
	}

	msg := types.BatchedStateVoteMessage(0, 42, root)
	req.True(bftbls.Verify(signer.PublicKey(), votes[0].Signature, msg))
}

func TestLatentBatchFlushesOnThreshold(t *testing.T) {
	req := require.New(t)
	signer, err := bftbls.GenerateSigner()
	req.NoError(err)

	cfg := config.Default()
	cfg.LatentBatchThreshold = 2
	b := New(0, 1, signer, cfg)

	now := time.Now()
	votes1, fatal := b.AddLatentVote(PendingVote{TxHash: types.Hash{1}}, now)
	req.Nil(fatal)
	req.Nil(votes1)

	votes2, fatal := b.AddLatentVote(PendingVote{TxHash: types.Hash{2}}, now)
	req.Nil(fatal)
	req.Len(votes2, 2)
}
