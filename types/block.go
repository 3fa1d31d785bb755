// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"time"

	"github.com/luxfi/shardbft/crypto/bitfield"
	"github.com/luxfi/shardbft/crypto/bls"
	"github.com/luxfi/shardbft/crypto/hashing"
)

// BlockHeader is the canonically-hashable part of a block.
type BlockHeader struct {
	Height     BlockHeight
	ParentHash Hash
	ParentQC   QuorumCertificate
	Proposer   ValidatorID
	Timestamp  time.Time
	Round      Round
	IsFallback bool
}

// Hash returns the header's canonical Blake3 digest.
func (h BlockHeader) Hash() Hash {
	qcHash := h.ParentQC.Hash()
	var fallback byte
	if h.IsFallback {
		fallback = 1
	}
	return hashing.Sum(
		le64(uint64(h.Height)),
		h.ParentHash[:],
		qcHash[:],
		le64(uint64(h.Proposer)),
		le64(uint64(h.Timestamp.UnixNano())),
		le64(uint64(h.Round)),
		[]byte{fallback},
	)
}

// GenesisHeader returns the height-0 header: empty parent hash and a
// sentinel genesis QC.
func GenesisHeader() BlockHeader {
	return BlockHeader{
		Height:     0,
		ParentHash: ZeroHash,
		ParentQC:   GenesisQC(),
		Proposer:   0,
		Timestamp:  time.Unix(0, 0),
		Round:      0,
	}
}

// Block is a header plus the four disjoint lists that drive the
// livelock protocol: newly proposed transactions, finalized
// cross-shard certificates to include, deferred transactions, and
// aborted transactions.
type Block struct {
	Header               BlockHeader
	Transactions         []Hash
	CommittedCertificates []StateCertificate
	Deferred             []Hash
	Aborted              []Hash
}

// Hash returns the block's identity, which is its header hash — the
// lists do not affect identity beyond what the header already commits
// the proposer to via the mempool/execution-layer interaction.
func (b Block) Hash() Hash {
	return b.Header.Hash()
}

// QuorumCertificate proves 2f+1 of a shard's committee endorsed a
// block at a given height.
type QuorumCertificate struct {
	BlockHash    Hash
	Height       BlockHeight
	Round        Round
	Shard        ShardGroupID
	AggSignature *bls.Signature
	Signers      bitfield.Bitfield
	VotingPower  VotePower
}

// Hash returns a digest of the certificate's identity, used when
// hashing a header that embeds a parent QC.
func (qc QuorumCertificate) Hash() Hash {
	return hashing.Sum(
		qc.BlockHash[:],
		le64(uint64(qc.Height)),
		le64(uint64(qc.Round)),
		le64(uint64(qc.Shard)),
		qc.Signers.Bytes(),
		le64(uint64(qc.VotingPower)),
	)
}

// HasQuorum reports whether this QC's voting power exceeds 2/3 of the
// shard's total voting power.
func (qc QuorumCertificate) HasQuorum(total VotePower) bool {
	return HasQuorum(qc.VotingPower, total)
}

// GenesisQC is the sentinel QC for the genesis block: empty signers,
// zero voting power, but always treated as satisfying quorum by the
// BFT machine's genesis special-case.
func GenesisQC() QuorumCertificate {
	return QuorumCertificate{
		BlockHash:   ZeroHash,
		Height:      0,
		Round:       0,
		VotingPower: 0,
	}
}

// IsGenesis reports whether this is the genesis sentinel QC.
func (qc QuorumCertificate) IsGenesis() bool {
	return qc.Height == 0 && qc.BlockHash == ZeroHash
}

// ViewChangeCertificate proves 2f+1 of the committee agreed to move
// to new_round at height, forwarding the maximum highest_qc observed
// among voters (the HotStuff-2 QC-forwarding safety invariant).
type ViewChangeCertificate struct {
	Height             BlockHeight
	NewRound           Round
	HighestQC          QuorumCertificate
	HighestQCBlockHash Hash
	AggSignature       *bls.Signature
	Signers            bitfield.Bitfield
	VotingPower        VotePower
}

// HasQuorum reports whether this certificate's voting power exceeds
// 2/3 of the shard's total voting power.
func (vcc ViewChangeCertificate) HasQuorum(total VotePower) bool {
	return HasQuorum(vcc.VotingPower, total)
}
