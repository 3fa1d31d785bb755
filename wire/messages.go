// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"time"

	upstreambls "github.com/luxfi/crypto/bls"

	"github.com/luxfi/shardbft/codec"
	"github.com/luxfi/shardbft/crypto/bitfield"
	"github.com/luxfi/shardbft/crypto/bls"
	"github.com/luxfi/shardbft/types"
)

func putHash(w *codec.Writer, h types.Hash) { w.PutFixed(h[:]) }

func getHash(r *codec.Reader) (types.Hash, error) {
	b, err := r.Fixed(32)
	if err != nil {
		return types.Hash{}, err
	}
	var h types.Hash
	copy(h[:], b)
	return h, nil
}

func putQC(w *codec.Writer, qc types.QuorumCertificate) {
	putHash(w, qc.BlockHash)
	w.PutUint64(uint64(qc.Height))
	w.PutUint64(uint64(qc.Round))
	w.PutUint64(uint64(qc.Shard))
	w.PutBytes(bls.SignatureToBytes(qc.AggSignature))
	w.PutBytes(qc.Signers.Bytes())
	w.PutUint64(uint64(qc.VotingPower))
}

func getQC(r *codec.Reader) (types.QuorumCertificate, error) {
	var qc types.QuorumCertificate
	h, err := getHash(r)
	if err != nil {
		return qc, err
	}
	qc.BlockHash = h
	height, err := r.Uint64()
	if err != nil {
		return qc, err
	}
	qc.Height = types.BlockHeight(height)
	round, err := r.Uint64()
	if err != nil {
		return qc, err
	}
	qc.Round = types.Round(round)
	shard, err := r.Uint64()
	if err != nil {
		return qc, err
	}
	qc.Shard = types.ShardGroupID(shard)
	sigBytes, err := r.Bytes()
	if err != nil {
		return qc, err
	}
	if len(sigBytes) > 0 {
		sig, err := bls.SignatureFromBytes(sigBytes)
		if err != nil {
			return qc, err
		}
		qc.AggSignature = sig
	}
	signerBytes, err := r.Bytes()
	if err != nil {
		return qc, err
	}
	qc.Signers = bitfield.FromBytes(signerBytes)
	power, err := r.Uint64()
	if err != nil {
		return qc, err
	}
	qc.VotingPower = types.VotePower(power)
	return qc, nil
}

// EncodeBlockHeader serializes a BlockHeader for the block.header
// topic.
func EncodeBlockHeader(h types.BlockHeader) []byte {
	w := codec.NewWriter()
	w.PutUint64(uint64(h.Height))
	putHash(w, h.ParentHash)
	putQC(w, h.ParentQC)
	w.PutUint64(uint64(h.Proposer))
	w.PutUint64(uint64(h.Timestamp.UnixNano()))
	w.PutUint64(uint64(h.Round))
	w.PutBool(h.IsFallback)
	return w.Bytes()
}

func DecodeBlockHeader(b []byte) (types.BlockHeader, error) {
	r := codec.NewReader(b)
	var h types.BlockHeader
	height, err := r.Uint64()
	if err != nil {
		return h, err
	}
	h.Height = types.BlockHeight(height)
	parentHash, err := getHash(r)
	if err != nil {
		return h, err
	}
	h.ParentHash = parentHash
	qc, err := getQC(r)
	if err != nil {
		return h, err
	}
	h.ParentQC = qc
	proposer, err := r.Uint64()
	if err != nil {
		return h, err
	}
	h.Proposer = types.ValidatorID(proposer)
	ts, err := r.Uint64()
	if err != nil {
		return h, err
	}
	h.Timestamp = time.Unix(0, int64(ts))
	round, err := r.Uint64()
	if err != nil {
		return h, err
	}
	h.Round = types.Round(round)
	fallback, err := r.Bool()
	if err != nil {
		return h, err
	}
	h.IsFallback = fallback
	return h, nil
}

// BlockVote is the wire form of a single validator's vote for a block.
type BlockVote struct {
	Shard     types.ShardGroupID
	Height    types.BlockHeight
	Round     types.Round
	BlockHash types.Hash
	Voter     types.ValidatorID
	Signature *upstreambls.Signature
}

func EncodeBlockVote(v BlockVote) []byte {
	w := codec.NewWriter()
	w.PutUint64(uint64(v.Shard))
	w.PutUint64(uint64(v.Height))
	w.PutUint64(uint64(v.Round))
	putHash(w, v.BlockHash)
	w.PutUint64(uint64(v.Voter))
	w.PutBytes(bls.SignatureToBytes(v.Signature))
	return w.Bytes()
}

func DecodeBlockVote(b []byte) (BlockVote, error) {
	r := codec.NewReader(b)
	var v BlockVote
	shard, err := r.Uint64()
	if err != nil {
		return v, err
	}
	v.Shard = types.ShardGroupID(shard)
	height, err := r.Uint64()
	if err != nil {
		return v, err
	}
	v.Height = types.BlockHeight(height)
	round, err := r.Uint64()
	if err != nil {
		return v, err
	}
	v.Round = types.Round(round)
	hash, err := getHash(r)
	if err != nil {
		return v, err
	}
	v.BlockHash = hash
	voter, err := r.Uint64()
	if err != nil {
		return v, err
	}
	v.Voter = types.ValidatorID(voter)
	sigBytes, err := r.Bytes()
	if err != nil {
		return v, err
	}
	sig, err := bls.SignatureFromBytes(sigBytes)
	if err != nil {
		return v, err
	}
	v.Signature = sig
	return v, nil
}

// BlockRequest/BlockResponse implement the GetBlock RPC endpoint.
type BlockRequest struct {
	BlockHash types.Hash
}

type BlockResponse struct {
	Found bool
	Block types.Block
}

// InventoryRequest/InventoryResponse implement sync discovery.
type InventoryRequest struct {
	Requester  types.ValidatorID
	FromHeight types.BlockHeight
}

type InventoryResponse struct {
	Hashes        []types.Hash
	StartHeight   types.BlockHeight
	HighestHeight types.BlockHeight
}

func EncodeInventoryRequest(req InventoryRequest) []byte {
	w := codec.NewWriter()
	w.PutUint64(uint64(req.Requester))
	w.PutUint64(uint64(req.FromHeight))
	return w.Bytes()
}

func DecodeInventoryRequest(b []byte) (InventoryRequest, error) {
	r := codec.NewReader(b)
	var req InventoryRequest
	requester, err := r.Uint64()
	if err != nil {
		return req, err
	}
	req.Requester = types.ValidatorID(requester)
	from, err := r.Uint64()
	if err != nil {
		return req, err
	}
	req.FromHeight = types.BlockHeight(from)
	return req, nil
}

func EncodeInventoryResponse(resp InventoryResponse) []byte {
	w := codec.NewWriter()
	w.PutUint64(uint64(len(resp.Hashes)))
	for _, h := range resp.Hashes {
		putHash(w, h)
	}
	w.PutUint64(uint64(resp.StartHeight))
	w.PutUint64(uint64(resp.HighestHeight))
	return w.Bytes()
}

func DecodeInventoryResponse(b []byte) (InventoryResponse, error) {
	r := codec.NewReader(b)
	var resp InventoryResponse
	n, err := r.Uint64()
	if err != nil {
		return resp, err
	}
	resp.Hashes = make([]types.Hash, n)
	for i := range resp.Hashes {
		h, err := getHash(r)
		if err != nil {
			return resp, err
		}
		resp.Hashes[i] = h
	}
	start, err := r.Uint64()
	if err != nil {
		return resp, err
	}
	resp.StartHeight = types.BlockHeight(start)
	highest, err := r.Uint64()
	if err != nil {
		return resp, err
	}
	resp.HighestHeight = types.BlockHeight(highest)
	return resp, nil
}

// SyncComplete announces that a node has finished catching up to
// synced_height.
type SyncComplete struct {
	SyncedHeight types.BlockHeight
	Validator    types.ValidatorID
	Signature    []byte
}

func EncodeSyncComplete(s SyncComplete) []byte {
	w := codec.NewWriter()
	w.PutUint64(uint64(s.SyncedHeight))
	w.PutUint64(uint64(s.Validator))
	w.PutBytes(s.Signature)
	return w.Bytes()
}

func DecodeSyncComplete(b []byte) (SyncComplete, error) {
	r := codec.NewReader(b)
	var s SyncComplete
	height, err := r.Uint64()
	if err != nil {
		return s, err
	}
	s.SyncedHeight = types.BlockHeight(height)
	v, err := r.Uint64()
	if err != nil {
		return s, err
	}
	s.Validator = types.ValidatorID(v)
	sig, err := r.Bytes()
	if err != nil {
		return s, err
	}
	s.Signature = sig
	return s, nil
}
