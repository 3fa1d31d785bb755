// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"github.com/luxfi/shardbft/codec"
	"github.com/luxfi/shardbft/crypto/bls"
	"github.com/luxfi/shardbft/types"
)

func putEntry(w *codec.Writer, e types.StateEntry) {
	w.PutFixed(e.Node[:])
	w.PutByte(byte(e.Partition))
	w.PutBytes(e.SortKey)
	w.PutBytes(e.Value)
	w.PutBool(e.Tombstone)
}

func putNode(w *codec.Writer, n types.NodeID) { w.PutFixed(n[:]) }

func getNode(r *codec.Reader) (types.NodeID, error) {
	b, err := r.Fixed(30)
	if err != nil {
		return types.NodeID{}, err
	}
	var n types.NodeID
	copy(n[:], b)
	return n, nil
}

func getEntry(r *codec.Reader) (types.StateEntry, error) {
	var e types.StateEntry
	node, err := r.Fixed(30)
	if err != nil {
		return e, err
	}
	copy(e.Node[:], node)
	part, err := r.Byte()
	if err != nil {
		return e, err
	}
	e.Partition = types.PartitionNumber(part)
	sortKey, err := r.Bytes()
	if err != nil {
		return e, err
	}
	e.SortKey = sortKey
	value, err := r.Bytes()
	if err != nil {
		return e, err
	}
	e.Value = value
	tomb, err := r.Bool()
	if err != nil {
		return e, err
	}
	e.Tombstone = tomb
	return e, nil
}

// EncodeStateProvision serializes a StateProvision for the
// state.provision.batch topic.
func EncodeStateProvision(p types.StateProvision) []byte {
	w := codec.NewWriter()
	putHash(w, p.TransactionHash)
	w.PutUint64(uint64(p.TargetShard))
	w.PutUint64(uint64(p.SourceShard))
	w.PutUint64(uint64(p.BlockHeight))
	w.PutUint64(uint64(len(p.Entries)))
	for _, e := range p.Entries {
		putEntry(w, e)
	}
	w.PutUint64(uint64(p.Validator))
	w.PutBytes(p.Signature)
	return w.Bytes()
}

func DecodeStateProvision(b []byte) (types.StateProvision, error) {
	r := codec.NewReader(b)
	var p types.StateProvision
	txHash, err := getHash(r)
	if err != nil {
		return p, err
	}
	p.TransactionHash = txHash
	target, err := r.Uint64()
	if err != nil {
		return p, err
	}
	p.TargetShard = types.ShardGroupID(target)
	source, err := r.Uint64()
	if err != nil {
		return p, err
	}
	p.SourceShard = types.ShardGroupID(source)
	height, err := r.Uint64()
	if err != nil {
		return p, err
	}
	p.BlockHeight = types.BlockHeight(height)
	n, err := r.Uint64()
	if err != nil {
		return p, err
	}
	p.Entries = make([]types.StateEntry, n)
	for i := range p.Entries {
		e, err := getEntry(r)
		if err != nil {
			return p, err
		}
		p.Entries[i] = e
	}
	validator, err := r.Uint64()
	if err != nil {
		return p, err
	}
	p.Validator = types.ValidatorID(validator)
	sig, err := r.Bytes()
	if err != nil {
		return p, err
	}
	p.Signature = sig
	return p, nil
}

// EncodeStateVoteBlock serializes a StateVoteBlock for the
// state.vote.batch topic.
func EncodeStateVoteBlock(v types.StateVoteBlock) []byte {
	w := codec.NewWriter()
	putHash(w, v.TransactionHash)
	w.PutUint64(uint64(v.ShardGroupID))
	putHash(w, v.StateRoot)
	w.PutBool(v.Success)
	w.PutUint64(uint64(v.Validator))
	w.PutBytes(bls.SignatureToBytes(v.Signature))
	putHash(w, v.VoteMerkleRoot)
	w.PutUint64(v.VoteMerkleProofLeafIndex)
	w.PutUint64(uint64(len(v.VoteMerkleProofSiblings)))
	for _, s := range v.VoteMerkleProofSiblings {
		putHash(w, s)
	}
	w.PutUint64(v.BatchBlockHeight)
	return w.Bytes()
}

func DecodeStateVoteBlock(b []byte) (types.StateVoteBlock, error) {
	r := codec.NewReader(b)
	var v types.StateVoteBlock
	txHash, err := getHash(r)
	if err != nil {
		return v, err
	}
	v.TransactionHash = txHash
	shard, err := r.Uint64()
	if err != nil {
		return v, err
	}
	v.ShardGroupID = types.ShardGroupID(shard)
	stateRoot, err := getHash(r)
	if err != nil {
		return v, err
	}
	v.StateRoot = stateRoot
	success, err := r.Bool()
	if err != nil {
		return v, err
	}
	v.Success = success
	validator, err := r.Uint64()
	if err != nil {
		return v, err
	}
	v.Validator = types.ValidatorID(validator)
	sigBytes, err := r.Bytes()
	if err != nil {
		return v, err
	}
	sig, err := bls.SignatureFromBytes(sigBytes)
	if err != nil {
		return v, err
	}
	v.Signature = sig
	root, err := getHash(r)
	if err != nil {
		return v, err
	}
	v.VoteMerkleRoot = root
	leafIdx, err := r.Uint64()
	if err != nil {
		return v, err
	}
	v.VoteMerkleProofLeafIndex = leafIdx
	n, err := r.Uint64()
	if err != nil {
		return v, err
	}
	v.VoteMerkleProofSiblings = make([]types.Hash, n)
	for i := range v.VoteMerkleProofSiblings {
		s, err := getHash(r)
		if err != nil {
			return v, err
		}
		v.VoteMerkleProofSiblings[i] = s
	}
	batchHeight, err := r.Uint64()
	if err != nil {
		return v, err
	}
	v.BatchBlockHeight = batchHeight
	return v, nil
}

// TransactionGossip announces a transaction's declared read/write node
// sets to the shards that must provision or execute it.
type TransactionGossip struct {
	TransactionHash types.Hash
	ReadNodes       []types.NodeID
	WriteNodes      []types.NodeID
}

func EncodeTransactionGossip(g TransactionGossip) []byte {
	w := codec.NewWriter()
	putHash(w, g.TransactionHash)
	w.PutUint64(uint64(len(g.ReadNodes)))
	for _, n := range g.ReadNodes {
		putNode(w, n)
	}
	w.PutUint64(uint64(len(g.WriteNodes)))
	for _, n := range g.WriteNodes {
		putNode(w, n)
	}
	return w.Bytes()
}

func DecodeTransactionGossip(b []byte) (TransactionGossip, error) {
	r := codec.NewReader(b)
	var g TransactionGossip
	txHash, err := getHash(r)
	if err != nil {
		return g, err
	}
	g.TransactionHash = txHash
	nr, err := r.Uint64()
	if err != nil {
		return g, err
	}
	g.ReadNodes = make([]types.NodeID, nr)
	for i := range g.ReadNodes {
		n, err := getNode(r)
		if err != nil {
			return g, err
		}
		g.ReadNodes[i] = n
	}
	nw, err := r.Uint64()
	if err != nil {
		return g, err
	}
	g.WriteNodes = make([]types.NodeID, nw)
	for i := range g.WriteNodes {
		n, err := getNode(r)
		if err != nil {
			return g, err
		}
		g.WriteNodes[i] = n
	}
	return g, nil
}

// EncodeStateCertificate serializes a StateCertificate for the
// state.certificate.batch topic.
func EncodeStateCertificate(c types.StateCertificate) []byte {
	w := codec.NewWriter()
	putHash(w, c.TransactionHash)
	w.PutUint64(uint64(c.ShardGroupID))
	w.PutUint64(uint64(len(c.ReadNodes)))
	for _, n := range c.ReadNodes {
		putNode(w, n)
	}
	w.PutUint64(uint64(len(c.StateWrites)))
	for _, e := range c.StateWrites {
		putEntry(w, e)
	}
	putHash(w, c.OutputsMerkleRoot)
	w.PutBool(c.Success)
	w.PutBytes(bls.SignatureToBytes(c.AggSignature))
	w.PutUint64(uint64(len(c.Signers)))
	for _, s := range c.Signers {
		w.PutUint64(uint64(s))
	}
	w.PutUint64(uint64(c.VotingPower))
	putHash(w, c.VoteMerkleRoot)
	w.PutUint64(c.VoteMerkleProofLeafIndex)
	w.PutUint64(uint64(len(c.VoteMerkleProofSiblings)))
	for _, s := range c.VoteMerkleProofSiblings {
		putHash(w, s)
	}
	w.PutUint64(c.BatchBlockHeight)
	return w.Bytes()
}

func DecodeStateCertificate(b []byte) (types.StateCertificate, error) {
	r := codec.NewReader(b)
	var c types.StateCertificate
	txHash, err := getHash(r)
	if err != nil {
		return c, err
	}
	c.TransactionHash = txHash
	shard, err := r.Uint64()
	if err != nil {
		return c, err
	}
	c.ShardGroupID = types.ShardGroupID(shard)
	nr, err := r.Uint64()
	if err != nil {
		return c, err
	}
	c.ReadNodes = make([]types.NodeID, nr)
	for i := range c.ReadNodes {
		n, err := getNode(r)
		if err != nil {
			return c, err
		}
		c.ReadNodes[i] = n
	}
	nw, err := r.Uint64()
	if err != nil {
		return c, err
	}
	c.StateWrites = make([]types.StateEntry, nw)
	for i := range c.StateWrites {
		e, err := getEntry(r)
		if err != nil {
			return c, err
		}
		c.StateWrites[i] = e
	}
	root, err := getHash(r)
	if err != nil {
		return c, err
	}
	c.OutputsMerkleRoot = root
	success, err := r.Bool()
	if err != nil {
		return c, err
	}
	c.Success = success
	sigBytes, err := r.Bytes()
	if err != nil {
		return c, err
	}
	sig, err := bls.SignatureFromBytes(sigBytes)
	if err != nil {
		return c, err
	}
	c.AggSignature = sig
	ns, err := r.Uint64()
	if err != nil {
		return c, err
	}
	c.Signers = make([]types.ValidatorID, ns)
	for i := range c.Signers {
		s, err := r.Uint64()
		if err != nil {
			return c, err
		}
		c.Signers[i] = types.ValidatorID(s)
	}
	power, err := r.Uint64()
	if err != nil {
		return c, err
	}
	c.VotingPower = types.VotePower(power)
	voteRoot, err := getHash(r)
	if err != nil {
		return c, err
	}
	c.VoteMerkleRoot = voteRoot
	leafIdx, err := r.Uint64()
	if err != nil {
		return c, err
	}
	c.VoteMerkleProofLeafIndex = leafIdx
	ns2, err := r.Uint64()
	if err != nil {
		return c, err
	}
	c.VoteMerkleProofSiblings = make([]types.Hash, ns2)
	for i := range c.VoteMerkleProofSiblings {
		s, err := getHash(r)
		if err != nil {
			return c, err
		}
		c.VoteMerkleProofSiblings[i] = s
	}
	batchHeight, err := r.Uint64()
	if err != nil {
		return c, err
	}
	c.BatchBlockHeight = batchHeight
	return c, nil
}
