// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"github.com/luxfi/shardbft/codec"
	"github.com/luxfi/shardbft/crypto/bitfield"
	"github.com/luxfi/shardbft/crypto/bls"
	"github.com/luxfi/shardbft/types"
)

// ViewChangeVote is the wire form of one validator's vote to advance
// to a new round. HighestQC travels unsigned (it is not covered by
// the BLS signature) so votes with different highest_qcs still
// aggregate over the same signed message.
type ViewChangeVote struct {
	Height    types.BlockHeight
	NewRound  types.Round
	Voter     types.ValidatorID
	HighestQC types.QuorumCertificate
	Signature []byte // BLS, but carried as raw bytes pre-aggregation
}

func EncodeViewChangeVote(v ViewChangeVote) []byte {
	w := codec.NewWriter()
	w.PutUint64(uint64(v.Height))
	w.PutUint64(uint64(v.NewRound))
	w.PutUint64(uint64(v.Voter))
	putQC(w, v.HighestQC)
	w.PutBytes(v.Signature)
	return w.Bytes()
}

func DecodeViewChangeVote(b []byte) (ViewChangeVote, error) {
	r := codec.NewReader(b)
	var v ViewChangeVote
	height, err := r.Uint64()
	if err != nil {
		return v, err
	}
	v.Height = types.BlockHeight(height)
	newRound, err := r.Uint64()
	if err != nil {
		return v, err
	}
	v.NewRound = types.Round(newRound)
	voter, err := r.Uint64()
	if err != nil {
		return v, err
	}
	v.Voter = types.ValidatorID(voter)
	qc, err := getQC(r)
	if err != nil {
		return v, err
	}
	v.HighestQC = qc
	sig, err := r.Bytes()
	if err != nil {
		return v, err
	}
	v.Signature = sig
	return v, nil
}

func EncodeViewChangeCertificate(c types.ViewChangeCertificate) []byte {
	w := codec.NewWriter()
	w.PutUint64(uint64(c.Height))
	w.PutUint64(uint64(c.NewRound))
	putQC(w, c.HighestQC)
	putHash(w, c.HighestQCBlockHash)
	w.PutBytes(bls.SignatureToBytes(c.AggSignature))
	w.PutBytes(c.Signers.Bytes())
	w.PutUint64(uint64(c.VotingPower))
	return w.Bytes()
}

func DecodeViewChangeCertificate(b []byte) (types.ViewChangeCertificate, error) {
	r := codec.NewReader(b)
	var c types.ViewChangeCertificate
	height, err := r.Uint64()
	if err != nil {
		return c, err
	}
	c.Height = types.BlockHeight(height)
	newRound, err := r.Uint64()
	if err != nil {
		return c, err
	}
	c.NewRound = types.Round(newRound)
	qc, err := getQC(r)
	if err != nil {
		return c, err
	}
	c.HighestQC = qc
	blockHash, err := getHash(r)
	if err != nil {
		return c, err
	}
	c.HighestQCBlockHash = blockHash
	sigBytes, err := r.Bytes()
	if err != nil {
		return c, err
	}
	if len(sigBytes) > 0 {
		sig, err := bls.SignatureFromBytes(sigBytes)
		if err != nil {
			return c, err
		}
		c.AggSignature = sig
	}
	signerBytes, err := r.Bytes()
	if err != nil {
		return c, err
	}
	c.Signers = bitfield.FromBytes(signerBytes)
	power, err := r.Uint64()
	if err != nil {
		return c, err
	}
	c.VotingPower = types.VotePower(power)
	return c, nil
}
