// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bls thinly wraps github.com/luxfi/crypto/bls, the BLS12-381
// aggregation library used elsewhere in this codebase for warp
// signing and consensus certificates. Every quorum certificate,
// view-change certificate and state certificate in this repository is
// a BLS aggregate produced through this package.
package bls

import (
	upstream "github.com/luxfi/crypto/bls"
	"github.com/luxfi/crypto/bls/signer/localsigner"

	"github.com/luxfi/shardbft/errs"
)

// Signer can produce a BLS signature over a message and report its
// own public key. localsigner.LocalSigner (an in-memory secret key)
// is the concrete implementation used by validators in this repo.
type Signer = upstream.Signer

// PublicKey and Signature are BLS12-381 points.
type PublicKey = upstream.PublicKey
type Signature = upstream.Signature

// NewSigner constructs a Signer from a raw secret-key byte string.
func NewSigner(skBytes []byte) (Signer, error) {
	return localsigner.FromBytes(skBytes)
}

// GenerateSigner creates a fresh random Signer, for tests and local
// development networks.
func GenerateSigner() (Signer, error) {
	return localsigner.New()
}

// Verify checks a single BLS signature against a public key and
// message.
func Verify(pk *PublicKey, sig *Signature, msg []byte) bool {
	if pk == nil || sig == nil {
		return false
	}
	return upstream.Verify(pk, sig, msg)
}

// AggregateSignatures combines signatures over the same message into
// one aggregate signature. Returns an errs.AggregationEmpty error when
// sigs is empty.
func AggregateSignatures(sigs []*Signature) (*Signature, error) {
	if len(sigs) == 0 {
		return nil, errs.New(errs.AggregationEmpty, "no signatures to aggregate")
	}
	return upstream.AggregateSignatures(sigs)
}

// AggregatePublicKeys combines public keys of the signers that
// contributed to an aggregate signature.
func AggregatePublicKeys(pks []*PublicKey) (*PublicKey, error) {
	return upstream.AggregatePublicKeys(pks)
}

// SignatureToBytes / SignatureFromBytes / PublicKeyToBytes /
// PublicKeyFromBytes round-trip BLS points for the wire codec.
func SignatureToBytes(sig *Signature) []byte {
	if sig == nil {
		return nil
	}
	return upstream.SignatureToBytes(sig)
}

func SignatureFromBytes(b []byte) (*Signature, error) {
	return upstream.SignatureFromBytes(b)
}

func PublicKeyToBytes(pk *PublicKey) []byte {
	if pk == nil {
		return nil
	}
	return upstream.PublicKeyToBytes(pk)
}

func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	return upstream.PublicKeyFromBytes(b)
}
