// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package events defines the closed set of events the composite state
// machine dispatches to its sub-machines, and the actions they emit
// back to the external runner. The core never blocks: it consumes one
// Event, mutates state, and returns a slice of Action for the runner
// to execute.
package events

import (
	"time"

	"github.com/luxfi/shardbft/types"
)

// Event is the closed set of inputs the composite machine accepts.
// A private marker method keeps the set closed to this package.
type Event interface{ isEvent() }

type ProposalTimer struct {
	Shard  types.ShardGroupID
	Height types.BlockHeight
	Round  types.Round
}

type ViewChangeTimer struct {
	Shard types.ShardGroupID
	Now   time.Time
}

type BlockHeaderReceived struct {
	Header types.BlockHeader
	From   types.ValidatorID
}

type BlockVoteReceived struct {
	Shard     types.ShardGroupID
	Height    types.BlockHeight
	Round     types.Round
	BlockHash types.Hash
	Voter     types.ValidatorID
	Signature []byte
}

type StateProvisionReceived struct {
	Provision types.StateProvision
}

type ProvisionSignatureVerified struct {
	Provision types.StateProvision
	Valid     bool
}

type ProvisionQuorumReached struct {
	TransactionHash types.Hash
	SourceShard     types.ShardGroupID
}

type StateVoteReceived struct {
	Vote types.StateVoteBlock
}

type StateCertificateReceived struct {
	Certificate types.StateCertificate
}

type ViewChangeCompleted struct {
	Height   types.BlockHeight
	NewRound types.Round
}

type ViewChangeVoteReceived struct {
	Height    types.BlockHeight
	NewRound  types.Round
	Voter     types.ValidatorID
	HighestQC types.QuorumCertificate
	Signature []byte
}

type ViewChangeCertificateReceived struct {
	Certificate types.ViewChangeCertificate
}

type TransactionGossipReceived struct {
	TransactionHash types.Hash
	ReadNodes       []types.NodeID
	WriteNodes      []types.NodeID
}

type BlockFetched struct {
	Block types.Block
}

type FlushBlock struct {
	Height types.BlockHeight
}

// ResetTimeout is emitted by the BFT machine on every commit so the
// view-change machine's last-progress-time advances.
type ResetTimeout struct {
	Height types.BlockHeight
}

func (ResetTimeout) isEvent() {}

// QuorumCertificateFormed is the internal notification the BFT
// machine enqueues to itself once a vote set crosses quorum (spec
// §4.1 "QC formation").
type QuorumCertificateFormed struct {
	QC types.QuorumCertificate
}

func (ProposalTimer) isEvent()                  {}
func (ViewChangeTimer) isEvent()                {}
func (BlockHeaderReceived) isEvent()             {}
func (BlockVoteReceived) isEvent()               {}
func (StateProvisionReceived) isEvent()          {}
func (ProvisionSignatureVerified) isEvent()      {}
func (ProvisionQuorumReached) isEvent()          {}
func (StateVoteReceived) isEvent()               {}
func (StateCertificateReceived) isEvent()        {}
func (ViewChangeCompleted) isEvent()             {}
func (ViewChangeVoteReceived) isEvent()          {}
func (ViewChangeCertificateReceived) isEvent()   {}
func (TransactionGossipReceived) isEvent()       {}
func (BlockFetched) isEvent()                    {}
func (FlushBlock) isEvent()                      {}
func (QuorumCertificateFormed) isEvent()         {}
