// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"time"

	"github.com/luxfi/shardbft/types"
)

// Action is the closed set of effects a sub-machine can ask the
// runner to perform. The core never performs these itself.
type Action interface{ isAction() }

type BroadcastToShard struct {
	Shard   types.ShardGroupID
	Topic   string
	Message []byte
}

type SendToPeer struct {
	Peer    types.ValidatorID
	Topic   string
	Message []byte
}

type SetTimer struct {
	ID       string
	Duration time.Duration
}

type EnqueueInternal struct {
	Event Event
}

type VerifyProvisionSignature struct {
	Provision types.StateProvision
}

type ApplyCertificate struct {
	Certificate types.StateCertificate
}

type EmitTransactionResult struct {
	RequestID uint64
	Success   bool
	Result    []byte
}

func (BroadcastToShard) isAction()          {}
func (SendToPeer) isAction()                {}
func (SetTimer) isAction()                  {}
func (EnqueueInternal) isAction()           {}
func (VerifyProvisionSignature) isAction()  {}
func (ApplyCertificate) isAction()          {}
func (EmitTransactionResult) isAction()     {}
