// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire implements the gossip envelope: topic naming,
// compression, and canonical binary encode/decode for every message
// type the core sends or receives.
package wire

import (
	"fmt"

	"github.com/luxfi/shardbft/types"
)

// Message type names; the topic string is namespace/msg-type/shard-N/version.
const (
	MsgBlockHeader             = "block.header"
	MsgBlockVote               = "block.vote"
	MsgStateProvisionBatch     = "state.provision.batch"
	MsgStateVoteBatch          = "state.vote.batch"
	MsgStateCertificateBatch   = "state.certificate.batch"
	MsgTransactionGossip       = "transaction.gossip"
	MsgViewChangeVote          = "view_change.vote"
	MsgViewChangeCertificate   = "view_change.certificate"
	MsgBlockRequest            = "block.request"
	MsgBlockResponse           = "block.response"
	MsgBlockInventoryRequest   = "block.inventory.request"
	MsgBlockInventoryResponse  = "block.inventory.response"
	MsgSyncComplete            = "sync.complete"
	MsgTransactionCertificate  = "transaction.certificate"
)

const (
	namespace      = "shardbft"
	schemaVersion  = 1
)

// Topic builds the canonical gossip topic string for a message type
// on a given shard: namespace/msg-type/shard-<N>/version.
func Topic(msgType string, shard types.ShardGroupID) string {
	return fmt.Sprintf("%s/%s/shard-%d/v%d", namespace, msgType, shard, schemaVersion)
}
