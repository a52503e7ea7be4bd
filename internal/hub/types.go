// Package hub is the transport-agnostic boundary between the broker and
// the aggregator (C4). It defines the inbound/outbound message shapes and a
// narrow Sender-driven reference implementation; the actual transport
// (websocket, long-poll, or an in-memory test double) is injected.
package hub

import (
	"github.com/yourusername/broker/internal/chainclient"
	"github.com/yourusername/broker/internal/model"
)

// CreateSubOrderRequest is the inbound create_sub_order message.
type CreateSubOrderRequest struct {
	ID       int64           `json:"id"`
	Symbol   string          `json:"symbol"`
	Side     model.Side      `json:"side"`
	Price    string          `json:"price"`
	Amount   string          `json:"amount"`
	Exchange string          `json:"exchange"`
}

// SubOrderStatusAccepted is the inbound acknowledgement of a previously
// sent SubOrderStatus.
type SubOrderStatusAccepted struct {
	ID     int64                `json:"id"`
	Status model.SubOrderStatus `json:"status"`
}

// SubOrderStatus is the outbound status payload. Status is reported as null
// (empty string) when the sub-order is entirely unknown to this broker.
// BlockchainOrder is present iff a trade exists for the sub-order.
type SubOrderStatus struct {
	ID              int64                     `json:"id"`
	Status          model.SubOrderStatus      `json:"status"`
	FilledAmount    string                    `json:"filledAmount"`
	BlockchainOrder *chainclient.BlockchainOrder `json:"blockchainOrder,omitempty"`
}

// ConnectMessage is the outbound connect handshake: signature is a
// personal-message signature of the decimal string of time.
type ConnectMessage struct {
	Address   string `json:"address"`
	Time      int64  `json:"time"`
	Signature string `json:"signature"`
}

// RegisterMessage carries operator metadata the hub uses to identify and
// display this broker instance.
type RegisterMessage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Address string `json:"address"`
}

// Balances is the outbound balances payload: exchange -> currency -> amount.
type Balances map[string]map[string]string
