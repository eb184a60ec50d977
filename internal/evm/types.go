// Package evm provides the chain-node surface: a JSON-RPC websocket client
// for read-only contract calls and log subscriptions, plus a minimal ABI
// codec for the fixed call and event set this system uses.
package evm

import "context"

// Log is one EVM log record as delivered by eth_subscribe("logs").
// Hex fields keep the wire encoding; decode via the abi helpers.
type Log struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

// LogFilter selects logs by emitting address and topic position.
type LogFilter struct {
	Addresses []string   `json:"address,omitempty"`
	Topics    [][]string `json:"topics,omitempty"`
}

// Caller performs read-only contract calls against a chain node.
type Caller interface {
	// CallContract executes eth_call against `to` with hex calldata,
	// returning the hex-encoded result.
	CallContract(ctx context.Context, to string, data string) (string, error)
	// GetCode returns the hex-encoded bytecode at addr ("0x" when empty).
	GetCode(ctx context.Context, addr string) (string, error)
}

// LogStreamer opens log subscriptions.
type LogStreamer interface {
	SubscribeLogs(ctx context.Context, filter LogFilter) (*Subscription, error)
}

// Node is the full chain-node contract used by the rest of the system.
type Node interface {
	Caller
	LogStreamer
}
