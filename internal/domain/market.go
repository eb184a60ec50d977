package domain

import "fmt"

// MarketStatus is the lifecycle state of a watched market.
type MarketStatus string

const (
	StatusPending  MarketStatus = "pending"
	StatusActive   MarketStatus = "active"
	StatusRejected MarketStatus = "rejected"
)

// MarketKey uniquely identifies a market across chains and pool generations.
// Address is normalized to lowercase hex.
type MarketKey struct {
	Chain   Chain
	Type    MarketType
	Address string
}

// String renders the key as "chain:type:address".
func (k MarketKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Chain, k.Type, k.Address)
}

// Market is a watchlist entry. Owned exclusively by the watchlist; other
// components hold only the MarketKey and look the entry up on demand.
type Market struct {
	Key    MarketKey
	Token0 string
	Token1 string
	Fee    uint32 // v3 fee tier in hundredths of a bip; zero for v2

	Status MarketStatus
	Reason string // set when Status == StatusRejected

	FirstSeenMs   int64
	LastUpdatedMs int64

	// Metadata observed along the way.
	LiquidityUSD float64 // last observed pool liquidity
	LastMintUSD  float64 // USD value of the last liquidity add (v2 Mint)
	BaseHint     string  // base-token side address, if one was identified
}
