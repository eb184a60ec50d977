package domain

// TradeEvent is one swap folded into a market's sliding window.
// Ordering within a market follows subscriber delivery order.
type TradeEvent struct {
	TimestampMs int64
	USD         float64
	IsBuy       bool
	Buyer       string // recipient for buys, sender for sells; may be empty
}

// FdvSample is one fully-diluted-valuation observation for a market.
type FdvSample struct {
	TimestampMs int64
	FdvUSD      float64
}

// TaxSample is one effective-fee observation. Each set value is clamped
// to [0, 1] before storage.
type TaxSample struct {
	TimestampMs int64
	BuyTax      *float64
	SellTax     *float64
}
