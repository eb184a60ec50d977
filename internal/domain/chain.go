package domain

// Chain identifies a supported EVM network.
type Chain string

const (
	ChainBSC Chain = "bsc"
	ChainETH Chain = "eth"
)

// Chains lists all supported networks.
var Chains = []Chain{ChainBSC, ChainETH}

// Slug returns the market-aggregator chain slug.
func (c Chain) Slug() string {
	switch c {
	case ChainBSC:
		return "bsc"
	case ChainETH:
		return "ethereum"
	}
	return string(c)
}

// ID returns the EVM chain ID.
func (c Chain) ID() int64 {
	switch c {
	case ChainBSC:
		return 56
	case ChainETH:
		return 1
	}
	return 0
}

// MarketType distinguishes the two pool generations.
type MarketType string

const (
	MarketV2 MarketType = "v2"
	MarketV3 MarketType = "v3"
)
