package evm

import "dexwatch/internal/domain"

// FactoryRef names one DEX-family factory on a chain.
type FactoryRef struct {
	Family  string
	Address string
	Type    domain.MarketType
}

// ChainContracts collects the well-known contract addresses used for probes
// and factory subscriptions on one chain.
type ChainContracts struct {
	Factories []FactoryRef
	V2Router  string
	V3Factory string
	V3Quoter  string

	// TrendingDexAllow lists aggregator dexId prefixes admitted from the
	// trending poller on this chain.
	TrendingDexAllow []string
}

var contracts = map[domain.Chain]ChainContracts{
	domain.ChainBSC: {
		Factories: []FactoryRef{
			{Family: "pancakeswap", Address: "0xca143ce32fe78f1f7019d7d551a6402fc5350c73", Type: domain.MarketV2},
			{Family: "pancakeswap", Address: "0x0bfbcf9fa4f9c56b0f40a671ad40e0805a091865", Type: domain.MarketV3},
		},
		V2Router:         "0x10ed43c718714eb63d5aa57b78b54704e256024e",
		V3Factory:        "0x0bfbcf9fa4f9c56b0f40a671ad40e0805a091865",
		V3Quoter:         "0xb048bbc1ee6b733fffcfb9e9cef7375518e25997",
		TrendingDexAllow: []string{"pancakeswap"},
	},
	domain.ChainETH: {
		Factories: []FactoryRef{
			{Family: "uniswap", Address: "0x5c69bee701ef814a2b6a3edd4b1652cb9cc5aa6f", Type: domain.MarketV2},
			{Family: "uniswap", Address: "0x1f98431c8ad98523631ae4a59f267346ea31f984", Type: domain.MarketV3},
		},
		V2Router:         "0x7a250d5630b4cf539739df2c5dacb4c659f2488d",
		V3Factory:        "0x1f98431c8ad98523631ae4a59f267346ea31f984",
		V3Quoter:         "0xb27308f9f90d607463bb33ea1bebb41c27ce5ab6",
		TrendingDexAllow: []string{"uniswap"},
	},
}

// Contracts returns the registry for chain.
func Contracts(chain domain.Chain) ChainContracts {
	return contracts[chain]
}
