package domain

// BaseToken is a recognized quote asset used to derive USD prices.
// Lower Priority wins when both pool sides are base tokens.
type BaseToken struct {
	Symbol   string
	Address  string
	Priority int
	Stable   bool
}

// Per-chain base-token tables, ordered by priority: native wrap first,
// then major stablecoins. Immutable after process start.
var baseTokens = map[Chain][]BaseToken{
	ChainBSC: {
		{Symbol: "WBNB", Address: "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c", Priority: 0},
		{Symbol: "USDT", Address: "0x55d398326f99059ff775485246999027b3197955", Priority: 1, Stable: true},
		{Symbol: "USDC", Address: "0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d", Priority: 2, Stable: true},
		{Symbol: "BUSD", Address: "0xe9e7cea3dedca5984780bafc599bd69add087d56", Priority: 3, Stable: true},
		{Symbol: "DAI", Address: "0x1af3f329e8be154074d8769d1ffa4ee058b1dbc3", Priority: 4, Stable: true},
	},
	ChainETH: {
		{Symbol: "WETH", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Priority: 0},
		{Symbol: "USDT", Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Priority: 1, Stable: true},
		{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Priority: 2, Stable: true},
		{Symbol: "DAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Priority: 3, Stable: true},
	},
}

// BaseTokens returns the chain's base tokens in priority order.
func BaseTokens(chain Chain) []BaseToken {
	return baseTokens[chain]
}

// LookupBaseToken returns the base-token entry for addr on chain, if any.
func LookupBaseToken(chain Chain, addr string) (BaseToken, bool) {
	addr = NormalizeAddress(addr)
	for _, bt := range baseTokens[chain] {
		if bt.Address == addr {
			return bt, true
		}
	}
	return BaseToken{}, false
}

// IsBaseToken reports whether addr is a recognized base token on chain.
func IsBaseToken(chain Chain, addr string) bool {
	_, ok := LookupBaseToken(chain, addr)
	return ok
}

// TargetSide resolves which pool side is the token under watch: the side
// that is NOT a recognized base token. When both or neither side is a base
// token, token0 is the target.
func TargetSide(chain Chain, token0, token1 string) (target string, token0IsTarget bool) {
	base0 := IsBaseToken(chain, token0)
	base1 := IsBaseToken(chain, token1)
	if !base1 && base0 {
		return NormalizeAddress(token1), false
	}
	return NormalizeAddress(token0), true
}

// IsStablecoin reports whether addr is a recognized stablecoin on chain.
func IsStablecoin(chain Chain, addr string) bool {
	bt, ok := LookupBaseToken(chain, addr)
	return ok && bt.Stable
}
