package pricing

import (
	"context"

	"github.com/rs/zerolog"

	"dexwatch/internal/aggregator"
	"dexwatch/internal/domain"
	"dexwatch/internal/evm"
)

// PairGetter is the aggregator surface used for spot-price fallbacks.
type PairGetter interface {
	Pair(ctx context.Context, chain domain.Chain, pair string) (*aggregator.PairInfo, error)
}

// Pricer turns pool state into USD prices. AMM-derived prices are preferred;
// the aggregator's spot price is the fallback.
type Pricer struct {
	nodes    map[domain.Chain]evm.Caller
	decimals *DecimalsCache
	oracle   *Oracle
	agg      PairGetter
	log      zerolog.Logger
}

// NewPricer creates a Pricer.
func NewPricer(nodes map[domain.Chain]evm.Caller, decimals *DecimalsCache, oracle *Oracle, agg PairGetter, logger zerolog.Logger) *Pricer {
	return &Pricer{nodes: nodes, decimals: decimals, oracle: oracle, agg: agg, log: logger}
}

// Decimals exposes the shared decimals cache.
func (p *Pricer) Decimals() *DecimalsCache { return p.decimals }

// Oracle exposes the shared USD oracle.
func (p *Pricer) Oracle() *Oracle { return p.oracle }

// RelativePrice returns the pool's mid prices (token0 in token1 and the
// inverse) from live chain state.
func (p *Pricer) RelativePrice(ctx context.Context, m *domain.Market) (p0in1, p1in0 float64, ok bool) {
	node := p.nodes[m.Key.Chain]
	if node == nil {
		return 0, 0, false
	}
	d0 := p.decimals.Get(ctx, m.Key.Chain, m.Token0)
	d1 := p.decimals.Get(ctx, m.Key.Chain, m.Token1)

	switch m.Key.Type {
	case domain.MarketV3:
		sqrtPrice, err := evm.PoolSqrtPriceX96(ctx, node, m.Key.Address)
		if err != nil {
			return 0, 0, false
		}
		p0in1, ok = V3PriceToken1PerToken0(sqrtPrice, d0, d1)
		if !ok {
			return 0, 0, false
		}
		return p0in1, 1 / p0in1, true
	default:
		r0, r1, err := evm.PairReserves(ctx, node, m.Key.Address)
		if err != nil {
			return 0, 0, false
		}
		return V2RelativePrice(r0, r1, d0, d1)
	}
}

// AMMPriceUSD derives the USD price of one pool side from live pool state
// and the opposite side's base-token quote. When both sides are base tokens
// the higher-priority one is used as the denominator.
func (p *Pricer) AMMPriceUSD(ctx context.Context, m *domain.Market, token0Side bool) (float64, bool) {
	p0in1, p1in0, ok := p.RelativePrice(ctx, m)
	if !ok {
		return 0, false
	}

	type option struct {
		priority int
		price    float64
	}
	var candidates []option

	otherAddr := m.Token1
	rel := p0in1
	if !token0Side {
		otherAddr = m.Token0
		rel = p1in0
	}
	if bt, isBase := domain.LookupBaseToken(m.Key.Chain, otherAddr); isBase {
		if u, okUSD := p.oracle.GetBaseTokenUSD(ctx, m.Key.Chain, otherAddr); okUSD {
			candidates = append(candidates, option{priority: bt.Priority, price: rel * u})
		}
	}

	// The side itself being a base token is also a valid quote source.
	selfAddr := m.Token0
	if !token0Side {
		selfAddr = m.Token1
	}
	if bt, isBase := domain.LookupBaseToken(m.Key.Chain, selfAddr); isBase {
		if u, okUSD := p.oracle.GetBaseTokenUSD(ctx, m.Key.Chain, selfAddr); okUSD {
			candidates = append(candidates, option{priority: bt.Priority, price: u})
		}
	}

	if len(candidates) == 0 {
		return 0, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.priority < best.priority {
			best = c
		}
	}
	if best.price <= 0 {
		return 0, false
	}
	return best.price, true
}

// PriceUSD returns the USD price of one pool side, preferring the AMM
// derivation and falling back to the aggregator's spot price.
func (p *Pricer) PriceUSD(ctx context.Context, m *domain.Market, token0Side bool) (float64, bool) {
	if price, ok := p.AMMPriceUSD(ctx, m, token0Side); ok {
		return price, true
	}

	if p.agg == nil {
		return 0, false
	}
	info, err := p.agg.Pair(ctx, m.Key.Chain, m.Key.Address)
	if err != nil {
		return 0, false
	}
	side := m.Token0
	if !token0Side {
		side = m.Token1
	}
	if info.BaseTokenAddress == domain.NormalizeAddress(side) && info.PriceUSD > 0 {
		return info.PriceUSD, true
	}
	return 0, false
}

// DeltaToUSD converts a signed natural-unit token delta into signed USD.
func (p *Pricer) DeltaToUSD(ctx context.Context, m *domain.Market, token0Side bool, delta float64) (float64, bool) {
	price, ok := p.PriceUSD(ctx, m, token0Side)
	if !ok {
		return 0, false
	}
	return delta * price, true
}

// V2LiquidityUSD estimates a V2 pool's USD liquidity as twice the base
// side's reserve value. ok is false when no side has a base-token quote.
func (p *Pricer) V2LiquidityUSD(ctx context.Context, m *domain.Market) (float64, bool) {
	node := p.nodes[m.Key.Chain]
	if node == nil {
		return 0, false
	}
	r0, r1, err := evm.PairReserves(ctx, node, m.Key.Address)
	if err != nil {
		return 0, false
	}

	type side struct {
		addr    string
		reserve float64
	}
	sides := []side{
		{addr: m.Token0, reserve: Normalize(r0, p.decimals.Get(ctx, m.Key.Chain, m.Token0))},
		{addr: m.Token1, reserve: Normalize(r1, p.decimals.Get(ctx, m.Key.Chain, m.Token1))},
	}

	bestPriority := int(^uint(0) >> 1)
	var liquidity float64
	found := false
	for _, s := range sides {
		bt, isBase := domain.LookupBaseToken(m.Key.Chain, s.addr)
		if !isBase || bt.Priority >= bestPriority {
			continue
		}
		if u, ok := p.oracle.GetBaseTokenUSD(ctx, m.Key.Chain, s.addr); ok {
			bestPriority = bt.Priority
			liquidity = 2 * s.reserve * u
			found = true
		}
	}
	return liquidity, found
}

// MintUSD values a V2 liquidity add by pricing both legs.
func (p *Pricer) MintUSD(ctx context.Context, m *domain.Market, amount0Norm, amount1Norm float64) (float64, bool) {
	var total float64
	priced := false

	if u, ok := p.PriceUSD(ctx, m, true); ok {
		total += amount0Norm * u
		priced = true
	}
	if u, ok := p.PriceUSD(ctx, m, false); ok {
		total += amount1Norm * u
		priced = true
	}
	if !priced {
		return 0, false
	}
	return total, true
}
