// Package gate screens candidate markets before any subscription is made.
// Probes read live chain state through static calls; the pipeline runs them
// in a fixed order and short-circuits on the first failure.
package gate

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"dexwatch/internal/aggregator"
	"dexwatch/internal/domain"
	"dexwatch/internal/evm"
	"dexwatch/internal/pricing"
)

// LP-risk scoring bands over reported pool liquidity.
const (
	lpRiskLowLiqUSD = 3000.0
	lpRiskMidLiqUSD = 8000.0
	lpRiskRejectAt  = 2
)

// ErrNoNode is returned when no chain node is wired for the market's chain.
var ErrNoNode = errors.New("gate: no node for chain")

// PairGetter is the aggregator surface the probes use for reported
// liquidity and price fallbacks.
type PairGetter interface {
	Pair(ctx context.Context, chain domain.Chain, pair string) (*aggregator.PairInfo, error)
}

// Probes runs the individual safety checks against live chain state.
type Probes struct {
	nodes  map[domain.Chain]evm.Caller
	pricer *pricing.Pricer
	agg    PairGetter
	log    zerolog.Logger
}

// NewProbes creates the probe set.
func NewProbes(nodes map[domain.Chain]evm.Caller, pricer *pricing.Pricer, agg PairGetter, logger zerolog.Logger) *Probes {
	return &Probes{nodes: nodes, pricer: pricer, agg: agg, log: logger}
}

// PairInfo fetches the aggregator's view of the pool. Best-effort: a miss or
// outage returns nil without error so chain-sourced checks keep working.
func (p *Probes) PairInfo(ctx context.Context, m *domain.Market) *aggregator.PairInfo {
	if p.agg == nil {
		return nil
	}
	info, err := p.agg.Pair(ctx, m.Key.Chain, m.Key.Address)
	if err != nil {
		p.log.Debug().Err(err).Str("market", m.Key.String()).Msg("aggregator pair lookup failed")
		return nil
	}
	return info
}

// CheckBytecode verifies the pool and both token contracts carry code.
func (p *Probes) CheckBytecode(ctx context.Context, m *domain.Market) error {
	node := p.nodes[m.Key.Chain]
	if node == nil {
		return ErrNoNode
	}
	for _, addr := range []string{m.Key.Address, m.Token0, m.Token1} {
		has, err := evm.HasCode(ctx, node, addr)
		if err != nil {
			return fmt.Errorf("bytecode probe %s: %w", addr, err)
		}
		if !has {
			return fmt.Errorf("no bytecode at %s", addr)
		}
	}
	return nil
}

// LiquidityUSD estimates the pool's USD liquidity. V2 prefers the
// reserve-derived figure; V3 and the V2 fallback use the aggregator's
// reported liquidity.
func (p *Probes) LiquidityUSD(ctx context.Context, m *domain.Market, info *aggregator.PairInfo) (float64, bool) {
	if m.Key.Type == domain.MarketV2 {
		if liq, ok := p.pricer.V2LiquidityUSD(ctx, m); ok {
			return liq, true
		}
	}
	if info != nil && info.LiquidityUSD > 0 {
		return info.LiquidityUSD, true
	}
	return 0, false
}

// CheckSellability runs the static-swap simulation for the market's type.
func (p *Probes) CheckSellability(ctx context.Context, m *domain.Market) error {
	if m.Key.Type == domain.MarketV3 {
		return p.sellabilityV3(ctx, m)
	}
	return p.sellabilityV2(ctx, m)
}

// sellabilityV2 probes router.getAmountsOut over 1-hop and 2-hop paths from
// the target token into the base-token set, in priority order. Any strictly
// positive final output passes; a revert on one path just fails that path.
func (p *Probes) sellabilityV2(ctx context.Context, m *domain.Market) error {
	node := p.nodes[m.Key.Chain]
	if node == nil {
		return ErrNoNode
	}
	contracts := evm.Contracts(m.Key.Chain)

	target, _ := domain.TargetSide(m.Key.Chain, m.Token0, m.Token1)
	dec := p.pricer.Decimals().Get(ctx, m.Key.Chain, target)
	probe := probeAmount(dec, 1)

	bases := domain.BaseTokens(m.Key.Chain)
	for _, b := range bases {
		if b.Address == target {
			continue
		}
		if routeYields(ctx, node, contracts.V2Router, probe, []string{target, b.Address}) {
			return nil
		}
	}
	for _, mid := range bases {
		if mid.Address == target {
			continue
		}
		for _, dst := range bases {
			if dst.Address == target || dst.Address == mid.Address {
				continue
			}
			if routeYields(ctx, node, contracts.V2Router, probe, []string{target, mid.Address, dst.Address}) {
				return nil
			}
		}
	}
	return errors.New("sellability fail: no static route found (V2)")
}

// sellabilityV3 verifies the pool against the factory and probes the quoter
// at escalating amounts.
func (p *Probes) sellabilityV3(ctx context.Context, m *domain.Market) error {
	node := p.nodes[m.Key.Chain]
	if node == nil {
		return ErrNoNode
	}
	contracts := evm.Contracts(m.Key.Chain)

	base, haveBase := baseInPool(m)
	if !haveBase {
		return errors.New("sellability fail: no base token in pool (V3)")
	}
	target, _ := domain.TargetSide(m.Key.Chain, m.Token0, m.Token1)

	a, b := sortAddrs(m.Token0, m.Token1)
	pool, err := evm.FactoryPool(ctx, node, contracts.V3Factory, a, b, m.Fee)
	if err != nil {
		return fmt.Errorf("factory.getPool probe: %w", err)
	}
	pool = domain.NormalizeAddress(pool)
	if pool == domain.ZeroAddress {
		return errors.New("factory.getPool returned zero address")
	}
	if pool != m.Key.Address {
		return fmt.Errorf("factory.getPool mismatch: %s", pool)
	}

	dec := p.pricer.Decimals().Get(ctx, m.Key.Chain, target)
	for _, mult := range []int64{1, 10, 100} {
		amount := probeAmount(dec, mult)
		out, err := evm.QuoteExactInputSingle(ctx, node, contracts.V3Quoter, target, base, m.Fee, amount)
		if err == nil && out.Sign() > 0 {
			return nil
		}
	}
	return errors.New("sellability fail: quoter returned zero (V3)")
}

// LPRiskScore computes the liquidity-provision risk score. Reported
// aggregator liquidity is preferred; the observed estimate stands in when
// the aggregator has no entry.
func (p *Probes) LPRiskScore(m *domain.Market, info *aggregator.PairInfo, observedLiqUSD float64) int {
	score := 0
	if !domain.IsBaseToken(m.Key.Chain, m.Token0) && !domain.IsBaseToken(m.Key.Chain, m.Token1) {
		score += 2
	}

	liq := observedLiqUSD
	if info != nil && info.LiquidityUSD > 0 {
		liq = info.LiquidityUSD
	}
	switch {
	case liq < lpRiskLowLiqUSD:
		score += 2
	case liq < lpRiskMidLiqUSD:
		score++
	}
	return score
}

func routeYields(ctx context.Context, node evm.Caller, router string, amountIn *big.Int, path []string) bool {
	amounts, err := evm.RouterAmountsOut(ctx, node, router, amountIn, path)
	if err != nil || len(amounts) == 0 {
		return false
	}
	return amounts[len(amounts)-1].Sign() > 0
}

// probeAmount returns mult × 10^max(0, dec−6) in raw token units.
func probeAmount(dec int, mult int64) *big.Int {
	exp := dec - 6
	if exp < 0 {
		exp = 0
	}
	n := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	return n.Mul(n, big.NewInt(mult))
}

func baseInPool(m *domain.Market) (string, bool) {
	if domain.IsBaseToken(m.Key.Chain, m.Token1) {
		return domain.NormalizeAddress(m.Token1), true
	}
	if domain.IsBaseToken(m.Key.Chain, m.Token0) {
		return domain.NormalizeAddress(m.Token0), true
	}
	return "", false
}

func sortAddrs(a, b string) (string, string) {
	a = domain.NormalizeAddress(a)
	b = domain.NormalizeAddress(b)
	if a > b {
		return b, a
	}
	return a, b
}
