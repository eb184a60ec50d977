package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dexwatch/internal/config"
	"dexwatch/internal/domain"
	"dexwatch/internal/watchlist"
)

// TaxReader is the tax-estimator surface the pipeline consults. Samples
// only ever exist for markets that traded before; first sight is never
// blocked on taxes.
type TaxReader interface {
	Avg(key domain.MarketKey, nowMs int64) (buyAvg, sellAvg float64, buyN, sellN int)
}

// Pipeline orchestrates the admission checks and owns the resulting
// watchlist transition. Every failure is terminal for the market.
type Pipeline struct {
	probes *Probes
	watch  *watchlist.Watchlist
	taxes  TaxReader
	strat  config.Strategy
	log    zerolog.Logger
	now    func() time.Time
}

// NewPipeline creates the gate pipeline.
func NewPipeline(probes *Probes, watch *watchlist.Watchlist, taxes TaxReader, strat config.Strategy, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		probes: probes,
		watch:  watch,
		taxes:  taxes,
		strat:  strat,
		log:    logger,
		now:    time.Now,
	}
}

// Run screens a registered market. Checks execute in order and the first
// failure rejects the market with a machine-readable reason; probe errors
// count as failures, never as admission. On success the market transitions
// to active with the observed liquidity recorded.
func (g *Pipeline) Run(ctx context.Context, key domain.MarketKey) (bool, error) {
	m, ok := g.watch.Get(key)
	if !ok {
		return false, watchlist.ErrNotFound
	}
	if m.Status != domain.StatusPending {
		return m.Status == domain.StatusActive, nil
	}

	info := g.probes.PairInfo(ctx, &m)

	if err := g.probes.CheckBytecode(ctx, &m); err != nil {
		return g.reject(key, err.Error())
	}

	liq, ok := g.probes.LiquidityUSD(ctx, &m, info)
	if !ok {
		return g.reject(key, "liquidity: no usd estimate available")
	}
	if liq < g.strat.MinLiqUSD {
		return g.reject(key, fmt.Sprintf("liquidity %.0f below minimum %.0f", liq, g.strat.MinLiqUSD))
	}

	if err := g.probes.CheckSellability(ctx, &m); err != nil {
		return g.reject(key, err.Error())
	}

	if score := g.probes.LPRiskScore(&m, info, liq); score >= lpRiskRejectAt {
		return g.reject(key, fmt.Sprintf("lp risk score %d", score))
	}

	if g.taxes != nil {
		buyAvg, sellAvg, buyN, sellN := g.taxes.Avg(key, g.now().UnixMilli())
		if buyN > 0 && buyAvg > g.strat.MaxTaxPct {
			return g.reject(key, fmt.Sprintf("avg buy tax %.2f above %.2f", buyAvg, g.strat.MaxTaxPct))
		}
		if sellN > 0 && sellAvg > g.strat.MaxTaxPct {
			return g.reject(key, fmt.Sprintf("avg sell tax %.2f above %.2f", sellAvg, g.strat.MaxTaxPct))
		}
	}

	if err := g.watch.Activate(key, liq); err != nil {
		return false, err
	}
	if _, token0IsTarget := domain.TargetSide(key.Chain, m.Token0, m.Token1); !token0IsTarget {
		g.watch.SetBaseHint(key, m.Token0)
	} else if domain.IsBaseToken(key.Chain, m.Token1) {
		g.watch.SetBaseHint(key, m.Token1)
	}
	g.log.Info().Str("market", key.String()).Float64("liquidity_usd", liq).Msg("market admitted")
	return true, nil
}

func (g *Pipeline) reject(key domain.MarketKey, reason string) (bool, error) {
	if err := g.watch.Reject(key, reason); err != nil {
		return false, err
	}
	g.log.Info().Str("market", key.String()).Str("reason", reason).Msg("market rejected")
	return false, nil
}
