package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dexwatch/internal/aggregator"
	"dexwatch/internal/domain"
)

// OracleTTL bounds how long a cached USD quote is served.
const OracleTTL = 30 * time.Second

// PairLister is the aggregator surface the oracle needs.
type PairLister interface {
	TokenPairs(ctx context.Context, token string) ([]aggregator.PairInfo, error)
}

// Oracle resolves USD prices for tokens via the aggregator, with a
// stablecoin fallback of 1.00 and a short TTL cache. Concurrent misses may
// double-fetch; the cache tolerates that.
type Oracle struct {
	agg PairLister
	log zerolog.Logger
	now func() time.Time

	mu    sync.RWMutex
	cache map[string]oracleEntry
}

type oracleEntry struct {
	price   float64
	fetched time.Time
}

// NewOracle creates an Oracle over the aggregator client.
func NewOracle(agg PairLister, logger zerolog.Logger) *Oracle {
	return &Oracle{
		agg:   agg,
		log:   logger,
		now:   time.Now,
		cache: make(map[string]oracleEntry),
	}
}

// GetBaseTokenUSD returns a USD price for a recognized base token.
// Sources in order: aggregator best pair, then 1.00 for stablecoins when the
// aggregator is unavailable. ok is false when no price can be produced.
func (o *Oracle) GetBaseTokenUSD(ctx context.Context, chain domain.Chain, token string) (float64, bool) {
	token = domain.NormalizeAddress(token)
	if !domain.IsBaseToken(chain, token) {
		return 0, false
	}
	return o.fetch(ctx, chain, token, domain.IsStablecoin(chain, token))
}

// FetchTokenUSD returns a USD price for an arbitrary token. Non-base tokens
// with no aggregator entry resolve to ok=false.
func (o *Oracle) FetchTokenUSD(ctx context.Context, chain domain.Chain, token string) (float64, bool) {
	token = domain.NormalizeAddress(token)
	return o.fetch(ctx, chain, token, domain.IsStablecoin(chain, token))
}

func (o *Oracle) fetch(ctx context.Context, chain domain.Chain, token string, stableFallback bool) (float64, bool) {
	key := string(chain) + "|" + token

	o.mu.RLock()
	entry, hit := o.cache[key]
	o.mu.RUnlock()
	if hit && o.now().Sub(entry.fetched) < OracleTTL {
		return entry.price, entry.price > 0
	}

	price, ok := o.lookup(ctx, chain, token)
	if !ok && stableFallback {
		price, ok = 1.0, true
	}
	if !ok {
		return 0, false
	}

	o.mu.Lock()
	o.cache[key] = oracleEntry{price: price, fetched: o.now()}
	o.mu.Unlock()
	return price, true
}

// lookup picks the best pair by reported pool liquidity among the token's
// pools on the right chain where the token is the pair's base side.
func (o *Oracle) lookup(ctx context.Context, chain domain.Chain, token string) (float64, bool) {
	pairs, err := o.agg.TokenPairs(ctx, token)
	if err != nil {
		o.log.Debug().Err(err).Str("token", token).Msg("aggregator price lookup failed")
		return 0, false
	}

	var best float64
	var bestLiq float64 = -1
	for _, p := range pairs {
		if p.ChainSlug != chain.Slug() || p.BaseTokenAddress != token {
			continue
		}
		if p.PriceUSD > 0 && p.LiquidityUSD > bestLiq {
			best = p.PriceUSD
			bestLiq = p.LiquidityUSD
		}
	}
	return best, best > 0
}
