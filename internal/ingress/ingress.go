package ingress

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dexwatch/internal/aggregator"
	"dexwatch/internal/config"
	"dexwatch/internal/domain"
	"dexwatch/internal/evm"
	"dexwatch/internal/observability"
	"dexwatch/internal/subscriber"
	"dexwatch/internal/watchlist"
)

// candidateBuffer absorbs discovery bursts between the sources and the
// admission loop.
const candidateBuffer = 256

// Trender lists a chain's trending pairs.
type Trender interface {
	Trending(ctx context.Context, chain domain.Chain, limit int) ([]aggregator.PairInfo, error)
}

// GateRunner screens one registered market.
type GateRunner interface {
	Run(ctx context.Context, key domain.MarketKey) (bool, error)
}

// MarketSubscriber starts a market's event subscription.
type MarketSubscriber interface {
	Subscribe(ctx context.Context, key domain.MarketKey) error
}

// Options wires an Ingress.
type Options struct {
	Streams  map[domain.Chain]evm.LogStreamer
	Agg      Trender
	Watch    *watchlist.Watchlist
	Gate     GateRunner
	Subs     MarketSubscriber
	Strategy config.Strategy
	Logger   zerolog.Logger
}

// Ingress merges the factory event sources and the trending pollers into one
// candidate stream and runs each candidate through the gate.
type Ingress struct {
	streams map[domain.Chain]evm.LogStreamer
	agg     Trender
	watch   *watchlist.Watchlist
	gate    GateRunner
	subs    MarketSubscriber
	strat   config.Strategy
	log     zerolog.Logger

	dedup      *dedup
	candidates chan *domain.Candidate
}

// New creates an Ingress from options.
func New(opts Options) *Ingress {
	return &Ingress{
		streams:    opts.Streams,
		agg:        opts.Agg,
		watch:      opts.Watch,
		gate:       opts.Gate,
		subs:       opts.Subs,
		strat:      opts.Strategy,
		log:        opts.Logger,
		dedup:      newDedup(DedupTTL),
		candidates: make(chan *domain.Candidate, candidateBuffer),
	}
}

// DedupSize reports the trending dedup-set size, for the health summary.
func (in *Ingress) DedupSize() int { return in.dedup.Size() }

// Run starts the factory watchers, trending pollers, and the admission loop,
// blocking until ctx is cancelled.
func (in *Ingress) Run(ctx context.Context) error {
	for _, chain := range domain.Chains {
		if in.streams[chain] != nil {
			go in.watchFactories(ctx, chain)
		}
		if in.agg != nil {
			go in.pollTrending(ctx, chain)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-in.candidates:
			in.admit(ctx, c)
		}
	}
}

// watchFactories subscribes to the chain's factory contracts and emits one
// candidate per PairCreated/PoolCreated log. The subscription self-recovers
// at the transport layer; this loop only restarts it after hard failures.
func (in *Ingress) watchFactories(ctx context.Context, chain domain.Chain) {
	contracts := evm.Contracts(chain)
	addrs := make([]string, 0, len(contracts.Factories))
	for _, f := range contracts.Factories {
		addrs = append(addrs, f.Address)
	}
	if len(addrs) == 0 {
		return
	}
	filter := evm.LogFilter{
		Addresses: addrs,
		Topics:    [][]string{{evm.TopicPairCreatedV2, evm.TopicPoolCreatedV3}},
	}

	for ctx.Err() == nil {
		sub, err := in.streams[chain].SubscribeLogs(ctx, filter)
		if err != nil {
			in.log.Warn().Err(err).Str("chain", string(chain)).Msg("factory subscribe failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		in.consumeFactoryLogs(ctx, chain, sub)
		sub.Unsubscribe()
	}
}

func (in *Ingress) consumeFactoryLogs(ctx context.Context, chain domain.Chain, sub *evm.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case lg, ok := <-sub.C():
			if !ok {
				return
			}
			if c := parseFactoryLog(chain, lg); c != nil {
				observability.RecordCandidateSeen(string(chain), string(c.Source))
				in.enqueue(ctx, c)
			}
		}
	}
}

func parseFactoryLog(chain domain.Chain, lg evm.Log) *domain.Candidate {
	if len(lg.Topics) == 0 {
		return nil
	}
	switch lg.Topics[0] {
	case evm.TopicPairCreatedV2:
		ev, err := evm.ParsePairCreated(lg)
		if err != nil {
			return nil
		}
		return &domain.Candidate{
			Key: domain.MarketKey{
				Chain:   chain,
				Type:    domain.MarketV2,
				Address: domain.NormalizeAddress(ev.Pair),
			},
			Token0:         ev.Token0,
			Token1:         ev.Token1,
			Source:         domain.SourceFactory,
			DiscoveredAtMs: time.Now().UnixMilli(),
		}
	case evm.TopicPoolCreatedV3:
		ev, err := evm.ParsePoolCreated(lg)
		if err != nil {
			return nil
		}
		return &domain.Candidate{
			Key: domain.MarketKey{
				Chain:   chain,
				Type:    domain.MarketV3,
				Address: domain.NormalizeAddress(ev.Pool),
			},
			Token0:         ev.Token0,
			Token1:         ev.Token1,
			Fee:            ev.Fee,
			Source:         domain.SourceFactory,
			DiscoveredAtMs: time.Now().UnixMilli(),
		}
	}
	return nil
}

// pollTrending queries the aggregator on a fixed cadence and filters each
// reported pair through the candidate screen. Failures are logged and
// retried on the next tick.
func (in *Ingress) pollTrending(ctx context.Context, chain domain.Chain) {
	ticker := time.NewTicker(time.Duration(in.strat.TrendingPollInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pairs, err := in.agg.Trending(ctx, chain, in.strat.TrendingTopK)
			if err != nil {
				observability.RecordTrendingPollError()
				in.log.Warn().Err(err).Str("chain", string(chain)).Msg("trending poll failed")
				continue
			}
			for i := range pairs {
				if c := in.screenTrending(chain, &pairs[i]); c != nil {
					observability.RecordCandidateSeen(string(chain), string(c.Source))
					in.enqueue(ctx, c)
				}
			}
		}
	}
}

// screenTrending applies the five-step trending filter. Order matters only
// for the dedup step, which must come last so rejected pairs do not occupy
// dedup slots.
func (in *Ingress) screenTrending(chain domain.Chain, p *aggregator.PairInfo) *domain.Candidate {
	if !dexAllowed(chain, p.DexID) {
		return nil
	}
	if !domain.IsAddress(p.PairAddress) || !domain.IsAddress(p.BaseTokenAddress) || !domain.IsAddress(p.QuoteTokenAddress) {
		return nil
	}
	if p.LiquidityUSD < in.strat.TrendingMinLiqUSD {
		return nil
	}
	if !domain.IsBaseToken(chain, p.BaseTokenAddress) && !domain.IsBaseToken(chain, p.QuoteTokenAddress) {
		return nil
	}
	pair := domain.NormalizeAddress(p.PairAddress)
	if in.dedup.Suppress(string(chain) + "|" + pair) {
		observability.RecordCandidateDeduped()
		return nil
	}

	// The aggregator reports base/quote, not pool order; pools order tokens
	// by ascending address.
	token0 := domain.NormalizeAddress(p.BaseTokenAddress)
	token1 := domain.NormalizeAddress(p.QuoteTokenAddress)
	if token0 > token1 {
		token0, token1 = token1, token0
	}

	return &domain.Candidate{
		Key: domain.MarketKey{
			Chain:   chain,
			Type:    p.MarketType(),
			Address: pair,
		},
		Token0:               token0,
		Token1:               token1,
		Fee:                  p.FeeTier,
		Source:               domain.SourceTrending,
		ReportedLiquidityUSD: p.LiquidityUSD,
		DiscoveredAtMs:       time.Now().UnixMilli(),
	}
}

func dexAllowed(chain domain.Chain, dexID string) bool {
	dexID = strings.ToLower(dexID)
	for _, prefix := range evm.Contracts(chain).TrendingDexAllow {
		if strings.HasPrefix(dexID, prefix) {
			return true
		}
	}
	return false
}

func (in *Ingress) enqueue(ctx context.Context, c *domain.Candidate) {
	select {
	case in.candidates <- c:
	case <-ctx.Done():
	}
}

// admit registers the candidate, runs the gate, and starts the subscription.
// A full slot table degrades to register-only: the market stays active and
// is picked up when a slot frees.
func (in *Ingress) admit(ctx context.Context, c *domain.Candidate) {
	m, created := in.watch.Register(c)
	if !created && m.Status != domain.StatusPending {
		return
	}

	admitted, err := in.gate.Run(ctx, c.Key)
	if err != nil {
		in.log.Warn().Err(err).Str("market", c.Key.String()).Msg("gate run failed")
		return
	}
	if !admitted {
		observability.RecordMarketRejected(rejectCheck(in.watch, c.Key))
		return
	}
	observability.RecordMarketAdmitted()

	if err := in.subs.Subscribe(ctx, c.Key); err != nil {
		if errors.Is(err, subscriber.ErrNoSlots) {
			in.log.Warn().Str("market", c.Key.String()).Msg("slot budget exhausted, market registered but not subscribed")
			return
		}
		in.log.Warn().Err(err).Str("market", c.Key.String()).Msg("subscription failed")
	}
}

// rejectCheck collapses a rejection reason into a coarse label for metrics.
func rejectCheck(watch *watchlist.Watchlist, key domain.MarketKey) string {
	m, ok := watch.Get(key)
	if !ok {
		return "unknown"
	}
	switch {
	case strings.Contains(m.Reason, "bytecode"):
		return "bytecode"
	case strings.Contains(m.Reason, "liquidity"):
		return "liquidity"
	case strings.Contains(m.Reason, "sellability"), strings.Contains(m.Reason, "getPool"):
		return "sellability"
	case strings.Contains(m.Reason, "lp risk"):
		return "lp_risk"
	case strings.Contains(m.Reason, "tax"):
		return "tax"
	default:
		return "other"
	}
}
