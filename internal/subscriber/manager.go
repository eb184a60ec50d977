package subscriber

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"dexwatch/internal/aggregator"
	"dexwatch/internal/alert"
	"dexwatch/internal/domain"
	"dexwatch/internal/evm"
	"dexwatch/internal/observability"
	"dexwatch/internal/pricing"
	"dexwatch/internal/tax"
	"dexwatch/internal/watchlist"
	"dexwatch/internal/window"
)

// Errors returned by Subscribe.
var (
	ErrNoSlots   = errors.New("subscriber: no free subscription slots")
	ErrNotActive = errors.New("subscriber: market is not active")
)

// AlertSink receives one evaluation request per recorded trade.
type AlertSink interface {
	Evaluate(ctx context.Context, req alert.Request) (*alert.Alert, error)
}

// PairGetter is the aggregator surface used for the mint-value fallback.
type PairGetter interface {
	Pair(ctx context.Context, chain domain.Chain, pair string) (*aggregator.PairInfo, error)
}

// Options wires a Manager.
type Options struct {
	Streams map[domain.Chain]evm.LogStreamer
	Pricer  *pricing.Pricer
	Watch   *watchlist.Watchlist
	Windows *window.Store
	Taxes   *tax.Estimator
	Agg     PairGetter
	Alerts  AlertSink
	Slots   *Slots
	Logger  zerolog.Logger
}

// Manager opens one log subscription per active market and folds each
// delivered event into the shared stores. All per-event failures stay local
// to the owning market.
type Manager struct {
	streams map[domain.Chain]evm.LogStreamer
	pricer  *pricing.Pricer
	watch   *watchlist.Watchlist
	windows *window.Store
	taxes   *tax.Estimator
	agg     PairGetter
	alerts  AlertSink
	slots   *Slots
	log     zerolog.Logger
	now     func() time.Time
}

// NewManager creates a Manager from options.
func NewManager(opts Options) *Manager {
	return &Manager{
		streams: opts.Streams,
		pricer:  opts.Pricer,
		watch:   opts.Watch,
		windows: opts.Windows,
		taxes:   opts.Taxes,
		agg:     opts.Agg,
		alerts:  opts.Alerts,
		slots:   opts.Slots,
		log:     opts.Logger,
		now:     time.Now,
	}
}

// Slots exposes the shared slot table.
func (m *Manager) Slots() *Slots { return m.slots }

// Subscribe claims a slot and opens the market's event subscription: V2 Swap
// and Mint, or V3 Swap. ErrNoSlots leaves the market registered but
// unsubscribed; it becomes subscribable again once a slot frees.
func (m *Manager) Subscribe(ctx context.Context, key domain.MarketKey) error {
	mk, ok := m.watch.Get(key)
	if !ok {
		return watchlist.ErrNotFound
	}
	if mk.Status != domain.StatusActive {
		return ErrNotActive
	}
	streamer := m.streams[key.Chain]
	if streamer == nil {
		return fmt.Errorf("subscriber: no stream for chain %s", key.Chain)
	}

	topics := []string{evm.SwapTopicFor(key.Type)}
	if key.Type == domain.MarketV2 {
		topics = append(topics, evm.TopicMintV2)
	}

	// The slot is claimed before the stream opens so the budget invariant
	// holds even under concurrent admissions.
	subCtx, cancel := context.WithCancel(context.Background())
	if !m.slots.Acquire(key, cancel) {
		cancel()
		return ErrNoSlots
	}

	sub, err := streamer.SubscribeLogs(ctx, evm.LogFilter{
		Addresses: []string{key.Address},
		Topics:    [][]string{topics},
	})
	if err != nil {
		m.slots.Release(key)
		return fmt.Errorf("subscribe %s: %w", key, err)
	}

	go m.run(subCtx, key, sub)
	m.log.Info().Str("market", key.String()).Msg("market subscription started")
	return nil
}

// Unsubscribe stops the market's subscription and frees its slot.
func (m *Manager) Unsubscribe(key domain.MarketKey) bool {
	return m.slots.Release(key)
}

func (m *Manager) run(ctx context.Context, key domain.MarketKey, sub *evm.Subscription) {
	defer func() {
		sub.Unsubscribe()
		m.slots.Release(key)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case lg, ok := <-sub.C():
			if !ok {
				return
			}
			m.handleLog(context.Background(), key, lg)
		}
	}
}

func (m *Manager) handleLog(ctx context.Context, key domain.MarketKey, lg evm.Log) {
	mk, ok := m.watch.Get(key)
	if !ok || mk.Status != domain.StatusActive {
		return
	}
	if len(lg.Topics) == 0 {
		return
	}

	switch lg.Topics[0] {
	case evm.TopicSwapV2:
		m.handleSwapV2(ctx, &mk, lg)
	case evm.TopicMintV2:
		m.handleMintV2(ctx, &mk, lg)
	case evm.TopicSwapV3:
		m.handleSwapV3(ctx, &mk, lg)
	}
}

func (m *Manager) handleSwapV2(ctx context.Context, mk *domain.Market, lg evm.Log) {
	ev, err := evm.ParseSwapV2(lg)
	if err != nil {
		observability.RecordTradeDropped("parse")
		m.log.Debug().Err(err).Str("market", mk.Key.String()).Msg("bad swap log")
		return
	}

	_, token0IsTarget := domain.TargetSide(mk.Key.Chain, mk.Token0, mk.Token1)
	target := mk.Token0
	if !token0IsTarget {
		target = mk.Token1
	}
	decT := m.pricer.Decimals().Get(ctx, mk.Key.Chain, target)

	inT, outT := ev.Amount0In, ev.Amount0Out
	if !token0IsTarget {
		inT, outT = ev.Amount1In, ev.Amount1Out
	}
	deltaT := pricing.Normalize(outT, decT) - pricing.Normalize(inT, decT)
	if deltaT == 0 {
		return
	}

	isBuy := deltaT > 0
	buyer := ev.Sender
	if isBuy {
		buyer = ev.To
	}

	usd, recorded := m.recordTrade(ctx, mk, token0IsTarget, deltaT, isBuy, buyer)
	if !recorded {
		return
	}

	// Tax samples only make sense against a base-token counterpart.
	baseIn, baseOut := ev.Amount1In, ev.Amount1Out
	baseAddr := mk.Token1
	if !token0IsTarget {
		baseIn, baseOut = ev.Amount0In, ev.Amount0Out
		baseAddr = mk.Token0
	}
	decB := m.pricer.Decimals().Get(ctx, mk.Key.Chain, baseAddr)
	m.recordTax(ctx, mk, token0IsTarget, deltaT,
		pricing.Normalize(baseIn, decB), pricing.Normalize(baseOut, decB))

	m.evaluate(ctx, mk.Key, token0IsTarget, usd, isBuy)
}

func (m *Manager) handleSwapV3(ctx context.Context, mk *domain.Market, lg evm.Log) {
	ev, err := evm.ParseSwapV3(lg)
	if err != nil {
		observability.RecordTradeDropped("parse")
		m.log.Debug().Err(err).Str("market", mk.Key.String()).Msg("bad swap log")
		return
	}

	_, token0IsTarget := domain.TargetSide(mk.Key.Chain, mk.Token0, mk.Token1)
	target, baseAddr := mk.Token0, mk.Token1
	amountT, amountB := ev.Amount0, ev.Amount1
	if !token0IsTarget {
		target, baseAddr = mk.Token1, mk.Token0
		amountT, amountB = ev.Amount1, ev.Amount0
	}

	decT := m.pricer.Decimals().Get(ctx, mk.Key.Chain, target)
	// Amounts are pool-perspective; negate for the trader's view.
	deltaT := -pricing.Normalize(amountT, decT)
	if deltaT == 0 {
		return
	}

	isBuy := deltaT > 0
	buyer := ev.Sender
	if isBuy {
		buyer = ev.Recipient
	}

	usd, recorded := m.recordTrade(ctx, mk, token0IsTarget, deltaT, isBuy, buyer)
	if !recorded {
		return
	}

	decB := m.pricer.Decimals().Get(ctx, mk.Key.Chain, baseAddr)
	normB := pricing.Normalize(amountB, decB)
	baseIn, baseOut := 0.0, 0.0
	if normB > 0 {
		baseIn = normB
	} else {
		baseOut = -normB
	}
	m.recordTax(ctx, mk, token0IsTarget, deltaT, baseIn, baseOut)

	m.evaluate(ctx, mk.Key, token0IsTarget, usd, isBuy)
}

// recordTrade converts the target delta to USD and folds it into the window
// store. An unobtainable price drops the event.
func (m *Manager) recordTrade(ctx context.Context, mk *domain.Market, token0IsTarget bool, deltaT float64, isBuy bool, buyer string) (float64, bool) {
	price, ok := m.pricer.PriceUSD(ctx, mk, token0IsTarget)
	if !ok {
		observability.RecordTradeDropped("no_price")
		m.log.Debug().Str("market", mk.Key.String()).Msg("trade dropped, no usd price")
		return 0, false
	}
	usd := math.Abs(deltaT) * price

	m.windows.Record(mk.Key, domain.TradeEvent{
		TimestampMs: m.now().UnixMilli(),
		USD:         usd,
		IsBuy:       isBuy,
		Buyer:       domain.NormalizeAddress(buyer),
	})
	m.watch.Touch(mk.Key)
	observability.RecordTradeProcessed(string(mk.Key.Chain), string(mk.Key.Type))
	return usd, true
}

// recordTax derives an effective-fee sample from the pool's mid-price and
// the realized amounts. Only swaps against a base-token counterpart qualify.
func (m *Manager) recordTax(ctx context.Context, mk *domain.Market, token0IsTarget bool, deltaT, baseIn, baseOut float64) {
	baseAddr := mk.Token1
	if !token0IsTarget {
		baseAddr = mk.Token0
	}
	if !domain.IsBaseToken(mk.Key.Chain, baseAddr) {
		return
	}

	p0in1, p1in0, ok := m.pricer.RelativePrice(ctx, mk)
	if !ok {
		return
	}
	relTargetInBase, relBaseInTarget := p0in1, p1in0
	if !token0IsTarget {
		relTargetInBase, relBaseInTarget = p1in0, p0in1
	}

	nowMs := m.now().UnixMilli()
	if deltaT > 0 {
		// Buy: paid base in, received target; expected from mid-price.
		if baseIn > 0 {
			m.taxes.Record(mk.Key, nowMs, true, baseIn*relBaseInTarget, deltaT)
		}
		return
	}
	// Sell: paid target in, received base out. A zero base output carries
	// no tax signal and would record a fully-confiscated trade.
	if baseOut > 0 {
		m.taxes.Record(mk.Key, nowMs, false, -deltaT*relTargetInBase, baseOut)
	}
}

func (m *Manager) handleMintV2(ctx context.Context, mk *domain.Market, lg evm.Log) {
	ev, err := evm.ParseMintV2(lg)
	if err != nil {
		m.log.Debug().Err(err).Str("market", mk.Key.String()).Msg("bad mint log")
		return
	}

	a0 := pricing.Normalize(ev.Amount0, m.pricer.Decimals().Get(ctx, mk.Key.Chain, mk.Token0))
	a1 := pricing.Normalize(ev.Amount1, m.pricer.Decimals().Get(ctx, mk.Key.Chain, mk.Token1))

	usd, ok := m.pricer.MintUSD(ctx, mk, a0, a1)
	if !ok && m.agg != nil {
		if info, err := m.agg.Pair(ctx, mk.Key.Chain, mk.Key.Address); err == nil && info.LiquidityUSD > 0 {
			usd, ok = info.LiquidityUSD, true
		}
	}
	if !ok {
		return
	}

	m.watch.SetLastMint(mk.Key, usd)
	if liq, ok := m.pricer.V2LiquidityUSD(ctx, mk); ok {
		m.watch.SetLiquidity(mk.Key, liq)
	}
	observability.RecordMintProcessed()
	m.log.Debug().Str("market", mk.Key.String()).Float64("mint_usd", usd).Msg("liquidity add")
}

func (m *Manager) evaluate(ctx context.Context, key domain.MarketKey, token0IsTarget bool, usd float64, isBuy bool) {
	if m.alerts == nil {
		return
	}
	// Re-read for fresh metadata (liquidity, last mint).
	mk, ok := m.watch.Get(key)
	if !ok {
		return
	}
	a, err := m.alerts.Evaluate(ctx, alert.Request{
		Market:       mk,
		TargetToken0: token0IsTarget,
		TradeUSD:     usd,
		IsBuy:        isBuy,
	})
	if err != nil {
		m.log.Warn().Err(err).Str("market", key.String()).Msg("alert dispatch failed")
		return
	}
	if a != nil {
		observability.RecordAlertEmitted(string(a.Level))
	}
}
