package alert

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dexwatch/internal/config"
	"dexwatch/internal/domain"
	"dexwatch/internal/evm"
	"dexwatch/internal/pricing"
	"dexwatch/internal/window"
)

// Signal scores and the verdict cut lines.
const (
	scoreBuy       = 2
	scoreVolume    = 2
	scoreFdv       = 2
	scoreWhale     = 3
	scoreMintBonus = 1

	strongScoreAt = 6
	normalScoreAt = 3

	// mintBonusFactor scales MIN_LIQ_USD into the last-mint bonus line.
	mintBonusFactor = 1.2
)

// WindowReader is the window-store surface the evaluator queries.
type WindowReader interface {
	OneMinute(key domain.MarketKey, nowMs int64) window.MinuteStats
	BaselineAvgPerMin(key domain.MarketKey, nowMs int64) float64
}

// FdvRecorder is the FDV-tracker surface the evaluator feeds and queries.
type FdvRecorder interface {
	Record(key domain.MarketKey, nowMs int64, fdvUSD float64)
	RatioToPast(key domain.MarketKey, nowMs int64) (float64, bool)
}

// Evaluator computes the derived signals for one trade and dispatches graded
// alerts synchronously.
type Evaluator struct {
	windows  WindowReader
	fdv      FdvRecorder
	pricer   *pricing.Pricer
	nodes    map[domain.Chain]evm.Caller
	notifier Notifier
	strat    config.Strategy
	log      zerolog.Logger
	now      func() time.Time
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(windows WindowReader, fdvTracker FdvRecorder, pricer *pricing.Pricer, nodes map[domain.Chain]evm.Caller, notifier Notifier, strat config.Strategy, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		windows:  windows,
		fdv:      fdvTracker,
		pricer:   pricer,
		nodes:    nodes,
		notifier: notifier,
		strat:    strat,
		log:      logger,
		now:      time.Now,
	}
}

// Evaluate scores one trade. A nil return with nil error means the verdict
// was none; otherwise the returned alert has already been dispatched.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Alert, error) {
	key := req.Market.Key
	nowMs := e.now().UnixMilli()

	stats := e.windows.OneMinute(key, nowMs)
	baseline := e.windows.BaselineAvgPerMin(key, nowMs)

	buyMeetsVolume := stats.BuyUSD >= e.strat.BuyVol1mUSD && stats.BuyTxs >= e.strat.BuyTxs1m

	volumeRatio := math.Inf(1)
	if baseline > 0 {
		volumeRatio = stats.TotalUSD / baseline
	}
	volumeBurst := volumeRatio >= e.strat.VolumeMultiplier

	fdvUSD, fdvRatio, fdvBurst := e.fdvSignal(ctx, &req.Market, req.TargetToken0, nowMs)

	whale, whaleDetail := e.whaleSignal(&req.Market, req.TradeUSD, req.IsBuy)

	score := 0
	var factors []string
	if buyMeetsVolume {
		score += scoreBuy
		factors = append(factors, "buy-volume")
	}
	if volumeBurst {
		score += scoreVolume
		factors = append(factors, "volume-burst")
	}
	if fdvBurst {
		score += scoreFdv
		factors = append(factors, "fdv-burst")
	}
	if whale {
		score += scoreWhale
		factors = append(factors, "whale")
	}
	if req.Market.LastMintUSD >= mintBonusFactor*e.strat.MinLiqUSD {
		score += scoreMintBonus
		factors = append(factors, "fresh-mint")
	}

	level := verdict(score, whale, volumeBurst, fdvBurst)
	if level == "" {
		return nil, nil
	}

	a := &Alert{
		ID:          uuid.NewString(),
		Level:       level,
		Chain:       key.Chain,
		MarketType:  key.Type,
		Address:     key.Address,
		Token0:      req.Market.Token0,
		Token1:      req.Market.Token1,
		TargetSide:  targetOf(&req.Market, req.TargetToken0),
		Score:       score,
		Factors:     factors,
		EmittedAtMs: nowMs,
	}
	a.Headline = fmt.Sprintf("[%s] %s %s market %s score %d", strings.ToUpper(string(level)), key.Chain, key.Type, key.Address, score)
	a.Body = e.body(&stats, volumeRatio, fdvUSD, fdvRatio, fdvBurst, whaleDetail, factors)

	if err := e.notifier.Notify(ctx, a); err != nil {
		return a, fmt.Errorf("notify: %w", err)
	}
	return a, nil
}

// fdvSignal computes the current fully-diluted valuation, records it, and
// compares against the short history.
func (e *Evaluator) fdvSignal(ctx context.Context, m *domain.Market, targetToken0 bool, nowMs int64) (fdvUSD, ratio float64, burst bool) {
	node := e.nodes[m.Key.Chain]
	if node == nil {
		return 0, 0, false
	}
	target := targetOf(m, targetToken0)

	supply, err := evm.ERC20TotalSupply(ctx, node, target)
	if err != nil {
		return 0, 0, false
	}
	dec := e.pricer.Decimals().Get(ctx, m.Key.Chain, target)
	price, ok := e.pricer.PriceUSD(ctx, m, targetToken0)
	if !ok {
		return 0, 0, false
	}

	fdvUSD = pricing.Normalize(supply, dec) * price
	e.fdv.Record(m.Key, nowMs, fdvUSD)

	ratio, ok = e.fdv.RatioToPast(m.Key, nowMs)
	if !ok {
		return fdvUSD, 0, false
	}
	return fdvUSD, ratio, ratio >= e.strat.FdvMultiplier
}

// whaleSignal flags a single buy large in absolute terms or against visible
// pool liquidity.
func (e *Evaluator) whaleSignal(m *domain.Market, tradeUSD float64, isBuy bool) (bool, string) {
	if !isBuy {
		return false, ""
	}
	if m.LiquidityUSD > 0 {
		ratio := tradeUSD / m.LiquidityUSD
		if ratio >= e.strat.WhaleLiquidityRatio {
			return true, fmt.Sprintf("buy %.0f USD = %.1f%% of pool liquidity", tradeUSD, ratio*100)
		}
	}
	if tradeUSD >= e.strat.WhaleSingleBuyUSD {
		return true, fmt.Sprintf("single buy %.0f USD", tradeUSD)
	}
	return false, ""
}

func (e *Evaluator) body(stats *window.MinuteStats, volumeRatio, fdvUSD, fdvRatio float64, fdvBurst bool, whaleDetail string, factors []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "factors: %s\n", strings.Join(factors, ", "))
	fmt.Fprintf(&b, "1m: buys %.0f USD in %d txs (%d buyers), total %.0f USD\n", stats.BuyUSD, stats.BuyTxs, stats.UniqueBuyers, stats.TotalUSD)
	if math.IsInf(volumeRatio, 1) {
		b.WriteString("volume: no baseline (first activity)\n")
	} else {
		fmt.Fprintf(&b, "volume: %.1fx baseline\n", volumeRatio)
	}
	if fdvUSD > 0 {
		fmt.Fprintf(&b, "fdv: %.0f USD", fdvUSD)
		if fdvBurst {
			fmt.Fprintf(&b, " (%.1fx in 3m)", fdvRatio)
		}
		b.WriteString("\n")
	}
	if whaleDetail != "" {
		fmt.Fprintf(&b, "whale: %s\n", whaleDetail)
	}
	return strings.TrimRight(b.String(), "\n")
}

func verdict(score int, whale, volumeBurst, fdvBurst bool) Level {
	if score >= strongScoreAt && (whale || (volumeBurst && fdvBurst)) {
		return LevelStrong
	}
	if score >= normalScoreAt {
		return LevelNormal
	}
	return ""
}

func targetOf(m *domain.Market, targetToken0 bool) string {
	if targetToken0 {
		return m.Token0
	}
	return m.Token1
}
