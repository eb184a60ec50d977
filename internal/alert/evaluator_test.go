package alert

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexwatch/internal/aggregator"
	"dexwatch/internal/config"
	"dexwatch/internal/domain"
	"dexwatch/internal/evm"
	"dexwatch/internal/pricing"
	"dexwatch/internal/window"
)

const (
	memeToken = "0x1111111111111111111111111111111111111111"
	bscUSDT   = "0x55d398326f99059ff775485246999027b3197955"
)

type stubWindows struct {
	stats    window.MinuteStats
	baseline float64
}

func (s *stubWindows) OneMinute(domain.MarketKey, int64) window.MinuteStats { return s.stats }
func (s *stubWindows) BaselineAvgPerMin(domain.MarketKey, int64) float64    { return s.baseline }

type stubFdv struct {
	recorded []float64
	ratio    float64
	ok       bool
}

func (s *stubFdv) Record(_ domain.MarketKey, _ int64, fdvUSD float64) {
	s.recorded = append(s.recorded, fdvUSD)
}

func (s *stubFdv) RatioToPast(domain.MarketKey, int64) (float64, bool) {
	return s.ratio, s.ok
}

type captureNotifier struct {
	alerts []*Alert
}

func (c *captureNotifier) Notify(_ context.Context, a *Alert) error {
	c.alerts = append(c.alerts, a)
	return nil
}

// nodeStub answers totalSupply, decimals, and getReserves.
type nodeStub struct {
	supply   *big.Int // nil reverts totalSupply
	reserves [2]*big.Int
}

func word(n *big.Int) string { return fmt.Sprintf("%064x", n) }

func (s *nodeStub) GetCode(context.Context, string) (string, error) { return "0x6080", nil }

func (s *nodeStub) CallContract(_ context.Context, _ string, data string) (string, error) {
	switch {
	case strings.HasPrefix(data, "0x313ce567"):
		return "0x" + word(big.NewInt(18)), nil
	case strings.HasPrefix(data, "0x18160ddd"):
		if s.supply == nil {
			return "", errors.New("execution reverted")
		}
		return "0x" + word(s.supply), nil
	case strings.HasPrefix(data, "0x0902f1ac"):
		if s.reserves[0] == nil {
			return "", errors.New("execution reverted")
		}
		return "0x" + word(s.reserves[0]) + word(s.reserves[1]) + word(big.NewInt(0)), nil
	}
	return "", errors.New("execution reverted")
}

type downLister struct{}

func (downLister) TokenPairs(context.Context, string) ([]aggregator.PairInfo, error) {
	return nil, errors.New("aggregator down")
}

func buildEvaluator(stub *nodeStub, windows WindowReader, fdvStub FdvRecorder, sink Notifier) *Evaluator {
	nodes := map[domain.Chain]evm.Caller{domain.ChainBSC: stub}
	decimals := pricing.NewDecimalsCache(nodes, zerolog.Nop())
	oracle := pricing.NewOracle(downLister{}, zerolog.Nop())
	pricer := pricing.NewPricer(nodes, decimals, oracle, nil, zerolog.Nop())
	return NewEvaluator(windows, fdvStub, pricer, nodes, sink, config.DefaultStrategy(), zerolog.Nop())
}

func activeMarket(liquidityUSD float64) domain.Market {
	return domain.Market{
		Key: domain.MarketKey{
			Chain:   domain.ChainBSC,
			Type:    domain.MarketV2,
			Address: "0xaaaa00000000000000000000000000000000aaaa",
		},
		Token0:       memeToken,
		Token1:       bscUSDT,
		Status:       domain.StatusActive,
		LiquidityUSD: liquidityUSD,
	}
}

func bigPow10(exp int64, mant int64) *big.Int {
	n := new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
	return n.Mul(n, big.NewInt(mant))
}

func TestEvaluate_NormalOnBuyAndVolumeBurst(t *testing.T) {
	windows := &stubWindows{
		stats:    window.MinuteStats{TotalUSD: 20_000, BuyUSD: 20_000, BuyTxs: 10, UniqueBuyers: 10},
		baseline: 500,
	}
	sink := &captureNotifier{}
	e := buildEvaluator(&nodeStub{}, windows, &stubFdv{}, sink)

	a, err := e.Evaluate(context.Background(), Request{
		Market:       activeMarket(12_000_000),
		TargetToken0: true,
		TradeUSD:     100,
		IsBuy:        true,
	})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, LevelNormal, a.Level)
	assert.Equal(t, 4, a.Score)
	assert.ElementsMatch(t, []string{"buy-volume", "volume-burst"}, a.Factors)
	require.Len(t, sink.alerts, 1)
	assert.NotEmpty(t, a.ID)
}

func TestEvaluate_StrongOnWhale(t *testing.T) {
	windows := &stubWindows{
		stats:    window.MinuteStats{TotalUSD: 20_000, BuyUSD: 20_000, BuyTxs: 10},
		baseline: 500,
	}
	sink := &captureNotifier{}
	e := buildEvaluator(&nodeStub{}, windows, &stubFdv{}, sink)

	// 4_000 USD against 100_000 liquidity: 4% of the pool.
	a, err := e.Evaluate(context.Background(), Request{
		Market:       activeMarket(100_000),
		TargetToken0: true,
		TradeUSD:     4_000,
		IsBuy:        true,
	})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, LevelStrong, a.Level)
	assert.Equal(t, 7, a.Score)
	assert.Contains(t, a.Factors, "whale")
	assert.Contains(t, a.Body, "of pool liquidity")
}

func TestEvaluate_NoneBelowThresholds(t *testing.T) {
	windows := &stubWindows{
		stats:    window.MinuteStats{TotalUSD: 100, BuyUSD: 100, BuyTxs: 1},
		baseline: 100,
	}
	sink := &captureNotifier{}
	e := buildEvaluator(&nodeStub{}, windows, &stubFdv{}, sink)

	a, err := e.Evaluate(context.Background(), Request{
		Market:       activeMarket(100_000),
		TargetToken0: true,
		TradeUSD:     50,
		IsBuy:        true,
	})
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Empty(t, sink.alerts)
}

func TestEvaluate_ZeroBaselineCountsAsBurst(t *testing.T) {
	windows := &stubWindows{
		stats:    window.MinuteStats{TotalUSD: 16_000, BuyUSD: 16_000, BuyTxs: 9},
		baseline: 0,
	}
	sink := &captureNotifier{}
	e := buildEvaluator(&nodeStub{}, windows, &stubFdv{}, sink)

	a, err := e.Evaluate(context.Background(), Request{
		Market:       activeMarket(1_000_000),
		TargetToken0: true,
		TradeUSD:     100,
		IsBuy:        true,
	})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Contains(t, a.Factors, "volume-burst")
	assert.Contains(t, a.Body, "no baseline")
}

func TestEvaluate_FdvBurst(t *testing.T) {
	// 1e9 tokens at 0.004 USD from a pool of 1e6 MEME vs 4e3 USDT.
	stub := &nodeStub{
		supply:   bigPow10(27, 1),
		reserves: [2]*big.Int{bigPow10(24, 1), bigPow10(21, 4)},
	}
	windows := &stubWindows{
		stats:    window.MinuteStats{TotalUSD: 20_000, BuyUSD: 20_000, BuyTxs: 10},
		baseline: 500,
	}
	fdvStub := &stubFdv{ratio: 4.0, ok: true}
	sink := &captureNotifier{}
	e := buildEvaluator(stub, windows, fdvStub, sink)

	a, err := e.Evaluate(context.Background(), Request{
		Market:       activeMarket(12_000_000),
		TargetToken0: true,
		TradeUSD:     100,
		IsBuy:        true,
	})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, LevelStrong, a.Level) // volume + fdv bursts at score 6
	assert.Contains(t, a.Factors, "fdv-burst")
	require.Len(t, fdvStub.recorded, 1)
	assert.InDelta(t, 4_000_000, fdvStub.recorded[0], 1)
}

func TestEvaluate_MintBonus(t *testing.T) {
	windows := &stubWindows{
		stats:    window.MinuteStats{TotalUSD: 20_000, BuyUSD: 20_000, BuyTxs: 10},
		baseline: 500,
	}
	sink := &captureNotifier{}
	e := buildEvaluator(&nodeStub{}, windows, &stubFdv{}, sink)

	m := activeMarket(12_000_000)
	m.LastMintUSD = 6_500 // above 1.2x the liquidity minimum

	a, err := e.Evaluate(context.Background(), Request{
		Market:       m,
		TargetToken0: true,
		TradeUSD:     100,
		IsBuy:        true,
	})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 5, a.Score)
	assert.Contains(t, a.Factors, "fresh-mint")
}
