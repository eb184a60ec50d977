package pricing

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
	"dexwatch/internal/domain"
	"dexwatch/internal/evm"
)

const memeToken = "0x1111111111111111111111111111111111111111"

// chainStub answers the fixed eth_call set by selector.
type chainStub struct {
	reserves  [2]*big.Int
	sqrtPrice *big.Int
	err       error
}

func hexWord(n *big.Int) string {
	return fmt.Sprintf("%064x", n)
}

func (s *chainStub) CallContract(_ context.Context, _ string, data string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	switch {
	case strings.HasPrefix(data, "0x0902f1ac"): // getReserves()
		return "0x" + hexWord(s.reserves[0]) + hexWord(s.reserves[1]) + hexWord(big.NewInt(0)), nil
	case strings.HasPrefix(data, "0x3850c7bd"): // slot0()
		return "0x" + hexWord(s.sqrtPrice) + strings.Repeat(hexWord(big.NewInt(0)), 6), nil
	}
	return "", errors.New("execution reverted")
}

func (s *chainStub) GetCode(_ context.Context, _ string) (string, error) {
	return "0x6080", nil
}

type stubPairGetter struct {
	info *aggregator.PairInfo
	err  error
}

func (s *stubPairGetter) Pair(_ context.Context, _ domain.Chain, _ string) (*aggregator.PairInfo, error) {
	return s.info, s.err
}

func v2Market(token0, token1 string) *domain.Market {
	return &domain.Market{
		Key: domain.MarketKey{
			Chain:   domain.ChainBSC,
			Type:    domain.MarketV2,
			Address: "0xaaaa00000000000000000000000000000000aaaa",
		},
		Token0: token0,
		Token1: token1,
	}
}

// buildPricer wires a pricer whose oracle lister is down, so stablecoins
// resolve to 1.00 and other base tokens have no aggregator quote.
func buildPricer(stub *chainStub, agg PairGetter) *Pricer {
	nodes := map[domain.Chain]evm.Caller{domain.ChainBSC: stub}
	decimals := NewDecimalsCache(nodes, zerolog.Nop())
	decimals.Put(domain.ChainBSC, memeToken, 18)
	decimals.Put(domain.ChainBSC, bscUSDT, 18)
	decimals.Put(domain.ChainBSC, wbnb, 18)
	oracle := NewOracle(&stubLister{err: errors.New("down")}, zerolog.Nop())
	return NewPricer(nodes, decimals, oracle, agg, zerolog.Nop())
}

func bigPow10(exp int64, mant int64) *big.Int {
	n := new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
	return n.Mul(n, big.NewInt(mant))
}

func TestPricer_AMMPriceUSD_V2(t *testing.T) {
	// 1e6 MEME against 2e3 USDT: MEME mid price is 0.002 USD.
	stub := &chainStub{reserves: [2]*big.Int{bigPow10(24, 1), bigPow10(21, 2)}}
	p := buildPricer(stub, &stubPairGetter{err: aggregator.ErrNotFound})
	m := v2Market(memeToken, bscUSDT)

	price, ok := p.AMMPriceUSD(context.Background(), m, true)
	require.True(t, ok)
	assert.InDelta(t, 0.002, price, 1e-12)
}

func TestPricer_AMMPriceUSD_NoBaseSide(t *testing.T) {
	stub := &chainStub{reserves: [2]*big.Int{bigPow10(18, 1), bigPow10(18, 1)}}
	p := buildPricer(stub, &stubPairGetter{err: aggregator.ErrNotFound})
	m := v2Market(memeToken, "0x2222222222222222222222222222222222222222")

	_, ok := p.AMMPriceUSD(context.Background(), m, true)
	assert.False(t, ok)
}

func TestPricer_PriceUSD_AggregatorFallback(t *testing.T) {
	stub := &chainStub{err: errors.New("rpc down")}
	p := buildPricer(stub, &stubPairGetter{info: &aggregator.PairInfo{
		BaseTokenAddress: memeToken,
		PriceUSD:         0.0042,
	}})
	m := v2Market(memeToken, bscUSDT)

	price, ok := p.PriceUSD(context.Background(), m, true)
	require.True(t, ok)
	assert.Equal(t, 0.0042, price)
}

func TestPricer_DeltaToUSD_SignPreserved(t *testing.T) {
	stub := &chainStub{reserves: [2]*big.Int{bigPow10(24, 1), bigPow10(21, 2)}}
	p := buildPricer(stub, &stubPairGetter{err: aggregator.ErrNotFound})
	m := v2Market(memeToken, bscUSDT)

	usd, ok := p.DeltaToUSD(context.Background(), m, true, 1000)
	require.True(t, ok)
	assert.InDelta(t, 2.0, usd, 1e-9)

	usd, ok = p.DeltaToUSD(context.Background(), m, true, -1000)
	require.True(t, ok)
	assert.InDelta(t, -2.0, usd, 1e-9)
}

func TestPricer_V2LiquidityUSD(t *testing.T) {
	// USDT side holds 2_000 tokens at 1.00 -> liquidity = 4_000 USD.
	stub := &chainStub{reserves: [2]*big.Int{bigPow10(24, 1), bigPow10(21, 2)}}
	p := buildPricer(stub, &stubPairGetter{err: aggregator.ErrNotFound})
	m := v2Market(memeToken, bscUSDT)

	liq, ok := p.V2LiquidityUSD(context.Background(), m)
	require.True(t, ok)
	assert.InDelta(t, 4000.0, liq, 1e-6)
}

func TestPricer_RelativePrice_V3(t *testing.T) {
	stub := &chainStub{sqrtPrice: new(big.Int).Lsh(big.NewInt(2), 96)}
	p := buildPricer(stub, &stubPairGetter{err: aggregator.ErrNotFound})
	m := v2Market(memeToken, bscUSDT)
	m.Key.Type = domain.MarketV3

	p0in1, p1in0, ok := p.RelativePrice(context.Background(), m)
	require.True(t, ok)
	assert.InDelta(t, 4.0, p0in1, 1e-9)
	assert.InDelta(t, 0.25, p1in0, 1e-9)
}
