package ingress

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexwatch/internal/aggregator"
	"dexwatch/internal/config"
	"dexwatch/internal/domain"
	"dexwatch/internal/evm"
	"dexwatch/internal/subscriber"
	"dexwatch/internal/watchlist"
)

const (
	memeToken = "0x1111111111111111111111111111111111111111"
	wbnb      = "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"
	pairAddr  = "0x2222222222222222222222222222222222222222"
)

func trendingPair() aggregator.PairInfo {
	return aggregator.PairInfo{
		ChainSlug:         "bsc",
		DexID:             "pancakeswap",
		PairAddress:       pairAddr,
		BaseTokenAddress:  memeToken,
		QuoteTokenAddress: wbnb,
		LiquidityUSD:      12000,
	}
}

func newIngress(t *testing.T, gate GateRunner, subs MarketSubscriber) *Ingress {
	t.Helper()
	strat := config.DefaultStrategy()
	return New(Options{
		Watch:    watchlist.New(zerolog.Nop()),
		Gate:     gate,
		Subs:     subs,
		Strategy: strat,
		Logger:   zerolog.Nop(),
	})
}

type gateStub struct {
	admit bool
	err   error
	calls []domain.MarketKey
}

func (g *gateStub) Run(_ context.Context, key domain.MarketKey) (bool, error) {
	g.calls = append(g.calls, key)
	return g.admit, g.err
}

type subsStub struct {
	err   error
	calls []domain.MarketKey
}

func (s *subsStub) Subscribe(_ context.Context, key domain.MarketKey) error {
	s.calls = append(s.calls, key)
	return s.err
}

func TestScreenTrending_AcceptsAllowedPair(t *testing.T) {
	in := newIngress(t, &gateStub{admit: true}, &subsStub{})

	c := in.screenTrending(domain.ChainBSC, &[]aggregator.PairInfo{trendingPair()}[0])
	require.NotNil(t, c)
	assert.Equal(t, domain.SourceTrending, c.Source)
	assert.Equal(t, domain.MarketV2, c.Key.Type)
	assert.Equal(t, pairAddr, c.Key.Address)
	assert.Equal(t, 12000.0, c.ReportedLiquidityUSD)

	// Pool token order is ascending by address.
	assert.Equal(t, memeToken, c.Token0)
	assert.Equal(t, wbnb, c.Token1)
}

func TestScreenTrending_V3FromDexID(t *testing.T) {
	in := newIngress(t, &gateStub{admit: true}, &subsStub{})

	p := trendingPair()
	p.DexID = "pancakeswap-v3"
	p.FeeTier = 2500
	c := in.screenTrending(domain.ChainBSC, &p)
	require.NotNil(t, c)
	assert.Equal(t, domain.MarketV3, c.Key.Type)
	assert.Equal(t, uint32(2500), c.Fee)
}

func TestScreenTrending_RejectsUnknownDex(t *testing.T) {
	in := newIngress(t, &gateStub{admit: true}, &subsStub{})

	p := trendingPair()
	p.DexID = "shadyswap"
	assert.Nil(t, in.screenTrending(domain.ChainBSC, &p))
}

func TestScreenTrending_RejectsMalformedAddress(t *testing.T) {
	in := newIngress(t, &gateStub{admit: true}, &subsStub{})

	p := trendingPair()
	p.PairAddress = "So11111111111111111111111111111111111111112"
	assert.Nil(t, in.screenTrending(domain.ChainBSC, &p))

	p = trendingPair()
	p.BaseTokenAddress = "0x1234"
	assert.Nil(t, in.screenTrending(domain.ChainBSC, &p))
}

func TestScreenTrending_RejectsThinLiquidity(t *testing.T) {
	in := newIngress(t, &gateStub{admit: true}, &subsStub{})

	p := trendingPair()
	p.LiquidityUSD = in.strat.TrendingMinLiqUSD - 1
	assert.Nil(t, in.screenTrending(domain.ChainBSC, &p))
}

func TestScreenTrending_RejectsNoBaseSide(t *testing.T) {
	in := newIngress(t, &gateStub{admit: true}, &subsStub{})

	p := trendingPair()
	p.QuoteTokenAddress = "0x3333333333333333333333333333333333333333"
	assert.Nil(t, in.screenTrending(domain.ChainBSC, &p))
}

func TestScreenTrending_DedupWithinTTL(t *testing.T) {
	in := newIngress(t, &gateStub{admit: true}, &subsStub{})

	now := time.Now()
	in.dedup.now = func() time.Time { return now }

	p := trendingPair()
	require.NotNil(t, in.screenTrending(domain.ChainBSC, &p))
	assert.Nil(t, in.screenTrending(domain.ChainBSC, &p))

	// Same pair re-enters once the TTL lapses.
	now = now.Add(DedupTTL + time.Second)
	assert.NotNil(t, in.screenTrending(domain.ChainBSC, &p))
}

func topicWord(addr string) string {
	return "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(addr, "0x")
}

func dataWords(words ...string) string {
	var b strings.Builder
	b.WriteString("0x")
	for _, w := range words {
		b.WriteString(strings.Repeat("0", 64-len(w)))
		b.WriteString(w)
	}
	return b.String()
}

func TestParseFactoryLog_PairCreated(t *testing.T) {
	lg := fakePairCreated()
	c := parseFactoryLog(domain.ChainBSC, lg)
	require.NotNil(t, c)
	assert.Equal(t, domain.MarketV2, c.Key.Type)
	assert.Equal(t, pairAddr, c.Key.Address)
	assert.Equal(t, memeToken, c.Token0)
	assert.Equal(t, wbnb, c.Token1)
	assert.Equal(t, domain.SourceFactory, c.Source)
}

func TestParseFactoryLog_PoolCreated(t *testing.T) {
	lg := fakePoolCreated()
	c := parseFactoryLog(domain.ChainETH, lg)
	require.NotNil(t, c)
	assert.Equal(t, domain.MarketV3, c.Key.Type)
	assert.Equal(t, pairAddr, c.Key.Address)
	assert.Equal(t, uint32(3000), c.Fee)
}

func TestParseFactoryLog_IgnoresForeignTopic(t *testing.T) {
	lg := fakePairCreated()
	lg.Topics[0] = "0x" + strings.Repeat("ab", 32)
	assert.Nil(t, parseFactoryLog(domain.ChainBSC, lg))
}

func fakePairCreated() evm.Log {
	return evm.Log{
		Topics: []string{
			"0x0d3648bd0f6ba80134a33ba9275ac585d9d315f0ad8355cddefde31afa28d0e9",
			topicWord(memeToken),
			topicWord(wbnb),
		},
		Data: dataWords(strings.TrimPrefix(pairAddr, "0x"), "1"),
	}
}

func fakePoolCreated() evm.Log {
	return evm.Log{
		Topics: []string{
			"0x783cca1c0412dd0d695e784568c96da2e9c22ff989357a2e8b1d9b2b4e6b7118",
			topicWord(memeToken),
			topicWord(wbnb),
			dataWords("bb8"), // fee 3000
		},
		// Data words: tickSpacing, pool.
		Data: dataWords("3c", strings.TrimPrefix(pairAddr, "0x")),
	}
}

func TestAdmit_AdmittedMarketSubscribes(t *testing.T) {
	gate := &gateStub{admit: true}
	subs := &subsStub{}
	in := newIngress(t, gate, subs)

	c := in.screenTrending(domain.ChainBSC, &[]aggregator.PairInfo{trendingPair()}[0])
	require.NotNil(t, c)
	in.admit(context.Background(), c)

	require.Len(t, gate.calls, 1)
	require.Len(t, subs.calls, 1)
	assert.Equal(t, c.Key, subs.calls[0])

	m, ok := in.watch.Get(c.Key)
	require.True(t, ok)
	assert.Equal(t, domain.StatusPending, m.Status) // gate stub never transitions
}

func TestAdmit_RejectedMarketNotSubscribed(t *testing.T) {
	gate := &gateStub{admit: false}
	subs := &subsStub{}
	in := newIngress(t, gate, subs)

	c := in.screenTrending(domain.ChainBSC, &[]aggregator.PairInfo{trendingPair()}[0])
	require.NotNil(t, c)
	in.admit(context.Background(), c)

	assert.Len(t, gate.calls, 1)
	assert.Empty(t, subs.calls)
}

func TestAdmit_TerminalEntrySkipsGate(t *testing.T) {
	gate := &gateStub{admit: true}
	subs := &subsStub{}
	in := newIngress(t, gate, subs)

	c := in.screenTrending(domain.ChainBSC, &[]aggregator.PairInfo{trendingPair()}[0])
	require.NotNil(t, c)
	in.watch.Register(c)
	require.NoError(t, in.watch.Reject(c.Key, "liquidity 100 below minimum 2000"))

	in.admit(context.Background(), c)
	assert.Empty(t, gate.calls)
	assert.Empty(t, subs.calls)
}

func TestAdmit_NoSlotsDegradesGracefully(t *testing.T) {
	gate := &gateStub{admit: true}
	subs := &subsStub{err: subscriber.ErrNoSlots}
	in := newIngress(t, gate, subs)

	c := in.screenTrending(domain.ChainBSC, &[]aggregator.PairInfo{trendingPair()}[0])
	require.NotNil(t, c)
	in.admit(context.Background(), c)

	// Registered market survives even though no slot was free.
	_, ok := in.watch.Get(c.Key)
	assert.True(t, ok)
}

func TestAdmit_GateErrorLeavesPending(t *testing.T) {
	gate := &gateStub{err: errors.New("node down")}
	subs := &subsStub{}
	in := newIngress(t, gate, subs)

	c := in.screenTrending(domain.ChainBSC, &[]aggregator.PairInfo{trendingPair()}[0])
	require.NotNil(t, c)
	in.admit(context.Background(), c)

	assert.Empty(t, subs.calls)
	m, ok := in.watch.Get(c.Key)
	require.True(t, ok)
	assert.Equal(t, domain.StatusPending, m.Status)
}

func TestDedup_SizePrunesExpired(t *testing.T) {
	d := newDedup(time.Minute)
	now := time.Now()
	d.now = func() time.Time { return now }

	require.False(t, d.Suppress("bsc|0xaaaa"))
	require.False(t, d.Suppress("bsc|0xbbbb"))
	assert.Equal(t, 2, d.Size())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 0, d.Size())
}

func TestRejectCheck_MapsReasons(t *testing.T) {
	w := watchlist.New(zerolog.Nop())
	c := &domain.Candidate{Key: domain.MarketKey{Chain: domain.ChainBSC, Type: domain.MarketV2, Address: pairAddr}}
	w.Register(c)
	require.NoError(t, w.Reject(c.Key, "sellability fail: no static route found (V2)"))

	assert.Equal(t, "sellability", rejectCheck(w, c.Key))
	assert.Equal(t, "unknown", rejectCheck(w, domain.MarketKey{Address: "0xmissing"}))
}
