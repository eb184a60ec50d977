package tax

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dexwatch/internal/domain"
)

var key = domain.MarketKey{Chain: domain.ChainBSC, Type: domain.MarketV2, Address: "0xaaaa"}

func TestRecord_DerivedTax(t *testing.T) {
	e := NewEstimator()
	now := int64(1_700_000_000_000)

	// Expected 100, realized 90: a 10% effective fee on the buy side.
	e.Record(key, now, true, 100, 90)

	buy, _, buyN, sellN := e.Avg(key, now)
	assert.Equal(t, 1, buyN)
	assert.Equal(t, 0, sellN)
	assert.InDelta(t, 0.10, buy, 1e-9)
}

func TestRecord_ClampedToUnitInterval(t *testing.T) {
	e := NewEstimator()
	now := int64(1_700_000_000_000)

	e.Record(key, now, false, 100, 150) // better than expected: clamp to 0
	e.Record(key, now, true, 1, 0)      // total loss: clamp to 1

	buy, sell, buyN, sellN := e.Avg(key, now)
	assert.Equal(t, 1, buyN)
	assert.Equal(t, 1, sellN)
	assert.Equal(t, 1.0, buy)
	assert.Equal(t, 0.0, sell)
}

func TestRecord_DiscardsDegenerateExpected(t *testing.T) {
	e := NewEstimator()
	now := int64(1_700_000_000_000)

	e.Record(key, now, true, 0, 50)
	e.Record(key, now, true, -1, 50)

	_, _, buyN, _ := e.Avg(key, now)
	assert.Zero(t, buyN)
}

func TestAvg_DirectionalMeans(t *testing.T) {
	e := NewEstimator()
	now := int64(1_700_000_000_000)

	e.Record(key, now-30_000, true, 100, 90)  // 0.10
	e.Record(key, now-20_000, true, 100, 70)  // 0.30
	e.Record(key, now-10_000, false, 100, 95) // 0.05

	buy, sell, buyN, sellN := e.Avg(key, now)
	assert.Equal(t, 2, buyN)
	assert.Equal(t, 1, sellN)
	assert.InDelta(t, 0.20, buy, 1e-9)
	assert.InDelta(t, 0.05, sell, 1e-9)
}

func TestAvg_RetentionWindow(t *testing.T) {
	e := NewEstimator()
	now := int64(1_700_000_000_000)

	e.Record(key, now-KeepMs-1, true, 100, 10) // 0.90, stale
	e.Record(key, now-1_000, true, 100, 90)    // 0.10

	buy, _, buyN, _ := e.Avg(key, now)
	assert.Equal(t, 1, buyN)
	assert.InDelta(t, 0.10, buy, 1e-9)
}

func TestSweep_RemovesEmptySeries(t *testing.T) {
	e := NewEstimator()
	now := int64(1_700_000_000_000)

	e.Record(key, now-KeepMs, true, 100, 90)
	other := domain.MarketKey{Chain: domain.ChainETH, Type: domain.MarketV3, Address: "0xbbbb"}
	e.Record(other, now, false, 100, 90)

	assert.Equal(t, 1, e.Sweep(now+1))
	_, _, _, sellN := e.Avg(other, now)
	assert.Equal(t, 1, sellN)
}
