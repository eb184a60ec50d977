// Package tax estimates per-market transfer taxes by comparing the pool's
// mid-price expectation against the realized swap output.
package tax

import (
	"sync"

	"dexwatch/internal/domain"
)

// KeepMs bounds how long a tax sample is retained.
const KeepMs = int64(10 * 60 * 1000)

// epsilon floors the expected amount so a degenerate quote cannot divide
// by zero.
const epsilon = 1e-12

// Estimator keeps rolling buy/sell effective-fee samples per market.
type Estimator struct {
	mu      sync.Mutex
	samples map[domain.MarketKey][]domain.TaxSample
}

// NewEstimator creates an empty Estimator.
func NewEstimator() *Estimator {
	return &Estimator{samples: make(map[domain.MarketKey][]domain.TaxSample)}
}

// Record derives one tax sample from decimal-normalized expected and observed
// amounts and files it under the trade's direction. Samples are clamped to
// [0, 1]; a non-positive expected amount is discarded.
func (e *Estimator) Record(key domain.MarketKey, nowMs int64, isBuy bool, expected, observed float64) {
	if expected <= 0 || observed < 0 {
		return
	}

	tax := 1 - observed/max(expected, epsilon)
	if tax < 0 {
		tax = 0
	}
	if tax > 1 {
		tax = 1
	}

	sample := domain.TaxSample{TimestampMs: nowMs}
	if isBuy {
		sample.BuyTax = &tax
	} else {
		sample.SellTax = &tax
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples[key] = pruned(append(e.samples[key], sample), nowMs)
}

// Avg returns the arithmetic mean of each direction's samples within the
// retention window. The counts tell the caller whether a direction has any
// samples at all.
func (e *Estimator) Avg(key domain.MarketKey, nowMs int64) (buyAvg, sellAvg float64, buyN, sellN int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	series := pruned(e.samples[key], nowMs)
	e.samples[key] = series

	var buySum, sellSum float64
	for _, s := range series {
		if s.BuyTax != nil {
			buySum += *s.BuyTax
			buyN++
		}
		if s.SellTax != nil {
			sellSum += *s.SellTax
			sellN++
		}
	}
	if buyN > 0 {
		buyAvg = buySum / float64(buyN)
	}
	if sellN > 0 {
		sellAvg = sellSum / float64(sellN)
	}
	return buyAvg, sellAvg, buyN, sellN
}

// Drop removes a market's samples outright.
func (e *Estimator) Drop(key domain.MarketKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.samples, key)
}

// Sweep prunes every series and removes markets with nothing left.
func (e *Estimator) Sweep(nowMs int64) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for key, series := range e.samples {
		series = pruned(series, nowMs)
		if len(series) == 0 {
			delete(e.samples, key)
			removed++
			continue
		}
		e.samples[key] = series
	}
	return removed
}

func pruned(series []domain.TaxSample, nowMs int64) []domain.TaxSample {
	cutoff := nowMs - KeepMs
	i := 0
	for i < len(series) && series[i].TimestampMs < cutoff {
		i++
	}
	if i > 0 {
		series = append(series[:0], series[i:]...)
	}
	return series
}
