// Package fdv keeps short per-market histories of fully-diluted valuation
// samples and answers the now-vs-past ratio query behind the FDV-burst signal.
package fdv

import (
	"sync"

	"dexwatch/internal/domain"
)

// Retention and lookback horizons in milliseconds.
const (
	// KeepMs bounds how long a sample is retained.
	KeepMs = int64(15 * 60 * 1000)
	// LookbackMs is the maximum age of the past sample a ratio query
	// compares against.
	LookbackMs = int64(3 * 60 * 1000)
)

// Tracker stores FDV snapshots per market.
type Tracker struct {
	mu      sync.Mutex
	samples map[domain.MarketKey][]domain.FdvSample
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{samples: make(map[domain.MarketKey][]domain.FdvSample)}
}

// Record appends one FDV snapshot and prunes anything past retention.
// Non-positive values are ignored.
func (t *Tracker) Record(key domain.MarketKey, nowMs int64, fdvUSD float64) {
	if fdvUSD <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	series := append(t.samples[key], domain.FdvSample{TimestampMs: nowMs, FdvUSD: fdvUSD})
	t.samples[key] = pruned(series, nowMs)
}

// RatioToPast compares the latest snapshot against the oldest snapshot that
// is still within the lookback. ok is false until a distinct past sample
// exists, so a market's very first snapshot can never fire a burst.
func (t *Tracker) RatioToPast(key domain.MarketKey, nowMs int64) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	series := pruned(t.samples[key], nowMs)
	t.samples[key] = series
	if len(series) < 2 {
		return 0, false
	}

	current := series[len(series)-1]

	cutoff := nowMs - LookbackMs
	for i := 0; i < len(series)-1; i++ {
		past := series[i]
		if past.TimestampMs < cutoff {
			continue
		}
		if past.FdvUSD <= 0 {
			return 0, false
		}
		return current.FdvUSD / past.FdvUSD, true
	}
	return 0, false
}

// Drop removes a market's history outright.
func (t *Tracker) Drop(key domain.MarketKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.samples, key)
}

// Sweep prunes every series and removes markets with nothing left.
// Returns how many markets were removed.
func (t *Tracker) Sweep(nowMs int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, series := range t.samples {
		series = pruned(series, nowMs)
		if len(series) == 0 {
			delete(t.samples, key)
			removed++
			continue
		}
		t.samples[key] = series
	}
	return removed
}

func pruned(series []domain.FdvSample, nowMs int64) []domain.FdvSample {
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
