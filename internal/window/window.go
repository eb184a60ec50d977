// Package window keeps per-market sliding trade windows and answers the
// 1-minute and 10-minute aggregate queries the alert evaluator uses.
package window

import (
	"sync"
	"time"

	"dexwatch/internal/domain"
)

// Window tuning.
const (
	// KeepMs is the sliding-window horizon.
	KeepMs = int64(10 * 60 * 1000)
	// pruneBatch forces a prune at least every this many appends.
	pruneBatch = 128
	// DefaultIdleDrop evicts a market's whole window after this much
	// inactivity.
	DefaultIdleDrop = 2 * time.Hour
)

// MinuteStats are the 1-minute aggregates over [now-60s, now].
type MinuteStats struct {
	TotalUSD     float64
	BuyUSD       float64
	BuyTxs       int
	UniqueBuyers int
}

// Store holds one sliding window per market. Access is sharded per market
// so cross-market contention stays off the hot path.
type Store struct {
	idleDrop time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	windows map[domain.MarketKey]*marketWindow
}

type marketWindow struct {
	mu             sync.Mutex
	events         []domain.TradeEvent
	appendsSince   int
	lastActivityMs int64
}

// NewStore creates a Store. idleDrop <= 0 takes the default.
func NewStore(idleDrop time.Duration) *Store {
	if idleDrop <= 0 {
		idleDrop = DefaultIdleDrop
	}
	return &Store{
		idleDrop: idleDrop,
		now:      time.Now,
		windows:  make(map[domain.MarketKey]*marketWindow),
	}
}

func (s *Store) window(key domain.MarketKey, create bool) *marketWindow {
	s.mu.RLock()
	w := s.windows[key]
	s.mu.RUnlock()
	if w != nil || !create {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w = s.windows[key]; w == nil {
		w = &marketWindow{}
		s.windows[key] = w
	}
	return w
}

// Record appends one trade event to the market's window.
func (s *Store) Record(key domain.MarketKey, ev domain.TradeEvent) {
	w := s.window(key, true)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.events = append(w.events, ev)
	w.lastActivityMs = ev.TimestampMs
	w.appendsSince++
	if w.appendsSince >= pruneBatch {
		w.prune(ev.TimestampMs)
	}
}

// prune drops events older than the keep horizon. Caller holds w.mu.
func (w *marketWindow) prune(nowMs int64) {
	cutoff := nowMs - KeepMs
	i := 0
	for i < len(w.events) && w.events[i].TimestampMs < cutoff {
		i++
	}
	if i > 0 {
		w.events = append(w.events[:0], w.events[i:]...)
	}
	w.appendsSince = 0
}

// OneMinute returns the 1-minute aggregates at nowMs. The unique-buyer set
// is rebuilt on every query by walking the horizon; no running set is kept.
func (s *Store) OneMinute(key domain.MarketKey, nowMs int64) MinuteStats {
	w := s.window(key, false)
	if w == nil {
		return MinuteStats{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(nowMs)

	horizon := nowMs - 60_000
	var stats MinuteStats
	buyers := make(map[string]struct{})

	for i := len(w.events) - 1; i >= 0; i-- {
		ev := w.events[i]
		if ev.TimestampMs < horizon {
			break
		}
		stats.TotalUSD += ev.USD
		if ev.IsBuy {
			stats.BuyUSD += ev.USD
			stats.BuyTxs++
			if ev.Buyer != "" {
				buyers[ev.Buyer] = struct{}{}
			}
		}
	}
	stats.UniqueBuyers = len(buyers)
	return stats
}

// TenMinutesTotal returns total USD volume over [nowMs-600s, nowMs].
func (s *Store) TenMinutesTotal(key domain.MarketKey, nowMs int64) float64 {
	w := s.window(key, false)
	if w == nil {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(nowMs)

	horizon := nowMs - KeepMs
	var total float64
	for i := len(w.events) - 1; i >= 0; i-- {
		ev := w.events[i]
		if ev.TimestampMs < horizon {
			break
		}
		total += ev.USD
	}
	return total
}

// BaselineAvgPerMin is the average per-minute volume over the nine minutes
// preceding the current minute. Never negative.
func (s *Store) BaselineAvgPerMin(key domain.MarketKey, nowMs int64) float64 {
	total10 := s.TenMinutesTotal(key, nowMs)
	total1 := s.OneMinute(key, nowMs).TotalUSD
	baseline := (total10 - total1) / 9
	if baseline < 0 {
		return 0
	}
	return baseline
}

// SweepIdle drops whole windows with no activity for the idle-drop span.
// Returns how many were evicted.
func (s *Store) SweepIdle() int {
	cutoff := s.now().UnixMilli() - s.idleDrop.Milliseconds()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, w := range s.windows {
		w.mu.Lock()
		idle := w.lastActivityMs < cutoff
		w.mu.Unlock()
		if idle {
			delete(s.windows, key)
			evicted++
		}
	}
	return evicted
}

// Drop removes one market's window outright.
func (s *Store) Drop(key domain.MarketKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
}
