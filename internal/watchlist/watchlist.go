// Package watchlist is the per-market lifecycle registry. It is the sole
// owner of Market entries; every other component holds only the MarketKey
// and looks the entry up on demand.
package watchlist

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dexwatch/internal/domain"
)

// Eviction windows for the idle sweep.
const (
	// ActiveTTL expires active markets this long after their last update.
	ActiveTTL = 24 * time.Hour
	// IdleTTL expires pending and rejected markets.
	IdleTTL = 1 * time.Hour
)

// Errors returned by the watchlist.
var (
	ErrNotFound = errors.New("watchlist: market not found")
	// ErrTerminal is returned when a transition is attempted out of a
	// terminal status (active or rejected).
	ErrTerminal = errors.New("watchlist: status is terminal")
)

// Watchlist is a concurrency-safe market registry.
type Watchlist struct {
	log zerolog.Logger
	now func() time.Time

	mu      sync.RWMutex
	markets map[domain.MarketKey]*domain.Market
}

// New creates an empty Watchlist.
func New(logger zerolog.Logger) *Watchlist {
	return &Watchlist{
		log:     logger,
		now:     time.Now,
		markets: make(map[domain.MarketKey]*domain.Market),
	}
}

// Register inserts a pending entry for the candidate. The insert is
// idempotent: an existing entry is returned unchanged with created=false,
// which also absorbs duplicate factory logs after a reorg.
func (w *Watchlist) Register(c *domain.Candidate) (domain.Market, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.markets[c.Key]; ok {
		return *existing, false
	}

	nowMs := w.now().UnixMilli()
	m := &domain.Market{
		Key:           c.Key,
		Token0:        domain.NormalizeAddress(c.Token0),
		Token1:        domain.NormalizeAddress(c.Token1),
		Fee:           c.Fee,
		Status:        domain.StatusPending,
		FirstSeenMs:   nowMs,
		LastUpdatedMs: nowMs,
		LiquidityUSD:  c.ReportedLiquidityUSD,
	}
	w.markets[c.Key] = m
	return *m, true
}

// Get returns a copy of the entry for key.
func (w *Watchlist) Get(key domain.MarketKey) (domain.Market, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	m, ok := w.markets[key]
	if !ok {
		return domain.Market{}, false
	}
	return *m, true
}

// Activate transitions a pending entry to active and records the observed
// liquidity. Activating an already-active entry is a no-op.
func (w *Watchlist) Activate(key domain.MarketKey, liquidityUSD float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	m, ok := w.markets[key]
	if !ok {
		return ErrNotFound
	}
	switch m.Status {
	case domain.StatusActive:
		return nil
	case domain.StatusRejected:
		return ErrTerminal
	}

	m.Status = domain.StatusActive
	m.LiquidityUSD = liquidityUSD
	m.LastUpdatedMs = w.now().UnixMilli()
	return nil
}

// Reject transitions a pending entry to rejected with a machine-readable
// reason. Rejecting an already-rejected entry is a no-op.
func (w *Watchlist) Reject(key domain.MarketKey, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	m, ok := w.markets[key]
	if !ok {
		return ErrNotFound
	}
	switch m.Status {
	case domain.StatusRejected:
		return nil
	case domain.StatusActive:
		return ErrTerminal
	}

	m.Status = domain.StatusRejected
	m.Reason = reason
	m.LastUpdatedMs = w.now().UnixMilli()
	return nil
}

// Touch refreshes the entry's last-updated timestamp.
func (w *Watchlist) Touch(key domain.MarketKey) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if m, ok := w.markets[key]; ok {
		m.LastUpdatedMs = w.now().UnixMilli()
	}
}

// SetLiquidity records the last observed pool liquidity.
func (w *Watchlist) SetLiquidity(key domain.MarketKey, usd float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if m, ok := w.markets[key]; ok {
		m.LiquidityUSD = usd
		m.LastUpdatedMs = w.now().UnixMilli()
	}
}

// SetLastMint records the USD value of the most recent liquidity add.
func (w *Watchlist) SetLastMint(key domain.MarketKey, usd float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if m, ok := w.markets[key]; ok {
		m.LastMintUSD = usd
		m.LastUpdatedMs = w.now().UnixMilli()
	}
}

// SetBaseHint records which side was identified as the base token.
func (w *Watchlist) SetBaseHint(key domain.MarketKey, addr string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if m, ok := w.markets[key]; ok {
		m.BaseHint = domain.NormalizeAddress(addr)
	}
}

// ActiveKeys returns the keys of all active markets.
func (w *Watchlist) ActiveKeys() []domain.MarketKey {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var keys []domain.MarketKey
	for key, m := range w.markets {
		if m.Status == domain.StatusActive {
			keys = append(keys, key)
		}
	}
	return keys
}

// CountByStatus returns entry counts per lifecycle status.
func (w *Watchlist) CountByStatus() map[domain.MarketStatus]int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	counts := make(map[domain.MarketStatus]int, 3)
	for _, m := range w.markets {
		counts[m.Status]++
	}
	return counts
}

// RejectionReasons returns rejected-entry counts per reason, for the
// periodic health summary.
func (w *Watchlist) RejectionReasons() map[string]int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	reasons := make(map[string]int)
	for _, m := range w.markets {
		if m.Status == domain.StatusRejected && m.Reason != "" {
			reasons[m.Reason]++
		}
	}
	return reasons
}

// Sweep evicts idle entries: active markets ActiveTTL after their last
// update, everything else IdleTTL after. Returns the evicted keys so the
// caller can release subscriptions and slots.
func (w *Watchlist) Sweep() []domain.MarketKey {
	nowMs := w.now().UnixMilli()

	w.mu.Lock()
	defer w.mu.Unlock()

	var evicted []domain.MarketKey
	for key, m := range w.markets {
		ttl := IdleTTL
		if m.Status == domain.StatusActive {
			ttl = ActiveTTL
		}
		if nowMs-m.LastUpdatedMs > ttl.Milliseconds() {
			delete(w.markets, key)
			evicted = append(evicted, key)
		}
	}

	if len(evicted) > 0 {
		w.log.Info().Int("evicted", len(evicted)).Msg("watchlist sweep")
	}
	return evicted
}
