// Package subscriber runs the per-market on-chain event subscriptions that
// feed trades into the window store and the alert evaluator.
package subscriber

import (
	"sync"

	"dexwatch/internal/domain"
	"dexwatch/internal/observability"
)

// Slots is the process-wide subscription budget: a bounded table mapping
// market keys to stop handles. When the budget is exhausted, new markets
// stay registered but unsubscribed until a slot frees.
type Slots struct {
	mu    sync.Mutex
	max   int
	stops map[domain.MarketKey]func()
}

// NewSlots creates the slot table with the given budget.
func NewSlots(max int) *Slots {
	return &Slots{max: max, stops: make(map[domain.MarketKey]func())}
}

// Acquire claims a slot for key and files its stop handle. Returns false
// when the budget is exhausted or the key already holds a slot.
func (s *Slots) Acquire(key domain.MarketKey, stop func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.stops[key]; held {
		return false
	}
	if len(s.stops) >= s.max {
		return false
	}
	s.stops[key] = stop
	observability.SetActiveSubscriptions(len(s.stops))
	return true
}

// Release frees the key's slot, invoking its stop handle. Returns false when
// the key held no slot.
func (s *Slots) Release(key domain.MarketKey) bool {
	s.mu.Lock()
	stop, held := s.stops[key]
	delete(s.stops, key)
	observability.SetActiveSubscriptions(len(s.stops))
	s.mu.Unlock()

	if !held {
		return false
	}
	if stop != nil {
		stop()
	}
	return true
}

// Has reports whether key currently holds a slot.
func (s *Slots) Has(key domain.MarketKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, held := s.stops[key]
	return held
}

// Count returns the number of held slots.
func (s *Slots) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stops)
}

// Free reports the number of unclaimed slots.
func (s *Slots) Free() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max - len(s.stops)
}

// ReleaseAll stops every subscription. Used at shutdown.
func (s *Slots) ReleaseAll() {
	s.mu.Lock()
	stops := make([]func(), 0, len(s.stops))
	for key, stop := range s.stops {
		if stop != nil {
			stops = append(stops, stop)
		}
		delete(s.stops, key)
	}
	observability.SetActiveSubscriptions(0)
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}
