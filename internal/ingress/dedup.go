// Package ingress discovers candidate markets from factory events and the
// trending poller and drives them through the admission gate.
package ingress

import (
	"sync"
	"time"
)

// DedupTTL bounds how often the same trending candidate may re-enter.
const DedupTTL = 5 * time.Minute

// dedup is a key→expiry set with lazy pruning.
type dedup struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func newDedup(ttl time.Duration) *dedup {
	return &dedup{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

// Suppress reports whether key was already seen within the TTL, marking it
// seen either way.
func (d *dedup) Suppress(key string) bool {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if expiry, ok := d.seen[key]; ok && now.Before(expiry) {
		return true
	}
	d.seen[key] = now.Add(d.ttl)
	return false
}

// Size returns the live entry count, pruning expired keys.
func (d *dedup) Size() int {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for key, expiry := range d.seen {
		if !now.Before(expiry) {
			delete(d.seen, key)
		}
	}
	return len(d.seen)
}
